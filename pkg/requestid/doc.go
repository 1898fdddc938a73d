// Package requestid propagates a per-request identifier through HTTP
// handlers and log records.
//
// Middleware accepts a client supplied X-Request-ID when it is well formed
// and generates a UUID otherwise. The id is echoed in the response header and
// stored in the request context:
//
//	r := chi.NewRouter()
//	r.Use(requestid.Middleware)
//
//	log := logger.New(logger.WithContextExtractors(requestid.LoggerExtractor()))
package requestid
