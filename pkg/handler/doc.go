// Package handler adapts typed request handlers to net/http.
//
// A HandlerFunc receives the request bound into a typed value and returns a
// Response that renders itself. Binding and rendering failures go through a
// single ErrorHandler, which by default writes the JSON error envelope:
//
//	type getRequest struct {
//		ID string `path:"id"`
//	}
//
//	r.Get("/v1/notifications/{id}", handler.Wrap(func(r *http.Request, req getRequest) handler.Response {
//		n, err := store.Get(r.Context(), req.ID)
//		if err != nil {
//			return handler.JSONError(err)
//		}
//		return handler.JSON(n)
//	}, handler.WithBinders(handler.BindPath(chi.URLParam))))
//
// Every JSON body has the shape {"data": ..., "meta": ..., "error": {...}}.
package handler
