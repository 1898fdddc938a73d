// Package sms sends text messages through an HTTP SMS gateway.
//
// GatewayClient POSTs a JSON body {from, to, body, reference} to the
// configured URL with an optional bearer API key, retrying transient failures
// with exponential backoff and jitter. Client errors other than 408, 425 and
// 429 are treated as permanent and returned without retrying.
package sms
