// Package notifyapi exposes the notification engine over HTTP.
//
// Routes, relative to where Handle is mounted:
//
//	POST /v1/notifications                  submit a request to the engine
//	GET  /v1/notifications/{id}             fetch a stored notification
//	POST /v1/notifications/{id}/read        acknowledge a read
//	POST /v1/notifications/{id}/click       acknowledge a click
//	GET  /v1/users/{user_id}/stream         in-app notifications as Server-Sent Events
//	GET  /v1/engine/state                   snapshot and scheduler status
//	POST /v1/engine/refresh                 rebuild profiles, patterns and models
//
// Responses use the handler package JSON envelope.
package notifyapi
