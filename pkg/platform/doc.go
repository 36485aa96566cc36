// Package platform defines the chat-platform message API this backend
// posts through, and a REST implementation of it.
//
// Only the error classification surface is interesting here: every
// failed call is mapped to an *APIError carrying the HTTP status and
// any rate-limit retry hint, which pkg/backoff uses to decide whether a
// call is worth retrying. The transport itself is a plain HTTP client.
package platform
