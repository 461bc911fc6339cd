// Package tracker defines the remote issue tracker surface consumed by the
// reconciliation executor, plus an HTTP implementation for OpenProject-style
// APIs (HAL payloads, lockVersion optimistic concurrency, API-key basic auth).
//
// The executor depends only on the Client interface; tests substitute
// scripted implementations to exercise conflict, rate-limit and not-found
// recovery paths without a live server.
package tracker
