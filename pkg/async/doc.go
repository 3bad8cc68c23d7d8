// Package async runs best-effort background work with panic recovery and a
// timeout, for tasks such as cache write-back and token bookkeeping that must
// never fail or slow down the request that scheduled them.
package async
