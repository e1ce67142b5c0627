// Package credential caches the short-lived repository tokens handed out by
// the upstream authorization endpoint. Tokens are keyed by the full repository
// coordinates taken from the request path, live for a configured validity
// window, and are fetched at most once per coordinate at a time: concurrent
// misses for the same coordinates share a single in-flight request while
// different coordinates proceed independently. Failed fetches cache nothing,
// so the next request retries naturally. The package also records the result
// of the most recent fetch for the health endpoint to report.
package credential
