// Package server hosts the Fiber HTTP service and the request middleware
// chain that turns /{owner}/{region}/{domain}/{repo}/... paths into repository
// coordinates for proxy handlers. It also owns the shared outbound HTTP
// clients (upstream, mirror probe, credential endpoint) and the header
// allow-lists both proxy directions use. The package exposes narrow
// constructors that cmd wiring and the proxy package reuse; it never imports
// them back, so handler assembly stays in main.
package server
