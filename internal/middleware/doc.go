// Package middleware provides the HTTP middleware used by the server:
// access logging in W3C Extended Log Format and Prometheus request metrics.
//
// Thumbnail and static asset requests dominate the traffic of a browsing
// session, so the logger drops them unless LogStaticFiles is set; health
// probes are dropped unless LogHealthChecks is set.
package middleware
