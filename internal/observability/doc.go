// Package observability builds the process logger and the Prometheus
// collectors for authentication, authorization and HTTP traffic.
package observability
