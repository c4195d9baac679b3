// Package httpserver provides the HTTP scaffold shared by all service
// binaries: routing, request logging, health and drain endpoints, pprof
// and the metrics listener.
package httpserver
