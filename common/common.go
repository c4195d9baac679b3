// Package common holds build identity shared across binaries.
package common

// PackageName namespaces metrics and log output.
const PackageName = "threshnet"

// Version is set at build time via -ldflags.
var Version = "dev"
