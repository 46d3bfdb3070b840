// Package buildinfo exposes build information for beamcal.
//
// Values are injected at build time via ldflags:
//
//	go build -ldflags "-X github.com/yndnr/beamcal/internal/infra/buildinfo.Version=v0.3.0"
//
// When the binary was built without ldflags, Get falls back to the module and
// VCS metadata recorded by the Go toolchain.
package buildinfo
