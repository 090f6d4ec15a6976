//go:build tools
// +build tools

// Package tools documents development tool dependencies.
// These are installed globally via `go install` and are not tracked in
// go.mod, since they are development tools rather than runtime dependencies.
package tools

// Development tools (install via `go install`):
//
// Air - live reload while working on the API locally
//   Install: go install github.com/air-verse/air@v1.63.0
//
// mockgen - regenerates the mocks behind internal/mocks/generate.go
//   Install: go run go.uber.org/mock/mockgen (invoked via go:generate)
