//go:build tools
// +build tools

// Package tools pins mockgen, which contract.go invokes through go generate,
// so go.mod and go.sum track it.
package chat_relay

import (
	_ "go.uber.org/mock/mockgen"
)
