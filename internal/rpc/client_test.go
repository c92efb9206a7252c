package rpc

import (
	"testing"

	pkgrpc "github.com/onchainwatch/logindexer/pkg/rpc"
)

// TestClientImplementsInterface verifies that Client implements the EthClient interface.
func TestClientImplementsInterface(t *testing.T) {
	// This test ensures compile-time interface compliance is maintained
	var _ pkgrpc.EthClient = (*Client)(nil)
}
