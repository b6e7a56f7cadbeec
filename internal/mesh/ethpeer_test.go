package mesh

import (
	"context"
	"testing"
	"time"
)

func TestEthPeerMissingConfig(t *testing.T) {
	peer := NewEthPeer("", time.Second)
	if _, _, err := peer.Offset(context.Background()); err == nil {
		t.Fatal("expected error when RPC URL is not configured")
	}
}

func TestEthPeerName(t *testing.T) {
	peer := NewEthPeer("http://localhost:8545", time.Second)
	if peer.Name() != "ethereum" {
		t.Fatalf("unexpected peer name %q", peer.Name())
	}
}
