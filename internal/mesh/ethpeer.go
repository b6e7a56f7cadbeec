package mesh

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
)

// EthPeer reads the latest block timestamp from an Ethereum RPC endpoint.
// Block timestamps lag real time by up to a slot (12s), so the offset is a
// coarse reference, but one no single web server operator controls.
type EthPeer struct {
	rpcURL    string
	timeout   time.Duration
	client    *ethclient.Client
	clientMux sync.Mutex
}

// NewEthPeer constructs an Ethereum time peer.
func NewEthPeer(rpcURL string, timeout time.Duration) *EthPeer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &EthPeer{rpcURL: rpcURL, timeout: timeout}
}

// Name identifies the peer in reports.
func (p *EthPeer) Name() string {
	return "ethereum"
}

// Offset measures the clock offset against the latest block header timestamp.
func (p *EthPeer) Offset(ctx context.Context) (time.Duration, time.Duration, error) {
	if p.rpcURL == "" {
		return 0, 0, errors.New("ethereum rpc url not configured")
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, p.timeout)
	defer cancel()

	client, err := p.getClient(ctx)
	if err != nil {
		return 0, 0, err
	}

	before := time.Now()
	header, err := client.HeaderByNumber(ctx, nil)
	after := time.Now()
	if err != nil {
		return 0, 0, err
	}

	blockTime := time.Unix(int64(header.Time), 0)
	rtt := after.Sub(before)
	midpoint := before.Add(rtt / 2)
	return blockTime.Sub(midpoint), rtt, nil
}

func (p *EthPeer) getClient(ctx context.Context) (*ethclient.Client, error) {
	p.clientMux.Lock()
	defer p.clientMux.Unlock()

	if p.client != nil {
		return p.client, nil
	}

	client, err := ethclient.DialContext(ctx, p.rpcURL)
	if err != nil {
		return nil, err
	}
	p.client = client
	return client, nil
}

var _ Peer = (*EthPeer)(nil)
