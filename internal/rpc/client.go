package rpc

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	pkgrpc "github.com/onchainwatch/logindexer/pkg/rpc"
)

var _ pkgrpc.EthClient = (*Client)(nil)

// Client wraps a go-ethereum JSON-RPC connection, retrying transient
// failures per RetryConfig and classifying range-too-wide errors so the
// fetch planner can bisect instead of retrying.
type Client struct {
	eth   *ethclient.Client
	rpc   *gethrpc.Client
	retry *RetryConfig
}

// NewClient dials endpoint and wraps it with the given retry policy. A nil
// retryCfg disables retrying (every call runs exactly once).
func NewClient(ctx context.Context, endpoint string, retryCfg *RetryConfig) (*Client, error) {
	rpcClient, err := gethrpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("rpc: dial %s: %w", endpoint, err)
	}

	if retryCfg != nil {
		retryCfg.ApplyDefaults()
	}

	return &Client{
		eth:   ethclient.NewClient(rpcClient),
		rpc:   rpcClient,
		retry: retryCfg,
	}, nil
}

func (c *Client) Close() {
	c.eth.Close()
}

// GetLastBlockNumber returns the current chain head's number.
func (c *Client) GetLastBlockNumber(ctx context.Context) (uint64, error) {
	var header *types.Header
	err := c.call(ctx, "eth_blockNumber", func() error {
		h, err := c.eth.HeaderByNumber(ctx, nil)
		if err != nil {
			return err
		}
		header = h
		return nil
	})
	if err != nil {
		return 0, err
	}
	return header.Number.Uint64(), nil
}

// GetLogs retrieves logs matching query, retrying transient failures but
// propagating a classified *pkgrpc.RangeTooWideError undecorated and
// unretried.
func (c *Client) GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	var logs []types.Log
	err := c.call(ctx, "eth_getLogs", func() error {
		result, err := c.eth.FilterLogs(ctx, query)
		if err != nil {
			if rte, ok := classifyRangeTooWide(err); ok {
				return rte
			}
			return err
		}
		logs = result
		return nil
	})
	return logs, err
}

// ReadContract performs a point-in-time eth_call.
func (c *Client) ReadContract(ctx context.Context, req pkgrpc.CallRequest) ([]byte, error) {
	var result []byte
	err := c.call(ctx, "eth_call", func() error {
		msg := ethereum.CallMsg{To: &req.Address, Data: req.Data}
		var blockNumber *big.Int
		if req.BlockNumber != 0 {
			blockNumber = new(big.Int).SetUint64(req.BlockNumber)
		}
		res, err := c.eth.CallContract(ctx, msg, blockNumber)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	return result, err
}

// call instruments a single RPC operation with metrics and the retry wrapper.
func (c *Client) call(ctx context.Context, method string, fn func() error) error {
	start := time.Now()
	RPCMethodInc(method)

	err := retryWithBackoff(ctx, c.retry, method, fn)

	RPCMethodDuration(method, time.Since(start))
	if err != nil {
		errType := "other"
		if _, ok := classifyRangeTooWide(err); ok {
			errType = "range_too_wide"
		}
		RPCMethodError(method, errType)
	}
	return err
}

