// Package contractreader is the contract reader (component C): a
// cache-through point read, the same shape readContract exposes to user
// handlers via HandlerContext.
package contractreader

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/onchainwatch/logindexer/internal/logger"
	"github.com/onchainwatch/logindexer/pkg/abi"
	pkgcache "github.com/onchainwatch/logindexer/pkg/cache"
	pkgrpc "github.com/onchainwatch/logindexer/pkg/rpc"
)

// Reader performs cache-through eth_call reads against one or more ABI
// schemas, keyed by contract name.
type Reader struct {
	rpc   pkgrpc.EthClient
	cache pkgcache.Cache // nil is a legal "always miss" configuration
	log   *logger.Logger
}

// New constructs a Reader. c may be nil.
func New(client pkgrpc.EthClient, c pkgcache.Cache, log *logger.Logger) *Reader {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Reader{rpc: client, cache: c, log: log.WithComponent("contractreader")}
}

// Read performs the cache-through point read (spec §4.C): encode the call,
// consult the cache, fall back to RPC on a miss, and decode the result. The
// cache is never written on failure.
func (r *Reader) Read(ctx context.Context, schema *abi.ContractSchema, address common.Address, functionName string, blockNumber uint64, args ...interface{}) (abi.DecodedArgs, error) {
	data, err := schema.EncodeCall(functionName, args...)
	if err != nil {
		return nil, fmt.Errorf("contractreader: %s.%s: encode call: %w", schema.Name, functionName, err)
	}

	result, err := r.resultBytes(ctx, address, functionName, blockNumber, data)
	if err != nil {
		return nil, err
	}

	decoded, err := schema.DecodeCallResult(functionName, result)
	if err != nil {
		return nil, fmt.Errorf("contractreader: %s.%s: decode result: %w", schema.Name, functionName, err)
	}
	return decoded, nil
}

func (r *Reader) resultBytes(ctx context.Context, address common.Address, functionName string, blockNumber uint64, data []byte) ([]byte, error) {
	if r.cache != nil {
		result, ok, err := r.cache.GetCallResult(ctx, address, functionName, blockNumber, data)
		if err != nil {
			return nil, fmt.Errorf("contractreader: %s: cache lookup: %w", functionName, err)
		}
		if ok {
			return result, nil
		}
	}

	result, err := r.rpc.ReadContract(ctx, pkgrpc.CallRequest{
		FunctionName: functionName,
		Address:      address,
		Data:         data,
		BlockNumber:  blockNumber,
	})
	if err != nil {
		return nil, fmt.Errorf("contractreader: %s: eth_call: %w", functionName, err)
	}

	if r.cache != nil {
		if err := r.cache.StoreCallResult(ctx, address, functionName, blockNumber, data, result); err != nil {
			return nil, fmt.Errorf("contractreader: %s: cache store: %w", functionName, err)
		}
	}

	return result, nil
}
