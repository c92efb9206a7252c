package sqlitecache

import "github.com/ethereum/go-ethereum/common"

// dbLog mirrors a single event_logs row.
type dbLog struct {
	ID          int64          `meddler:"id,pk"`
	Address     common.Address `meddler:"address,address"`
	BlockNumber uint64         `meddler:"block_number"`
	BlockHash   common.Hash    `meddler:"block_hash,hash"`
	TxHash      common.Hash    `meddler:"tx_hash,hash"`
	TxIndex     uint           `meddler:"tx_index"`
	LogIndex    uint           `meddler:"log_index"`
	Topic0      *common.Hash   `meddler:"topic0,hash"`
	Topic1      *common.Hash   `meddler:"topic1,hash"`
	Topic2      *common.Hash   `meddler:"topic2,hash"`
	Topic3      *common.Hash   `meddler:"topic3,hash"`
	Data        []byte         `meddler:"data"`
	CreatedAt   string         `meddler:"created_at"`
}

// dbCoverage mirrors a single log_coverage row: a block range this cache has
// fully indexed for an address, regardless of which topics were queried
// (spec §6.2: GetLogs is always consulted with topic0=None).
type dbCoverage struct {
	ID        int64          `meddler:"id,pk"`
	Address   common.Address `meddler:"address,address"`
	FromBlock uint64         `meddler:"from_block"`
	ToBlock   uint64         `meddler:"to_block"`
	CreatedAt string         `meddler:"created_at"`
}

// dbCallResult mirrors a single call_results row, keyed by the exact encoded
// call (address, function name, block number, and argument bytes).
type dbCallResult struct {
	ID           int64          `meddler:"id,pk"`
	Address      common.Address `meddler:"address,address"`
	FunctionName string         `meddler:"function_name"`
	BlockNumber  uint64         `meddler:"block_number"`
	CallDataHex  string         `meddler:"call_data_hex"`
	Result       []byte         `meddler:"result"`
	CreatedAt    string         `meddler:"created_at"`
}
