package common

const (
	ComponentIndexer       = "indexer"
	ComponentFetcher       = "fetcher"
	ComponentProcessor     = "processor"
	ComponentContractRead  = "contractreader"
	ComponentCache         = "cache"
	ComponentStore         = "store"
	ComponentRPC           = "rpc"
	ComponentMaintenance   = "maintenance"
)

var AllComponents = map[string]struct{}{
	ComponentIndexer:      {},
	ComponentFetcher:      {},
	ComponentProcessor:    {},
	ComponentContractRead: {},
	ComponentCache:        {},
	ComponentStore:        {},
	ComponentRPC:          {},
	ComponentMaintenance:  {},
}
