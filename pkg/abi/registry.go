package abi

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry is a case-insensitive contract-name to schema lookup, the source
// of truth subscribeToContract validates against (spec §4.I: "unknown name
// is fatal"). Grounded on the same registry-by-string pattern the dispatch
// emitter uses for handler lookups.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*ContractSchema
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]*ContractSchema)}
}

// Register adds or replaces a contract's schema, keyed case-insensitively by
// name.
func (r *Registry) Register(schema *ContractSchema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[strings.ToLower(schema.Name)] = schema
}

// Get looks up a contract schema by name. ok is false when unregistered.
func (r *Registry) Get(contractName string) (*ContractSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[strings.ToLower(contractName)]
	return s, ok
}

// MustGet looks up a contract schema by name, returning an error rather than
// panicking on a miss.
func (r *Registry) MustGet(contractName string) (*ContractSchema, error) {
	s, ok := r.Get(contractName)
	if !ok {
		return nil, fmt.Errorf("abi: unknown contract %q", contractName)
	}
	return s, nil
}

// Names lists every registered contract name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.schemas))
	for _, s := range r.schemas {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return names
}
