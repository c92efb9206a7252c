// Package abi is the ABI codec external interface (spec §1, out of scope
// for the core but shipped here as the default adapter): it turns
// human-readable signatures into a schema that can encode call data and
// decode event topics/data and call results, backed by go-ethereum's
// accounts/abi package.
package abi

import (
	"fmt"

	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// DecodedArgs holds decoded event arguments or call results keyed by
// parameter/output name.
type DecodedArgs = map[string]interface{}

type eventDef struct {
	sig        *EventSignature
	topic0     common.Hash
	indexed    gethabi.Arguments
	nonIndexed gethabi.Arguments
}

type functionDef struct {
	sig      *FunctionSignature
	selector [4]byte
	inputs   gethabi.Arguments
	outputs  gethabi.Arguments
}

// ContractSchema is the decode/encode schema for one contract: its declared
// events (keyed by name and by topic0) and callable functions.
type ContractSchema struct {
	Name           string
	events         map[string]*eventDef
	eventsByTopic0 map[common.Hash]*eventDef
	functions      map[string]*functionDef
}

// Topic0Hashes returns every event's topic0, the disjunction the fetch
// planner uses as the single getLogs topic filter (spec §4.F step 2).
func (s *ContractSchema) Topic0Hashes() []common.Hash {
	hashes := make([]common.Hash, 0, len(s.eventsByTopic0))
	for h := range s.eventsByTopic0 {
		hashes = append(hashes, h)
	}
	return hashes
}

// DecodeEvent decodes a log's topics and data against the schema, returning
// the event name and its arguments keyed by parameter name.
func (s *ContractSchema) DecodeEvent(log types.Log) (string, DecodedArgs, error) {
	if len(log.Topics) == 0 {
		return "", nil, fmt.Errorf("abi: %s: log has no topics", s.Name)
	}

	def, ok := s.eventsByTopic0[log.Topics[0]]
	if !ok {
		return "", nil, fmt.Errorf("abi: %s: unknown event topic0 %s", s.Name, log.Topics[0])
	}

	args := make(DecodedArgs)
	if len(def.indexed) > 0 {
		if err := gethabi.ParseTopicsIntoMap(args, def.indexed, log.Topics[1:]); err != nil {
			return "", nil, fmt.Errorf("abi: %s.%s: decode indexed args: %w", s.Name, def.sig.Name, err)
		}
	}
	if len(def.nonIndexed) > 0 {
		if err := def.nonIndexed.UnpackIntoMap(args, log.Data); err != nil {
			return "", nil, fmt.Errorf("abi: %s.%s: decode data: %w", s.Name, def.sig.Name, err)
		}
	}

	return def.sig.Name, args, nil
}

// EncodeCall packs the 4-byte selector and ABI-encoded arguments for an
// eth_call.
func (s *ContractSchema) EncodeCall(functionName string, args ...interface{}) ([]byte, error) {
	fn, ok := s.functions[functionName]
	if !ok {
		return nil, fmt.Errorf("abi: %s: unknown function %q", s.Name, functionName)
	}

	packed, err := fn.inputs.Pack(args...)
	if err != nil {
		return nil, fmt.Errorf("abi: %s.%s: encode args: %w", s.Name, functionName, err)
	}

	data := make([]byte, 0, len(fn.selector)+len(packed))
	data = append(data, fn.selector[:]...)
	data = append(data, packed...)
	return data, nil
}

// DecodeCallResult unpacks a function's return data keyed by output name.
func (s *ContractSchema) DecodeCallResult(functionName string, data []byte) (DecodedArgs, error) {
	fn, ok := s.functions[functionName]
	if !ok {
		return nil, fmt.Errorf("abi: %s: unknown function %q", s.Name, functionName)
	}

	out := make(DecodedArgs)
	if len(fn.outputs) > 0 {
		if err := fn.outputs.UnpackIntoMap(out, data); err != nil {
			return nil, fmt.Errorf("abi: %s.%s: decode result: %w", s.Name, functionName, err)
		}
	}
	return out, nil
}

// NewContractSchema builds a schema from human-readable event and function
// signatures (see ParseEventSignature / ParseFunctionSignature).
func NewContractSchema(name string, eventSigs, functionSigs []string) (*ContractSchema, error) {
	s := &ContractSchema{
		Name:           name,
		events:         make(map[string]*eventDef),
		eventsByTopic0: make(map[common.Hash]*eventDef),
		functions:      make(map[string]*functionDef),
	}

	for _, raw := range eventSigs {
		parsed, err := ParseEventSignature(raw)
		if err != nil {
			return nil, fmt.Errorf("abi: %s: %w", name, err)
		}

		indexed, err := toArguments(parsed.IndexedParams())
		if err != nil {
			return nil, fmt.Errorf("abi: %s.%s: %w", name, parsed.Name, err)
		}
		nonIndexed, err := toArguments(parsed.NonIndexedParams())
		if err != nil {
			return nil, fmt.Errorf("abi: %s.%s: %w", name, parsed.Name, err)
		}

		topic0 := crypto.Keccak256Hash([]byte(parsed.CanonicalSignature()))
		def := &eventDef{sig: parsed, topic0: topic0, indexed: indexed, nonIndexed: nonIndexed}
		s.events[parsed.Name] = def
		s.eventsByTopic0[topic0] = def
	}

	for _, raw := range functionSigs {
		parsed, err := ParseFunctionSignature(raw)
		if err != nil {
			return nil, fmt.Errorf("abi: %s: %w", name, err)
		}

		inputs, err := toArguments(parsed.Inputs)
		if err != nil {
			return nil, fmt.Errorf("abi: %s.%s: %w", name, parsed.Name, err)
		}
		outputs, err := toArguments(parsed.Outputs)
		if err != nil {
			return nil, fmt.Errorf("abi: %s.%s: %w", name, parsed.Name, err)
		}

		selectorHash := crypto.Keccak256([]byte(parsed.CanonicalSignature()))
		var selector [4]byte
		copy(selector[:], selectorHash[:4])

		s.functions[parsed.Name] = &functionDef{sig: parsed, selector: selector, inputs: inputs, outputs: outputs}
	}

	return s, nil
}

func toArguments(params []Param) (gethabi.Arguments, error) {
	args := make(gethabi.Arguments, 0, len(params))
	for _, p := range params {
		t, err := gethabi.NewType(p.Type, "", nil)
		if err != nil {
			return nil, fmt.Errorf("parameter %s (%s): %w", p.Name, p.Type, err)
		}
		args = append(args, gethabi.Argument{Name: p.Name, Type: t, Indexed: p.Indexed})
	}
	return args, nil
}
