package abi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventSignature_NamedIndexed(t *testing.T) {
	sig, err := ParseEventSignature("Transfer(address indexed from, address indexed to, uint256 value)")
	require.NoError(t, err)

	assert.Equal(t, "Transfer", sig.Name)
	require.Len(t, sig.Params, 3)
	assert.Equal(t, "Transfer(address,address,uint256)", sig.CanonicalSignature())

	indexed := sig.IndexedParams()
	require.Len(t, indexed, 2)
	assert.Equal(t, "from", indexed[0].Name)
	assert.Equal(t, "to", indexed[1].Name)

	nonIndexed := sig.NonIndexedParams()
	require.Len(t, nonIndexed, 1)
	assert.Equal(t, "value", nonIndexed[0].Name)
}

func TestParseEventSignature_TypesOnly(t *testing.T) {
	sig, err := ParseEventSignature("Approval(address,address,uint256)")
	require.NoError(t, err)
	assert.Equal(t, "param0", sig.Params[0].Name)
	assert.False(t, sig.Params[0].Indexed)
}

func TestParseEventSignature_Errors(t *testing.T) {
	cases := []string{
		"",
		"transfer(address)",       // lowercase name
		"Transfer address)",       // missing open paren
		"Transfer(address",        // missing close paren
		"Transfer(notatype from)", // invalid type
		"Transfer(address indexed indexed from)",
	}
	for _, c := range cases {
		_, err := ParseEventSignature(c)
		assert.Error(t, err, c)
	}
}

func TestParseFunctionSignature_WithReturn(t *testing.T) {
	sig, err := ParseFunctionSignature("balanceOf(address account) (uint256)")
	require.NoError(t, err)
	assert.Equal(t, "balanceOf", sig.Name)
	assert.Equal(t, "balanceOf(address)", sig.CanonicalSignature())
	require.Len(t, sig.Outputs, 1)
	assert.Equal(t, "uint256", sig.Outputs[0].Type)
}

func TestParseFunctionSignature_NoReturn(t *testing.T) {
	sig, err := ParseFunctionSignature("approve(address spender, uint256 amount)")
	require.NoError(t, err)
	assert.Empty(t, sig.Outputs)
	assert.Equal(t, "approve(address,uint256)", sig.CanonicalSignature())
}

func TestNewContractSchema_RoundTripsTopic0(t *testing.T) {
	schema, err := NewContractSchema("ERC20",
		[]string{"Transfer(address indexed from, address indexed to, uint256 value)"},
		[]string{"balanceOf(address account) (uint256)"})
	require.NoError(t, err)

	hashes := schema.Topic0Hashes()
	require.Len(t, hashes, 1)
}
