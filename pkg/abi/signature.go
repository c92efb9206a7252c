package abi

import (
	"fmt"
	"regexp"
	"strings"
)

// Param is a single parameter in a parsed event or function signature.
type Param struct {
	Name    string // defaults to paramN when omitted
	Type    string // Solidity type, e.g. "address", "uint256", "bytes32[]"
	Indexed bool   // only meaningful for event parameters
}

// EventSignature is a parsed human-readable event declaration, e.g.
// "Transfer(address indexed from, address indexed to, uint256 value)".
type EventSignature struct {
	Raw    string
	Name   string
	Params []Param
}

var (
	eventNameRe = regexp.MustCompile(`^[A-Z][a-zA-Z0-9_]*$`)
	paramNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
)

// ParseEventSignature parses one of:
//   - "Transfer(address,address,uint256)"
//   - "Transfer(address indexed from, address indexed to, uint256 value)"
//   - "Transfer(address from, address to, uint256 value)"
func ParseEventSignature(sig string) (*EventSignature, error) {
	sig = strings.TrimSpace(sig)
	if sig == "" {
		return nil, fmt.Errorf("abi: empty event signature")
	}

	openParen := strings.Index(sig, "(")
	if openParen == -1 {
		return nil, fmt.Errorf("abi: invalid event signature %q: missing opening parenthesis", sig)
	}

	name := strings.TrimSpace(sig[:openParen])
	if name == "" {
		return nil, fmt.Errorf("abi: invalid event signature %q: empty event name", sig)
	}
	if !eventNameRe.MatchString(name) {
		return nil, fmt.Errorf("abi: invalid event name %q: must start with an uppercase letter", name)
	}

	closeParen := strings.LastIndex(sig, ")")
	if closeParen == -1 || closeParen <= openParen {
		return nil, fmt.Errorf("abi: invalid event signature %q: malformed parentheses", sig)
	}

	params, err := parseParams(sig[openParen+1:closeParen])
	if err != nil {
		return nil, fmt.Errorf("abi: %s: %w", name, err)
	}

	return &EventSignature{Raw: sig, Name: name, Params: params}, nil
}

func parseParams(paramsStr string) ([]Param, error) {
	paramsStr = strings.TrimSpace(paramsStr)
	if paramsStr == "" {
		return nil, nil
	}

	parts := splitTopLevelCommas(paramsStr)
	params := make([]Param, 0, len(parts))
	seen := make(map[string]bool)

	for i, part := range parts {
		p, err := parseParam(strings.TrimSpace(part), i)
		if err != nil {
			return nil, fmt.Errorf("invalid parameter %q: %w", part, err)
		}
		if p.Name != "" {
			if seen[p.Name] {
				return nil, fmt.Errorf("duplicate parameter name %q", p.Name)
			}
			seen[p.Name] = true
		}
		params = append(params, p)
	}
	return params, nil
}

func splitTopLevelCommas(s string) []string {
	var parts []string
	var cur strings.Builder
	depth := 0
	for _, r := range s {
		switch r {
		case '(':
			depth++
			cur.WriteRune(r)
		case ')':
			depth--
			cur.WriteRune(r)
		case ',':
			if depth == 0 {
				parts = append(parts, cur.String())
				cur.Reset()
			} else {
				cur.WriteRune(r)
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		parts = append(parts, cur.String())
	}
	return parts
}

func parseParam(s string, index int) (Param, error) {
	if s == "" {
		return Param{}, fmt.Errorf("empty parameter")
	}

	fields := strings.Fields(s)
	p := Param{Type: fields[0]}

	if !isValidSolidityType(p.Type) {
		return Param{}, fmt.Errorf("invalid Solidity type %q", p.Type)
	}

	switch len(fields) {
	case 1:
		p.Name = fmt.Sprintf("param%d", index)
	case 2:
		if fields[1] == "indexed" {
			p.Indexed = true
			p.Name = fmt.Sprintf("param%d", index)
		} else {
			p.Name = fields[1]
		}
	case 3:
		if fields[1] != "indexed" {
			return Param{}, fmt.Errorf("expected 'indexed', got %q", fields[1])
		}
		p.Indexed = true
		p.Name = fields[2]
	default:
		return Param{}, fmt.Errorf("too many words in parameter %q", s)
	}

	if p.Name != "" && !paramNameRe.MatchString(p.Name) {
		return Param{}, fmt.Errorf("invalid parameter name %q", p.Name)
	}

	return p, nil
}

func isValidSolidityType(typ string) bool {
	switch typ {
	case "address", "bool", "string", "bytes":
		return true
	}

	if matched, _ := regexp.MatchString(`^bytes([1-9]|[12][0-9]|3[0-2])$`, typ); matched {
		return true
	}

	if matched, _ := regexp.MatchString(`^u?int(8|16|24|32|40|48|56|64|72|80|88|96|104|112|120|128|136|144|152|160|168|176|184|192|200|208|216|224|232|240|248|256)?$`, typ); matched { //nolint:lll
		return true
	}

	if strings.HasSuffix(typ, "[]") {
		return isValidSolidityType(strings.TrimSuffix(typ, "[]"))
	}

	if matched, _ := regexp.MatchString(`^[a-zA-Z_][a-zA-Z0-9_]*\[\d+\]$`, typ); matched {
		base := regexp.MustCompile(`\[\d+\]$`).ReplaceAllString(typ, "")
		return isValidSolidityType(base)
	}

	return false
}

// CanonicalSignature returns the type-only signature used to derive topic0 /
// function selectors, e.g. "Transfer(address,address,uint256)".
func (e *EventSignature) CanonicalSignature() string {
	return canonicalSignature(e.Name, e.Params)
}

func canonicalSignature(name string, params []Param) string {
	if len(params) == 0 {
		return name + "()"
	}
	types := make([]string, len(params))
	for i, p := range params {
		types[i] = p.Type
	}
	return name + "(" + strings.Join(types, ",") + ")"
}

// IndexedParams returns the parameters declared indexed, in declaration order.
func (e *EventSignature) IndexedParams() []Param {
	var out []Param
	for _, p := range e.Params {
		if p.Indexed {
			out = append(out, p)
		}
	}
	return out
}

// NonIndexedParams returns the parameters not declared indexed.
func (e *EventSignature) NonIndexedParams() []Param {
	var out []Param
	for _, p := range e.Params {
		if !p.Indexed {
			out = append(out, p)
		}
	}
	return out
}

// FunctionSignature is a parsed human-readable function declaration, e.g.
// "balanceOf(address account) (uint256)".
type FunctionSignature struct {
	Raw     string
	Name    string
	Inputs  []Param
	Outputs []Param
}

// ParseFunctionSignature parses "name(inTypes...) (outTypes...)"; the
// returns clause is optional for functions with no return value.
func ParseFunctionSignature(sig string) (*FunctionSignature, error) {
	sig = strings.TrimSpace(sig)
	if sig == "" {
		return nil, fmt.Errorf("abi: empty function signature")
	}

	openParen := strings.Index(sig, "(")
	if openParen == -1 {
		return nil, fmt.Errorf("abi: invalid function signature %q: missing opening parenthesis", sig)
	}
	name := strings.TrimSpace(sig[:openParen])
	if name == "" || !paramNameRe.MatchString(name) {
		return nil, fmt.Errorf("abi: invalid function name %q", name)
	}

	depth := 0
	closeParen := -1
	for i, r := range sig {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				closeParen = i
			}
		}
		if closeParen != -1 {
			break
		}
	}
	if closeParen == -1 || closeParen <= openParen {
		return nil, fmt.Errorf("abi: invalid function signature %q: malformed parentheses", sig)
	}

	inputs, err := parseParams(sig[openParen+1 : closeParen])
	if err != nil {
		return nil, fmt.Errorf("abi: %s inputs: %w", name, err)
	}

	var outputs []Param
	rest := strings.TrimSpace(sig[closeParen+1:])
	if rest != "" {
		rest = strings.TrimSpace(strings.TrimPrefix(rest, "returns"))
		rest = strings.TrimSpace(rest)
		if !strings.HasPrefix(rest, "(") || !strings.HasSuffix(rest, ")") {
			return nil, fmt.Errorf("abi: %s: invalid return clause %q", name, rest)
		}
		outputs, err = parseParams(rest[1 : len(rest)-1])
		if err != nil {
			return nil, fmt.Errorf("abi: %s outputs: %w", name, err)
		}
	}

	return &FunctionSignature{Raw: sig, Name: name, Inputs: inputs, Outputs: outputs}, nil
}

// CanonicalSignature returns the type-only signature used to derive the
// 4-byte function selector, e.g. "balanceOf(address)".
func (f *FunctionSignature) CanonicalSignature() string {
	return canonicalSignature(f.Name, f.Inputs)
}
