// Package codegen turns a standard Solidity JSON ABI, or a plain list of
// human-readable signatures, into a Go source file that registers a
// pkg/abi.ContractSchema — so a contract's topic hashes and 4-byte
// selectors never have to be hand-computed and pasted into configuration.
package codegen

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/template"
)

// ABIInput is one parameter of a JSON ABI entry.
type ABIInput struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Indexed bool   `json:"indexed"`
}

// ABIEntry is one top-level item of a standard Solidity JSON ABI array.
type ABIEntry struct {
	Type            string     `json:"type"`
	Name            string     `json:"name"`
	Inputs          []ABIInput `json:"inputs"`
	Outputs         []ABIInput `json:"outputs"`
	StateMutability string     `json:"stateMutability"`
}

// ParseJSONABI decodes a standard Solidity JSON ABI array.
func ParseJSONABI(data []byte) ([]ABIEntry, error) {
	var entries []ABIEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("codegen: parse ABI JSON: %w", err)
	}
	return entries, nil
}

// EventSignatures renders every "event" entry as a human-readable signature
// accepted by pkg/abi.ParseEventSignature, e.g.
// "Transfer(address indexed from, address indexed to, uint256 value)".
func EventSignatures(entries []ABIEntry) []string {
	var sigs []string
	for _, e := range entries {
		if e.Type != "event" {
			continue
		}
		sigs = append(sigs, fmt.Sprintf("%s(%s)", e.Name, joinParams(e.Inputs)))
	}
	return sigs
}

// FunctionSignatures renders every read-only ("view"/"pure") function entry
// as a signature accepted by pkg/abi.ParseFunctionSignature.
func FunctionSignatures(entries []ABIEntry) []string {
	var sigs []string
	for _, e := range entries {
		if e.Type != "function" {
			continue
		}
		if e.StateMutability != "view" && e.StateMutability != "pure" {
			continue
		}
		sig := fmt.Sprintf("%s(%s)", e.Name, joinParams(e.Inputs))
		if len(e.Outputs) > 0 {
			sig += fmt.Sprintf(" returns (%s)", joinParams(e.Outputs))
		}
		sigs = append(sigs, sig)
	}
	return sigs
}

func joinParams(inputs []ABIInput) string {
	parts := make([]string, len(inputs))
	for i, in := range inputs {
		name := in.Name
		if name == "" {
			name = fmt.Sprintf("param%d", i)
		}
		if in.Indexed {
			parts[i] = fmt.Sprintf("%s indexed %s", in.Type, name)
		} else {
			parts[i] = fmt.Sprintf("%s %s", in.Type, name)
		}
	}
	return strings.Join(parts, ", ")
}

// schemaTemplate renders a Go file registering one ContractSchema. Kept as
// a plain string rather than an embedded file since the generator has no
// other assets to ship alongside it.
const schemaTemplate = `// Code generated by cmd/abigen. DO NOT EDIT.

package {{.Package}}

import (
	"github.com/onchainwatch/logindexer/pkg/abi"
)

// {{.VarName}}Events are the event signatures abigen extracted from the
// {{.ContractName}} contract ABI.
var {{.VarName}}Events = []string{
{{- range .Events}}
	{{printf "%q" .}},
{{- end}}
}

// {{.VarName}}Functions are the read-only function signatures abigen
// extracted from the {{.ContractName}} contract ABI.
var {{.VarName}}Functions = []string{
{{- range .Functions}}
	{{printf "%q" .}},
{{- end}}
}

// Register{{.VarName}} builds the {{.ContractName}} schema and adds it to
// registry under the name {{printf "%q" .ContractName}}.
func Register{{.VarName}}(registry *abi.Registry) error {
	schema, err := abi.NewContractSchema({{printf "%q" .ContractName}}, {{.VarName}}Events, {{.VarName}}Functions)
	if err != nil {
		return err
	}
	registry.Register(schema)
	return nil
}
`

type schemaTemplateData struct {
	Package      string
	ContractName string
	VarName      string
	Events       []string
	Functions    []string
}

// GenerateSchemaFile renders a Go source file that registers a
// pkg/abi.ContractSchema built from events/functions under contractName.
func GenerateSchemaFile(pkgName, contractName string, events, functions []string) (string, error) {
	if pkgName == "" {
		return "", fmt.Errorf("codegen: package name is required")
	}
	if contractName == "" {
		return "", fmt.Errorf("codegen: contract name is required")
	}

	sortedEvents := append([]string(nil), events...)
	sort.Strings(sortedEvents)
	sortedFunctions := append([]string(nil), functions...)
	sort.Strings(sortedFunctions)

	data := schemaTemplateData{
		Package:      pkgName,
		ContractName: contractName,
		VarName:      ToPascalCase(contractName),
		Events:       sortedEvents,
		Functions:    sortedFunctions,
	}

	tmpl, err := template.New("schema").Parse(schemaTemplate)
	if err != nil {
		return "", fmt.Errorf("codegen: parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("codegen: render template: %w", err)
	}
	return buf.String(), nil
}

// ToPascalCase converts a contract name like "erc20_token" or "erc20-token"
// into a Go-identifier-safe PascalCase name, e.g. "Erc20Token".
func ToPascalCase(s string) string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	for i, part := range parts {
		if len(part) > 0 {
			parts[i] = strings.ToUpper(part[:1]) + strings.ToLower(part[1:])
		}
	}
	return strings.Join(parts, "")
}
