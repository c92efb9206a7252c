// Command abigen turns a contract's JSON ABI (the --abi file; a plain
// signature list is not accepted as input) into a Go file that registers a
// pkg/abi.ContractSchema, so event topic
// hashes and function selectors never have to be hand-computed.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/onchainwatch/logindexer/internal/codegen"
)

var (
	abiPath      string
	outPath      string
	pkgName      string
	contractName string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "abigen",
	Short: "generate a pkg/abi.ContractSchema registration file from a JSON ABI",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVar(&abiPath, "abi", "", "path to a contract's JSON ABI file (required)")
	rootCmd.Flags().StringVar(&outPath, "out", "", "output Go file path (required)")
	rootCmd.Flags().StringVar(&pkgName, "package", "contracts", "package name for the generated file")
	rootCmd.Flags().StringVar(&contractName, "name", "", "contract name to register the schema under (required)")
	_ = rootCmd.MarkFlagRequired("abi")
	_ = rootCmd.MarkFlagRequired("out")
	_ = rootCmd.MarkFlagRequired("name")
}

func run(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(abiPath)
	if err != nil {
		return fmt.Errorf("abigen: read ABI file: %w", err)
	}

	entries, err := codegen.ParseJSONABI(data)
	if err != nil {
		return err
	}

	events := codegen.EventSignatures(entries)
	functions := codegen.FunctionSignatures(entries)
	if len(events) == 0 && len(functions) == 0 {
		return fmt.Errorf("abigen: %s contains no events and no read-only functions", abiPath)
	}

	src, err := codegen.GenerateSchemaFile(pkgName, contractName, events, functions)
	if err != nil {
		return err
	}

	if err := os.WriteFile(outPath, []byte(src), 0o644); err != nil {
		return fmt.Errorf("abigen: write %s: %w", outPath, err)
	}

	fmt.Printf("wrote %s: %d event(s), %d function(s)\n", outPath, len(events), len(functions))
	return nil
}
