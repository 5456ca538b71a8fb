package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lychee-technology/formtab"
	"github.com/lychee-technology/formtab/factory"
	"github.com/lychee-technology/formtab/internal"
)

func newCompileCmd(state *cliState) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "compile <spec.json>",
		Short: "Compile a form spec into metadata rows and tables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := readSpecFile(args[0])
			if err != nil {
				return err
			}
			if dryRun {
				return compileDryRun(cmd.Context(), state.config, spec)
			}
			return compileSpec(cmd.Context(), state.config, spec)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compile against an in-memory store and print the generated DDL")
	return cmd
}

func compileDryRun(ctx context.Context, cfg *formtab.Config, spec *formtab.FormSpec) error {
	store := internal.NewMemoryMetadataStore()
	compiler, err := internal.NewSchemaCompiler(store, cfg, internal.NewMetadataCache())
	if err != nil {
		return err
	}
	if _, err := compiler.Build(ctx, spec); err != nil {
		return err
	}
	for _, stmt := range store.Statements() {
		fmt.Printf("%s;\n\n", stmt)
	}
	return nil
}

func compileSpec(ctx context.Context, cfg *formtab.Config, spec *formtab.FormSpec) error {
	pool, err := factory.NewPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	svc, err := factory.NewServicesWithConfig(cfg, pool)
	if err != nil {
		return err
	}
	defer svc.Close()

	res, err := svc.Compiler.Build(ctx, spec)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
