package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lychee-technology/formtab"
	"github.com/lychee-technology/formtab/factory"
	"github.com/lychee-technology/formtab/internal/ddl"
)

type initDBOptions struct {
	dryRun  bool
	specDir string
}

func newInitDBCmd(state *cliState) *cobra.Command {
	opts := initDBOptions{}
	cmd := &cobra.Command{
		Use:   "init-db",
		Short: "Create the formtab metadata and collaborator tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInitDB(cmd.Context(), state.config, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "print the DDL instead of executing it")
	cmd.Flags().StringVar(&opts.specDir, "spec-dir", "", "directory of form spec JSON files to compile after the tables exist (optional)")
	return cmd
}

func runInitDB(ctx context.Context, cfg *formtab.Config, opts initDBOptions) error {
	stmts := ddl.MetadataTables(cfg.Database.Tables)
	if opts.dryRun {
		for _, s := range stmts {
			fmt.Printf("-- %s\n%s;\n\n", s.Name, s.SQL)
		}
		return nil
	}

	pool, err := factory.NewPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	err = withTx(ctx, conn, func(tx pgx.Tx) error {
		for _, s := range stmts {
			if _, err := tx.Exec(ctx, s.SQL); err != nil {
				return fmt.Errorf("ensure %s: %w", s.Name, err)
			}
			zap.S().Infow("ensured", "object", s.Name)
		}
		return nil
	})
	conn.Release()
	if err != nil {
		return err
	}

	if opts.specDir != "" {
		if err := compileSpecDir(ctx, cfg, pool, opts.specDir); err != nil {
			return err
		}
	}
	fmt.Println("Database initialized successfully.")
	return nil
}

// compileSpecDir builds every *.json form spec in dir in name order. Forms
// that already exist are reported and skipped.
func compileSpecDir(ctx context.Context, cfg *formtab.Config, pool *pgxpool.Pool, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read spec directory(%s): %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			files = append(files, e.Name())
		}
	}
	if len(files) == 0 {
		zap.S().Infow("no spec files found", "dir", dir)
		return nil
	}
	sort.Strings(files)

	svc, err := factory.NewServicesWithConfig(cfg, pool)
	if err != nil {
		return err
	}
	defer svc.Close()

	for _, name := range files {
		spec, err := readSpecFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		res, err := svc.Compiler.Build(ctx, spec)
		if formtab.IsDuplicateName(err) {
			zap.S().Infow("form already exists", "file", name, "form", spec.Name)
			continue
		}
		if err != nil {
			return fmt.Errorf("compile %s: %w", name, err)
		}
		zap.S().Infow("compiled", "file", name, "form_id", res.FormID, "view_id", res.ViewID, "tables", len(res.Tables))
	}
	return nil
}

func readSpecFile(path string) (*formtab.FormSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spec %s: %w", path, err)
	}
	return formtab.ParseFormSpec(data)
}

func withTx(ctx context.Context, conn *pgxpool.Conn, fn func(pgx.Tx) error) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w; rollback failed: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
