package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lychee-technology/formtab"
	"github.com/lychee-technology/formtab/factory"
)

func newSearchCmd(state *cliState) *cobra.Command {
	var (
		requestFile string
		export      bool
	)
	cmd := &cobra.Command{
		Use:   "search <view-id>",
		Short: "Run a search request against a form view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			viewID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid view id %q: %w", args[0], err)
			}
			req := &formtab.SearchRequest{}
			if requestFile != "" {
				data, err := os.ReadFile(requestFile)
				if err != nil {
					return fmt.Errorf("read request: %w", err)
				}
				if err := json.Unmarshal(data, req); err != nil {
					return fmt.Errorf("parse request: %w", err)
				}
			}

			ctx := cmd.Context()
			pool, err := factory.NewPool(ctx, state.config)
			if err != nil {
				return err
			}
			defer pool.Close()
			svc, err := factory.NewServicesWithConfig(state.config, pool)
			if err != nil {
				return err
			}
			defer svc.Close()

			var opts []formtab.SearchOption
			if export {
				opts = append(opts, formtab.WithExportMode())
			}
			res, err := svc.Search.Search(ctx, viewID, req, opts...)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
	cmd.Flags().StringVar(&requestFile, "request", "", "JSON search request file")
	cmd.Flags().BoolVar(&export, "export", false, "substitute the latest restatements")
	return cmd
}
