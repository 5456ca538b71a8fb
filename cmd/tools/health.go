package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lychee-technology/formtab/factory"
)

func newHealthCmd(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the database tables and the search backend",
		RunE: func(cmd *cobra.Command, args []string) error {
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

			if err := svc.HealthCheck(ctx); err != nil {
				return err
			}
			fmt.Printf("ok (backend %s)\n", state.config.Query.Backend)
			return nil
		},
	}
}
