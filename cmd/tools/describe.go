package main

import (
	"github.com/spf13/cobra"

	"github.com/lychee-technology/formtab"
	"github.com/lychee-technology/formtab/factory"
)

func newDescribeCmd(state *cliState) *cobra.Command {
	var (
		withViews bool
		asSpec    bool
	)
	cmd := &cobra.Command{
		Use:   "describe <form-name>",
		Short: "Print the nested definition of a form",
		Args:  cobra.ExactArgs(1),
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

			rc := formtab.ReadSchema
			if withViews {
				rc = formtab.ReadView
			}
			def, err := svc.Reader.ReadByName(ctx, args[0], rc)
			if err != nil {
				return err
			}
			if asSpec {
				return printJSON(def.ToSpec())
			}
			return printJSON(def)
		},
	}
	cmd.Flags().BoolVar(&withViews, "views", false, "embed attributes in every attribute view")
	cmd.Flags().BoolVar(&asSpec, "spec", false, "print the definition as a form spec")
	return cmd
}
