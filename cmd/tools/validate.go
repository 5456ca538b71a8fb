package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lychee-technology/formtab"
	"github.com/lychee-technology/formtab/factory"
)

type validateOptions struct {
	attributeView int64
	view          int64
	value         string
	file          string
}

func newValidateCmd(state *cliState) *cobra.Command {
	opts := validateOptions{}
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a value or a submission against stored constraints",
		Long: `Check one JSON value against an attribute view (--attribute-view, --value)
or a JSON object of top-level values against a form view (--view, --file).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (opts.attributeView == 0) == (opts.view == 0) {
				return fmt.Errorf("exactly one of --attribute-view or --view is required")
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

			if opts.attributeView != 0 {
				var value any
				if opts.value != "" {
					if err := json.Unmarshal([]byte(opts.value), &value); err != nil {
						return fmt.Errorf("parse --value: %w", err)
					}
				}
				return report(svc.Validator.ValidateValue(ctx, opts.attributeView, value))
			}

			data, err := os.ReadFile(opts.file)
			if err != nil {
				return fmt.Errorf("read submission: %w", err)
			}
			var values map[string]any
			if err := json.Unmarshal(data, &values); err != nil {
				return fmt.Errorf("parse submission: %w", err)
			}
			return report(svc.Validator.ValidateSubmission(ctx, opts.view, values))
		},
	}
	cmd.Flags().Int64Var(&opts.attributeView, "attribute-view", 0, "attribute view id")
	cmd.Flags().StringVar(&opts.value, "value", "", "JSON value to check (omit for a missing value)")
	cmd.Flags().Int64Var(&opts.view, "view", 0, "form view id")
	cmd.Flags().StringVar(&opts.file, "file", "", "JSON file of top-level values")
	return cmd
}

// report prints violations and returns the error for a non-zero exit.
func report(err error) error {
	if err == nil {
		fmt.Println("ok")
		return nil
	}
	var all formtab.ValidationErrors
	if errors.As(err, &all) {
		for attr, errs := range all {
			for _, e := range errs {
				fmt.Printf("%s: %s\n", attr, e.Message)
			}
		}
		return err
	}
	if formtab.IsConstraintViolation(err) || formtab.IsTypeMismatch(err) {
		fmt.Println(err.Error())
	}
	return err
}
