package root

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docker/eventreporter/pkg/analytics"
	"github.com/docker/eventreporter/pkg/cli"
	"github.com/docker/eventreporter/pkg/paramconfig"
	"github.com/docker/eventreporter/pkg/paths"
)

type paramsFlags struct {
	file      string
	jsonOut   bool
	assumeYes bool
}

func newParamsCmd() *cobra.Command {
	var flags paramsFlags

	cmd := &cobra.Command{
		Use:     "params",
		Short:   "Show or change the analytics parameters",
		Long:    "Show or change the parameters stored in the params file. A running demo picks up changes automatically.",
		GroupID: "core",
	}
	cmd.PersistentFlags().StringVar(&flags.file, "file", paths.ParamsFile(), "Path to the params file")

	show := &cobra.Command{
		Use:   "show",
		Short: "Print every parameter and its current value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := loadParams(flags.file)
			if err != nil {
				return err
			}

			if flags.jsonOut {
				out, err := cli.ParamsJSON(store.Names(), store.Snapshot())
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return err
			}

			cli.NewPrinter(cmd.OutOrStdout()).PrintParams(store.Names(), store.Snapshot())
			return nil
		},
	}
	show.Flags().BoolVar(&flags.jsonOut, "json", false, "Print as JSON")

	set := &cobra.Command{
		Use:     "set NAME VALUE",
		Short:   "Change one parameter",
		Example: "  eventreporter params set sendInterval 60\n  eventreporter params set sendEvents false",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := loadParams(flags.file)
			if err != nil {
				return err
			}
			if err := store.SetString(args[0], args[1]); err != nil {
				return err
			}
			if err := store.Save(flags.file); err != nil {
				return cli.RuntimeError{Err: err}
			}

			v, _ := store.Value(args[0])
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", args[0], v)
			return nil
		},
	}

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Restore every parameter to its default",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := cli.NewPrinter(cmd.OutOrStdout())
			if !flags.assumeYes && !p.Confirm(cmd.Context(), cmd.InOrStdin(), "Reset all parameters to their defaults?") {
				p.Println("Aborted.")
				return nil
			}

			store, err := newParamStore()
			if err != nil {
				return err
			}
			if err := store.Save(flags.file); err != nil {
				return cli.RuntimeError{Err: err}
			}
			p.Println("Parameters reset.")
			return nil
		},
	}
	reset.Flags().BoolVarP(&flags.assumeYes, "yes", "y", false, "Do not ask for confirmation")

	cmd.AddCommand(show, set, reset)
	return cmd
}

func newParamStore() (*paramconfig.Store, error) {
	return paramconfig.New(analytics.Params()...)
}

// loadParams returns the store with the file applied on top of defaults.
func loadParams(path string) (*paramconfig.Store, error) {
	store, err := newParamStore()
	if err != nil {
		return nil, err
	}
	if err := store.Load(path); err != nil {
		return nil, fmt.Errorf("loading params: %w", err)
	}
	return store, nil
}
