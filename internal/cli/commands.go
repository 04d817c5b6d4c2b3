package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"esdata/features/fixture"
	"esdata/features/loader"
)

func newLoadCommand(s *session) *cobra.Command {
	var (
		spec     loader.LoadSpec
		maxItems int64
		format   string
	)
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Recreate the index of a mapping and bulk load a fixture file into it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("max") {
				spec.MaxItems = &maxItems
			}
			spec.Format = format
			ds, err := loader.FromSpec(spec)
			if err != nil {
				return err
			}

			a, err := s.app(cmd.Context())
			if err != nil {
				return err
			}
			res, err := a.Loader.Load(cmd.Context(), ds)
			if err != nil {
				return err
			}
			printResult(cmd, res)
			return nil
		},
	}
	cmd.Flags().StringVar(&spec.Mapping, "mapping", "", "mapping identifier")
	cmd.Flags().StringVar(&spec.Location, "location", "", "fixture location: path, file://, http(s):// or s3://bucket/key")
	cmd.Flags().Int64Var(&maxItems, "max", 0, "maximum number of documents to load (unbounded when unset)")
	cmd.Flags().Int64Var(&spec.SkipItems, "skip", 0, "number of leading records to skip")
	cmd.Flags().StringVar(&format, "format", "", "dump or manual; detected when empty")
	_ = cmd.MarkFlagRequired("mapping")
	_ = cmd.MarkFlagRequired("location")
	return cmd
}

func newDeleteCommand(s *session) *cobra.Command {
	var mappings []string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Recreate the indices of the given mappings empty",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := s.app(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.Loader.DeleteAll(cmd.Context(), mappings); err != nil {
				return err
			}
			for _, id := range mappings {
				fmt.Fprintf(cmd.OutOrStdout(), "emptied %s\n", id)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&mappings, "mapping", nil, "mapping identifier (repeatable)")
	_ = cmd.MarkFlagRequired("mapping")
	return cmd
}

func newApplyCommand(s *session) *cobra.Command {
	var (
		planFile string
		caseName string
	)
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply the suite-level steps of a fixture plan, or those of one case",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if planFile == "" {
				planFile = s.cfg.PlanFile
			}
			if planFile == "" {
				return errors.New("a plan is required: pass --plan or set ESDATA_PLAN_FILE")
			}
			plan, err := fixture.LoadPlan(planFile)
			if err != nil {
				return err
			}

			a, err := s.app(cmd.Context())
			if err != nil {
				return err
			}
			ext := fixture.NewExtension(fixture.NewCache(func(context.Context, string) (*loader.Loader, error) {
				return a.Loader, nil
			}), s.logger)
			defer ext.AfterAll(planFile)

			if caseName != "" {
				if _, ok := plan.Cases[caseName]; !ok {
					return fmt.Errorf("plan %s has no case %q", planFile, caseName)
				}
				err = ext.BeforeEach(cmd.Context(), planFile, caseName, plan)
			} else {
				err = ext.BeforeAll(cmd.Context(), planFile, plan)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", planFile)
			return nil
		},
	}
	cmd.Flags().StringVar(&planFile, "plan", "", "fixture plan file (defaults to ESDATA_PLAN_FILE)")
	cmd.Flags().StringVar(&caseName, "case", "", "apply the steps of this case instead of the suite-level ones")
	return cmd
}

func printResult(cmd *cobra.Command, res loader.Result) {
	out := cmd.OutOrStdout()
	if res.Empty {
		fmt.Fprintf(out, "no documents loaded into %s\n", res.Index)
		return
	}
	fmt.Fprintf(out, "loaded %d documents into %s (%s)\n", res.Submitted, res.Index, res.Format)
}
