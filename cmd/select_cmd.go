package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/reloquent/catalogmap/internal/engine"
	"github.com/reloquent/catalogmap/internal/selection"
)

var (
	selectPattern   string
	selectDatabases []string
	selectOutput    string
)

var selectCmd = &cobra.Command{
	Use:   "select",
	Short: "Check tables and views by pattern and write the selection",
	Long: `Check every table and view whose "schema.name" or "database.schema.name"
matches --pattern, then write the selection YAML.

Patterns use * and ? wildcards; separate alternatives with commas:
  catalogmap select --pattern 'dbo.order_*,sales.*' --output selection.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if selectPattern == "" {
			return fmt.Errorf("--pattern is required")
		}

		eng, cleanup, err := newEngine(cmd, os.Stderr)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx := cmd.Context()
		if access, err := eng.CheckOutput(ctx, selectOutput); err != nil {
			return fmt.Errorf("checking output: %w", err)
		} else if access != nil && !access.Writable {
			return fmt.Errorf("%s", access.Message)
		}

		s, err := eng.OpenSession()
		if err != nil {
			return err
		}
		checked, err := eng.SelectMatching(ctx, s, selectPattern, selectDatabases...)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Matched %d table(s) and view(s)\n", len(checked))
		for _, n := range s.Notices() {
			fmt.Fprintf(os.Stderr, "  ⚠ %s\n", n.Text())
		}

		res, err := eng.Selection(ctx, s)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, res.Summary())
		return writeSelection(cmd, eng, res, selectOutput)
	},
}

// writeSelection publishes res to dest or the configured output, or
// prints it to stdout when neither is set.
func writeSelection(cmd *cobra.Command, eng *engine.Engine, res *selection.Result, dest string) error {
	if dest == "" && eng.Config.Output == "" {
		data, err := res.YAML()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	where, err := eng.Publish(cmd.Context(), res, dest)
	if err != nil {
		return fmt.Errorf("writing selection: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Selection written to %s\n", where)
	return nil
}

func init() {
	selectCmd.Flags().StringVarP(&selectPattern, "pattern", "p", "", "glob pattern of tables and views to check")
	selectCmd.Flags().StringSliceVarP(&selectDatabases, "database", "d", nil, "only walk these databases")
	selectCmd.Flags().StringVarP(&selectOutput, "output", "o", "", "file path or s3://bucket/key for the selection YAML")
	rootCmd.AddCommand(selectCmd)
}
