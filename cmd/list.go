package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/reloquent/catalogmap/internal/location"
)

var listCmd = &cobra.Command{
	Use:   "list [database]",
	Short: "List databases, or the tables and views of one database",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, cleanup, err := newEngine(cmd, nil)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx := cmd.Context()
		id := eng.Identity()
		out := cmd.OutOrStdout()

		if len(args) == 0 {
			res := eng.Browser.DatabaseNames(ctx, id)
			if err := res.Err(); err != nil {
				return err
			}
			for _, db := range res.Value {
				fmt.Fprintln(out, db)
			}
			return nil
		}

		db := args[0]
		tables := eng.Browser.TableNames(ctx, id, db, "")
		if err := tables.Err(); err != nil {
			return err
		}
		views := eng.Browser.ViewNames(ctx, id, db, "")
		if err := views.Err(); err != nil {
			return err
		}

		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("KIND", "NAME")
		for _, name := range tables.Value {
			t.Row("table", label(db, name))
		}
		for _, name := range views.Value {
			t.Row("view", label(db, name))
		}
		fmt.Fprintln(out, t.Render())
		fmt.Fprintf(os.Stderr, "%d table(s), %d view(s)\n", len(tables.Value), len(views.Value))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}

// label turns a "[schema].[name]" catalog name into "schema.name".
func label(database, name string) string {
	return location.Parse(location.EncloseWithBrackets(database) + "." + name).Label()
}
