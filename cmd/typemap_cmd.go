package cmd

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/reloquent/catalogmap/internal/config"
	"github.com/reloquent/catalogmap/internal/engine"
	"github.com/reloquent/catalogmap/internal/tui"
)

var (
	typemapWrite string
	typemapEdit  bool
)

var typemapCmd = &cobra.Command{
	Use:   "typemap",
	Short: "Show the source type support map",
	Long: `Print how each source column type maps to the destination, with the
overrides from the config's type_map file applied. Columns whose type maps
to "unsupported" make their table unselectable.

--edit opens an interactive editor; --write saves the map (with its
overrides) to a YAML file that can be referenced as type_map in the config.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		tm, err := engine.LoadTypeMap(cfg)
		if err != nil {
			return err
		}

		if typemapEdit {
			final, err := tea.NewProgram(tui.NewTypeMapModel(tm, nil), tea.WithAltScreen()).Run()
			if err != nil {
				return fmt.Errorf("running type map editor: %w", err)
			}
			edited := final.(tui.TypeMapModel).Result()
			if edited == nil {
				fmt.Fprintln(os.Stderr, "Cancelled.")
				return nil
			}
			tm = edited
			if typemapWrite == "" {
				typemapWrite = cfg.TypeMapPath
			}
		}

		if typemapWrite != "" {
			path := config.ExpandHome(typemapWrite)
			if err := tm.WriteYAML(path); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Type map written to %s (%d override(s))\n", path, len(tm.Overrides))
			return nil
		}
		if typemapEdit {
			fmt.Fprintln(os.Stderr, "No type_map path configured; use --write to save the edits.")
		}

		t := table.New().
			Border(lipgloss.NormalBorder()).
			Headers("SOURCE TYPE", "DESTINATION", "STATUS")
		for _, typ := range tm.SortedTypes() {
			status := "default"
			if tm.IsOverridden(typ) {
				status = "override"
			}
			t.Row(typ, string(tm.Resolve(typ)), status)
		}
		fmt.Fprintln(cmd.OutOrStdout(), t.Render())
		return nil
	},
}

func init() {
	typemapCmd.Flags().StringVarP(&typemapWrite, "write", "w", "", "write the type map YAML to this path")
	typemapCmd.Flags().BoolVarP(&typemapEdit, "edit", "e", false, "edit the type map interactively")
	rootCmd.AddCommand(typemapCmd)
}
