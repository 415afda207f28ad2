package cmd

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/reloquent/catalogmap/internal/tui"
)

var browseOutput string

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse the source catalog and check tables interactively",
	Long: `Open the interactive tree of databases, table folders and view folders.
Check the objects to map, adjust destination names, and press c to write
the selection to --output (or the configured output, or stdout).`,
	RunE: runBrowse,
}

func runBrowse(cmd *cobra.Command, args []string) error {
	eng, cleanup, err := newEngine(cmd, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	s, err := eng.OpenSession()
	if err != nil {
		return err
	}

	p := tea.NewProgram(tui.NewBrowserModel(ctx, eng, s), tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("running browser: %w", err)
	}

	m := final.(tui.BrowserModel)
	res := m.Result()
	if res == nil {
		fmt.Fprintln(os.Stderr, "Cancelled.")
		return nil
	}
	fmt.Fprintln(os.Stderr, res.Summary())
	return writeSelection(cmd, eng, res, browseOutput)
}

func init() {
	browseCmd.Flags().StringVarP(&browseOutput, "output", "o", "", "file path or s3://bucket/key for the selection YAML")
	rootCmd.Flags().StringVarP(&browseOutput, "output", "o", "", "file path or s3://bucket/key for the selection YAML")
	rootCmd.AddCommand(browseCmd)
}
