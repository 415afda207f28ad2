package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and validate the catalogmap configuration.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current config (secrets masked)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Current configuration:")
		fmt.Fprintln(out)
		fmt.Fprintf(out, "  Identity:         %s\n", cfg.Identity().Key())
		fmt.Fprintf(out, "  Source:\n")
		fmt.Fprintf(out, "    Type:           %s\n", cfg.Source.Type)
		if cfg.Source.ConnectionString != "" {
			fmt.Fprintf(out, "    Connection:     %s\n", maskSecret(cfg.Source.ConnectionString))
		} else {
			fmt.Fprintf(out, "    Host:           %s\n", cfg.Source.Host)
			fmt.Fprintf(out, "    Port:           %d\n", cfg.Source.Port)
		}
		fmt.Fprintf(out, "    Database:       %s\n", cfg.Source.Database)
		fmt.Fprintf(out, "    Username:       %s\n", cfg.Source.Username)
		fmt.Fprintf(out, "    Password:       %s\n", maskSecret(cfg.Source.Password))
		fmt.Fprintf(out, "    Max Conns:      %d\n", cfg.Source.MaxConnections)
		fmt.Fprintln(out)
		fmt.Fprintf(out, "  Destination:\n")
		if cfg.Destination.Host != "" {
			fmt.Fprintf(out, "    Host:           %s:%d\n", cfg.Destination.Host, cfg.Destination.Port)
			fmt.Fprintf(out, "    Database:       %s\n", cfg.Destination.Database)
			fmt.Fprintf(out, "    Password:       %s\n", maskSecret(cfg.Destination.Password))
		}
		fmt.Fprintf(out, "    Default Schema: %s\n", cfg.Destination.DefaultSchema)
		fmt.Fprintf(out, "    Known Schemas:  %s\n", strings.Join(cfg.Destination.KnownSchemas, ", "))
		fmt.Fprintln(out)
		fmt.Fprintf(out, "  Type Map:         %s\n", valueOr(cfg.TypeMapPath, "(defaults)"))
		fmt.Fprintf(out, "  Output:           %s\n", valueOr(cfg.Output, "(stdout)"))
		fmt.Fprintf(out, "  Log Level:        %s\n", cfg.Logging.Level)

		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("config invalid: %w", err)
		}

		out := cmd.OutOrStdout()
		if problems := cfg.Validate(); len(problems) > 0 {
			fmt.Fprintln(out, "Validation errors:")
			for _, p := range problems {
				fmt.Fprintf(out, "  - %s\n", p)
			}
			return fmt.Errorf("%d validation error(s)", len(problems))
		}

		fmt.Fprintln(out, "Configuration is valid.")
		return nil
	},
}

func maskSecret(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}
