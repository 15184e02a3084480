package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/conneroisu/djbridge/internal/bridge"
)

var aliasesWrite bool

var aliasesCmd = &cobra.Command{
	Use:   "aliases [entry...]",
	Short: "List the import aliases derived from the Django apps",
	Long: `List the import aliases derived from the Django apps.

Every app gets @s:<app> for its static directory and @t:<app> for its
templates; @ points at the project's base directory.

Examples:
  djbridge aliases          # Print the aliases
  djbridge aliases --write  # Also write jsconfig.djbridge.json`,
	RunE: runAliases,
}

func init() {
	rootCmd.AddCommand(aliasesCmd)

	aliasesCmd.Flags().BoolVar(&aliasesWrite, "write", false, "write the alias file")
}

func runAliases(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	opts, err := cfg.BridgeOptions(args...)
	if err != nil {
		return err
	}
	resolved, err := bridge.Load(cmd.Context(), opts, bridgeOptions(cfg, logger)...)
	if err != nil {
		return err
	}

	aliases := bridge.AppAliases(resolved.Backend())

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	for _, token := range aliases.Tokens() {
		fmt.Fprintf(w, "%s\t%s\n", token, aliases[token])
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if aliasesWrite {
		dir := cfg.Bridge.AliasDir
		if dir == "" {
			dir = "."
		}
		path, err := bridge.WriteAliasFile(dir, aliases)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	}

	return nil
}
