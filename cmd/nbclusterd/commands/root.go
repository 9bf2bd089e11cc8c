// Package commands implements the CLI for nbclusterd: a root command
// plus a serve subcommand that starts the NetBIOS name service node
// and the clustered file-state cache on this process.
package commands

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "nbclusterd",
	Short: "NetBIOS name service node and clustered file-state cache",
	Long: `nbclusterd runs the NetBIOS/CIFS name service node (registration,
query, WINS/broadcast transport) together with the clustered file-state
cache that arbitrates opens, byte-range locks, and oplock breaks across
the cluster.

Use "nbclusterd [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command; called once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Accept underscored flag spellings (--metrics_addr) by normalizing
	// them to the dashed canonical form.
	rootCmd.PersistentFlags().SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/nbclusterd/config.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// GetConfigFile returns the config file path bound to the --config flag.
func GetConfigFile() string {
	return cfgFile
}

// Exit prints an error to stderr and exits with status 1.
func Exit(format string, args ...any) {
	rootCmd.PrintErrf(format+"\n", args...)
	os.Exit(1)
}
