// Package cli implements the command-line interface for pumpcache.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/colthorp/pumpcache-go/internal/core"
	"github.com/spf13/cobra"
)

// Global flags
var (
	configPath string
	verbose    bool
	quiet      bool
	raw        bool
	timezone   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pumpcache",
	Short: "pumpcache – cached queries against an insulin pump",
	Long: `A command-line utility that answers point queries about an insulin pump
(carb ratio, glucose, history, insulin settings, clock) through openaps,
caching slow device reads in memory.`,
	Version:       core.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// Interrupts cancel in-flight device commands.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (YAML or JSON)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose debug output to stderr")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Only log warnings and errors")
	rootCmd.PersistentFlags().BoolVar(&raw, "raw", false, "Emit JSON instead of plain text")
	rootCmd.PersistentFlags().StringVar(&timezone, "timezone", "", "Timezone of the pump clock (default: local)")
}
