package cli

import (
	"fmt"
	"time"

	"github.com/colthorp/pumpcache-go/internal/core"
	"github.com/colthorp/pumpcache-go/internal/output"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(carbRatioCmd)
	rootCmd.AddCommand(glucoseCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(iacCmd)
	rootCmd.AddCommand(sensitivityCmd)
	rootCmd.AddCommand(clockCmd)
	rootCmd.AddCommand(cacheInfoCmd)
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().Int("metrics-port", 0, "Serve Prometheus metrics on this port (0 uses config)")
}

var carbRatioCmd = &cobra.Command{
	Use:   "carb-ratio [HH:MM[:SS]]",
	Short: "Carb ratio at a time of day (default: now)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  handleCarbRatio,
}

var glucoseCmd = &cobra.Command{
	Use:   "glucose [datetime]",
	Short: "Most recent glucose level in the 15 minutes before a datetime (default: now)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  handleGlucose,
}

var historyCmd = &cobra.Command{
	Use:   "history [from] [to]",
	Short: "Pump history events between two datetimes, newest first",
	Args:  cobra.ExactArgs(2),
	RunE:  handleHistory,
}

var iacCmd = &cobra.Command{
	Use:   "iac",
	Short: "Insulin action curve in hours",
	Args:  cobra.NoArgs,
	RunE:  handleIAC,
}

var sensitivityCmd = &cobra.Command{
	Use:   "sensitivity [HH:MM[:SS]]",
	Short: "Insulin sensitivity at a time of day (first schedule entry only)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  handleSensitivity,
}

var clockCmd = &cobra.Command{
	Use:   "clock",
	Short: "Current date and time on the pump clock",
	Args:  cobra.NoArgs,
	RunE:  handleClock,
}

var cacheInfoCmd = &cobra.Command{
	Use:   "cache-info",
	Short: "Cache statistics for this process",
	Args:  cobra.NoArgs,
	RunE:  handleCacheInfo,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for AI integration",
	Args:  cobra.NoArgs,
	RunE:  handleMCP,
}

func optionalArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func handleCarbRatio(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	at, err := core.ParseTimeOfDay(optionalArg(args), a.pump.Location())
	if err != nil {
		return err
	}
	ratio, err := a.pump.CarbRatioAt(cmd.Context(), at)
	if err != nil {
		return err
	}
	if raw {
		return output.WriteJSON(cmd.OutOrStdout(), map[string]interface{}{
			"time":       at.Format(core.CLITimeFmt),
			"carb_ratio": ratio,
		})
	}
	return output.WriteValue(cmd.OutOrStdout(), ratio)
}

func handleGlucose(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	at, err := core.ParseDatetime(optionalArg(args), a.pump.Location())
	if err != nil {
		return err
	}
	reading, err := a.pump.LatestGlucose(cmd.Context(), at)
	if err != nil {
		return err
	}
	if raw {
		return output.WriteJSON(cmd.OutOrStdout(), reading)
	}
	return output.WriteGlucose(cmd.OutOrStdout(), reading)
}

func handleHistory(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	from, to, err := parseRange(args[0], args[1], a.pump.Location())
	if err != nil {
		return err
	}
	entries, err := a.pump.HistoryInRange(cmd.Context(), from, to)
	if err != nil {
		return err
	}
	if raw {
		return output.WriteJSON(cmd.OutOrStdout(), entries)
	}
	return output.WriteHistory(cmd.OutOrStdout(), entries)
}

func handleIAC(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	hours, err := a.pump.InsulinActionCurve(cmd.Context())
	if err != nil {
		return err
	}
	if raw {
		return output.WriteJSON(cmd.OutOrStdout(), map[string]float64{"insulin_action_curve": hours})
	}
	return output.WriteValue(cmd.OutOrStdout(), hours)
}

func handleSensitivity(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	at, err := core.ParseTimeOfDay(optionalArg(args), a.pump.Location())
	if err != nil {
		return err
	}
	sensitivity, err := a.pump.InsulinSensitivityAt(cmd.Context(), at)
	if err != nil {
		return err
	}
	if raw {
		return output.WriteJSON(cmd.OutOrStdout(), map[string]interface{}{
			"time":        at.Format(core.CLITimeFmt),
			"sensitivity": sensitivity,
		})
	}
	return output.WriteValue(cmd.OutOrStdout(), sensitivity)
}

func handleClock(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	now, err := a.pump.Clock(cmd.Context())
	if err != nil {
		return err
	}
	if raw {
		return output.WriteJSON(cmd.OutOrStdout(), map[string]string{"datetime": now.Format(time.RFC3339)})
	}
	return output.WriteTime(cmd.OutOrStdout(), now)
}

func handleCacheInfo(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if raw {
		return output.WriteJSON(cmd.OutOrStdout(), a.pump.CacheInfo())
	}
	return output.WriteCacheInfo(cmd.OutOrStdout(), a.pump.CacheInfo())
}

func handleMCP(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	if port, _ := cmd.Flags().GetInt("metrics-port"); port > 0 {
		a.cfg.Metrics.Enabled = true
		a.cfg.Metrics.Port = port
	}
	return runMCPServer(cmd.Context(), a)
}

// parseRange parses two datetimes and checks they are ordered.
func parseRange(fromStr, toStr string, loc *time.Location) (time.Time, time.Time, error) {
	from, err := core.ParseDatetime(fromStr, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := core.ParseDatetime(toStr, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("start '%s' is after end '%s'", fromStr, toStr)
	}
	return from, to, nil
}
