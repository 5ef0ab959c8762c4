package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/colthorp/pumpcache-go/internal/core"
	"github.com/colthorp/pumpcache-go/internal/pump"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/spf13/cast"
)

// pumpTools holds the MCP tool handlers. The pump and its caches live for the
// whole server session, so repeated tool calls are served from memory.
type pumpTools struct {
	pump   *pump.Pump
	logger zerolog.Logger
}

// runMCPServer serves the pump tools over stdio until ctx is done or stdin closes.
func runMCPServer(ctx context.Context, a *app) error {
	logger := a.logger.With().Str("component", "mcp").Logger()

	if a.cfg.Metrics.Enabled {
		srv := startMetricsServer(a.cfg.Metrics, a.registry, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			stopMetricsServer(shutdownCtx, srv, logger)
		}()
	}

	s := newMCPServer(a.pump, logger)
	stdio := server.NewStdioServer(s)
	stdio.SetErrorLogger(log.New(logger, "", 0))

	logger.Info().Str("version", core.Version).Msg("MCP server listening on stdio")
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

func newMCPServer(p *pump.Pump, logger zerolog.Logger) *server.MCPServer {
	tools := &pumpTools{pump: p, logger: logger}
	timeOfDay := map[string]interface{}{
		"type":        "string",
		"description": "Time of day on the pump clock as HH:MM or HH:MM:SS (default: now)",
	}

	return server.NewMCPServer(
		"pumpcache",
		core.Version,
		func(s *server.MCPServer) {
			s.AddTool(mcp.Tool{
				Name:        "carb_ratio_at_time",
				Description: "Carb ratio (grams per unit) active at a time of day",
				InputSchema: mcp.ToolInputSchema{
					Type:       "object",
					Properties: map[string]interface{}{"time": timeOfDay},
				},
			}, tools.carbRatio)

			s.AddTool(mcp.Tool{
				Name:        "glucose_level_at_datetime",
				Description: "Most recent glucose level (mg/dL) recorded in the 15 minutes before a datetime; null when there is none",
				InputSchema: mcp.ToolInputSchema{
					Type: "object",
					Properties: map[string]interface{}{
						"datetime": map[string]interface{}{
							"type":        "string",
							"description": "Datetime as YYYY-MM-DD HH:MM:SS or ISO-8601 (default: now)",
						},
					},
				},
			}, tools.glucose)

			s.AddTool(mcp.Tool{
				Name:        "history_in_range",
				Description: "Pump history events between two datetimes, newest first",
				InputSchema: mcp.ToolInputSchema{
					Type: "object",
					Properties: map[string]interface{}{
						"from": map[string]interface{}{
							"type":        "string",
							"description": "Start datetime (YYYY-MM-DD HH:MM:SS)",
						},
						"to": map[string]interface{}{
							"type":        "string",
							"description": "End datetime (YYYY-MM-DD HH:MM:SS)",
						},
					},
					Required: []string{"from", "to"},
				},
			}, tools.history)

			s.AddTool(mcp.Tool{
				Name:        "insulin_action_curve",
				Description: "Insulin action curve duration in hours",
				InputSchema: mcp.ToolInputSchema{
					Type:       "object",
					Properties: map[string]interface{}{},
				},
			}, tools.insulinActionCurve)

			s.AddTool(mcp.Tool{
				Name:        "insulin_sensitivity_at_time",
				Description: "Insulin sensitivity (mg/dL per unit). Only the first schedule entry is used regardless of time",
				InputSchema: mcp.ToolInputSchema{
					Type:       "object",
					Properties: map[string]interface{}{"time": timeOfDay},
				},
			}, tools.insulinSensitivity)

			s.AddTool(mcp.Tool{
				Name:        "clock_datetime",
				Description: "Current date and time on the pump clock (never cached)",
				InputSchema: mcp.ToolInputSchema{
					Type:       "object",
					Properties: map[string]interface{}{},
				},
			}, tools.clock)

			s.AddTool(mcp.Tool{
				Name:        "cache_info",
				Description: "Hit, miss and size statistics for every pump cache",
				InputSchema: mcp.ToolInputSchema{
					Type:       "object",
					Properties: map[string]interface{}{},
				},
			}, tools.cacheInfo)

			s.AddTool(mcp.Tool{
				Name:        "cache_clear",
				Description: "Clear one pump cache by name, or all caches when no name is given",
				InputSchema: mcp.ToolInputSchema{
					Type: "object",
					Properties: map[string]interface{}{
						"name": map[string]interface{}{
							"type":        "string",
							"description": "Cache name as listed by cache_info",
						},
					},
				},
			}, tools.cacheClear)
		},
	)
}

func (t *pumpTools) carbRatio(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	at, err := t.timeOfDayArg(request, "time")
	if err != nil {
		return newErrorResult(err), nil
	}
	ratio, err := t.pump.CarbRatioAt(ctx, at)
	if err != nil {
		return t.failure("carb_ratio_at_time", err), nil
	}
	return newSuccessResult(map[string]interface{}{
		"time":       at.Format(core.CLITimeFmt),
		"carb_ratio": ratio,
	}), nil
}

func (t *pumpTools) glucose(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	at, err := t.datetimeArg(request, "datetime", false)
	if err != nil {
		return newErrorResult(err), nil
	}
	reading, err := t.pump.LatestGlucose(ctx, at)
	if err != nil {
		return t.failure("glucose_level_at_datetime", err), nil
	}

	result := map[string]interface{}{
		"datetime": at.Format(core.CLIDatetimeFmt),
		"glucose":  nil,
	}
	if reading != nil && reading.HasValue {
		result["glucose"] = reading.Value
		result["reading_time"] = reading.Time.Format(core.CLIDatetimeFmt)
		result["kind"] = reading.Kind
	}
	return newSuccessResult(result), nil
}

func (t *pumpTools) history(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from, err := t.datetimeArg(request, "from", true)
	if err != nil {
		return newErrorResult(err), nil
	}
	to, err := t.datetimeArg(request, "to", true)
	if err != nil {
		return newErrorResult(err), nil
	}
	if from.After(to) {
		return newErrorResult(fmt.Errorf("from is after to")), nil
	}

	entries, err := t.pump.HistoryInRange(ctx, from, to)
	if err != nil {
		return t.failure("history_in_range", err), nil
	}
	return newSuccessResult(map[string]interface{}{
		"count":   len(entries),
		"entries": entries,
	}), nil
}

func (t *pumpTools) insulinActionCurve(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	hours, err := t.pump.InsulinActionCurve(ctx)
	if err != nil {
		return t.failure("insulin_action_curve", err), nil
	}
	return newSuccessResult(map[string]interface{}{"insulin_action_curve": hours}), nil
}

func (t *pumpTools) insulinSensitivity(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	at, err := t.timeOfDayArg(request, "time")
	if err != nil {
		return newErrorResult(err), nil
	}
	sensitivity, err := t.pump.InsulinSensitivityAt(ctx, at)
	if err != nil {
		return t.failure("insulin_sensitivity_at_time", err), nil
	}
	return newSuccessResult(map[string]interface{}{
		"time":        at.Format(core.CLITimeFmt),
		"sensitivity": sensitivity,
	}), nil
}

func (t *pumpTools) clock(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	now, err := t.pump.Clock(ctx)
	if err != nil {
		return t.failure("clock_datetime", err), nil
	}
	return newSuccessResult(map[string]interface{}{"datetime": now.Format(time.RFC3339)}), nil
}

func (t *pumpTools) cacheInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return newSuccessResult(t.pump.CacheInfo()), nil
}

func (t *pumpTools) cacheClear(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := stringArg(request, "name")
	if err != nil {
		return newErrorResult(err), nil
	}
	if name == "" {
		t.pump.ClearCaches()
		return newSuccessResult(map[string]interface{}{"cleared": "all"}), nil
	}
	c, err := t.pump.Cache(name)
	if err != nil {
		return newErrorResult(err), nil
	}
	c.Clear()
	return newSuccessResult(map[string]interface{}{"cleared": name}), nil
}

// failure logs a query error and converts it into an MCP error result.
func (t *pumpTools) failure(tool string, err error) *mcp.CallToolResult {
	event := t.logger.Warn()
	if pump.IsNotFound(err) {
		event = t.logger.Debug()
	}
	event.Str("tool", tool).Err(err).Msg("tool call failed")
	return newErrorResult(err)
}

func (t *pumpTools) timeOfDayArg(request mcp.CallToolRequest, key string) (time.Time, error) {
	s, err := stringArg(request, key)
	if err != nil {
		return time.Time{}, err
	}
	return core.ParseTimeOfDay(s, t.pump.Location())
}

func (t *pumpTools) datetimeArg(request mcp.CallToolRequest, key string, required bool) (time.Time, error) {
	s, err := stringArg(request, key)
	if err != nil {
		return time.Time{}, err
	}
	if s == "" && required {
		return time.Time{}, fmt.Errorf("%s is required", key)
	}
	return core.ParseDatetime(s, t.pump.Location())
}

// stringArg returns an optional string argument; absent arguments yield "".
func stringArg(request mcp.CallToolRequest, key string) (string, error) {
	v, ok := request.GetArguments()[key]
	if !ok || v == nil {
		return "", nil
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", fmt.Errorf("%s must be a string: %w", key, err)
	}
	return s, nil
}

func toJSON(v interface{}) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(data)
}

func newSuccessResult(response interface{}) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{
				Type: "text",
				Text: toJSON(response),
			},
		},
	}
}

func newErrorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{
				Type: "text",
				Text: toJSON(map[string]string{"error": err.Error()}),
			},
		},
		IsError: true,
	}
}
