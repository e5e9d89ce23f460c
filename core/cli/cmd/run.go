package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperterse/widgetquery/core/domain"
	"github.com/hyperterse/widgetquery/core/infrastructure/di"
	"github.com/hyperterse/widgetquery/core/logger"
)

var (
	contextPairs []string
	entityID     string
)

// runCmd executes a single widget query and prints its result envelope
var runCmd = &cobra.Command{
	Use:           "run <widget-id>",
	Short:         "Execute one widget query and print the result",
	RunE:          runWidget,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(runCmd)

	addConfigFlags(runCmd)
	runCmd.Flags().StringArrayVarP(&contextPairs, "ctx", "c", nil, "Execution context value as key=value (repeatable)")
	runCmd.Flags().StringVar(&entityID, "entity", "", "Entity id for entity-scoped widgets (same as --ctx entityId=...)")
}

func runWidget(cmd *cobra.Command, args []string) error {
	if err := configureLogging(); err != nil {
		return err
	}
	execCtx, err := parseContextPairs(contextPairs, entityID)
	if err != nil {
		return logger.WithTag("run", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	container, err := di.NewContainer(ctx, cfg)
	if err != nil {
		return logger.WithTag("runtime", err)
	}
	defer container.Close()

	env := container.Service.ExecuteWidgetQuery(ctx, args[0], execCtx)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(env); err != nil {
		return err
	}
	if !env.Success {
		return logger.WithTag("run", fmt.Errorf("widget '%s' failed: %s", args[0], env.Error.Code))
	}
	return nil
}

// parseContextPairs turns repeated key=value flags into an execution context.
// The last occurrence of a key wins.
func parseContextPairs(pairs []string, entity string) (domain.ExecutionContext, error) {
	execCtx := make(domain.ExecutionContext, len(pairs)+1)
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --ctx value %q, expected key=value", pair)
		}
		execCtx[key] = value
	}
	if entity != "" {
		execCtx[domain.EntityIDKey] = entity
	}
	return execCtx, nil
}
