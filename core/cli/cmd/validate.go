package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperterse/widgetquery/core/domain"
	"github.com/hyperterse/widgetquery/core/domain/interfaces"
	"github.com/hyperterse/widgetquery/core/infrastructure/store"
	"github.com/hyperterse/widgetquery/core/logger"
	"github.com/hyperterse/widgetquery/core/parser"
)

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:           "validate [config]",
	Short:         "Validate a configuration and every widget it serves",
	RunE:          validateConfig,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	addConfigFlags(validateCmd)
}

func validateConfig(cmd *cobra.Command, args []string) error {
	log := logger.New("validate")
	if len(args) > 0 {
		configFile = args[0]
	}
	if err := configureLogging(); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	widgets, err := storedWidgets(ctx, cfg)
	if err != nil {
		return logger.WithTag("validate", fmt.Errorf("validation failed: %w", err))
	}
	if cfg.Store.Type != parser.StoreInline {
		if err := parser.ValidateWidgets(cfg, widgets); err != nil {
			return logger.WithTag("validate", err)
		}
	}

	log.Successf("%s is valid: %d plugin instance(s), %d widget(s)", cfg.Name, len(cfg.Plugins), len(widgets))
	return nil
}

// storedWidgets reads the widgets of the configured store without starting
// any plugin instance.
func storedWidgets(ctx context.Context, cfg *parser.Config) ([]*domain.WidgetDefinition, error) {
	var (
		s   interfaces.WidgetStore
		err error
	)
	switch cfg.Store.Type {
	case parser.StoreFile:
		return store.LoadWidgetFiles(cfg.StorePath())
	case parser.StoreSQL:
		s, err = store.OpenSQLStore(ctx, cfg.Store.Driver, cfg.Store.DSN)
	case parser.StoreMongoDB:
		s, err = store.OpenMongoStore(ctx, cfg.Store.URI, cfg.Store.Database, cfg.Store.Collection)
	default:
		return cfg.Widgets, nil
	}
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.ListWidgetDefinitions(ctx)
}
