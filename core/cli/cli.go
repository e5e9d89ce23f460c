package cli

import (
	"github.com/hyperterse/widgetquery/core/cli/cmd"
	"github.com/hyperterse/widgetquery/core/logger"
)

// Execute runs the CLI
func Execute() error {
	if err := cmd.Execute(); err != nil {
		tag := logger.ErrorTag(err)
		if tag == "" {
			tag = "cli"
		}
		logger.New(tag).Error(err.Error())
		logger.CloseLogFile()
		return err
	}
	logger.CloseLogFile()
	return nil
}

