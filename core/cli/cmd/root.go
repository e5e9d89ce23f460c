package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/hyperterse/widgetquery/core/logger"
)

// version stores the version string, set via SetVersion()
var version = "dev"

// SetVersion sets the version string (called from main.init())
func SetVersion(v string) {
	version = v
}

// GetVersion returns the current version string
func GetVersion() string {
	return version
}

const defaultConfigFile = "widgetquery.yaml"

var (
	configFile  string
	port        string
	logLevel    int
	verbose     bool
	logTags     string
	logFile     bool
	showVersion bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "widgetquery",
	Short:         "widgetquery\nResolve widget parameters and query SQL, Jira and REST backends",
	SilenceUsage:  true,
	SilenceErrors: true, // Errors are already logged, suppress Cobra's error output
}

// completionCmd is hidden from help and used by packaging scripts
var completionCmd = &cobra.Command{
	Use:          "completion [bash|zsh|fish|powershell]",
	Short:        "Generate shell completion script",
	Hidden:       true,
	ValidArgs:    []string{"bash", "zsh", "fish", "powershell"},
	Args:         cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletion(cmd.OutOrStdout())
		case "zsh":
			return cmd.Root().GenZshCompletion(cmd.OutOrStdout())
		case "fish":
			return cmd.Root().GenFishCompletion(cmd.OutOrStdout(), true)
		case "powershell":
			return cmd.Root().GenPowerShellCompletion(cmd.OutOrStdout())
		default:
			return fmt.Errorf("unsupported shell: %s", args[0])
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(completionCmd)
	rootCmd.Flags().BoolVarP(&showVersion, "version", "v", false, "Print the installed version and exit")

	// Root command should only print help.
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		}
		return cmd.Help()
	}
}

// addConfigFlags registers the flags shared by every command that loads a config file
func addConfigFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&configFile, "file", "f", defaultConfigFile, "Path to the widgetquery YAML configuration")
	cmd.Flags().IntVar(&logLevel, "log-level", 0, "Log level: 1=ERROR, 2=WARN, 3=INFO, 4=DEBUG (overrides config file)")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Enable verbose logging (sets log level to DEBUG)")
	cmd.Flags().StringVar(&logTags, "log-tags", "", "Filter logs by tags (comma-separated, use -tag to exclude). Overrides WIDGETQUERY_LOG_TAGS env var")
	cmd.Flags().BoolVar(&logFile, "log-file", false, "Stream logs to a file in the system temp dir")
}

// configureLogging applies the CLI log flags before the config is loaded, so
// that startup logs already respect them.
func configureLogging() error {
	if verbose {
		logger.SetLogLevel(logger.LogLevelDebug)
	} else if logLevel > 0 {
		logger.SetLogLevel(logLevel)
	} else {
		logger.SetLogLevel(logger.LogLevelInfo)
	}

	tagFilterStr := logTags
	if tagFilterStr == "" {
		tagFilterStr = os.Getenv("WIDGETQUERY_LOG_TAGS")
	}
	if tagFilterStr != "" {
		logger.SetTagFilter(tagFilterStr)
	}

	if logFile {
		filePath, err := logger.SetLogFile()
		if err != nil {
			return fmt.Errorf("failed to initialize log file: %w", err)
		}
		logger.New("main").Infof("Log file: %s", filePath)
	}
	return nil
}

// LoadEnvFiles attempts to load .env files from multiple locations.
// It stops at the first location that yields a file. Priority order:
// 1. From the provided directory (if not empty)
// 2. From the current working directory
// 3. From the directory containing the executable binary
// System environment variables always take precedence over .env file values.
func LoadEnvFiles(fromDir string) {
	envFiles := []string{".env.local", ".env.development", ".env"}

	if fromDir != "" {
		for _, envFile := range envFiles {
			if err := godotenv.Load(filepath.Join(fromDir, envFile)); err == nil {
				return
			}
		}
	}

	for _, envFile := range envFiles {
		if err := godotenv.Load(envFile); err == nil {
			return
		}
	}

	if execPath, err := os.Executable(); err == nil {
		if realPath, err := filepath.EvalSymlinks(execPath); err == nil {
			execPath = realPath
		}
		execDir := filepath.Dir(execPath)
		for _, envFile := range envFiles {
			if err := godotenv.Load(filepath.Join(execDir, envFile)); err == nil {
				return
			}
		}
	}
}
