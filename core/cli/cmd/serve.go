package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/hyperterse/widgetquery/core/cli/internal"
	"github.com/hyperterse/widgetquery/core/logger"
	"github.com/hyperterse/widgetquery/core/parser"
	"github.com/hyperterse/widgetquery/core/runtime/server"
)

var watchConfig bool

// serveCmd starts the HTTP server for a configuration file
var serveCmd = &cobra.Command{
	Use:           "serve [config]",
	Short:         "Serve widget queries over HTTP",
	RunE:          serveWidgets,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	addConfigFlags(serveCmd)
	serveCmd.Flags().StringVarP(&port, "port", "p", "", "Server port (overrides config file and PORT env var)")
	serveCmd.Flags().BoolVarP(&watchConfig, "watch", "w", false, "Reload the server when the config file changes")
}

func serveWidgets(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		configFile = args[0]
	}

	rt, err := PrepareRuntime(cmd.Context())
	if err != nil {
		return err
	}
	if !watchConfig {
		return rt.Start()
	}
	return serveWithWatch(rt)
}

// PrepareRuntime loads config, validates, and creates a runtime ready to start
func PrepareRuntime(ctx context.Context) (*server.Runtime, error) {
	log := logger.New("main")
	if err := configureLogging(); err != nil {
		return nil, err
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log.Infof("Config loaded: %s (%d plugin instance(s))", cfg.Name, len(cfg.Plugins))

	rt, err := server.NewRuntime(ctx, cfg, internal.ResolvePort(port, cfg), server.WithServiceVersion(GetVersion()))
	if err != nil {
		return nil, logger.WithTag("runtime", err)
	}
	log.Infof("Runtime initialized")
	return rt, nil
}

// loadConfig loads .env files next to the config, then the config itself
func loadConfig() (*parser.Config, error) {
	dir := configFile
	if info, err := os.Stat(configFile); err != nil || !info.IsDir() {
		dir = filepath.Dir(configFile)
	}
	LoadEnvFiles(dir)

	cfg, err := internal.LoadConfig(configFile)
	if err != nil {
		return nil, logger.WithTag("parser", err)
	}
	if logLevel == 0 && !verbose {
		logger.SetLogLevel(internal.ResolveLogLevel(verbose, logLevel, cfg))
	}
	return cfg, nil
}

func serveWithWatch(rt *server.Runtime) error {
	log := logger.New("watch")

	if err := rt.StartAsync(); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		rt.Stop()
		return err
	}
	defer watcher.Close()

	// Editors often replace the file, so the directory is watched instead.
	target, err := filepath.Abs(configFile)
	if err != nil {
		rt.Stop()
		return err
	}
	if info, statErr := os.Stat(target); statErr == nil && info.IsDir() {
		target = filepath.Join(target, "widgetquery.yaml")
	}
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		rt.Stop()
		return err
	}

	reload := make(chan struct{}, 1)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		var debounce *time.Timer
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					if debounce != nil {
						debounce.Stop()
					}
					debounce = time.AfterFunc(500*time.Millisecond, func() {
						select {
						case reload <- struct{}{}:
						default:
						}
					})
				}
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warnf("Watcher error: %v", werr)
			}
		}
	}()

	log.Infof("Watching %s for changes...", target)

	for {
		select {
		case <-sigChan:
			return rt.Stop()
		case <-reload:
			log.Infof("Config changed, reloading...")
			cfg, err := loadConfig()
			if err != nil {
				log.PrintError("Reload skipped", err)
				continue
			}
			if err := rt.Reload(context.Background(), cfg); err != nil {
				log.PrintError("Reload failed, keeping current configuration", err)
			}
		}
	}
}
