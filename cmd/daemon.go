package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/otus-tap/agent/internal/config"
	"github.com/otus-tap/agent/internal/daemon"
	"github.com/otus-tap/agent/internal/log"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the tap daemon in the foreground",
	Long: `Run the otus-tap daemon process in the foreground.

The daemon loads its configuration, starts the message bus, protocol
tables, processor fan-out, periodic job runner, and leader link, and
serves the local control socket used by the status/stats/reload/stop
commands. It reloads configuration on SIGHUP or when the config file
changes on disk, and shuts down gracefully on SIGTERM/SIGINT.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon()
	},
}

func runDaemon() error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("could not load config: %w", err)
	}

	log.Init(&log.LoggerConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Time:   "2006-01-02T15:04:05.000Z07:00",
		File: log.LogFileOptions{
			Enabled:    cfg.Log.Outputs.Enabled,
			Path:       cfg.Log.Outputs.Path,
			MaxSizeMB:  cfg.Log.Outputs.MaxSizeMB,
			MaxAgeDays: cfg.Log.Outputs.MaxAgeDays,
			MaxBackups: cfg.Log.Outputs.MaxBackups,
			Compress:   cfg.Log.Outputs.Compress,
		},
	})
	logger := log.GetLogger()

	// cfg.Control.Socket is the viper-resolved default; the --socket flag
	// overrides it so CLI commands and the daemon agree on where to listen.
	if socketPath != "" {
		cfg.Control.Socket = socketPath
	}

	d, err := daemon.New(cfg, configFile)
	if err != nil {
		return fmt.Errorf("could not assemble daemon: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.WithError(err).Warn("could not start config file watcher, SIGHUP-only reload in effect")
	} else {
		defer watcher.Close()
		if err := watcher.Add(configFile); err != nil {
			logger.WithError(err).Warn("could not watch config file")
		} else {
			go watchConfigFile(ctx, watcher, d, logger)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	go func() {
		for sig := range sigCh {
			switch sig {
			case syscall.SIGHUP:
				logger.Info("received SIGHUP, reloading configuration")
				if err := d.Reload(); err != nil {
					logger.WithError(err).Error("config reload failed")
				}
			case syscall.SIGTERM, syscall.SIGINT:
				logger.WithField("signal", sig).Info("received shutdown signal")
				cancel()
				return
			}
		}
	}()

	logger.WithField("config", configFile).WithField("socket", cfg.Control.Socket).Info("otus-tap daemon starting")

	startErr := d.Start(ctx)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := d.Stop(stopCtx); err != nil {
		logger.WithError(err).Error("error during shutdown")
	}

	logger.Info("otus-tap daemon stopped")
	return startErr
}

// watchConfigFile triggers a reload whenever the config file is rewritten.
// Many editors and config-management tools replace the file rather than
// write in place, so the watch is re-armed after a Remove/Rename event.
func watchConfigFile(ctx context.Context, watcher *fsnotify.Watcher, d *daemon.Daemon, logger log.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				logger.WithField("event", event.String()).Info("config file changed, reloading")
				if err := d.Reload(); err != nil {
					logger.WithError(err).Error("config reload failed")
				}
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				_ = watcher.Add(event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.WithError(err).Warn("config file watcher error")
		}
	}
}
