// Command crond runs shell commands on cron schedules read from a YAML file,
// on any of the cronkit backends, and reloads them when the file changes.
//
//	backend: enterprise
//	properties:
//	  pool_size: 4
//	tasks:
//	  - name: rotate
//	    spec: "0 0 3 * * *"
//	    command: logrotate /etc/logrotate.conf
//	    timeout: 10m
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/dailyyoga/cronkit/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	logLevel   string
	noWatch    bool
)

var rootCmd = &cobra.Command{
	Use:   "crond",
	Short: "Run shell commands on cron schedules",
	Long: `crond schedules the tasks of a YAML config file on the configured
backend (crontab, enterprise, minimal or platform) and reloads them
whenever the file changes.`,
	SilenceUsage: true,
	RunE:         run,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the config file and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := loadFile(configPath, logger.GetGlobalLogger())
		if err != nil {
			return err
		}
		cmd.Printf("%s: backend %s, %d task(s)\n", configPath, f.Backend, len(f.Tasks))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "crond.yaml", "config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "overrides log.level of the config file")
	rootCmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not reload on config changes")
	rootCmd.AddCommand(checkCmd)
}

func run(cmd *cobra.Command, args []string) error {
	f, err := loadFile(configPath, logger.GetGlobalLogger())
	if err != nil {
		return err
	}
	if logLevel != "" {
		f.Log.Level = logLevel
	}
	log, err := logger.New(f.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := newDaemon(configPath, log)
	if err := d.start(ctx, f); err != nil {
		_ = d.stop()
		return err
	}
	log.Info("crond started", zap.String("backend", f.Backend), zap.Int("tasks", len(f.Tasks)))

	if noWatch {
		<-ctx.Done()
	} else if err := watch(ctx, configPath, log, d.reload); err != nil {
		log.Error("config watcher stopped", zap.Error(err))
		<-ctx.Done()
	}

	log.Info("crond shutting down")
	return d.stop()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
