package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/genc-murat/weatherstation/internal/app"
	"github.com/genc-murat/weatherstation/internal/config"
)

var (
	configPath string
	env        string
	port       int
	dataDir    string
	logLevel   string
)

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.Flags().StringVar(&env, "env", "", "load config/<env>.yaml from the project root")
	rootCmd.Flags().IntVar(&port, "port", 50001, "query server port")
	rootCmd.Flags().StringVar(&dataDir, "data-dir", "data", "directory for the persisted views")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level. panic|fatal|error|warning|info|debug")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

var rootCmd = &cobra.Command{
	Use:          "weatherstation",
	Short:        "sample weather sensors, keep hourly/daily rollups and serve them as JSON",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		node, err := app.New(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return node.Run(ctx)
	},
}

// loadConfig picks the file source, then applies the flags that were set
// explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case configPath != "":
		cfg, err = config.LoadFile(configPath)
	case env != "":
		cfg, err = config.LoadConfig(env)
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Server.Port = port
	}
	if flags.Changed("data-dir") {
		cfg.Storage.Path = dataDir
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}
