package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aweris/amber"
	"github.com/aweris/amber/internal/logger"
	"github.com/aweris/amber/internal/registry"
	"github.com/aweris/amber/internal/scheduler"
)

var rootCmd = &cobra.Command{
	Use:          "amber",
	Short:        "Asset repository browser",
	Long:         "CLI for listing, building and publishing versioned asset repositories.",
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default: ~/.config/amber/config.yaml)")
	flags.String("data-dir", "", "data directory (default: ~/.local/share/amber)")
	flags.Int("workers", scheduler.DefaultPoolSize, "worker pool size")
	flags.String("registry", "json", "repository registry backend (json|sqlite)")
	flags.String("log-level", "warn", "log level (debug|info|warn|error)")
	flags.String("log-format", "text", "log format (text|json)")
	flags.Duration("poll-interval", 20*time.Millisecond, "interval between engine polls")

	viper.BindPFlag("data_dir", flags.Lookup("data-dir"))
	viper.BindPFlag("workers", flags.Lookup("workers"))
	viper.BindPFlag("registry", flags.Lookup("registry"))
	viper.BindPFlag("log_level", flags.Lookup("log-level"))
	viper.BindPFlag("log_format", flags.Lookup("log-format"))
	viper.BindPFlag("poll_interval", flags.Lookup("poll-interval"))
}

func initConfig() {
	if cfg := rootCmd.PersistentFlags().Lookup("config").Value.String(); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.AddConfigPath(configDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("AMBER")
	viper.AutomaticEnv()
	viper.SetDefault("data_dir", defaultDataDir())

	viper.ReadInConfig()
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "amber")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "amber")
	}
	return ".amber"
}

func defaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "amber")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "amber")
	}
	return ".amber"
}

func getDataDir() string {
	return viper.GetString("data_dir")
}

func newLogger() *slog.Logger {
	return logger.New(os.Stderr, viper.GetString("log_level"), viper.GetString("log_format"))
}

func openRegistry() (registry.Registry, error) {
	switch backend := viper.GetString("registry"); backend {
	case "", "json":
		return registry.NewFile(filepath.Join(getDataDir(), amber.RegistryFile)), nil
	case "sqlite":
		return registry.OpenSQLite(filepath.Join(getDataDir(), "repos.db"))
	default:
		return nil, fmt.Errorf("unknown registry backend %q", backend)
	}
}

func openEngine() (*amber.Engine, error) {
	reg, err := openRegistry()
	if err != nil {
		return nil, err
	}
	e, err := amber.New(
		amber.WithDataDir(getDataDir()),
		amber.WithWorkers(viper.GetInt("workers")),
		amber.WithRegistry(reg),
		amber.WithLogger(newLogger()),
	)
	if err != nil {
		reg.Close()
		return nil, err
	}
	return e, nil
}
