package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/aweris/jgit"
	"github.com/aweris/jgit/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:           "jgit",
	Short:         "Git hosting backed by Jupiter addresses",
	Long:          "Serve git repositories per Jupiter address, persisting each repository as a snapshot in a blob store.",
	SilenceUsage:  true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// Settings that keep the names the service has always read from the
// environment. Everything else is read as JGIT_{KEY}.
var legacyEnv = map[string]string{
	"master_key":   "MASTER_KEY",
	"jupiter_host": "JUPITER_HOST",
	"port":         "PORT",
	"concurrency":  "WEB_CONCURRENCY",
	"log_level":    "LOGGING_LEVEL",
	"hostname":     "HOSTNAME",
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default: ~/.config/jgit/config.yaml)")
	flags.String("root-dir", "", "directory for working copies (default: ~/.local/share/jgit)")
	flags.String("store-url", "", "blob store URL: oci://, s3:// or file:// (default: file://{root-dir}/store)")
	flags.String("jupiter-host", "", "Jupiter node used to derive addresses (default: derive locally)")
	flags.String("log-level", logging.LevelInfo, "log level (debug, info, warn, error, none)")
	flags.Int("concurrency", jgit.DefaultConcurrency, "parallel git backend processes and registry transfers")

	viper.BindPFlag("root_dir", flags.Lookup("root-dir"))
	viper.BindPFlag("store_url", flags.Lookup("store-url"))
	viper.BindPFlag("jupiter_host", flags.Lookup("jupiter-host"))
	viper.BindPFlag("log_level", flags.Lookup("log-level"))
	viper.BindPFlag("concurrency", flags.Lookup("concurrency"))
}

func initConfig() {
	if cfg := rootCmd.PersistentFlags().Lookup("config").Value.String(); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.AddConfigPath(configDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("JGIT")
	viper.AutomaticEnv()
	for key, env := range legacyEnv {
		viper.BindEnv(key, env)
	}

	viper.SetDefault("root_dir", jgit.DefaultRootDir())
	viper.SetDefault("port", 8080)
	viper.SetDefault("hostname", jgit.DefaultHostname)
	viper.SetDefault("concurrency", jgit.DefaultConcurrency)
	viper.SetDefault("log_level", logging.LevelInfo)

	viper.ReadInConfig()
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "jgit")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "jgit")
	}
	return ".jgit"
}

func newLogger() (*zap.Logger, error) {
	return logging.New(viper.GetString("log_level"))
}

func storeURL() string {
	if u := viper.GetString("store_url"); u != "" {
		return u
	}
	return "file://" + filepath.Join(viper.GetString("root_dir"), "store")
}

func openStore(ctx context.Context) (jgit.BlobStore, error) {
	return jgit.OpenStore(ctx, storeURL(), viper.GetInt("concurrency"))
}

func newDeriver() jgit.AddressDeriver {
	return jgit.NewDeriver(viper.GetString("jupiter_host"), nil)
}
