package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hyperengineering/studysync"
)

var (
	cfgFile    string
	outputJSON bool

	// v layers flags over STUDYSYNC_* env vars over the config file.
	v = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "studysync",
	Short: "studysync - local-first study planner data",
	Long: `studysync keeps study planner collections (tasks, templates, study
sessions, exams, timer history and settings) in a local store and, when
signed in and online, in sync with the remote store.

Configuration is read from flags, STUDYSYNC_* environment variables and
~/.studysync/config.yaml, in that order of precedence.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if isTTY() {
			fmt.Fprintln(cmd.OutOrStdout(), renderBanner())
			fmt.Fprintln(cmd.OutOrStdout())
		}
		return cmd.Help()
	},
}

// persistent flag -> config key
var flagKeys = map[string]string{
	"db-path":    "db_path",
	"profile":    "profile",
	"remote-url": "remote_url",
	"api-key":    "api_key",
	"pg-dsn":     "pg_dsn",
	"token":      "access_token",
	"user":       "user",
	"debug":      "debug",
	"debug-log":  "debug_log",
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default: ~/.studysync/config.yaml)")
	pf.String("db-path", "", "Path to the local database (default: derived from profile)")
	pf.String("profile", "", "Profile to use (default: STUDYSYNC_PROFILE or \"default\")")
	pf.String("remote-url", "", "Base URL of the remote REST store")
	pf.String("api-key", "", "Project API key for the remote REST store")
	pf.String("pg-dsn", "", "PostgreSQL DSN, used instead of --remote-url")
	pf.String("token", "", "Access token (JWT) identifying the signed-in user")
	pf.String("user", "", "Fixed user identity when no token is given")
	pf.Bool("debug", false, "Enable debug logging")
	pf.String("debug-log", "", "Write debug logs to this file (rotated)")
	pf.BoolVar(&outputJSON, "json", false, "Output as JSON")

	for flag, key := range flagKeys {
		_ = v.BindPFlag(key, pf.Lookup(flag))
	}
}

// initConfig reads the config file and environment.
func initConfig() {
	v.SetEnvPrefix("STUDYSYNC")
	v.AutomaticEnv()
	v.SetDefault("sync_interval", studysync.DefaultConfig().SyncInterval)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".studysync"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			printWarning(os.Stderr, "config file ignored: %v", err)
		}
	}
}

// loadConfig builds the client configuration. One-shot commands sync
// explicitly, so background sync is off.
func loadConfig() studysync.Config {
	return studysync.Config{
		LocalPath:       v.GetString("db_path"),
		Profile:         v.GetString("profile"),
		LocalQuotaBytes: v.GetInt64("quota_bytes"),
		RemoteURL:       v.GetString("remote_url"),
		APIKey:          v.GetString("api_key"),
		PostgresDSN:     v.GetString("pg_dsn"),
		AccessToken:     v.GetString("access_token"),
		User:            v.GetString("user"),
		SyncInterval:    v.GetDuration("sync_interval"),
		Debug:           v.GetBool("debug"),
		DebugLogPath:    v.GetString("debug_log"),
	}
}

func newClient() (*studysync.Client, error) {
	client, err := studysync.New(loadConfig())
	if err != nil {
		return nil, fmt.Errorf("initialize client: %w", err)
	}
	return client, nil
}
