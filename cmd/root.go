// Package cmd implements the newsflow command-line interface. It wires
// configuration from flags, environment, and an optional config file, and
// dispatches to the subcommand packages.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cmdarchive "github.com/jonesrussell/newsflow/cmd/archive"
	cmdcrawl "github.com/jonesrussell/newsflow/cmd/crawl"
	cmdindex "github.com/jonesrussell/newsflow/cmd/index"
	cmdpipeline "github.com/jonesrussell/newsflow/cmd/pipeline"
	cmdqueue "github.com/jonesrussell/newsflow/cmd/queue"
	cmdreparse "github.com/jonesrussell/newsflow/cmd/reparse"
	cmdsearch "github.com/jonesrussell/newsflow/cmd/search"
	cmdserve "github.com/jonesrussell/newsflow/cmd/serve"
	cmdsources "github.com/jonesrussell/newsflow/cmd/sources"
)

const version = "1.0.0"

var (
	// cfgFile holds the path to the configuration file.
	cfgFile string

	// Debug enables debug logging for all commands.
	Debug bool

	rootCmd = &cobra.Command{
		Use:   "newsflow",
		Short: "News crawler, archive, and analysis pipeline",
		Long: `newsflow crawls configured news sources on a schedule, archives raw
HTML to cold storage, and runs a multi-stage analysis pipeline that
filters articles and enriches them through batched LLM analysis.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command.
func Execute() error {
	// Load .env early so environment variables are visible to viper.
	_ = godotenv.Load()

	// Parse flags early so --debug is known before logger construction.
	_ = rootCmd.ParseFlags(os.Args[1:])

	if err := initConfig(); err != nil {
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}

	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"",
		"config file (default is ./config.yaml or ./config/config.yaml)",
	)
	rootCmd.PersistentFlags().BoolVar(&Debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("newsflow version %s\n", version)
		},
	})

	rootCmd.AddCommand(cmdserve.Command())
	rootCmd.AddCommand(cmdcrawl.Command())
	rootCmd.AddCommand(cmdsources.Command())
	rootCmd.AddCommand(cmdqueue.Command())
	rootCmd.AddCommand(cmdarchive.Command())
	rootCmd.AddCommand(cmdreparse.Command())
	rootCmd.AddCommand(cmdpipeline.Command())
	rootCmd.AddCommand(cmdsearch.Command())
	rootCmd.AddCommand(cmdindex.Command())
}

// initConfig reads configuration from the config file and environment.
func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}

	// Environment variables take precedence over defaults; DATABASE_HOST
	// maps to database.host and so on.
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	// The config file is optional; env and defaults cover everything.
	if err := viper.ReadInConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: config file not found: %v (using defaults and environment variables)\n", err)
	}

	if err := bindFlags(); err != nil {
		return err
	}
	if err := bindEnvVars(); err != nil {
		return err
	}

	setupDevelopmentLogging()

	return nil
}

func bindFlags() error {
	if err := viper.BindPFlag("app.debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("failed to bind debug flag: %w", err)
	}
	return nil
}

// bindEnvVars maps conventional environment variable names that do not
// follow the dotted-key replacer scheme.
func bindEnvVars() error {
	bindings := map[string][]string{
		"app.environment":         {"APP_ENV"},
		"logger.level":            {"LOG_LEVEL"},
		"database.password":       {"DATABASE_PASSWORD", "POSTGRES_PASSWORD"},
		"analytics.password":      {"ANALYTICS_PASSWORD"},
		"llm.api_key":             {"OPENAI_API_KEY"},
		"llm.anthropic.api_key":   {"ANTHROPIC_API_KEY"},
		"elasticsearch.addresses": {"ELASTICSEARCH_ADDRESSES", "ELASTICSEARCH_HOSTS"},
		"elasticsearch.api_key":   {"ELASTICSEARCH_API_KEY"},
		"elasticsearch.password":  {"ELASTIC_PASSWORD", "ELASTICSEARCH_PASSWORD"},
		"redis.addr":              {"REDIS_ADDR"},
		"redis.password":          {"REDIS_PASSWORD"},
	}
	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		if err := viper.BindEnv(args...); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}

// setupDevelopmentLogging raises the log level when --debug or APP_DEBUG is
// set, and enables development formatting in the development environment.
func setupDevelopmentLogging() {
	debugFlag := Debug || viper.GetBool("app.debug")
	if debugFlag {
		viper.Set("logger.level", "debug")
	}
	if viper.GetString("app.environment") == "development" {
		viper.Set("logger.development", true)
	}
	Debug = debugFlag
}

// setDefaults sets production-safe defaults for every configuration section.
func setDefaults() {
	viper.SetDefault("app", map[string]any{
		"name":        "newsflow",
		"environment": "production",
		"debug":       false,
	})

	viper.SetDefault("logger", map[string]any{
		"level":        "info",
		"development":  false,
		"output_paths": []string{"stdout"},
	})

	viper.SetDefault("database", map[string]any{
		"host":     "127.0.0.1",
		"port":     5432,
		"user":     "newsflow",
		"password": "",
		"name":     "newsflow",
		"sslmode":  "disable",
	})

	viper.SetDefault("analytics", map[string]any{
		"host":     "127.0.0.1",
		"port":     5432,
		"user":     "newsflow",
		"password": "",
		"name":     "newsflow_analytics",
		"sslmode":  "disable",
	})

	viper.SetDefault("elasticsearch", map[string]any{
		"enabled":    false,
		"addresses":  []string{"http://127.0.0.1:9200"},
		"index_name": "articles",
	})

	viper.SetDefault("redis", map[string]any{
		"enabled":            false,
		"addr":               "127.0.0.1:6379",
		"db":                 0,
		"stream_prefix":      "newsflow:crawl",
		"stream_ttl_seconds": 86400,
	})

	viper.SetDefault("crawler", map[string]any{
		"sources_file":             "sources.yml",
		"default_interval_minutes": 30,
		"default_timeout_seconds":  60,
		"batch_size":               20,
		"rate_limit":               "2s",
		"max_retries":              3,
	})

	viper.SetDefault("scheduler", map[string]any{
		"timezone":       "Asia/Taipei",
		"pool_size":      10,
		"check_interval": "5s",
		"misfire_grace":  "10m",
	})

	viper.SetDefault("archive", map[string]any{
		"base_path":    "./archive",
		"batch_size":   200,
		"compression":  "gzip",
		"auto_enabled": false,
		"auto_hour":    3,
		"auto_minute":  30,
	})

	viper.SetDefault("llm", map[string]any{
		"provider":          "openai",
		"model":             "gpt-4o-mini",
		"poll_interval":     "30s",
		"max_wait":          "24h",
		"completion_window": "24h",
	})

	viper.SetDefault("pipeline", map[string]any{
		"default_days": 7,
		"page_size":    200,
	})

	viper.SetDefault("queue", map[string]any{
		"stale_minutes": 30,
	})
}
