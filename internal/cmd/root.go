package cmd

import (
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/textlens/textlens/internal/config"
	"github.com/textlens/textlens/internal/observability"
	"github.com/textlens/textlens/internal/output"
	"github.com/textlens/textlens/internal/transport"
)

var (
	cfgFile      string
	verbose      bool
	traceFile    string
	offline      bool
	outputFormat string
	outputPath   string
	retries      int

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   config.AppName,
	Short: "Text analysis client with offline cache",
	Long: `textlens sends text to an analysis backend for summaries, sentiment,
question answering and follow-up suggestions.

Requests share a bounded queue, successful responses are cached for 24h, and
cached answers are served when the backend is unreachable.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Disable global telemetry early to prevent config loading from emitting
	// metrics to stdout. Server mode will initialize proper telemetry later.
	disabledConfig := &telemetry.Config{Enabled: false}
	if sys, err := telemetry.NewSystem(disabledConfig); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	cobra.OnInitialize(initConfig)

	// Global flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", fmt.Sprintf("config file (default is %s)", defaultConfigHint()))
	flags.BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
	flags.StringVar(&traceFile, "trace", "", "trace backend requests/responses to NDJSON file")
	flags.BoolVar(&offline, "offline", false, "answer from the cache only, never contact the backend")
	flags.StringVarP(&outputFormat, "format", "f", string(output.FormatTable), "output format: table, json, yaml, markdown")
	flags.StringVarP(&outputPath, "out", "o", "", "write output to file instead of stdout")
	flags.IntVar(&retries, "retries", 0, "retry failed backend requests up to N times with backoff")

	// Bind flags to viper
	_ = viper.BindPFlag("verbose", flags.Lookup("verbose"))
}

func defaultConfigHint() string {
	if path := config.DefaultConfigPath(); path != "" {
		return path
	}
	return "./config/config.yaml"
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	// Initialize CLI logger early so we can use it in config loading
	if err := observability.InitCLILogger(config.AppName, verbose); err != nil {
		ExitWithCodeStderr(foundry.ExitConfigInvalid, "Failed to initialize CLI logger", err)
	}

	// Enable request tracing if requested
	if traceFile != "" {
		cleanup, err := transport.EnableTracing(traceFile)
		if err != nil {
			observability.CLILogger.Warn("Failed to enable tracing", zap.Error(err))
		} else {
			observability.CLILogger.Debug("Request tracing enabled", zap.String("file", traceFile))
			// The file is closed when the process exits
			_ = cleanup
		}
	}

	v := viper.GetViper()
	config.BindEnv(v)
	config.SetDefaults(v)

	if cfgFile != "" {
		// Use config file from flag
		v.SetConfigFile(cfgFile)
	} else {
		for _, path := range config.SearchPaths() {
			v.AddConfigPath(path)
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// If a config file is found, read it in
	if err := v.ReadInConfig(); err == nil {
		observability.CLILogger.Debug("Using config file", zap.String("path", v.ConfigFileUsed()))
	} else {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && cfgFile == "" {
			// It's OK if config file doesn't exist, we have defaults
			observability.CLILogger.Debug("No config file found, using defaults and environment variables")
		} else {
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Failed to read config file", err)
		}
	}
}

// loadConfig decodes the active settings and applies command-line overrides
// that must win over the environment.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if offline {
		cfg.Connectivity.Mode = config.ConnectivityStatic
		cfg.Connectivity.Online = false
	}
	return cfg, nil
}

func cliLogger() observability.Logger {
	if observability.CLILogger == nil {
		return observability.NopLogger()
	}
	return observability.CLILogger
}
