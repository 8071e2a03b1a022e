package cmd

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-twitch-archive/internal/api"
	"go-twitch-archive/internal/config"
	"go-twitch-archive/internal/models"
)

// cfgFile holds the path to the config file specified by the user
var cfgFile string

// logApiFlag holds the value of the --log-api flag
var logApiFlag bool

// savePathFlag holds the value of the --save-path flag
var savePathFlag string

// apiDelayFlag holds the value of the --api-delay flag
var apiDelayFlag int

// apiTimeoutFlag holds the value of the --api-timeout flag
var apiTimeoutFlag int

// Logging flags shared by all commands
var logLevel string
var logFormat string // e.g., "text", "json"

// globalConfig holds the loaded configuration
var globalConfig models.Config

// globalHttpTransport holds the globally configured HTTP transport (base or logging-wrapped)
var globalHttpTransport http.RoundTripper

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "twitch-archiver",
	Short: "A tool to archive Twitch VODs, clips and chat logs",
	Long: `Twitch Archiver lists a channel's past broadcasts, highlights, uploads
and clips, and downloads them sequentially together with their chat replays.`,
	PersistentPreRunE: loadGlobalConfig, // Load config before any command runs
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	// Defer closing the API logging transport if it was initialized
	defer func() {
		if loggingTransport, ok := globalHttpTransport.(*api.LoggingTransport); ok && loggingTransport != nil {
			log.Debug("Closing API logging transport file.")
			if err := loggingTransport.Close(); err != nil {
				log.WithError(err).Error("Error closing API log file")
			}
		}
	}()

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// Add persistent flags that apply to all commands
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.toml", "Configuration file path")
	rootCmd.PersistentFlags().BoolVar(&logApiFlag, "log-api", false, "Log API requests/responses to api.log (overrides config)")
	rootCmd.PersistentFlags().StringVar(&savePathFlag, "save-path", "", "Directory to save downloads (overrides config)")
	rootCmd.PersistentFlags().IntVar(&apiDelayFlag, "api-delay", -1, "Delay between API calls in ms (overrides config, -1 uses config default)")
	rootCmd.PersistentFlags().IntVar(&apiTimeoutFlag, "api-timeout", -1, "Timeout for API HTTP client in seconds (overrides config, -1 uses config default)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Logging level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Logging format (text, json)")
}

// initLogging configures logrus based on persistent flags
func initLogging() {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		log.WithError(err).Warnf("Invalid log level '%s', using default 'info'", logLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)

	switch logFormat {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		log.Warnf("Invalid log format '%s', using default 'text'", logFormat)
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	log.Debugf("Logging configured: Level=%s, Format=%s", log.GetLevel(), logFormat)
}

// loadGlobalConfig attempts to load the configuration and applies flag overrides.
// It also sets up the global HTTP transport based on logging settings.
func loadGlobalConfig(cmd *cobra.Command, args []string) error {
	initLogging()

	var err error
	globalConfig, err = config.LoadConfig(cfgFile)
	if err != nil {
		// Log a warning but don't make it fatal here; commands check the
		// fields they need from globalConfig.
		log.WithError(err).Warnf("Failed to load configuration from %s", cfgFile)
	}

	// Override LogApiRequests if flag was used
	if cmd.Flags().Changed("log-api") {
		globalConfig.LogApiRequests = logApiFlag
		log.Debugf("Overriding LogApiRequests based on --log-api flag: %t", logApiFlag)
	}

	// Override SavePath if flag was used
	if cmd.Flags().Changed("save-path") {
		if savePathFlag != "" {
			globalConfig.SavePath = savePathFlag
			log.Debugf("Overriding SavePath based on --save-path flag: %s", savePathFlag)
		} else {
			log.Warn("--save-path flag provided but value is empty, ignoring.")
		}
	}

	// Override ApiDelayMs if flag was used and valid
	if cmd.Flags().Changed("api-delay") {
		if apiDelayFlag >= 0 { // Allow 0 delay if specified
			globalConfig.ApiDelayMs = apiDelayFlag
			log.Debugf("Overriding ApiDelayMs based on --api-delay flag: %d ms", apiDelayFlag)
		} else {
			log.Warnf("--api-delay flag provided with invalid value %d, using config value: %d ms", apiDelayFlag, globalConfig.ApiDelayMs)
		}
	}

	// Ensure default delay if not set
	if globalConfig.ApiDelayMs <= 0 {
		log.Debugf("ApiDelayMs not set or invalid in config/flags, defaulting to 250ms")
		globalConfig.ApiDelayMs = 250 // Default polite delay
	}

	// Override ApiClientTimeoutSec if flag was used and valid
	if cmd.Flags().Changed("api-timeout") {
		if apiTimeoutFlag > 0 { // Timeout must be positive
			globalConfig.ApiClientTimeoutSec = apiTimeoutFlag
			log.Debugf("Overriding ApiClientTimeoutSec based on --api-timeout flag: %d sec", apiTimeoutFlag)
		} else {
			log.Warnf("--api-timeout flag provided with invalid value %d, using config value: %d sec", apiTimeoutFlag, globalConfig.ApiClientTimeoutSec)
		}
	}

	// Ensure default timeout if not set or invalid
	if globalConfig.ApiClientTimeoutSec <= 0 {
		log.Debugf("ApiClientTimeoutSec not set or invalid in config/flags, defaulting to 60s")
		globalConfig.ApiClientTimeoutSec = 60 // Default timeout
	}

	// --- Setup Global HTTP Transport ---
	baseTransport := http.DefaultTransport

	globalHttpTransport = baseTransport // Default to base transport
	if globalConfig.LogApiRequests {
		log.Debug("API request logging enabled, wrapping global HTTP transport.")
		logFilePath := "api.log"
		// Attempt to resolve relative to SavePath if possible, otherwise use current dir
		if globalConfig.SavePath != "" {
			if _, statErr := os.Stat(globalConfig.SavePath); statErr == nil {
				logFilePath = filepath.Join(globalConfig.SavePath, logFilePath)
			} else {
				log.Warnf("SavePath '%s' not found, saving api.log to current directory.", globalConfig.SavePath)
			}
		}
		log.Infof("API logging to file: %s", logFilePath)

		loggingTransport, err := api.NewLoggingTransport(baseTransport, logFilePath)
		if err != nil {
			log.WithError(err).Error("Failed to initialize API logging transport, logging disabled.")
		} else {
			globalHttpTransport = loggingTransport
		}
	}

	return nil
}
