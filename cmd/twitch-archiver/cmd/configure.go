package cmd

import (
	"fmt"
	"strconv"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-twitch-archive/internal/config"
)

// configCmd represents the base command for configuration operations
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or modify the configuration file",
	// No Run function for the base config command itself
}

// configInitCmd writes a starter configuration file
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration file",
	Long: `Creates the configuration file at the --config path with the current
settings (flag overrides included), so it can be edited by hand afterwards.`,
	Run: runConfigInit,
}

// configSetCmd updates a single setting in the configuration file
var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Update one setting in the configuration file",
	Long: `Sets a configuration key and writes the file back. Supported keys:
ClientID, ClientSecret, SavePath, DatabasePath, BleveIndexPath, Filter,
Limit, MaxPages, ChatLogs, SkipConfirmation, ApiDelayMs,
ApiClientTimeoutSec, LogApiRequests.`,
	Args: cobra.ExactArgs(2),
	Run:  runConfigSet,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSetCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) {
	if err := config.SaveConfig(cfgFile, globalConfig); err != nil {
		log.WithError(err).Fatalf("Failed to write configuration to %s", cfgFile)
	}
	log.Infof("Wrote configuration to %s", cfgFile)
}

func runConfigSet(cmd *cobra.Command, args []string) {
	key, value := args[0], args[1]

	if err := applyConfigValue(key, value); err != nil {
		log.Fatalf("%v", err)
	}
	if err := config.SaveConfig(cfgFile, globalConfig); err != nil {
		log.WithError(err).Fatalf("Failed to write configuration to %s", cfgFile)
	}
	log.Infof("Set %s and wrote configuration to %s", key, cfgFile)
}

func applyConfigValue(key, value string) error {
	switch key {
	case "ClientID":
		globalConfig.ClientID = value
	case "ClientSecret":
		globalConfig.ClientSecret = value
	case "SavePath":
		globalConfig.SavePath = value
	case "DatabasePath":
		globalConfig.DatabasePath = value
	case "BleveIndexPath":
		globalConfig.BleveIndexPath = value
	case "Filter":
		globalConfig.Filter = value
	case "Limit", "MaxPages", "ApiDelayMs", "ApiClientTimeoutSec":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s needs an integer value, got %q", key, value)
		}
		switch key {
		case "Limit":
			globalConfig.Limit = n
		case "MaxPages":
			globalConfig.MaxPages = n
		case "ApiDelayMs":
			globalConfig.ApiDelayMs = n
		case "ApiClientTimeoutSec":
			globalConfig.ApiClientTimeoutSec = n
		}
	case "ChatLogs", "SkipConfirmation", "LogApiRequests":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s needs a boolean value, got %q", key, value)
		}
		switch key {
		case "ChatLogs":
			globalConfig.ChatLogs = b
		case "SkipConfirmation":
			globalConfig.SkipConfirmation = b
		case "LogApiRequests":
			globalConfig.LogApiRequests = b
		}
	default:
		return fmt.Errorf("unknown configuration key %q", key)
	}
	return nil
}
