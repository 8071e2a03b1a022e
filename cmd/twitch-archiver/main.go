package main

import (
	"go-twitch-archive/cmd/twitch-archiver/cmd"
	"go-twitch-archive/internal/api"
)

func main() {
	// Ensure all API log file buffers are flushed and files closed on exit
	defer api.CloseAllLoggingTransports()

	// Execute the root command (defined in cmd/root.go)
	cmd.Execute()
}
