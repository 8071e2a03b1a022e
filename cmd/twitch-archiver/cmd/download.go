package cmd

import (
	"bufio" // For user confirmation prompt
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/gosuri/uilive"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go-twitch-archive/index"
	"go-twitch-archive/internal/chat"
	"go-twitch-archive/internal/database"
	"go-twitch-archive/internal/downloader"
	"go-twitch-archive/internal/helpers"
	"go-twitch-archive/internal/models"
	"go-twitch-archive/internal/queue"
)

// downloadCmd represents the download command
var downloadCmd = &cobra.Command{
	Use:   "download CHANNEL",
	Short: "Download a channel's VODs sequentially",
	Long: `Lists a channel's content, skips entries already in the archive database,
and downloads the rest one at a time. Each completed download is recorded in
the database and the search index. Press Ctrl+C once to pause/resume the
queue; press it twice within two seconds to cancel.`,
	Args: cobra.ExactArgs(1),
	Run:  runDownload,
}

func init() {
	rootCmd.AddCommand(downloadCmd)

	downloadCmd.Flags().String("filter", "", "Content kind: all, archive, highlight, upload, clip (overrides config)")
	downloadCmd.Flags().String("after", "", "Only content created after this date (YYYY-MM-DD)")
	downloadCmd.Flags().String("until", "", "Only content created before this date (YYYY-MM-DD)")
	downloadCmd.Flags().Int("limit", 0, "Entries per API page, 1-100 (overrides config)")
	downloadCmd.Flags().Int("max-pages", 0, "Maximum listing pages to fetch, 0 = no limit (overrides config)")
	downloadCmd.Flags().Bool("chat", false, "Also download chat replays (overrides config)")
	downloadCmd.Flags().String("video-id", "", "Download a single VOD by ID instead of listing the channel")
	downloadCmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")

	viper.BindPFlag("download.chat", downloadCmd.Flags().Lookup("chat"))
	viper.BindPFlag("download.yes", downloadCmd.Flags().Lookup("yes"))
}

// createDownloaderClient creates an HTTP client for media transfers using the
// globally configured transport (which may include logging).
func createDownloaderClient() *http.Client {
	if globalHttpTransport == nil {
		log.Error("Global HTTP transport not initialized, using default transport without logging.")
		globalHttpTransport = http.DefaultTransport
	}
	return &http.Client{
		Timeout:   0, // Media transfers can be long; no overall timeout
		Transport: globalHttpTransport,
	}
}

// runDownload is the main execution function for the download command.
func runDownload(cmd *cobra.Command, args []string) {
	channel := args[0]
	log.Info("Starting Twitch Archiver - Download Command")

	if globalConfig.ClientID == "" || globalConfig.ClientSecret == "" {
		log.Fatal("ClientID and ClientSecret must be set in the configuration.")
	}
	if globalConfig.SavePath == "" {
		log.Fatal("SavePath is not set in the configuration (--save-path or config file).")
	}
	if globalConfig.DatabasePath == "" {
		log.Fatal("DatabasePath is not set in the configuration.")
	}

	filter, limit, maxPages, err := listingOptionsFromFlags(cmd)
	if err != nil {
		log.Fatalf("%v", err)
	}

	wantChat := globalConfig.ChatLogs
	if cmd.Flags().Changed("chat") {
		wantChat, _ = cmd.Flags().GetBool("chat")
	}

	// --- Database Setup ---
	log.Infof("Opening database at: %s", globalConfig.DatabasePath)
	db, err := database.Open(globalConfig.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		log.Info("Closing database.")
		if err := db.Close(); err != nil {
			log.Errorf("Error closing database: %v", err)
		}
	}()

	// --- Search Index Setup ---
	var bleveIndex bleve.Index
	if globalConfig.BleveIndexPath != "" {
		bleveIndex, err = index.OpenOrCreateIndex(globalConfig.BleveIndexPath)
		if err != nil {
			log.WithError(err).Warnf("Failed to open search index at %s, continuing without indexing", globalConfig.BleveIndexPath)
			bleveIndex = nil
		} else {
			defer func() {
				if err := bleveIndex.Close(); err != nil {
					log.WithError(err).Error("Error closing search index")
				}
			}()
		}
	}

	// =============================================
	// Phase 1: Listing & Archive Check
	// =============================================
	log.Info("--- Starting Phase 1: Listing & Archive Check ---")
	apiClient := createApiClient()

	var entries []models.VodEntry
	if videoID, _ := cmd.Flags().GetString("video-id"); videoID != "" {
		log.Infof("--- Processing single video ID: %s ---", videoID)
		video, err := apiClient.GetVideoByID(videoID)
		if err != nil {
			log.WithError(err).Errorf("Failed to look up video %s. Aborting.", videoID)
			return
		}
		createdAt, _ := time.Parse(time.RFC3339, video.CreatedAt)
		entries = []models.VodEntry{{
			ID:        video.ID,
			Title:     video.Title,
			Channel:   strings.ToLower(video.UserName),
			Kind:      models.VodKind(video.Type),
			URL:       video.URL,
			CreatedAt: createdAt,
			Duration:  video.Duration,
			ViewCount: video.ViewCount,
		}}
	} else {
		entries, err = fetchChannelVods(apiClient, db, channel, filter, limit, maxPages, false)
		if err != nil {
			log.WithError(err).Error("Failed to list channel content. Aborting.")
			return
		}
	}

	var toQueue []models.VodEntry
	for _, e := range entries {
		if db.IsArchived(e.ID) {
			log.Debugf("Skipping already archived VOD %s (%s)", e.ID, e.Title)
			continue
		}
		toQueue = append(toQueue, e)
	}
	log.Infof("Found %d entries, %d not yet archived.", len(entries), len(toQueue))

	// =============================================
	// Phase 2: Summary & Confirmation
	// =============================================
	if len(toQueue) == 0 {
		log.Info("Nothing new to download.")
		return
	}

	log.Infof("Found %d item(s) marked for download to %s.", len(toQueue), globalConfig.SavePath)
	skipConfirmation := globalConfig.SkipConfirmation
	if cmd.Flags().Changed("yes") {
		skipConfirmation, _ = cmd.Flags().GetBool("yes")
	}
	if !skipConfirmation {
		fmt.Printf("Proceed with download? (y/N): ")
		reader := bufio.NewReader(os.Stdin)
		confirm, _ := reader.ReadString('\n')
		confirm = strings.TrimSpace(strings.ToLower(confirm))
		if confirm != "y" {
			log.Info("Download cancelled by user.")
			return
		}
		log.Info("User confirmed download.")
	} else {
		log.Info("Skipping confirmation prompt.")
	}

	// =============================================
	// Phase 3: Sequential Download
	// =============================================
	log.Info("--- Starting Phase 3: Sequential Download ---")

	pipeline := &archivePipeline{
		media: downloader.NewDownloader(createDownloaderClient()),
		chat:  chat.NewRetriever(apiClient),
	}

	manager := queue.NewManager(pipeline)
	manager.SetRecorder(makeArchiveRecorder(db, bleveIndex))

	// Use uilive writer for progress updates
	writer := uilive.New()
	writer.Start()
	total := len(toQueue)
	manager.SetObserver(func(snap queue.TaskSnapshot) {
		switch snap.Status {
		case queue.StatusActive:
			fmt.Fprintf(writer, "[%d/%d] %s %s: %.1f%%\n",
				snap.Index+1, total, snap.Vod.ID, truncateTitle(snap.Vod.Title), snap.Progress*100)
		case queue.StatusPaused:
			fmt.Fprintf(writer, "[%d/%d] %s %s: paused at %.1f%%\n",
				snap.Index+1, total, snap.Vod.ID, truncateTitle(snap.Vod.Title), snap.Progress*100)
		case queue.StatusCompleted:
			fmt.Fprintf(writer, "[%d/%d] %s %s: done\n",
				snap.Index+1, total, snap.Vod.ID, truncateTitle(snap.Vod.Title))
		case queue.StatusFailed:
			fmt.Fprintf(writer, "[%d/%d] %s %s: failed (%v)\n",
				snap.Index+1, total, snap.Vod.ID, truncateTitle(snap.Vod.Title), snap.Err)
		}
	})

	if !helpers.CheckAndMakeDir(globalConfig.SavePath) {
		writer.Stop()
		log.Fatalf("Could not create save directory %s", globalConfig.SavePath)
	}
	if err := manager.Enqueue(toQueue, globalConfig.SavePath, wantChat); err != nil {
		writer.Stop()
		log.WithError(err).Fatalf("Failed to enqueue downloads to %s", globalConfig.SavePath)
	}

	manager.Start()

	// Ctrl+C once toggles pause/resume; twice within two seconds cancels.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go handleSignals(sigCh, manager)

	manager.Wait()
	signal.Stop(sigCh)
	writer.Stop()

	// Final summary
	completed, failed := 0, 0
	for _, snap := range manager.Tasks() {
		switch snap.Status {
		case queue.StatusCompleted:
			completed++
		case queue.StatusFailed:
			failed++
			log.WithField("vod", snap.Vod.ID).Warnf("Download failed: %v", snap.Err)
		}
	}
	log.Infof("Download run complete. Success: %d, Failed: %d", completed, failed)
}

// handleSignals maps interrupts onto the queue controls.
func handleSignals(sigCh <-chan os.Signal, manager *queue.Manager) {
	paused := false
	var lastSignal time.Time
	for range sigCh {
		now := time.Now()
		if now.Sub(lastSignal) < 2*time.Second {
			log.Warn("Second interrupt received, cancelling remaining downloads (in-flight transfer stops at its next checkpoint).")
			manager.CancelAll()
			return
		}
		lastSignal = now
		if paused {
			log.Info("Resuming queue.")
			manager.Resume()
		} else {
			log.Info("Pausing queue. Press Ctrl+C again within 2s to cancel.")
			manager.Pause()
		}
		paused = !paused
	}
}

func truncateTitle(title string) string {
	const max = 40
	if len(title) > max {
		return title[:max-3] + "..."
	}
	return title
}
