package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/gosuri/uilive"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-twitch-archive/internal/chat"
	"go-twitch-archive/internal/database"
	"go-twitch-archive/internal/models"
)

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat VIDEO_ID",
	Short: "Download the chat replay for a single VOD",
	Long: `Fetches the full chat replay of a VOD and writes it as raw JSON plus a
plain-text transcript. The files are recorded on the VOD's archive entry if
one exists in the database.`,
	Args: cobra.ExactArgs(1),
	Run:  runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringP("output-dir", "o", "", "Directory to save chat logs (default: SavePath)")
}

func runChat(cmd *cobra.Command, args []string) {
	videoID := args[0]

	if globalConfig.ClientID == "" || globalConfig.ClientSecret == "" {
		log.Fatal("ClientID and ClientSecret must be set in the configuration.")
	}

	destDir, _ := cmd.Flags().GetString("output-dir")
	if destDir == "" {
		destDir = globalConfig.SavePath
	}
	if destDir == "" {
		log.Fatal("No output directory: set SavePath in the config or pass --output-dir.")
	}

	client := createApiClient()

	// Resolve the VOD's metadata so the chat files get proper names and the
	// progress fraction has a duration to work against.
	video, err := client.GetVideoByID(videoID)
	if err != nil {
		log.WithError(err).Fatalf("Failed to look up video %s", videoID)
	}
	createdAt, _ := time.Parse(time.RFC3339, video.CreatedAt)
	vod := models.VodEntry{
		ID:        video.ID,
		Title:     video.Title,
		Channel:   strings.ToLower(video.UserName),
		Kind:      models.VodKind(video.Type),
		URL:       video.URL,
		CreatedAt: createdAt,
		Duration:  video.Duration,
		ViewCount: video.ViewCount,
	}

	writer := uilive.New()
	writer.Start()

	retriever := chat.NewRetriever(client)
	files, err := retriever.FetchAndSave(vod, destDir, func(f float64) {
		if f >= 0 {
			fmt.Fprintf(writer, "Fetching chat for %s: %.1f%%\n", vod.ID, f*100)
		} else {
			fmt.Fprintf(writer, "Fetching chat for %s...\n", vod.ID)
		}
	}, nil)
	writer.Stop()
	if err != nil {
		log.WithError(err).Fatalf("Failed to fetch chat for video %s", videoID)
	}
	log.Infof("Chat replay saved: %s", strings.Join(files, ", "))

	// Attach the chat files to an existing archive entry, if any
	if globalConfig.DatabasePath == "" {
		return
	}
	db, err := database.Open(globalConfig.DatabasePath)
	if err != nil {
		log.WithError(err).Warnf("Could not open database at %s, chat files not recorded", globalConfig.DatabasePath)
		return
	}
	defer db.Close()

	entry, err := db.GetArchiveEntry(vod.ID)
	if err != nil {
		log.Debugf("No archive entry for VOD %s, skipping database update", vod.ID)
		return
	}
	entry.ChatFiles = files
	if err := db.PutArchiveEntry(entry); err != nil {
		log.WithError(err).Errorf("Failed to update archive entry for VOD %s", vod.ID)
		return
	}
	log.Infof("Recorded chat files on archive entry for VOD %s", vod.ID)
}
