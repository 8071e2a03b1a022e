package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-twitch-archive/internal/database"
	"go-twitch-archive/internal/helpers"
	"go-twitch-archive/internal/models"
)

// dbCmd represents the base command for database operations
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Interact with the archive database",
	Long:  `Perform operations like viewing or verifying entries in the archive database.`,
	// No Run function for the base db command itself
}

// dbViewCmd represents the command to view database entries
var dbViewCmd = &cobra.Command{
	Use:   "view",
	Short: "View entries stored in the database",
	Long:  `Lists the VODs that have been recorded in the archive database.`,
	Run:   runDbView,
}

// dbVerifyCmd represents the command to verify database entries against the filesystem
var dbVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify archived files against the filesystem",
	Long: `Checks that the media and chat files recorded in the database exist at
their expected locations and optionally verifies the media file hashes.
Entries with missing or mismatched files are marked with an error status so a
subsequent download run picks them up again.`,
	Run: runDbVerify,
}

// dbDeleteCmd represents the command to remove an entry from the database
var dbDeleteCmd = &cobra.Command{
	Use:   "delete VIDEO_ID",
	Short: "Remove a VOD's entry from the database",
	Long: `Deletes the archive entry for the given video ID. The downloaded files are
left on disk; a subsequent download run will fetch the VOD again.`,
	Args: cobra.ExactArgs(1),
	Run:  runDbDelete,
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbViewCmd)
	dbCmd.AddCommand(dbVerifyCmd)
	dbCmd.AddCommand(dbDeleteCmd)

	dbVerifyCmd.Flags().Bool("check-hash", true, "Perform hash check for existing media files")
}

// openConfiguredDB is shared by the db subcommands.
func openConfiguredDB() *database.DB {
	if globalConfig.DatabasePath == "" {
		log.Fatal("Database path is not set in the configuration. Please check the config file.")
	}
	db, err := database.Open(globalConfig.DatabasePath)
	if err != nil {
		log.WithError(err).Fatalf("Failed to open database at %s", globalConfig.DatabasePath)
	}
	return db
}

// foldArchiveEntries iterates the archive entries in the database, skipping
// internal keys such as listing cursors.
func foldArchiveEntries(db *database.DB, fn func(entry models.ArchiveEntry) error) error {
	return db.Fold(func(key []byte, value []byte) error {
		keyStr := string(key)
		if !strings.HasPrefix(keyStr, "v_") {
			return nil
		}

		var entry models.ArchiveEntry
		if err := json.Unmarshal(value, &entry); err != nil {
			log.WithError(err).Warnf("Failed to unmarshal JSON for key %s, skipping", keyStr)
			return nil
		}
		return fn(entry)
	})
}

func runDbView(cmd *cobra.Command, args []string) {
	log.Info("Viewing database entries...")

	db := openConfiguredDB()
	defer db.Close()

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VOD ID\tChannel\tKind\tTitle\tArchived At\tStatus\tChat\tMedia File")
	fmt.Fprintln(tw, "------\t-------\t----\t-----\t-----------\t------\t----\t----------")

	count := 0
	errFold := foldArchiveEntries(db, func(entry models.ArchiveEntry) error {
		chatMark := ""
		if len(entry.ChatFiles) > 0 {
			chatMark = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			entry.Vod.ID,
			entry.Vod.Channel,
			entry.Vod.Kind,
			truncateTitle(entry.Vod.Title),
			time.Unix(entry.Timestamp, 0).Format("2006-01-02 15:04"),
			entry.Status,
			chatMark,
			entry.MediaFile,
		)
		count++
		return nil
	})
	if errFold != nil {
		log.WithError(errFold).Error("Error occurred during database scan (Fold)")
	}

	if err := tw.Flush(); err != nil {
		log.WithError(err).Error("Error flushing table writer for db view")
	}
	log.Infof("Displayed %d entries.", count)
}

func runDbVerify(cmd *cobra.Command, args []string) {
	log.Info("Verifying database entries against the filesystem...")
	checkHash, _ := cmd.Flags().GetBool("check-hash")

	db := openConfiguredDB()
	defer db.Close()

	var ok, missing, mismatched int
	var broken []models.ArchiveEntry

	errFold := foldArchiveEntries(db, func(entry models.ArchiveEntry) error {
		if entry.MediaFile == "" {
			return nil
		}
		if _, err := os.Stat(entry.MediaFile); err != nil {
			log.Warnf("VOD %s: media file missing: %s", entry.Vod.ID, entry.MediaFile)
			entry.Status = models.StatusError
			entry.ErrorDetails = "media file missing"
			broken = append(broken, entry)
			missing++
			return nil
		}
		if checkHash && (entry.Hashes.SHA256 != "" || entry.Hashes.BLAKE3 != "") {
			if !helpers.CheckHash(entry.MediaFile, entry.Hashes) {
				log.Warnf("VOD %s: hash mismatch for %s", entry.Vod.ID, entry.MediaFile)
				entry.Status = models.StatusError
				entry.ErrorDetails = "hash mismatch"
				broken = append(broken, entry)
				mismatched++
				return nil
			}
		}
		for _, cf := range entry.ChatFiles {
			if _, err := os.Stat(cf); err != nil {
				log.Warnf("VOD %s: chat file missing: %s", entry.Vod.ID, cf)
			}
		}
		ok++
		return nil
	})
	if errFold != nil {
		log.WithError(errFold).Error("Error occurred during database scan (Fold)")
	}

	// Record failures so a future download run retries them
	for _, entry := range broken {
		if err := db.PutArchiveEntry(entry); err != nil {
			log.WithError(err).Errorf("Failed to update status for VOD %s", entry.Vod.ID)
		}
	}

	log.Infof("Verification complete. OK: %d, Missing: %d, Hash mismatches: %d", ok, missing, mismatched)
}

func runDbDelete(cmd *cobra.Command, args []string) {
	videoID := args[0]

	db := openConfiguredDB()
	defer db.Close()

	if _, err := db.GetArchiveEntry(videoID); err != nil {
		log.Fatalf("No archive entry found for VOD %s", videoID)
	}
	if err := db.Delete(database.ArchiveKey(videoID)); err != nil {
		log.WithError(err).Fatalf("Failed to delete archive entry for VOD %s", videoID)
	}
	log.Infof("Deleted archive entry for VOD %s", videoID)
}
