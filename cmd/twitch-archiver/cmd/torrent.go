package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-twitch-archive/internal/models"
)

var (
	torrentVideoIDs     []string
	announceURLs        []string
	torrentOutputDir    string
	overwriteTorrents   bool
	generateMagnetLinks bool
)

// torrentCmd represents the torrent command
var torrentCmd = &cobra.Command{
	Use:   "torrent",
	Short: "Generate .torrent files for archived VODs",
	Long: `Generates BitTorrent metainfo (.torrent) files for VODs previously archived
with the 'download' command. Requires access to the archive database and the
downloaded files themselves. You must specify tracker announce URLs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(announceURLs) == 0 {
			return errors.New("at least one --announce URL is required")
		}

		db := openConfiguredDB()
		defer db.Close()

		idSet := make(map[string]struct{})
		for _, id := range torrentVideoIDs {
			idSet[id] = struct{}{}
		}

		log.Info("Scanning database for archive entries...")
		var targets []models.ArchiveEntry
		errFold := foldArchiveEntries(db, func(entry models.ArchiveEntry) error {
			if entry.MediaFile == "" || entry.Status != models.StatusDownloaded {
				return nil
			}
			if len(idSet) > 0 {
				if _, exists := idSet[entry.Vod.ID]; !exists {
					return nil
				}
			}
			targets = append(targets, entry)
			return nil
		})
		if errFold != nil {
			log.WithError(errFold).Error("Error scanning database")
			return fmt.Errorf("error scanning database: %w", errFold)
		}

		if len(targets) == 0 {
			if len(torrentVideoIDs) > 0 {
				log.Warnf("No archived VODs found matching IDs: %v", torrentVideoIDs)
			} else {
				log.Info("No archive entries found in the database.")
			}
			return nil
		}

		log.Infof("Generating torrents for %d archived VODs...", len(targets))
		successCount, failCount := 0, 0
		for _, entry := range targets {
			fields := log.Fields{"vod": entry.Vod.ID, "file": entry.MediaFile}
			if err := generateTorrentFile(entry.MediaFile, announceURLs, torrentOutputDir, overwriteTorrents, generateMagnetLinks); err != nil {
				log.WithFields(fields).WithError(err).Error("Failed to generate torrent")
				failCount++
			} else {
				log.WithFields(fields).Info("Generated torrent")
				successCount++
			}
		}

		log.Infof("Torrent generation complete. Success: %d, Failed: %d", successCount, failCount)
		if failCount > 0 {
			return fmt.Errorf("%d torrents failed to generate", failCount)
		}
		return nil
	},
}

// generateTorrentFile creates a .torrent file for the given media file.
// It can optionally also create a text file containing the magnet link.
func generateTorrentFile(sourcePath string, trackers []string, outputDir string, overwrite bool, generateMagnet bool) error {
	stat, err := os.Stat(sourcePath)
	if os.IsNotExist(err) {
		log.WithField("path", sourcePath).Error("Source file not found for torrent generation")
		return fmt.Errorf("source file does not exist: %s", sourcePath)
	} else if err != nil {
		return fmt.Errorf("error stating source file %s: %w", sourcePath, err)
	}

	torrentFileName := fmt.Sprintf("%s.torrent", filepath.Base(sourcePath))
	var outPath string
	if outputDir != "" {
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return fmt.Errorf("error creating output directory %s: %w", outputDir, err)
		}
		outPath = filepath.Join(outputDir, torrentFileName)
	} else {
		// Place the torrent file alongside the media file
		outPath = filepath.Join(filepath.Dir(sourcePath), torrentFileName)
	}

	if !overwrite {
		if _, err := os.Stat(outPath); err == nil {
			log.WithField("path", outPath).Info("Skipping existing torrent file (use --overwrite to replace)")
			return nil
		} else if !os.IsNotExist(err) {
			log.WithError(err).WithField("path", outPath).Warn("Could not check status of potential existing torrent file, attempting to overwrite")
		}
	} else {
		if _, err := os.Stat(outPath); err == nil {
			log.WithField("path", outPath).Warn("Overwriting existing torrent file")
		}
	}

	mi := metainfo.MetaInfo{
		AnnounceList: make([][]string, len(trackers)),
	}
	for i, tracker := range trackers {
		mi.AnnounceList[i] = []string{tracker}
	}
	if len(trackers) > 0 {
		mi.Announce = trackers[0]
	}

	mi.CreatedBy = "twitch-archiver"

	const pieceLength = 512 * 1024
	info := metainfo.Info{PieceLength: pieceLength}

	log.WithField("file", sourcePath).Debug("Building torrent info...")
	err = info.BuildFromFilePath(sourcePath)
	if err != nil {
		return fmt.Errorf("error building torrent info from %s: %w", sourcePath, err)
	}
	mi.InfoBytes, err = bencode.Marshal(info)
	if err != nil {
		return fmt.Errorf("error marshaling torrent info: %w", err)
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("error creating torrent file %s: %w", outPath, err)
	}
	defer f.Close()

	if err := mi.Write(f); err != nil {
		return fmt.Errorf("error writing torrent file %s: %w", outPath, err)
	}

	log.WithField("path", outPath).Info("Successfully generated torrent file")

	if generateMagnet {
		infoHash := mi.HashInfoBytes()
		magnetParts := []string{
			fmt.Sprintf("magnet:?xt=urn:btih:%s", infoHash.HexString()),
			fmt.Sprintf("dn=%s", url.QueryEscape(stat.Name())),
		}
		for _, tracker := range trackers {
			magnetParts = append(magnetParts, fmt.Sprintf("tr=%s", url.QueryEscape(tracker)))
		}
		magnetURI := strings.Join(magnetParts, "&")
		magnetFileName := fmt.Sprintf("%s-magnet.txt", strings.TrimSuffix(filepath.Base(outPath), filepath.Ext(outPath)))
		magnetOutPath := filepath.Join(filepath.Dir(outPath), magnetFileName)

		if err := writeMagnetFile(magnetOutPath, magnetURI); err != nil {
			// Log error but don't fail the whole torrent generation just for the magnet link
			log.WithError(err).WithField("path", magnetOutPath).Error("Failed to write magnet link file")
		} else {
			log.WithField("path", magnetOutPath).Info("Successfully generated magnet link file")
		}
	}

	return nil
}

// writeMagnetFile writes the magnet URI string to the specified file path.
func writeMagnetFile(filePath string, magnetURI string) error {
	f, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("error creating magnet file %s: %w", filePath, err)
	}
	defer f.Close()

	_, err = f.WriteString(magnetURI)
	if err != nil {
		return fmt.Errorf("error writing magnet file %s: %w", filePath, err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(torrentCmd)

	torrentCmd.Flags().StringSliceVar(&announceURLs, "announce", []string{}, "Tracker announce URL (repeatable)")
	torrentCmd.Flags().StringSliceVar(&torrentVideoIDs, "video-id", []string{}, "Specific video ID(s) to generate torrents for (comma-separated or repeated). Default: all archived VODs.")
	torrentCmd.Flags().StringVarP(&torrentOutputDir, "output-dir", "o", "", "Directory to save generated .torrent files (default: same directory as the media file)")
	torrentCmd.Flags().BoolVarP(&overwriteTorrents, "overwrite", "f", false, "Overwrite existing .torrent files")
	torrentCmd.Flags().BoolVar(&generateMagnetLinks, "magnet-links", false, "Generate a .txt file containing the magnet link alongside each .torrent file")
}
