package cmd

import (
	"time"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"

	"go-twitch-archive/index"
	"go-twitch-archive/internal/chat"
	"go-twitch-archive/internal/database"
	"go-twitch-archive/internal/downloader"
	"go-twitch-archive/internal/helpers"
	"go-twitch-archive/internal/models"
	"go-twitch-archive/internal/queue"
)

// Progress weighting when a task also fetches chat: the media transfer and
// the chat retrieval share the 0..1 range.
const mediaProgressShare = 0.85

// archivePipeline is the downloader collaborator the queue manager drives.
// Each task downloads the VOD's media, optionally its chat replay, and
// returns the produced file paths.
type archivePipeline struct {
	media *downloader.Downloader
	chat  *chat.Retriever
}

func (p *archivePipeline) Download(vod models.VodEntry, destDir string, chatLog bool, onProgress downloader.ProgressFunc, gate *downloader.Gate) ([]string, error) {
	mediaProgress := onProgress
	if chatLog && onProgress != nil {
		mediaProgress = func(f float64) {
			if f >= 0 {
				onProgress(f * mediaProgressShare)
			} else {
				onProgress(f)
			}
		}
	}

	mediaPath, err := p.media.DownloadFile(vod, destDir, mediaProgress, gate)
	if err != nil {
		return nil, err
	}
	files := []string{mediaPath}

	if chatLog {
		chatProgress := downloader.ProgressFunc(nil)
		if onProgress != nil {
			chatProgress = func(f float64) {
				if f >= 0 {
					onProgress(mediaProgressShare + f*(1-mediaProgressShare))
				} else {
					onProgress(f)
				}
			}
		}
		chatFiles, err := p.chat.FetchAndSave(vod, destDir, chatProgress, gate)
		if err != nil {
			// The media file is already on disk; surface the chat failure so
			// the task records it, a later run can retry the chat alone.
			return files, err
		}
		files = append(files, chatFiles...)
	}

	return files, nil
}

// makeArchiveRecorder returns the queue completion hook: hash the media file,
// persist an archive entry and index it for search.
func makeArchiveRecorder(db *database.DB, bleveIndex bleve.Index) queue.RecordFunc {
	return func(vod models.VodEntry, files []string) {
		entry := models.ArchiveEntry{
			Vod:       vod,
			Timestamp: time.Now().Unix(),
			Status:    models.StatusDownloaded,
		}
		if len(files) > 0 {
			entry.MediaFile = files[0]
			entry.ChatFiles = files[1:]

			hashes, err := helpers.HashFile(files[0])
			if err != nil {
				log.WithError(err).Warnf("Failed to hash %s, storing entry without hashes", files[0])
			} else {
				entry.Hashes = hashes
			}
		}

		if err := db.PutArchiveEntry(entry); err != nil {
			log.WithError(err).Errorf("Failed to record archive entry for VOD %s", vod.ID)
			return
		}
		log.Debugf("Recorded archive entry for VOD %s", vod.ID)

		if bleveIndex != nil {
			if err := index.IndexItem(bleveIndex, index.ItemFromArchive(entry)); err != nil {
				log.WithError(err).Warnf("Failed to index VOD %s for search", vod.ID)
			}
		}
	}
}
