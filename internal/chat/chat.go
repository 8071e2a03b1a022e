// Package chat retrieves a VOD's chat replay page by page and writes it to
// disk as raw JSON plus a readable transcript.
package chat

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go-twitch-archive/internal/downloader"
	"go-twitch-archive/internal/helpers"
	"go-twitch-archive/internal/models"

	log "github.com/sirupsen/logrus"
)

// pageDelay spaces out comment page requests to stay polite to the API.
const pageDelay = 250 * time.Millisecond

// CommentSource is the API capability the retriever needs: one page of chat
// comments per call, empty cursor meaning the first page.
type CommentSource interface {
	GetVideoComments(videoID string, cursor string) (models.HelixCommentsResponse, error)
}

// Retriever fetches full chat logs for VODs.
type Retriever struct {
	source CommentSource
	delay  time.Duration
}

// NewRetriever creates a Retriever over the given comment source.
func NewRetriever(source CommentSource) *Retriever {
	return &Retriever{source: source, delay: pageDelay}
}

// Filenames derives the chat log file names for a VOD:
// <date>_<title-slug>_<id>_chat.json and .txt.
func Filenames(vod models.VodEntry) (jsonName, textName string) {
	date := "unknown-date"
	if !vod.CreatedAt.IsZero() {
		date = vod.CreatedAt.UTC().Format("2006-01-02")
	}
	slug := helpers.ConvertToSlug(vod.Title)
	if slug == "" {
		slug = "untitled"
	}
	base := fmt.Sprintf("%s_%s_%s_chat", date, slug, vod.ID)
	return base + ".json", base + ".txt"
}

// Fetch downloads every page of the VOD's chat replay. Progress is derived
// from each page's last message offset against the VOD duration (a negative
// fraction is reported when the duration is unknown). The gate is consulted
// between pages, so pause and cancel take effect at page boundaries.
func (r *Retriever) Fetch(vod models.VodEntry, onProgress downloader.ProgressFunc, gate *downloader.Gate) ([]models.HelixComment, error) {
	var comments []models.HelixComment
	cursor := ""
	page := 0

	for {
		if gate != nil {
			if err := gate.Wait(); err != nil {
				return nil, err
			}
		}

		resp, err := r.source.GetVideoComments(vod.ID, cursor)
		if err != nil {
			return nil, fmt.Errorf("fetching chat page %d for VOD %s: %w", page, vod.ID, err)
		}
		comments = append(comments, resp.Data...)
		page++

		if onProgress != nil && len(resp.Data) > 0 {
			last := resp.Data[len(resp.Data)-1].ContentOffsetSeconds
			if total := helpers.ParseTwitchDuration(vod.Duration); total > 0 {
				fraction := last / float64(total)
				if fraction > 1.0 {
					fraction = 1.0
				}
				onProgress(fraction)
			} else {
				onProgress(-1)
			}
		}

		cursor = resp.Pagination.Cursor
		if cursor == "" {
			break
		}
		time.Sleep(r.delay)
	}

	log.Infof("Retrieved %d chat messages for VOD %s across %d pages", len(comments), vod.ID, page)
	if onProgress != nil {
		onProgress(1.0)
	}
	return comments, nil
}

// Log is the JSON document written beside the transcript: the VOD's identity
// plus every retrieved comment.
type Log struct {
	VideoID   string                `json:"videoId"`
	Title     string                `json:"title"`
	Channel   string                `json:"channel"`
	CreatedAt time.Time             `json:"createdAt"`
	Duration  string                `json:"duration"`
	Comments  []models.HelixComment `json:"comments"`
}

// Save writes the comments to destDir as a JSON chat log and as a plain-text
// transcript with [HH:MM:SS] user: message lines. Returns the paths written.
func Save(vod models.VodEntry, comments []models.HelixComment, destDir string) ([]string, error) {
	if !helpers.CheckAndMakeDir(destDir) {
		return nil, fmt.Errorf("creating chat log directory %s", destDir)
	}
	jsonName, textName := Filenames(vod)
	jsonPath := filepath.Join(destDir, jsonName)
	textPath := filepath.Join(destDir, textName)

	chatLog := Log{
		VideoID:   vod.ID,
		Title:     vod.Title,
		Channel:   vod.Channel,
		CreatedAt: vod.CreatedAt,
		Duration:  vod.Duration,
		Comments:  comments,
	}
	raw, err := json.MarshalIndent(chatLog, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding chat log for VOD %s: %w", vod.ID, err)
	}
	if err := os.WriteFile(jsonPath, raw, 0600); err != nil {
		return nil, fmt.Errorf("writing %s: %w", jsonPath, err)
	}

	var sb strings.Builder
	for _, c := range comments {
		sb.WriteString(fmt.Sprintf("[%s] %s: %s\n",
			helpers.FormatSeconds(c.ContentOffsetSeconds),
			c.Commenter.DisplayName,
			c.Message.Body))
	}
	if err := os.WriteFile(textPath, []byte(sb.String()), 0600); err != nil {
		return nil, fmt.Errorf("writing %s: %w", textPath, err)
	}

	log.Infof("Saved chat log for VOD %s to %s", vod.ID, jsonPath)
	return []string{jsonPath, textPath}, nil
}

// FetchAndSave is the convenience path used by the download pipeline.
func (r *Retriever) FetchAndSave(vod models.VodEntry, destDir string, onProgress downloader.ProgressFunc, gate *downloader.Gate) ([]string, error) {
	comments, err := r.Fetch(vod, onProgress, gate)
	if err != nil {
		return nil, err
	}
	return Save(vod, comments, destDir)
}
