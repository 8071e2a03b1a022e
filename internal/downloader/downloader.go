package downloader

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go-twitch-archive/internal/helpers"
	"go-twitch-archive/internal/models"

	log "github.com/sirupsen/logrus"
)

// Custom Downloader Errors
var (
	ErrHttpStatus  = errors.New("unexpected HTTP status code")
	ErrFileSystem  = errors.New("filesystem error") // Covers create, remove, rename
	ErrHttpRequest = errors.New("HTTP request creation/execution error")
)

// chunkSize is how much is copied between gate checks and progress reports.
const chunkSize = 128 * 1024

// ProgressFunc receives the transferred fraction, 0.0 through 1.0.
// A negative value means the total size is unknown.
type ProgressFunc func(fraction float64)

// Downloader fetches a VOD's media over HTTP with progress reporting and a
// pause/cancel gate.
type Downloader struct {
	client *http.Client
}

// NewDownloader creates a new Downloader instance.
func NewDownloader(client *http.Client) *Downloader {
	if client == nil {
		// Media transfers can be long; no overall timeout by default
		client = &http.Client{
			Timeout: 0,
		}
	}
	return &Downloader{client: client}
}

// MediaFilename derives the archive filename for a VOD:
// <date>_<title-slug>_<id>.mp4.
func MediaFilename(vod models.VodEntry) string {
	date := "unknown-date"
	if !vod.CreatedAt.IsZero() {
		date = vod.CreatedAt.UTC().Format("2006-01-02")
	}
	slug := helpers.ConvertToSlug(vod.Title)
	if slug == "" {
		slug = "untitled"
	}
	return fmt.Sprintf("%s_%s_%s.mp4", date, slug, vod.ID)
}

// DownloadFile fetches the VOD's source URL into destDir, writing through a
// temporary file that is renamed on success. Progress is reported after each
// chunk, and the gate is consulted between chunks, so pause and cancel take
// effect at chunk boundaries.
// Returns the final filepath used (or empty string on failure) and an error
// if one occurred.
func (d *Downloader) DownloadFile(vod models.VodEntry, destDir string, onProgress ProgressFunc, gate *Gate) (string, error) {
	finalFilepath := filepath.Join(destDir, MediaFilename(vod))

	// A file already at the final path means a previous run archived this VOD
	if info, err := os.Stat(finalFilepath); err == nil && info.Size() > 0 {
		log.Infof("Found existing file %s. Skipping download.", finalFilepath)
		if onProgress != nil {
			onProgress(1.0)
		}
		return finalFilepath, nil
	}

	if !helpers.CheckAndMakeDir(destDir) {
		return "", fmt.Errorf("%w: failed to create target directory %s", ErrFileSystem, destDir)
	}

	tempFile, err := os.CreateTemp(destDir, filepath.Base(finalFilepath)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("%w: creating temporary file for %s: %w", ErrFileSystem, finalFilepath, err)
	}
	// Remove the temp file on any failure exit
	shouldCleanupTemp := true
	defer func() {
		if shouldCleanupTemp {
			log.Debugf("Cleaning up temporary file: %s", tempFile.Name())
			if removeErr := os.Remove(tempFile.Name()); removeErr != nil && !os.IsNotExist(removeErr) {
				log.WithError(removeErr).Warnf("Failed to remove temporary file %s", tempFile.Name())
			}
		}
	}()

	log.Infof("Attempting to download from URL: %s", vod.URL)

	req, err := http.NewRequest("GET", vod.URL, nil)
	if err != nil {
		_ = tempFile.Close()
		return "", fmt.Errorf("%w: creating download request for %s: %v", ErrHttpRequest, vod.URL, err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		_ = tempFile.Close()
		log.WithError(err).Errorf("Error performing download request from %s", vod.URL)
		return "", fmt.Errorf("%w: performing request for %s: %v", ErrHttpRequest, vod.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_ = tempFile.Close()
		log.Errorf("Error downloading file: Received status code %d from %s", resp.StatusCode, vod.URL)
		return "", fmt.Errorf("%w: received status %d from %s", ErrHttpStatus, resp.StatusCode, vod.URL)
	}

	totalSize := resp.ContentLength // -1 when the server doesn't say

	counter := &helpers.CounterWriter{
		Writer: tempFile,
		Total:  0,
	}

	log.Infof("Downloading to %s (Target: %s, Size: %s)...",
		tempFile.Name(), finalFilepath, sizeLabel(totalSize))

	start := time.Now()
	copyErr := d.copyWithGate(counter, resp.Body, totalSize, onProgress, gate)
	if closeErr := tempFile.Close(); closeErr != nil && copyErr == nil {
		copyErr = fmt.Errorf("%w: closing temp file %s: %v", ErrFileSystem, tempFile.Name(), closeErr)
	}
	if copyErr != nil {
		if errors.Is(copyErr, ErrCancelled) {
			log.Infof("Download of %s cancelled after %s", vod.ID, helpers.BytesToSize(counter.Total))
			return "", copyErr
		}
		log.WithError(copyErr).Errorf("Error writing temporary file %s", tempFile.Name())
		return "", copyErr
	}
	log.Infof("Finished writing %s (%s in %v).", tempFile.Name(), helpers.BytesToSize(counter.Total), time.Since(start).Round(time.Second))

	if err := os.Rename(tempFile.Name(), finalFilepath); err != nil {
		log.WithError(err).Errorf("Error renaming temporary file %s to %s", tempFile.Name(), finalFilepath)
		return "", fmt.Errorf("%w: renaming temporary file %s to %s: %v", ErrFileSystem, tempFile.Name(), finalFilepath, err)
	}

	// Rename succeeded; the temp file is now the final file
	shouldCleanupTemp = false

	if onProgress != nil {
		onProgress(1.0)
	}
	log.Infof("Successfully downloaded %s", finalFilepath)
	return finalFilepath, nil
}

// copyWithGate copies src to dst in chunks, consulting the gate and reporting
// progress between chunks.
func (d *Downloader) copyWithGate(dst *helpers.CounterWriter, src io.Reader, totalSize int64, onProgress ProgressFunc, gate *Gate) error {
	buf := make([]byte, chunkSize)
	for {
		if gate != nil {
			if err := gate.Wait(); err != nil {
				return err
			}
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				return fmt.Errorf("%w: writing chunk: %v", ErrFileSystem, writeErr)
			}
			if onProgress != nil {
				if totalSize > 0 {
					onProgress(float64(dst.Total) / float64(totalSize))
				} else {
					onProgress(-1)
				}
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("%w: reading response body: %v", ErrHttpRequest, readErr)
		}
	}
}

func sizeLabel(contentLength int64) string {
	if contentLength < 0 {
		return "unknown"
	}
	return helpers.BytesToSize(uint64(contentLength))
}
