package database

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go-twitch-archive/internal/models"

	"git.mills.io/prologic/bitcask"
	log "github.com/sirupsen/logrus" // Use logrus aliased as log
)

// ErrNotFound is returned when a key is not found in the database.
var ErrNotFound = errors.New("key not found")

// gzipMagicBytes are the first two bytes of a gzip file.
var gzipMagicBytes = []byte{0x1f, 0x8b}

// DB wraps the bitcask archive database and provides helper methods.
type DB struct {
	db           *bitcask.Bitcask
	sync.RWMutex // Embed mutex for concurrent access control
}

// Open initializes and returns a DB instance.
func Open(path string) (*DB, error) {
	// Ensure the directory exists
	dir := filepath.Dir(path)
	if dir != "." && dir != "/" { // Avoid trying to create root or current dir explicitly
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	dbInstance, err := bitcask.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bitcask database at %s: %w", path, err)
	}
	log.Infof("Database opened successfully at %s", path)
	return &DB{db: dbInstance}, nil
}

// Close safely closes the database connection.
func (d *DB) Close() error {
	log.Info("Closing database...")
	// Acquire write lock to ensure no operations are in progress during close
	d.Lock()
	defer d.Unlock()
	return d.db.Close()
}

// Has checks if a key exists in the database.
func (d *DB) Has(key []byte) bool {
	d.RLock()
	defer d.RUnlock()
	return d.db.Has(key)
}

// Get retrieves the value associated with a key and decompresses it if necessary.
func (d *DB) Get(key []byte) ([]byte, error) {
	d.RLock()
	value, err := d.db.Get(key)
	d.RUnlock()

	if err != nil {
		if errors.Is(err, bitcask.ErrKeyNotFound) {
			return nil, ErrNotFound // Return our specific package error
		}
		return nil, fmt.Errorf("error getting key %s: %w", string(key), err)
	}

	return decompressIfGzipped(value)
}

// Put compresses and stores a key-value pair in the database.
func (d *DB) Put(key []byte, value []byte) error {
	compressedValue, err := compressGzip(value, gzip.BestCompression)
	if err != nil {
		return fmt.Errorf("error compressing value for key %s: %w", string(key), err)
	}

	d.Lock()
	err = d.db.Put(key, compressedValue)
	d.Unlock()
	if err != nil {
		return fmt.Errorf("error putting compressed key %s: %w", string(key), err)
	}
	return nil
}

// Delete removes a key from the database.
func (d *DB) Delete(key []byte) error {
	d.Lock()
	err := d.db.Delete(key)
	d.Unlock()
	if err != nil {
		if errors.Is(err, bitcask.ErrKeyNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("error deleting key %s: %w", string(key), err)
	}
	return nil
}

// Fold iterates over all key-value pairs, decompresses the value,
// and calls the provided function.
func (d *DB) Fold(fn func(key []byte, value []byte) error) error {
	d.RLock()
	defer d.RUnlock()

	err := d.db.Fold(func(key []byte) error {
		// Important: keep the main read lock for the duration of Fold
		rawValue, err := d.db.Get(key)
		if err != nil {
			log.WithError(err).Warnf("Fold: Error getting value for key %s", string(key))
			return nil
		}

		value, err := decompressIfGzipped(rawValue)
		if err != nil {
			log.WithError(err).Warnf("Fold: Error decompressing value for key %s", string(key))
			return nil // Skip this key if decompression fails
		}

		return fn(key, value)
	})

	return err
}

// Keys returns a channel of all keys in the database.
// Read from the channel until it is closed.
// Ensure the database is not closed while iterating.
// Note: This acquires a read lock during iteration.
func (d *DB) Keys() <-chan []byte {
	d.RLock()
	keysChan := d.db.Keys()
	monitoredChan := make(chan []byte)

	go func() {
		defer d.RUnlock() // Ensure wrapper mutex unlock happens when this goroutine exits
		for key := range keysChan {
			monitoredChan <- key
		}
		close(monitoredChan)
	}()

	return monitoredChan
}

// --- Archive Entry Helpers ---

// ArchiveKey returns the database key for a VOD's archive record.
func ArchiveKey(videoID string) []byte {
	return []byte("v_" + videoID)
}

// PutArchiveEntry serializes and stores an archive record keyed by video ID.
func (d *DB) PutArchiveEntry(entry models.ArchiveEntry) error {
	if entry.Vod.ID == "" {
		return errors.New("cannot store archive entry: VOD ID is empty")
	}

	dataBytes, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("error marshalling archive entry for %s: %w", entry.Vod.ID, err)
	}

	log.Debugf("Storing archive entry with key %s", string(ArchiveKey(entry.Vod.ID)))
	return d.Put(ArchiveKey(entry.Vod.ID), dataBytes)
}

// GetArchiveEntry loads the archive record for a video ID.
func (d *DB) GetArchiveEntry(videoID string) (models.ArchiveEntry, error) {
	raw, err := d.Get(ArchiveKey(videoID))
	if err != nil {
		return models.ArchiveEntry{}, err
	}

	var entry models.ArchiveEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return models.ArchiveEntry{}, fmt.Errorf("error unmarshalling archive entry for %s: %w", videoID, err)
	}
	return entry, nil
}

// IsArchived reports whether a VOD has a Downloaded archive record.
func (d *DB) IsArchived(videoID string) bool {
	entry, err := d.GetArchiveEntry(videoID)
	if err != nil {
		return false
	}
	return entry.Status == models.StatusDownloaded
}

// --- Listing Cursor Helpers ---

func cursorKey(channel string, kind models.VodKind) []byte {
	return []byte("cursor_" + channel + "_" + string(kind))
}

// GetListingCursor retrieves the saved pagination cursor for a channel listing.
// An empty string means start from the beginning.
func (d *DB) GetListingCursor(channel string, kind models.VodKind) (string, error) {
	value, err := d.Get(cursorKey(channel, kind))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("error reading listing cursor for %s/%s: %w", channel, kind, err)
	}
	log.WithField("channel", channel).Debugf("Retrieved listing cursor: %s", string(value))
	return string(value), nil
}

// SetListingCursor saves the pagination cursor for a channel listing.
func (d *DB) SetListingCursor(channel string, kind models.VodKind, cursor string) error {
	if err := d.Put(cursorKey(channel, kind), []byte(cursor)); err != nil {
		return err // Put already wraps error
	}
	log.WithField("channel", channel).Debugf("Set listing cursor to: %s", cursor)
	return nil
}

// DeleteListingCursor removes the saved cursor for a channel listing.
func (d *DB) DeleteListingCursor(channel string, kind models.VodKind) error {
	err := d.Delete(cursorKey(channel, kind))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("error deleting listing cursor for %s/%s: %w", channel, kind, err)
	}
	log.WithField("channel", channel).Info("Deleted listing cursor")
	return nil // Treat missing key as success
}

// --- Compression Helpers ---

// decompressIfGzipped decompresses the value if it is gzipped.
func decompressIfGzipped(value []byte) ([]byte, error) {
	if bytes.HasPrefix(value, gzipMagicBytes) {
		bReader := bytes.NewReader(value)
		gReader, err := gzip.NewReader(bReader)
		if err != nil {
			log.WithError(err).Warnf("Error creating gzip reader for value, returning raw data.")
			return value, nil // Return raw data on decompression error
		}
		defer gReader.Close()

		decompressedValue, err := io.ReadAll(gReader)
		if err != nil {
			log.WithError(err).Warnf("Error decompressing value, returning raw data.")
			return value, nil // Return raw data on decompression error
		}
		return decompressedValue, nil
	}

	// If no gzip header, return the value as is
	return value, nil
}

// compressGzip compresses the value using gzip with the specified compression level.
func compressGzip(value []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	gWriter, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("error creating gzip writer for value: %w", err)
	}
	_, err = gWriter.Write(value)
	if err != nil {
		_ = gWriter.Close() // Attempt to close writer even on error
		return nil, fmt.Errorf("error writing compressed data for value: %w", err)
	}
	err = gWriter.Close() // Close *must* be called to flush buffers
	if err != nil {
		return nil, fmt.Errorf("error closing gzip writer for value: %w", err)
	}

	return buf.Bytes(), nil
}
