package database

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go-twitch-archive/internal/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "archive_db"))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestPutGetRoundTrip(t *testing.T) {
	db := openTestDB(t)

	key := []byte("some_key")
	value := []byte("some value worth compressing compressing compressing")

	if err := db.Put(key, value); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	if !db.Has(key) {
		t.Error("Has = false after Put")
	}

	got, err := db.Get(key)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if string(got) != string(value) {
		t.Errorf("Get = %q, want %q", got, value)
	}
}

func TestGetMissingKey(t *testing.T) {
	db := openTestDB(t)

	_, err := db.Get([]byte("missing"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get on missing key returned %v, want ErrNotFound", err)
	}
}

func TestArchiveEntryRoundTrip(t *testing.T) {
	db := openTestDB(t)

	entry := models.ArchiveEntry{
		Vod: models.VodEntry{
			ID:        "123456789",
			Title:     "Ranked grind",
			Channel:   "somestreamer",
			Kind:      models.KindBroadcast,
			URL:       "https://www.twitch.tv/videos/123456789",
			CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
			Duration:  "2h15m0s",
		},
		MediaFile: "/data/twitch/somestreamer/ranked_grind.mp4",
		Status:    models.StatusDownloaded,
		Timestamp: time.Now().Unix(),
	}

	if err := db.PutArchiveEntry(entry); err != nil {
		t.Fatalf("PutArchiveEntry returned error: %v", err)
	}

	got, err := db.GetArchiveEntry("123456789")
	if err != nil {
		t.Fatalf("GetArchiveEntry returned error: %v", err)
	}
	if got.Vod.Title != entry.Vod.Title || got.MediaFile != entry.MediaFile {
		t.Errorf("GetArchiveEntry = %+v, want %+v", got, entry)
	}

	if !db.IsArchived("123456789") {
		t.Error("IsArchived = false for a Downloaded entry")
	}
	if db.IsArchived("000") {
		t.Error("IsArchived = true for an unknown video")
	}
}

func TestPutArchiveEntryEmptyID(t *testing.T) {
	db := openTestDB(t)

	if err := db.PutArchiveEntry(models.ArchiveEntry{}); err == nil {
		t.Fatal("PutArchiveEntry with empty VOD ID returned nil error")
	}
}

func TestListingCursorLifecycle(t *testing.T) {
	db := openTestDB(t)

	cursor, err := db.GetListingCursor("somestreamer", models.KindBroadcast)
	if err != nil {
		t.Fatalf("GetListingCursor returned error: %v", err)
	}
	if cursor != "" {
		t.Errorf("initial cursor = %q, want empty", cursor)
	}

	if err := db.SetListingCursor("somestreamer", models.KindBroadcast, "eyJiIjpudWxsfQ"); err != nil {
		t.Fatalf("SetListingCursor returned error: %v", err)
	}

	cursor, err = db.GetListingCursor("somestreamer", models.KindBroadcast)
	if err != nil {
		t.Fatalf("GetListingCursor returned error: %v", err)
	}
	if cursor != "eyJiIjpudWxsfQ" {
		t.Errorf("cursor = %q, want %q", cursor, "eyJiIjpudWxsfQ")
	}

	if err := db.DeleteListingCursor("somestreamer", models.KindBroadcast); err != nil {
		t.Fatalf("DeleteListingCursor returned error: %v", err)
	}
	// Deleting again must not error
	if err := db.DeleteListingCursor("somestreamer", models.KindBroadcast); err != nil {
		t.Fatalf("DeleteListingCursor on missing key returned error: %v", err)
	}
}

func TestFold(t *testing.T) {
	db := openTestDB(t)

	for _, id := range []string{"1", "2", "3"} {
		entry := models.ArchiveEntry{
			Vod:    models.VodEntry{ID: id, Title: "vod " + id},
			Status: models.StatusDownloaded,
		}
		if err := db.PutArchiveEntry(entry); err != nil {
			t.Fatalf("PutArchiveEntry(%s) returned error: %v", id, err)
		}
	}

	seen := 0
	err := db.Fold(func(key, value []byte) error {
		seen++
		return nil
	})
	if err != nil {
		t.Fatalf("Fold returned error: %v", err)
	}
	if seen != 3 {
		t.Errorf("Fold visited %d entries, want 3", seen)
	}
}
