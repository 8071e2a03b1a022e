package models

import (
	"net/url"
	"strconv"
	"time"
)

type (
	Config struct {
		// Connection/Auth
		ClientID     string `toml:"ClientID"`
		ClientSecret string `toml:"ClientSecret"`

		// Paths
		SavePath       string `toml:"SavePath"`
		DatabasePath   string `toml:"DatabasePath"`
		BleveIndexPath string `toml:"BleveIndexPath"`

		// Listing behavior
		Filter   string `toml:"Filter"`   // all, archive, highlight, upload, clip
		Limit    int    `toml:"Limit"`    // videos per API page (1-100)
		MaxPages int    `toml:"MaxPages"` // 0 = no limit

		// Downloader behavior
		ChatLogs            bool `toml:"ChatLogs"` // also fetch chat transcripts
		SkipConfirmation    bool `toml:"SkipConfirmation"`
		ApiDelayMs          int  `toml:"ApiDelayMs"`
		ApiClientTimeoutSec int  `toml:"ApiClientTimeoutSec"`

		// Other
		LogApiRequests bool `toml:"LogApiRequests"`
	}

	// VodKind distinguishes the content types a channel can expose.
	VodKind string

	// VodEntry is one downloadable item listed for a channel. Fields are fixed
	// once listed; only Downloaded changes, when its download task completes.
	VodEntry struct {
		ID        string    `json:"id"`
		Title     string    `json:"title"`
		Channel   string    `json:"channel"`
		Kind      VodKind   `json:"kind"`
		URL       string    `json:"url"`
		CreatedAt time.Time `json:"createdAt"`
		Duration  string    `json:"duration"` // Twitch notation, e.g. "1h2m3s"
		ViewCount int       `json:"viewCount"`

		Downloaded bool `json:"downloaded"`
	}

	// ListFilter narrows a channel listing.
	ListFilter struct {
		Kind  VodKind
		After time.Time // zero = unbounded
		Until time.Time // zero = unbounded
	}

	// --- Helix API response structures ---

	TokenResponse struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		TokenType   string `json:"token_type"`
	}

	HelixUser struct {
		ID          string `json:"id"`
		Login       string `json:"login"`
		DisplayName string `json:"display_name"`
	}

	HelixUsersResponse struct {
		Data []HelixUser `json:"data"`
	}

	HelixVideo struct {
		ID        string `json:"id"`
		UserID    string `json:"user_id"`
		UserName  string `json:"user_name"`
		Title     string `json:"title"`
		CreatedAt string `json:"created_at"`
		URL       string `json:"url"`
		Viewable  string `json:"viewable"`
		ViewCount int    `json:"view_count"`
		Type      string `json:"type"` // archive, highlight, upload
		Duration  string `json:"duration"`
	}

	HelixVideosResponse struct {
		Data       []HelixVideo    `json:"data"`
		Pagination HelixPagination `json:"pagination"`
	}

	HelixClip struct {
		ID              string  `json:"id"`
		URL             string  `json:"url"`
		BroadcasterName string  `json:"broadcaster_name"`
		Title           string  `json:"title"`
		ViewCount       int     `json:"view_count"`
		CreatedAt       string  `json:"created_at"`
		Duration        float64 `json:"duration"` // seconds
	}

	HelixClipsResponse struct {
		Data       []HelixClip     `json:"data"`
		Pagination HelixPagination `json:"pagination"`
	}

	HelixPagination struct {
		Cursor string `json:"cursor"`
	}

	// HelixComment is a single chat message attached to a VOD.
	HelixComment struct {
		Commenter            HelixCommenter   `json:"commenter"`
		Message              HelixChatMessage `json:"message"`
		ContentOffsetSeconds float64          `json:"content_offset_seconds"`
	}

	HelixCommenter struct {
		DisplayName string `json:"display_name"`
	}

	HelixChatMessage struct {
		Body string `json:"body"`
	}

	HelixCommentsResponse struct {
		Data       []HelixComment  `json:"data"`
		Pagination HelixPagination `json:"pagination"`
	}

	// FileHashes holds the digests computed for an archived media file.
	FileHashes struct {
		SHA256 string `json:"SHA256,omitempty"`
		BLAKE3 string `json:"BLAKE3,omitempty"`
	}

	// ArchiveEntry is the database record for one archived VOD.
	ArchiveEntry struct {
		Vod          VodEntry   `json:"vod"`
		MediaFile    string     `json:"mediaFile"`
		ChatFiles    []string   `json:"chatFiles,omitempty"`
		Hashes       FileHashes `json:"hashes"`
		Timestamp    int64      `json:"timestamp"`
		Status       string     `json:"status"`
		ErrorDetails string     `json:"errorDetails,omitempty"`
	}
)

const (
	KindAll       VodKind = "all"
	KindBroadcast VodKind = "archive"
	KindHighlight VodKind = "highlight"
	KindUpload    VodKind = "upload"
	KindClip      VodKind = "clip"
)

// Database status constants
const (
	StatusPending    = "Pending"
	StatusDownloaded = "Downloaded"
	StatusError      = "Error"
)

const HelixBaseUrl = "https://api.twitch.tv/helix"

// ValidKind reports whether s names a known content kind.
func ValidKind(s string) bool {
	switch VodKind(s) {
	case KindAll, KindBroadcast, KindHighlight, KindUpload, KindClip:
		return true
	}
	return false
}

// ConstructVideosUrl builds the path and query for one page of a channel's
// /videos listing. The caller prefixes the API host.
func ConstructVideosUrl(userID string, kind VodKind, limit int, cursor string) string {
	base := "/videos"
	values := url.Values{}
	values.Set("user_id", userID)

	// "clip" is served by a different endpoint; "all" is the API default.
	if kind != "" && kind != KindAll && kind != KindClip {
		values.Set("type", string(kind))
	}

	if limit > 0 && limit <= 100 {
		values.Set("first", strconv.Itoa(limit))
	}

	if cursor != "" {
		values.Set("after", cursor)
	}

	return base + "?" + values.Encode()
}

// ConstructClipsUrl builds the path and query for a /clips listing page, with
// an optional time window.
func ConstructClipsUrl(userID string, filter ListFilter, limit int, cursor string) string {
	base := "/clips"
	values := url.Values{}
	values.Set("broadcaster_id", userID)

	if limit > 0 && limit <= 100 {
		values.Set("first", strconv.Itoa(limit))
	}

	if !filter.After.IsZero() {
		values.Set("started_at", filter.After.UTC().Format(time.RFC3339))
	}
	if !filter.Until.IsZero() {
		values.Set("ended_at", filter.Until.UTC().Format(time.RFC3339))
	}

	if cursor != "" {
		values.Set("after", cursor)
	}

	return base + "?" + values.Encode()
}

// InWindow reports whether the entry's creation time falls inside the filter's
// time range. The /videos endpoint has no server-side window, so listings are
// trimmed client-side with this.
func (f ListFilter) InWindow(e VodEntry) bool {
	if !f.After.IsZero() && e.CreatedAt.Before(f.After) {
		return false
	}
	if !f.Until.IsZero() && e.CreatedAt.After(f.Until) {
		return false
	}
	return true
}
