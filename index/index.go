package index

import (
	"log"
	"os"
	"time"

	"github.com/blevesearch/bleve/v2"

	"go-twitch-archive/internal/models"
)

const defaultIndexPath = "twitcharchive.bleve"

// Item represents one archived VOD in the search index. All fields are
// indexed and searchable by their lowercase JSON tag names (e.g. query
// '+channel:somechannel' or '+kind:clip').
type Item struct {
	ID        string    `json:"id"`                  // VOD identifier
	Title     string    `json:"title"`               // Stream/clip title
	Channel   string    `json:"channel"`             // Broadcaster login
	Kind      string    `json:"kind"`                // archive/highlight/upload/clip
	MediaFile string    `json:"mediaFile,omitempty"` // Path to the downloaded media
	ChatFiles []string  `json:"chatFiles,omitempty"` // Paths to chat log files
	CreatedAt time.Time `json:"createdAt,omitempty"` // Original broadcast timestamp
	Duration  string    `json:"duration,omitempty"`  // Twitch notation, e.g. "1h2m3s"
	ViewCount float64   `json:"viewCount,omitempty"` // View count at listing time
	Status    string    `json:"status,omitempty"`    // Archive status

	// Torrent Information (populated by the 'torrent' command)
	TorrentPath string `json:"torrentPath,omitempty"` // Path to the generated .torrent file
	MagnetLink  string `json:"magnetLink,omitempty"`  // Magnet link for the torrent
}

// ItemFromArchive converts a database archive entry into an indexable Item.
func ItemFromArchive(entry models.ArchiveEntry) Item {
	return Item{
		ID:        entry.Vod.ID,
		Title:     entry.Vod.Title,
		Channel:   entry.Vod.Channel,
		Kind:      string(entry.Vod.Kind),
		MediaFile: entry.MediaFile,
		ChatFiles: entry.ChatFiles,
		CreatedAt: entry.Vod.CreatedAt,
		Duration:  entry.Vod.Duration,
		ViewCount: float64(entry.Vod.ViewCount),
		Status:    entry.Status,
	}
}

// OpenOrCreateIndex opens an existing Bleve index or creates a new one if it doesn't exist.
func OpenOrCreateIndex(indexPath string) (bleve.Index, error) {
	if indexPath == "" {
		indexPath = defaultIndexPath
	}

	index, err := bleve.Open(indexPath)
	if err == bleve.ErrorIndexPathDoesNotExist {
		log.Printf("Creating new index at: %s", indexPath)
		mapping := bleve.NewIndexMapping()
		index, err = bleve.New(indexPath, mapping)
		if err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err // Other error opening index
	} else {
		log.Printf("Opened existing index at: %s", indexPath)
	}
	return index, nil
}

// IndexItem adds or updates an item in the Bleve index.
func IndexItem(index bleve.Index, item Item) error {
	return index.Index(item.ID, item)
}

// SearchIndex performs a search query against the index.
func SearchIndex(index bleve.Index, query string) (*bleve.SearchResult, error) {
	searchQuery := bleve.NewQueryStringQuery(query)
	searchRequest := bleve.NewSearchRequest(searchQuery)
	searchRequest.Fields = []string{"*"} // Request all stored fields
	searchResults, err := index.Search(searchRequest)
	if err != nil {
		return nil, err
	}
	return searchResults, nil
}

// DeleteIndex removes the index directory. Use with caution!
func DeleteIndex(indexPath string) error {
	if indexPath == "" {
		indexPath = defaultIndexPath
	}
	log.Printf("Attempting to delete index at: %s", indexPath)
	return os.RemoveAll(indexPath)
}
