package cmd

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-twitch-archive/index"
)

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Search the index of archived VODs",
	Long: `Searches the Bleve index built during downloads. The query syntax supports
field matches such as '+channel:somechannel' or '+kind:clip' alongside free
text matched against titles.`,
	Args: cobra.ExactArgs(1),
	Run:  runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	query := args[0]
	indexPath := globalConfig.BleveIndexPath
	if indexPath == "" {
		log.Fatal("BleveIndexPath is not set in the configuration.")
	}

	log.Infof("Opening Bleve index at: %s", indexPath)
	// Use Open instead of OpenOrCreateIndex to avoid creating an index during search
	bleveIndex, err := bleve.Open(indexPath)
	if err != nil {
		if err == bleve.ErrorIndexPathDoesNotExist {
			log.Fatalf("Bleve index not found at %s. Run the download command first to create it.", indexPath)
		}
		log.Fatalf("Failed to open Bleve index at %s: %v", indexPath, err)
	}
	defer func() {
		if err := bleveIndex.Close(); err != nil {
			log.Errorf("Error closing Bleve index: %v", err)
		}
	}()

	searchResults, err := index.SearchIndex(bleveIndex, query)
	if err != nil {
		log.Fatalf("Error performing search: %v", err)
	}

	log.Infof("Search finished. Hits: %d, Total: %d, Took: %s",
		len(searchResults.Hits),
		searchResults.Total,
		searchResults.Took)

	if searchResults.Total > 0 {
		fmt.Println("--- Search Results ---")
		for i, hit := range searchResults.Hits {
			fmt.Printf("[%d] ID: %s (Score: %.2f)\n", i+1, hit.ID, hit.Score)
			for field, value := range hit.Fields {
				fmt.Printf("  %s: %v\n", field, value)
			}
			fmt.Println("---")
		}
	} else {
		fmt.Println("No results found matching your query.")
	}
}
