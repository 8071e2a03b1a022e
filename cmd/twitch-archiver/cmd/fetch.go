package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go-twitch-archive/internal/database"
	"go-twitch-archive/internal/models"
)

// fetchCmd represents the fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch CHANNEL",
	Short: "List a channel's VODs, highlights, uploads and clips",
	Long: `Fetches the available content for a Twitch channel and prints it as a table.
Entries already present in the archive database are marked as downloaded.`,
	Args: cobra.ExactArgs(1),
	Run:  runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().String("filter", "", "Content kind: all, archive, highlight, upload, clip (overrides config)")
	fetchCmd.Flags().String("after", "", "Only content created after this date (YYYY-MM-DD)")
	fetchCmd.Flags().String("until", "", "Only content created before this date (YYYY-MM-DD)")
	fetchCmd.Flags().Int("limit", 0, "Entries per API page, 1-100 (overrides config)")
	fetchCmd.Flags().Int("max-pages", 0, "Maximum listing pages to fetch, 0 = no limit (overrides config)")
	fetchCmd.Flags().Bool("resume", false, "Continue a previously truncated listing from its saved cursor")

	viper.BindPFlag("fetch.filter", fetchCmd.Flags().Lookup("filter"))
	viper.BindPFlag("fetch.limit", fetchCmd.Flags().Lookup("limit"))
	viper.BindPFlag("fetch.max_pages", fetchCmd.Flags().Lookup("max-pages"))
}

// listingOptionsFromFlags merges the listing flags with the config defaults.
func listingOptionsFromFlags(cmd *cobra.Command) (models.ListFilter, int, int, error) {
	kindStr := globalConfig.Filter
	if cmd.Flags().Changed("filter") {
		kindStr, _ = cmd.Flags().GetString("filter")
	}
	if kindStr == "" {
		kindStr = string(models.KindAll)
	}
	if !models.ValidKind(kindStr) {
		return models.ListFilter{}, 0, 0, fmt.Errorf("invalid filter %q (want all, archive, highlight, upload or clip)", kindStr)
	}

	filter := models.ListFilter{Kind: models.VodKind(kindStr)}

	if afterStr, _ := cmd.Flags().GetString("after"); afterStr != "" {
		t, err := time.Parse("2006-01-02", afterStr)
		if err != nil {
			return models.ListFilter{}, 0, 0, fmt.Errorf("invalid --after date %q: %w", afterStr, err)
		}
		filter.After = t
	}
	if untilStr, _ := cmd.Flags().GetString("until"); untilStr != "" {
		t, err := time.Parse("2006-01-02", untilStr)
		if err != nil {
			return models.ListFilter{}, 0, 0, fmt.Errorf("invalid --until date %q: %w", untilStr, err)
		}
		// Include the whole day
		filter.Until = t.Add(24*time.Hour - time.Second)
	}

	limit := globalConfig.Limit
	if cmd.Flags().Changed("limit") {
		limit, _ = cmd.Flags().GetInt("limit")
	}
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	maxPages := globalConfig.MaxPages
	if cmd.Flags().Changed("max-pages") {
		maxPages, _ = cmd.Flags().GetInt("max-pages")
	}

	return filter, limit, maxPages, nil
}

func runFetch(cmd *cobra.Command, args []string) {
	channel := args[0]
	log.Infof("Fetching content listing for channel %s", channel)

	if globalConfig.ClientID == "" || globalConfig.ClientSecret == "" {
		log.Fatal("ClientID and ClientSecret must be set in the configuration.")
	}

	filter, limit, maxPages, err := listingOptionsFromFlags(cmd)
	if err != nil {
		log.Fatalf("%v", err)
	}

	resume, _ := cmd.Flags().GetBool("resume")

	// The database (when configured) supplies listing cursors and marks
	// entries already archived.
	var db *database.DB
	if globalConfig.DatabasePath != "" {
		db, err = database.Open(globalConfig.DatabasePath)
		if err != nil {
			log.WithError(err).Warnf("Could not open database at %s, skipping archive check", globalConfig.DatabasePath)
			db = nil
		} else {
			defer func() {
				if err := db.Close(); err != nil {
					log.WithError(err).Error("Error closing database")
				}
			}()
		}
	}

	client := createApiClient()
	entries, err := fetchChannelVods(client, db, channel, filter, limit, maxPages, resume)
	if err != nil {
		log.WithError(err).Fatal("Failed to list channel content")
	}

	if len(entries) == 0 {
		log.Info("No content found matching the given criteria.")
		return
	}

	archived := map[string]bool{}
	if db != nil {
		for _, e := range entries {
			archived[e.ID] = db.IsArchived(e.ID)
		}
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKind\tCreated\tDuration\tViews\tArchived\tTitle")
	fmt.Fprintln(tw, "--\t----\t-------\t--------\t-----\t--------\t-----")
	for _, e := range entries {
		mark := ""
		if archived[e.ID] {
			mark = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			e.ID, e.Kind, e.CreatedAt.Format("2006-01-02"), e.Duration, e.ViewCount, mark, e.Title)
	}
	if err := tw.Flush(); err != nil {
		log.WithError(err).Error("Error flushing table writer")
	}
	log.Infof("Listed %d entries for channel %s", len(entries), channel)
}
