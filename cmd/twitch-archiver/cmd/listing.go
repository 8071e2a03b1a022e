package cmd

import (
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"go-twitch-archive/internal/api"
	"go-twitch-archive/internal/database"
	"go-twitch-archive/internal/models"
)

// createApiClient builds the Helix client using the globally configured
// transport (which may include request logging).
func createApiClient() *api.Client {
	timeout := time.Duration(globalConfig.ApiClientTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if globalHttpTransport == nil {
		log.Error("Global HTTP transport not initialized, using default transport without logging.")
		globalHttpTransport = http.DefaultTransport
	}
	httpClient := &http.Client{
		Timeout:   timeout,
		Transport: globalHttpTransport,
	}
	return api.NewClient(globalConfig.ClientID, globalConfig.ClientSecret, httpClient)
}

// fetchChannelVods resolves the channel login and pages through its listings
// until exhausted or maxPages is reached. kind "all" combines the /videos
// types with the channel's clips.
//
// When db is non-nil, truncated listings persist their pagination cursor so a
// later run with resume=true continues where this one stopped; exhausted
// listings clear any saved cursor.
func fetchChannelVods(client *api.Client, db *database.DB, channel string, filter models.ListFilter, limit, maxPages int, resume bool) ([]models.VodEntry, error) {
	user, err := client.GetUserByLogin(channel)
	if err != nil {
		return nil, fmt.Errorf("resolving channel %q: %w", channel, err)
	}
	log.Infof("Resolved channel %s to user ID %s", user.Login, user.ID)

	delay := time.Duration(globalConfig.ApiDelayMs) * time.Millisecond

	var entries []models.VodEntry
	if filter.Kind != models.KindClip {
		videos, err := pageListing(db, user.Login, filter.Kind, maxPages, delay, resume, func(cursor string) ([]models.VodEntry, string, error) {
			return client.ListVideos(user.ID, user.Login, filter, limit, cursor)
		})
		if err != nil {
			return nil, err
		}
		entries = append(entries, videos...)
	}

	if filter.Kind == models.KindClip || filter.Kind == models.KindAll {
		clips, err := pageListing(db, user.Login, models.KindClip, maxPages, delay, resume, func(cursor string) ([]models.VodEntry, string, error) {
			return client.ListClips(user.ID, user.Login, filter, limit, cursor)
		})
		if err != nil {
			return nil, err
		}
		entries = append(entries, clips...)
	}

	return entries, nil
}

// pageListing walks one paginated endpoint to exhaustion, with a polite delay
// between pages.
func pageListing(db *database.DB, channel string, kind models.VodKind, maxPages int, delay time.Duration, resume bool, fetch func(cursor string) ([]models.VodEntry, string, error)) ([]models.VodEntry, error) {
	cursor := ""
	if resume && db != nil {
		saved, err := db.GetListingCursor(channel, kind)
		if err == nil && saved != "" {
			log.Infof("Resuming %s listing for %s from saved cursor", kind, channel)
			cursor = saved
		}
	}

	var entries []models.VodEntry
	page := 0

	for {
		pageEntries, nextCursor, err := fetch(cursor)
		if err != nil {
			return nil, fmt.Errorf("listing %s page %d: %w", kind, page+1, err)
		}
		entries = append(entries, pageEntries...)
		page++
		log.Debugf("Fetched %s page %d (%d entries, cursor=%q)", kind, page, len(pageEntries), nextCursor)

		if nextCursor == "" {
			if db != nil {
				if err := db.DeleteListingCursor(channel, kind); err != nil {
					log.WithError(err).Debugf("Could not clear listing cursor for %s/%s", channel, kind)
				}
			}
			break
		}
		if maxPages > 0 && page >= maxPages {
			log.Infof("Reached page limit (%d) for %s listing", maxPages, kind)
			if db != nil {
				if err := db.SetListingCursor(channel, kind, nextCursor); err != nil {
					log.WithError(err).Warnf("Could not persist listing cursor for %s/%s", channel, kind)
				}
			}
			break
		}
		cursor = nextCursor
		time.Sleep(delay)
	}

	return entries, nil
}
