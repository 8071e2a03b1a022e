package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go-twitch-archive/internal/models"

	log "github.com/sirupsen/logrus"
)

// Custom Error Types
var (
	ErrRateLimited       = errors.New("API rate limit exceeded")
	ErrUnauthorized      = errors.New("API request unauthorized (check credentials)")
	ErrChannelNotFound   = errors.New("channel not found")
	ErrSourceUnavailable = errors.New("VOD source unavailable")
)

const twitchOAuthTokenUrl = "https://id.twitch.tv/oauth2/token"

// Client talks to the Twitch Helix API. It lists a channel's videos and clips
// and pages through a VOD's chat history; downloading media is the
// downloader package's job.
type Client struct {
	ClientID     string
	ClientSecret string
	HttpClient   *http.Client

	// BaseURL and AuthURL default to the public Twitch endpoints; tests
	// point them at a local server.
	BaseURL string
	AuthURL string

	accessToken string
	tokenExpiry time.Time
}

// NewClient creates a new API client.
func NewClient(clientID, clientSecret string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		HttpClient:   httpClient,
		BaseURL:      models.HelixBaseUrl,
		AuthURL:      twitchOAuthTokenUrl,
	}
}

// authenticate fetches an app access token via the client-credentials grant.
// A cached token is reused until shortly before its expiry.
func (c *Client) authenticate() error {
	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return nil
	}

	values := url.Values{}
	values.Set("client_id", c.ClientID)
	values.Set("client_secret", c.ClientSecret)
	values.Set("grant_type", "client_credentials")

	resp, err := c.HttpClient.Post(c.AuthURL+"?"+values.Encode(), "application/json", nil)
	if err != nil {
		log.WithError(err).Error("Error requesting app access token")
		return fmt.Errorf("%w: token request: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Errorf("Token request failed with status %d", resp.StatusCode)
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return ErrUnauthorized
		}
		return fmt.Errorf("%w: token request returned status %d", ErrSourceUnavailable, resp.StatusCode)
	}

	var token models.TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return fmt.Errorf("error decoding token response: %w", err)
	}

	c.accessToken = token.AccessToken
	// Refresh a little early rather than racing the actual expiry
	c.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn-100) * time.Second)
	log.Debug("Authenticated with Twitch API")
	return nil
}

// doGet performs an authenticated GET with retries and decodes the JSON body
// into out. Rate limits and 5xx responses are retried with backoff; auth and
// not-found errors are surfaced immediately.
func (c *Client) doGet(reqURL string, out interface{}) error {
	if err := c.authenticate(); err != nil {
		return err
	}

	req, err := http.NewRequest("GET", reqURL, nil)
	if err != nil {
		log.WithError(err).Errorf("Error creating request for %s", reqURL)
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Client-ID", c.ClientID)
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	var resp *http.Response
	var lastErr error
	maxRetries := 3

	for attempt := 0; attempt < maxRetries; attempt++ {
		resp, err = c.HttpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: http request failed (attempt %d/%d): %v", ErrSourceUnavailable, attempt+1, maxRetries, err)
			if attempt < maxRetries-1 {
				log.WithError(err).Warnf("Retrying (%d/%d)...", attempt+1, maxRetries)
				time.Sleep(time.Duration(attempt+1) * 2 * time.Second)
				continue
			}
			break // Max retries reached on HTTP error
		}

		switch resp.StatusCode {
		case http.StatusOK:
			lastErr = nil
			goto ProcessResponse
		case http.StatusTooManyRequests:
			lastErr = ErrRateLimited
		case http.StatusUnauthorized, http.StatusForbidden:
			resp.Body.Close()
			return ErrUnauthorized
		case http.StatusNotFound:
			resp.Body.Close()
			return ErrChannelNotFound
		default:
			if resp.StatusCode >= 500 {
				lastErr = fmt.Errorf("%w (status code %d)", ErrSourceUnavailable, resp.StatusCode)
			} else {
				// Other client-side errors (4xx) are not retryable
				bodyClose(resp)
				return fmt.Errorf("API request failed with status %d", resp.StatusCode)
			}
		}

		// Retryable error (rate limit or 5xx)
		bodyClose(resp)
		if attempt < maxRetries-1 {
			var sleepDuration time.Duration
			if resp.StatusCode == http.StatusTooManyRequests {
				// Longer backoff for rate limits
				sleepDuration = time.Duration(attempt+1) * 5 * time.Second
				log.WithError(lastErr).Warnf("Rate limited. Retrying (%d/%d) after %s...", attempt+1, maxRetries, sleepDuration)
			} else {
				sleepDuration = time.Duration(attempt+1) * 3 * time.Second
				log.WithError(lastErr).Warnf("Server error. Retrying (%d/%d) after %s...", attempt+1, maxRetries, sleepDuration)
			}
			time.Sleep(sleepDuration)
		} else {
			log.WithError(lastErr).Errorf("Request failed after %d attempts with status %d", maxRetries, resp.StatusCode)
		}
	}

	return lastErr

ProcessResponse:
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.WithError(err).Error("Error reading response body")
		return fmt.Errorf("error reading response body: %w", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		log.WithError(err).Error("Error unmarshalling response JSON")
		log.Debugf("Response body causing unmarshal error: %s", string(body))
		return fmt.Errorf("error unmarshalling response JSON: %w", err)
	}

	return nil
}

func bodyClose(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
}

// GetUserByLogin resolves a channel login name to its Helix user record.
func (c *Client) GetUserByLogin(login string) (models.HelixUser, error) {
	login = strings.ToLower(strings.TrimSpace(login))
	if login == "" {
		return models.HelixUser{}, fmt.Errorf("%w: empty channel name", ErrChannelNotFound)
	}

	reqURL := fmt.Sprintf("%s/users?login=%s", c.BaseURL, url.QueryEscape(login))

	var response models.HelixUsersResponse
	if err := c.doGet(reqURL, &response); err != nil {
		return models.HelixUser{}, err
	}

	if len(response.Data) == 0 {
		log.Warnf("Channel not found: %s", login)
		return models.HelixUser{}, fmt.Errorf("%w: %s", ErrChannelNotFound, login)
	}
	return response.Data[0], nil
}

// ListVideos fetches one page of a channel's videos. It returns the entries
// and the cursor for the next page (empty when exhausted).
func (c *Client) ListVideos(userID, channel string, filter models.ListFilter, limit int, cursor string) ([]models.VodEntry, string, error) {
	reqURL := c.BaseURL + models.ConstructVideosUrl(userID, filter.Kind, limit, cursor)

	var response models.HelixVideosResponse
	if err := c.doGet(reqURL, &response); err != nil {
		return nil, "", err
	}

	entries := make([]models.VodEntry, 0, len(response.Data))
	for _, v := range response.Data {
		createdAt, err := time.Parse(time.RFC3339, v.CreatedAt)
		if err != nil {
			log.WithError(err).Warnf("Unparseable created_at %q for video %s", v.CreatedAt, v.ID)
		}
		entry := models.VodEntry{
			ID:        v.ID,
			Title:     v.Title,
			Channel:   channel,
			Kind:      models.VodKind(v.Type),
			URL:       v.URL,
			CreatedAt: createdAt,
			Duration:  v.Duration,
			ViewCount: v.ViewCount,
		}
		// The /videos endpoint has no server-side time window
		if filter.InWindow(entry) {
			entries = append(entries, entry)
		}
	}

	return entries, response.Pagination.Cursor, nil
}

// ListClips fetches one page of a channel's clips. The time window is applied
// server-side via started_at/ended_at.
func (c *Client) ListClips(userID, channel string, filter models.ListFilter, limit int, cursor string) ([]models.VodEntry, string, error) {
	reqURL := c.BaseURL + models.ConstructClipsUrl(userID, filter, limit, cursor)

	var response models.HelixClipsResponse
	if err := c.doGet(reqURL, &response); err != nil {
		return nil, "", err
	}

	entries := make([]models.VodEntry, 0, len(response.Data))
	for _, clip := range response.Data {
		createdAt, err := time.Parse(time.RFC3339, clip.CreatedAt)
		if err != nil {
			log.WithError(err).Warnf("Unparseable created_at %q for clip %s", clip.CreatedAt, clip.ID)
		}
		entries = append(entries, models.VodEntry{
			ID:        clip.ID,
			Title:     clip.Title,
			Channel:   channel,
			Kind:      models.KindClip,
			URL:       clip.URL,
			CreatedAt: createdAt,
			Duration:  fmt.Sprintf("%ds", int(clip.Duration)),
			ViewCount: clip.ViewCount,
		})
	}

	return entries, response.Pagination.Cursor, nil
}

// GetVideoComments fetches one page of a VOD's chat history.
func (c *Client) GetVideoComments(videoID string, cursor string) (models.HelixCommentsResponse, error) {
	videoID = strings.TrimPrefix(videoID, "v")

	values := url.Values{}
	values.Set("first", "100") // Maximum allowed by the API
	if cursor != "" {
		values.Set("cursor", cursor)
	}
	reqURL := fmt.Sprintf("%s/videos/%s/comments?%s", c.BaseURL, url.PathEscape(videoID), values.Encode())

	var response models.HelixCommentsResponse
	if err := c.doGet(reqURL, &response); err != nil {
		return models.HelixCommentsResponse{}, err
	}
	return response, nil
}

// GetVideoByID fetches a single video's metadata.
func (c *Client) GetVideoByID(videoID string) (models.HelixVideo, error) {
	videoID = strings.TrimPrefix(videoID, "v")
	reqURL := fmt.Sprintf("%s/videos?id=%s", c.BaseURL, url.QueryEscape(videoID))

	var response models.HelixVideosResponse
	if err := c.doGet(reqURL, &response); err != nil {
		return models.HelixVideo{}, err
	}
	if len(response.Data) == 0 {
		return models.HelixVideo{}, fmt.Errorf("%w: video %s", ErrChannelNotFound, videoID)
	}
	return response.Data[0], nil
}
