package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go-twitch-archive/internal/downloader"
	"go-twitch-archive/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	pages map[string]models.HelixCommentsResponse // keyed by cursor
	calls []string
	err   error
}

func (f *fakeSource) GetVideoComments(videoID, cursor string) (models.HelixCommentsResponse, error) {
	f.calls = append(f.calls, cursor)
	if f.err != nil {
		return models.HelixCommentsResponse{}, f.err
	}
	return f.pages[cursor], nil
}

func comment(user, body string, offset float64) models.HelixComment {
	return models.HelixComment{
		Commenter:            models.HelixCommenter{DisplayName: user},
		Message:              models.HelixChatMessage{Body: body},
		ContentOffsetSeconds: offset,
	}
}

func testVod() models.VodEntry {
	return models.VodEntry{
		ID:        "987654321",
		Title:     "Speedrun Night",
		Channel:   "testchannel",
		Duration:  "1h0m0s",
		CreatedAt: time.Date(2024, 3, 10, 20, 0, 0, 0, time.UTC),
	}
}

func TestFetch_PaginatesAndReportsProgress(t *testing.T) {
	src := &fakeSource{pages: map[string]models.HelixCommentsResponse{
		"": {
			Data:       []models.HelixComment{comment("alice", "hi", 10), comment("bob", "hello", 1800)},
			Pagination: models.HelixPagination{Cursor: "page2"},
		},
		"page2": {
			Data: []models.HelixComment{comment("alice", "gg", 3590)},
		},
	}}
	r := NewRetriever(src)
	r.delay = 0

	var fractions []float64
	comments, err := r.Fetch(testVod(), func(f float64) {
		fractions = append(fractions, f)
	}, nil)
	require.NoError(t, err)

	assert.Len(t, comments, 3)
	assert.Equal(t, []string{"", "page2"}, src.calls)
	// 1800/3600, 3590/3600, then the final 1.0
	require.Len(t, fractions, 3)
	assert.InDelta(t, 0.5, fractions[0], 0.001)
	assert.InDelta(t, 0.997, fractions[1], 0.001)
	assert.Equal(t, 1.0, fractions[2])
}

func TestFetch_SourceError(t *testing.T) {
	wantErr := errors.New("comments disabled")
	src := &fakeSource{err: wantErr}
	r := NewRetriever(src)
	r.delay = 0

	_, err := r.Fetch(testVod(), nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, wantErr))
}

func TestFetch_Cancelled(t *testing.T) {
	src := &fakeSource{pages: map[string]models.HelixCommentsResponse{}}
	r := NewRetriever(src)
	gate := downloader.NewGate()
	gate.Cancel()

	_, err := r.Fetch(testVod(), nil, gate)
	assert.True(t, errors.Is(err, downloader.ErrCancelled))
	assert.Empty(t, src.calls, "no pages should be fetched after cancel")
}

func TestSave_WritesJsonAndTranscript(t *testing.T) {
	dir := t.TempDir()
	comments := []models.HelixComment{
		comment("alice", "first!", 5),
		comment("bob", "poggers", 3725),
	}

	files, err := Save(testVod(), comments, dir)
	require.NoError(t, err)
	require.Len(t, files, 2)

	jsonName, textName := Filenames(testVod())
	assert.Equal(t, "2024-03-10_speedrun_night_987654321_chat.json", jsonName)
	assert.Equal(t, filepath.Join(dir, jsonName), files[0])
	assert.Equal(t, filepath.Join(dir, textName), files[1])

	raw, err := os.ReadFile(files[0])
	require.NoError(t, err)
	var saved Log
	require.NoError(t, json.Unmarshal(raw, &saved))
	assert.Equal(t, "987654321", saved.VideoID)
	assert.Equal(t, "Speedrun Night", saved.Title)
	require.Len(t, saved.Comments, 2)
	assert.Equal(t, "poggers", saved.Comments[1].Message.Body)

	transcript, err := os.ReadFile(files[1])
	require.NoError(t, err)
	want := fmt.Sprintf("[%s] alice: first!\n[%s] bob: poggers\n", "00:00:05", "01:02:05")
	assert.Equal(t, want, string(transcript))
}
