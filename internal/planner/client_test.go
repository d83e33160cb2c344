package planner

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGeneratePlan(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/generate", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(response{Tasks: []TaskProposal{
			{Title: "Post a build update", Category: "content", Platform: "twitter", Day: 8},
			{Title: "Answer two questions", Category: "community", Day: 9},
		}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testLogger())
	proposals := c.GeneratePlan(context.Background(), Request{
		StartDay:       8,
		WeekNumber:     2,
		DailyTaskCount: 3,
		ExcludeTitles:  []string{"old task"},
	})

	require.Len(t, proposals, 2)
	assert.Equal(t, "Post a build update", proposals[0].Title)
	assert.Equal(t, 8, proposals[0].Day)
	assert.Equal(t, 2, got.WeekNumber)
	assert.Equal(t, []string{"old task"}, got.ExcludeTitles)
}

func TestGeneratePlanEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testLogger())
	assert.Empty(t, c.GeneratePlan(context.Background(), Request{StartDay: 1}))
}

func TestGeneratePlanBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testLogger())
	assert.Nil(t, c.GeneratePlan(context.Background(), Request{StartDay: 1}))
}

func TestGeneratePlanMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"tasks": [{`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testLogger())
	assert.Nil(t, c.GeneratePlan(context.Background(), Request{StartDay: 1}))
}

func TestGeneratePlanUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	c := NewClient(srv.URL, testLogger())
	assert.Nil(t, c.GeneratePlan(context.Background(), Request{StartDay: 1}))
}
