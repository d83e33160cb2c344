// Package planner is the client for the external plan-generator endpoint.
// The endpoint is a black box: it returns zero or more proposed tasks, and
// every failure mode collapses to an empty proposal list for the caller.
package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"growthboard/internal/metrics"
)

// Signals are opaque pass-through context for the generator.
type Signals struct {
	FocusArea       string   `json:"focusArea,omitempty"`
	Audience        string   `json:"audience,omitempty"`
	WebsiteAnalysis string   `json:"websiteAnalysis,omitempty"`
	PreviousTasks   []string `json:"previousTasks,omitempty"`
	RecentContent   []string `json:"recentContent,omitempty"`
	Milestones      []string `json:"milestones,omitempty"`
	WeeklyReview    string   `json:"weeklyReview,omitempty"`
}

type Request struct {
	UserProfile    map[string]string `json:"userProfile"`
	StartDay       int               `json:"startDay"`
	WeekNumber     int               `json:"weekNumber"`
	DailyTaskCount int               `json:"dailyTaskCount"`
	ContextSignals Signals           `json:"contextSignals"`
	ExcludeTitles  []string          `json:"excludeTitles"`
}

type TaskProposal struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Platform    string `json:"platform"`
	Day         int    `json:"day"`
}

type response struct {
	Tasks []TaskProposal `json:"tasks"`
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
	Log     *slog.Logger
}

func NewClient(baseURL string, log *slog.Logger) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 60 * time.Second},
		Log:     log,
	}
}

// GeneratePlan asks the endpoint for tasks. An absent or empty task list is a
// valid outcome; errors are logged and reported as an empty list, never
// propagated.
func (c *Client) GeneratePlan(ctx context.Context, req Request) []TaskProposal {
	body, err := json.Marshal(req)
	if err != nil {
		c.Log.Error("planner: encode request", "err", err)
		metrics.RecordPlanRequest("encode_error")
		return nil
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		c.Log.Error("planner: build request", "err", err)
		metrics.RecordPlanRequest("encode_error")
		return nil
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		c.Log.Warn("planner: request failed", "err", err)
		metrics.RecordPlanRequest("network_error")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.Log.Warn("planner: bad status", "status", resp.StatusCode)
		metrics.RecordPlanRequest(fmt.Sprintf("http_%d", resp.StatusCode))
		return nil
	}
	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.Log.Warn("planner: decode response", "err", err)
		metrics.RecordPlanRequest("decode_error")
		return nil
	}
	metrics.RecordPlanRequest("ok")
	return out.Tasks
}
