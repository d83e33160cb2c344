package models

import (
	"strconv"
	"time"
)

// Task status values as stored.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusSkipped   = "skipped"
)

// Task provenance tags carried in metadata.source.
const (
	SourceWeekSeed    = "week_seed"
	SourceAutoFill    = "auto_fill"
	SourceManual      = "manual"
	SourceContentLink = "content_link"
)

// Advisory task categories; they drive color tagging only.
const (
	CategoryContent    = "content"
	CategoryAnalytics  = "analytics"
	CategoryCommunity  = "community"
	CategoryStrategy   = "strategy"
	CategoryEngagement = "engagement"
	CategoryCustom     = "custom"
)

const DefaultTaskXP = 10

// TaskMeta is the structured metadata blob stored alongside each task row.
// Day is assigned once at creation and never changes afterwards.
type TaskMeta struct {
	Day              int    `json:"day"`
	Week             int    `json:"week,omitempty"`
	Month            int    `json:"month,omitempty"`
	Source           string `json:"source,omitempty"`
	AlgorithmVersion string `json:"algorithm_version,omitempty"`
}

type Task struct {
	ID           string     `json:"id"`
	LocalID      string     `json:"local_id,omitempty"`
	UserID       string     `json:"user_id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Category     string     `json:"category"`
	Platform     string     `json:"platform,omitempty"`
	Status       string     `json:"status"`
	Meta         TaskMeta   `json:"metadata"`
	Note         string     `json:"note,omitempty"`
	SkippedCount int        `json:"skipped_count"`
	XP           int        `json:"xp"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Key returns the ID the client addresses the task by: the store id once one
// exists, otherwise the transient local id.
func (t *Task) Key() string {
	if t.ID != "" {
		return t.ID
	}
	return t.LocalID
}

func (t *Task) Completed() bool { return t.Status == StatusCompleted }
func (t *Task) Skipped() bool   { return t.Status == StatusSkipped }

// Attempted reports whether the task was resolved one way or another.
func (t *Task) Attempted() bool { return t.Completed() || t.Skipped() }

// Milestone types.
const (
	MilestoneGoalAchieved = "goal_achieved"
	MilestoneUserAdded    = "user_added"
)

type Milestone struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	Title           string     `json:"title"`
	Emoji           string     `json:"emoji"`
	Description     string     `json:"description"`
	Date            *time.Time `json:"date"`
	Type            string     `json:"type"`
	GoalType        string     `json:"goal_type,omitempty"`
	ProgressCurrent *float64   `json:"progress_current,omitempty"`
	ProgressTarget  *float64   `json:"progress_target,omitempty"`
	Unit            string     `json:"unit,omitempty"`
	Unlocked        bool       `json:"unlocked"`
	CreatedAt       time.Time  `json:"created_at"`
}

// InProgress reports whether the milestone is a numeric goal still being
// worked toward (shown in the goals carousel rather than the history timeline).
func (m *Milestone) InProgress() bool {
	return !m.Unlocked && m.ProgressTarget != nil
}

type ContentItem struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Platform  string    `json:"platform"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type WeeklyReview struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Week      int       `json:"week"`
	Feedback  string    `json:"feedback"`
	CreatedAt time.Time `json:"created_at"`
}

// Profile is the per-user settings/progress blob persisted as jsonb. XP lives
// inside the blob and is folded in with a read-modify-write; that write is not
// atomic with the task status update it usually accompanies.
type Profile struct {
	UserID          string   `json:"-"`
	DailyTaskCount  string   `json:"daily_task_count,omitempty"`
	FocusArea       string   `json:"focus_area,omitempty"`
	Audience        string   `json:"audience,omitempty"`
	WebsiteAnalysis string   `json:"website_analysis,omitempty"`
	AvoidPlatforms  []string `json:"avoid_platforms,omitempty"`
	XP              int      `json:"xp"`
}

// DailyCount parses the daily-task-count preference, falling back to 3 for
// missing or non-positive values.
func (p *Profile) DailyCount() int {
	n, err := strconv.Atoi(p.DailyTaskCount)
	if err != nil || n <= 0 {
		return 3
	}
	return n
}

// ProgressStats is the aggregate row keyed by user.
type ProgressStats struct {
	UserID         string     `json:"user_id"`
	CurrentStreak  int        `json:"current_streak"`
	LastActivity   *time.Time `json:"last_activity_date"`
	TotalCompleted int        `json:"total_tasks_completed"`
}
