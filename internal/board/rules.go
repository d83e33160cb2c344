package board

import (
	"fmt"
	"strings"

	"growthboard/internal/models"
	"growthboard/internal/plan"
)

// SkipEvent is what the rules see after a skip has been applied locally.
type SkipEvent struct {
	Task          models.Task
	Platform      string
	PlatformSkips int
	Day           int
}

// Nudge is a suggestion produced by a skip rule. It takes effect only when
// the user confirms it via AcceptNudge.
type Nudge struct {
	Platform      string      `json:"platform"`
	Message       string      `json:"message"`
	SubstituteDay int         `json:"substitute_day"`
	Substitute    models.Task `json:"substitute"`
}

type SkipRule interface {
	Evaluate(ev SkipEvent) *Nudge
}

// AvoidPlatformRule fires once a platform has been skipped Threshold times,
// offering to avoid the platform and slot a substitute task into the next day.
type AvoidPlatformRule struct {
	Platform   string
	Threshold  int
	Substitute func(day int) models.Task
}

func (r AvoidPlatformRule) Evaluate(ev SkipEvent) *Nudge {
	if ev.Platform != r.Platform || ev.PlatformSkips < r.Threshold {
		return nil
	}
	day := ev.Day + 1
	return &Nudge{
		Platform:      r.Platform,
		Message:       fmt.Sprintf("You've skipped %s tasks %d times. Avoid %s and try something else tomorrow?", r.Platform, ev.PlatformSkips, r.Platform),
		SubstituteDay: day,
		Substitute:    r.Substitute(day),
	}
}

// DefaultRules holds the one nudge the product ships with: three skipped
// reddit tasks suggest swapping the channel for linkedin.
func DefaultRules() []SkipRule {
	return []SkipRule{
		AvoidPlatformRule{
			Platform:  "reddit",
			Threshold: 3,
			Substitute: func(day int) models.Task {
				return models.Task{
					Title:       "Share a quick win on LinkedIn",
					Description: "Post a short update about what you're building and ask one question to start a conversation.",
					Category:    models.CategoryEngagement,
					Platform:    "linkedin",
					Status:      models.StatusPending,
					XP:          models.DefaultTaskXP,
					Meta: models.TaskMeta{
						Day:    day,
						Week:   plan.WeekOf(day),
						Month:  plan.MonthOf(day),
						Source: models.SourceAutoFill,
					},
				}
			},
		},
	}
}

var knownPlatforms = []string{"reddit", "linkedin", "twitter", "instagram", "tiktok", "youtube", "facebook"}

// detectPlatform uses the explicit platform field when present and falls back
// to keyword detection over title and description.
func detectPlatform(t models.Task) string {
	if t.Platform != "" {
		return strings.ToLower(t.Platform)
	}
	text := strings.ToLower(t.Title + " " + t.Description)
	for _, p := range knownPlatforms {
		if strings.Contains(text, p) {
			return p
		}
	}
	return ""
}
