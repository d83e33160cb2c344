// Package plan owns the day/week progression core: resolving which tasks a
// day shows, gating later weeks behind the prior week's attempt ratio, and
// seeding a new week once the prior one is fully resolved.
package plan

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"growthboard/internal/metrics"
	"growthboard/internal/models"
	"growthboard/internal/planner"
)

const AlgorithmVersion = "v2"

// UnlockThreshold is the attempt ratio a prior week needs before the next
// week is shown as unlocked. Seeding requires full attempt (1.0): a user may
// peek at a partially-attempted week, but the next week's tasks are not
// generated until the current one is fully resolved.
const UnlockThreshold = 0.5

type Store interface {
	ListTasksForDay(ctx context.Context, userID string, day int) ([]models.Task, error)
	ListTasksForDays(ctx context.Context, userID string, from, to int) ([]models.Task, error)
	ListTasksForWeek(ctx context.Context, userID string, week int) ([]models.Task, error)
	WeekHasTasks(ctx context.Context, userID string, week int) (bool, error)
	BulkInsertTasks(ctx context.Context, tasks []models.Task) ([]models.Task, error)
	ListRecentContent(ctx context.Context, userID string, limit int) ([]models.ContentItem, error)
	ListMilestones(ctx context.Context, userID string) ([]models.Milestone, error)
	LatestWeeklyReview(ctx context.Context, userID string) (models.WeeklyReview, error)
}

type Generator interface {
	GeneratePlan(ctx context.Context, req planner.Request) []planner.TaskProposal
}

type Service struct {
	store Store
	gen   Generator
	log   *slog.Logger
}

func NewService(store Store, gen Generator, log *slog.Logger) *Service {
	return &Service{store: store, gen: gen, log: log}
}

// WeekOf maps a 1-based day number to its 1-based week.
func WeekOf(day int) int { return (day + 6) / 7 }

// MonthOf maps a 1-based day number to its 1-based plan month.
func MonthOf(day int) int { return (day + 29) / 30 }

// WeekDays returns the inclusive day range covered by a week.
func WeekDays(week int) (int, int) { return (week-1)*7 + 1, week * 7 }

// Result is what a day-load produces. Spillover holds tasks the generator
// returned for other days of the week; they are already persisted and belong
// in those days' buckets.
type Result struct {
	Day       int
	Tasks     []models.Task
	Spillover map[int][]models.Task
	Locked    bool
}

// AttemptRatio returns (attempted, total) for a week's tasks.
func (s *Service) AttemptRatio(ctx context.Context, userID string, week int) (int, int, error) {
	tasks, err := s.store.ListTasksForWeek(ctx, userID, week)
	if err != nil {
		return 0, 0, err
	}
	attempted := 0
	for i := range tasks {
		if tasks[i].Attempted() {
			attempted++
		}
	}
	return attempted, len(tasks), nil
}

// Unlocked reports whether a week's tasks are unlocked. Week 1 always is.
// A store failure fails closed; a prior week with no tasks at all has nothing
// to attempt and does not lock its successor.
func (s *Service) Unlocked(ctx context.Context, userID string, week int) bool {
	if week <= 1 {
		return true
	}
	attempted, total, err := s.AttemptRatio(ctx, userID, week-1)
	if err != nil {
		s.log.Warn("week gate: attempt ratio read failed", "week", week, "err", err)
		return false
	}
	if total == 0 {
		return true
	}
	return float64(attempted)/float64(total) >= UnlockThreshold
}

// EnsureSeeded generates and persists a week's tasks if the week is empty and
// the previous week has been fully attempted. It is idempotent: any existing
// row tagged with the week makes it a no-op, and failures simply leave
// seeding to be retried on the next day-load.
func (s *Service) EnsureSeeded(ctx context.Context, p models.Profile, week int) {
	if week <= 1 {
		return
	}
	has, err := s.store.WeekHasTasks(ctx, p.UserID, week)
	if err != nil {
		s.log.Warn("week seed: existence check failed", "week", week, "err", err)
		return
	}
	if has {
		return
	}

	prev, err := s.store.ListTasksForWeek(ctx, p.UserID, week-1)
	if err != nil {
		s.log.Warn("week seed: previous week read failed", "week", week, "err", err)
		return
	}
	if len(prev) == 0 {
		return
	}
	attempted := 0
	exclude := make([]string, 0, len(prev))
	for i := range prev {
		if prev[i].Attempted() {
			attempted++
		}
		exclude = append(exclude, prev[i].Title)
	}
	if attempted < len(prev) {
		return
	}

	startDay, _ := WeekDays(week)
	req := planner.Request{
		UserProfile:    profileFields(p),
		StartDay:       startDay,
		WeekNumber:     week,
		DailyTaskCount: p.DailyCount(),
		ContextSignals: s.gatherSignals(ctx, p.UserID, prev),
		ExcludeTitles:  exclude,
	}
	proposals := s.gen.GeneratePlan(ctx, req)
	if len(proposals) == 0 {
		return
	}
	tasks := s.toTasks(p.UserID, proposals, startDay, week, models.SourceWeekSeed)
	if _, err := s.store.BulkInsertTasks(ctx, tasks); err != nil {
		s.log.Warn("week seed: insert failed", "week", week, "err", err)
		return
	}
	metrics.AddTasksGenerated(models.SourceWeekSeed, len(tasks))
}

// Resolve produces the ordered task list for a day, topping up to the user's
// desired daily count via the generator when existing rows fall short. It
// never returns an error: failures degrade to whatever was computed before
// the failing step.
func (s *Service) Resolve(ctx context.Context, p models.Profile, day int) Result {
	week := WeekOf(day)
	res := Result{Day: day}
	if week > 1 {
		// Locked only affects messaging; loading proceeds regardless.
		res.Locked = !s.Unlocked(ctx, p.UserID, week)
		s.EnsureSeeded(ctx, p, week)
	}

	desired := p.DailyCount()
	rows, err := s.store.ListTasksForDay(ctx, p.UserID, day)
	if err != nil {
		s.log.Warn("resolve: day read failed", "day", day, "err", err)
		rows = nil
	}
	tasks := dedupe(normalize(rows))
	if len(tasks) > desired {
		tasks = tasks[:desired]
	}
	if len(tasks) >= desired {
		res.Tasks = tasks
		return res
	}

	// Backfill. The exclusion list spans the whole week so the generator does
	// not hand back a sibling day's task under a new day number.
	from, to := WeekDays(week)
	weekRows, err := s.store.ListTasksForDays(ctx, p.UserID, from, to)
	if err != nil {
		s.log.Warn("resolve: week read failed", "day", day, "err", err)
		res.Tasks = tasks
		return res
	}
	seen := make(map[string]bool, len(weekRows))
	exclude := make([]string, 0, len(weekRows))
	for i := range weekRows {
		seen[dedupeKey(weekRows[i].Title, weekRows[i].Description)] = true
		exclude = append(exclude, weekRows[i].Title)
	}

	req := planner.Request{
		UserProfile:    profileFields(p),
		StartDay:       day,
		WeekNumber:     week,
		DailyTaskCount: desired - len(tasks),
		ContextSignals: s.gatherSignals(ctx, p.UserID, nil),
		ExcludeTitles:  exclude,
	}
	proposals := s.gen.GeneratePlan(ctx, req)

	fresh := make([]models.Task, 0, len(proposals))
	for _, prop := range proposals {
		d := prop.Day
		if d < 1 {
			d = day
		}
		t := s.proposalTask(p.UserID, prop, d, models.SourceAutoFill)
		key := dedupeKey(t.Title, t.Description)
		if seen[key] {
			continue
		}
		seen[key] = true
		fresh = append(fresh, t)
	}
	if len(fresh) == 0 {
		res.Tasks = tasks
		return res
	}
	inserted, err := s.store.BulkInsertTasks(ctx, fresh)
	if err != nil {
		s.log.Warn("resolve: backfill insert failed", "day", day, "err", err)
		res.Tasks = tasks
		return res
	}
	metrics.AddTasksGenerated(models.SourceAutoFill, len(inserted))

	for _, t := range inserted {
		// The generator may return tasks spanning the week, not just the
		// requested day; those ride along as spillover.
		if t.Meta.Day == day {
			tasks = append(tasks, t)
			continue
		}
		if res.Spillover == nil {
			res.Spillover = make(map[int][]models.Task)
		}
		res.Spillover[t.Meta.Day] = append(res.Spillover[t.Meta.Day], t)
	}
	res.Tasks = tasks
	return res
}

// RegenerateWeek is the explicit user action behind the "regenerate week"
// button. Unlike seeding it has no eligibility bar, and the caller gets to
// know whether anything came back.
func (s *Service) RegenerateWeek(ctx context.Context, p models.Profile, week int) (int, error) {
	startDay, endDay := WeekDays(week)
	existing, err := s.store.ListTasksForDays(ctx, p.UserID, startDay, endDay)
	if err != nil {
		return 0, err
	}
	exclude := make([]string, 0, len(existing))
	for i := range existing {
		exclude = append(exclude, existing[i].Title)
	}
	req := planner.Request{
		UserProfile:    profileFields(p),
		StartDay:       startDay,
		WeekNumber:     week,
		DailyTaskCount: p.DailyCount(),
		ContextSignals: s.gatherSignals(ctx, p.UserID, nil),
		ExcludeTitles:  exclude,
	}
	proposals := s.gen.GeneratePlan(ctx, req)
	if len(proposals) == 0 {
		return 0, nil
	}
	tasks := s.toTasks(p.UserID, proposals, startDay, week, models.SourceWeekSeed)
	inserted, err := s.store.BulkInsertTasks(ctx, tasks)
	if err != nil {
		return 0, err
	}
	metrics.AddTasksGenerated(models.SourceWeekSeed, len(inserted))
	return len(inserted), nil
}

func (s *Service) proposalTask(userID string, prop planner.TaskProposal, day int, source string) models.Task {
	category := prop.Category
	if category == "" {
		category = models.CategoryCustom
	}
	return models.Task{
		UserID:      userID,
		Title:       strings.TrimSpace(prop.Title),
		Description: strings.TrimSpace(prop.Description),
		Category:    category,
		Platform:    strings.ToLower(prop.Platform),
		Status:      models.StatusPending,
		XP:          models.DefaultTaskXP,
		Meta: models.TaskMeta{
			Day:              day,
			Week:             WeekOf(day),
			Month:            MonthOf(day),
			Source:           source,
			AlgorithmVersion: AlgorithmVersion,
		},
	}
}

func (s *Service) toTasks(userID string, proposals []planner.TaskProposal, startDay, week int, source string) []models.Task {
	_, endDay := WeekDays(week)
	tasks := make([]models.Task, 0, len(proposals))
	for _, prop := range proposals {
		day := prop.Day
		if day < startDay || day > endDay {
			day = startDay
		}
		tasks = append(tasks, s.proposalTask(userID, prop, day, source))
	}
	return tasks
}

func (s *Service) gatherSignals(ctx context.Context, userID string, prevWeek []models.Task) planner.Signals {
	var sig planner.Signals
	for i := range prevWeek {
		sig.PreviousTasks = append(sig.PreviousTasks, prevWeek[i].Title)
	}
	if items, err := s.store.ListRecentContent(ctx, userID, 10); err == nil {
		for i := range items {
			sig.RecentContent = append(sig.RecentContent, items[i].Platform+": "+items[i].Title)
		}
	} else {
		s.log.Debug("signals: content read failed", "err", err)
	}
	if ms, err := s.store.ListMilestones(ctx, userID); err == nil {
		for i := range ms {
			sig.Milestones = append(sig.Milestones, ms[i].Title)
		}
	} else {
		s.log.Debug("signals: milestones read failed", "err", err)
	}
	if rev, err := s.store.LatestWeeklyReview(ctx, userID); err == nil {
		sig.WeeklyReview = rev.Feedback
	}
	return sig
}

func profileFields(p models.Profile) map[string]string {
	fields := map[string]string{
		"focusArea":       p.FocusArea,
		"audience":        p.Audience,
		"websiteAnalysis": p.WebsiteAnalysis,
	}
	if len(p.AvoidPlatforms) > 0 {
		fields["avoidPlatforms"] = strings.Join(p.AvoidPlatforms, ",")
	}
	return fields
}

// normalize maps raw rows into display shape. Rows without a description get
// one recovered from a "Title - details" split, or a synthesized instruction.
func normalize(rows []models.Task) []models.Task {
	out := make([]models.Task, 0, len(rows))
	for _, t := range rows {
		if t.Description == "" {
			title, desc := splitTitle(t.Title)
			if desc != "" {
				t.Title, t.Description = title, desc
			} else {
				t.Description = fmt.Sprintf("Spend 15 minutes on %q and note what moved the needle.", t.Title)
			}
		}
		if t.XP <= 0 {
			t.XP = models.DefaultTaskXP
		}
		out = append(out, t)
	}
	return out
}

var dashSeparators = []string{" — ", " – ", " - ", ": "}

func splitTitle(title string) (string, string) {
	for _, sep := range dashSeparators {
		if i := strings.Index(title, sep); i > 0 {
			return strings.TrimSpace(title[:i]), strings.TrimSpace(title[i+len(sep):])
		}
	}
	return title, ""
}

func dedupeKey(title, description string) string {
	return strings.ToLower(strings.TrimSpace(title)) + "\x00" + strings.ToLower(strings.TrimSpace(description))
}

// dedupe collapses rows with identical case-insensitive (title, description),
// keeping the earliest.
func dedupe(tasks []models.Task) []models.Task {
	seen := make(map[string]bool, len(tasks))
	out := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		key := dedupeKey(t.Title, t.Description)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}
