package repo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"growthboard/internal/models"
)

func setupTestRepo(t *testing.T) (*Repo, func()) {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	schema := fmt.Sprintf("test_%d", time.Now().UnixNano())
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", schema))
		return err
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	_, err = pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA %s", schema))
	if err != nil {
		pool.Close()
		t.Fatalf("create schema: %v", err)
	}
	if err := createTestTables(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("create tables: %v", err)
	}
	repo := New(pool)
	return repo, func() {
		_, _ = pool.Exec(ctx, fmt.Sprintf("DROP SCHEMA %s CASCADE", schema))
		pool.Close()
	}
}

func createTestTables(ctx context.Context, pool *pgxpool.Pool) error {
	queries := []string{
		`CREATE TABLE tasks (id uuid PRIMARY KEY DEFAULT gen_random_uuid(), user_id text NOT NULL, title text NOT NULL, description text NOT NULL DEFAULT '', category text NOT NULL DEFAULT 'custom', platform text NOT NULL DEFAULT '', status text NOT NULL DEFAULT 'pending', metadata jsonb NOT NULL DEFAULT '{}'::jsonb, completion_note text, skipped_count int NOT NULL DEFAULT 0, xp int NOT NULL DEFAULT 10, completed_at timestamptz, last_status_change timestamptz, created_at timestamptz NOT NULL DEFAULT now(), updated_at timestamptz NOT NULL DEFAULT now())`,
		`CREATE TABLE milestones (id uuid PRIMARY KEY DEFAULT gen_random_uuid(), user_id text NOT NULL, title text NOT NULL, emoji text NOT NULL DEFAULT '', description text NOT NULL DEFAULT '', achieved_at timestamptz, type text NOT NULL DEFAULT 'user_added', goal_type text, progress_current numeric(14,2), progress_target numeric(14,2), unit text NOT NULL DEFAULT '', unlocked boolean NOT NULL DEFAULT false, created_at timestamptz NOT NULL DEFAULT now(), updated_at timestamptz NOT NULL DEFAULT now())`,
		`CREATE TABLE content_items (id uuid PRIMARY KEY DEFAULT gen_random_uuid(), user_id text NOT NULL, platform text NOT NULL DEFAULT '', title text NOT NULL DEFAULT '', body text NOT NULL DEFAULT '', created_at timestamptz NOT NULL DEFAULT now())`,
		`CREATE TABLE weekly_reviews (id uuid PRIMARY KEY DEFAULT gen_random_uuid(), user_id text NOT NULL, week int NOT NULL, feedback text NOT NULL DEFAULT '', created_at timestamptz NOT NULL DEFAULT now())`,
		`CREATE TABLE user_profiles (user_id text PRIMARY KEY, profile jsonb NOT NULL DEFAULT '{}'::jsonb, updated_at timestamptz NOT NULL DEFAULT now())`,
		`CREATE TABLE user_stats (user_id text PRIMARY KEY, current_streak int NOT NULL DEFAULT 0, last_activity_date timestamptz, total_tasks_completed int NOT NULL DEFAULT 0, updated_at timestamptz NOT NULL DEFAULT now())`,
	}
	for _, query := range queries {
		if _, err := pool.Exec(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

func dayTask(day, week int, title string) models.Task {
	return models.Task{
		UserID:   "u1",
		Title:    title,
		Category: "content",
		Status:   "pending",
		XP:       10,
		Meta:     models.TaskMeta{Day: day, Week: week, Source: "week_seed"},
	}
}

func TestTaskDayAndWeekQueries(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	inserted, err := repo.BulkInsertTasks(ctx, []models.Task{
		dayTask(1, 1, "day one a"),
		dayTask(1, 1, "day one b"),
		dayTask(8, 2, "day eight"),
	})
	if err != nil {
		t.Fatalf("bulk insert: %v", err)
	}
	if len(inserted) != 3 {
		t.Fatalf("expected 3 inserted, got %d", len(inserted))
	}
	for _, task := range inserted {
		if task.ID == "" || task.CreatedAt.IsZero() {
			t.Fatalf("insert did not fill id/created_at: %+v", task)
		}
	}

	day1, err := repo.ListTasksForDay(ctx, "u1", 1)
	if err != nil {
		t.Fatalf("list day: %v", err)
	}
	if len(day1) != 2 {
		t.Fatalf("expected 2 day-1 tasks, got %d", len(day1))
	}
	if day1[0].Meta.Day != 1 || day1[0].Meta.Source != "week_seed" {
		t.Fatalf("metadata did not round-trip: %+v", day1[0].Meta)
	}

	week1, err := repo.ListTasksForDays(ctx, "u1", 1, 7)
	if err != nil {
		t.Fatalf("list days: %v", err)
	}
	if len(week1) != 2 {
		t.Fatalf("expected 2 tasks in days 1-7, got %d", len(week1))
	}

	week2, err := repo.ListTasksForWeek(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("list week: %v", err)
	}
	if len(week2) != 1 || week2[0].Title != "day eight" {
		t.Fatalf("week containment query wrong: %+v", week2)
	}

	has, err := repo.WeekHasTasks(ctx, "u1", 2)
	if err != nil || !has {
		t.Fatalf("expected week 2 to have tasks: has=%v err=%v", has, err)
	}
	has, err = repo.WeekHasTasks(ctx, "u1", 3)
	if err != nil || has {
		t.Fatalf("expected week 3 to be empty: has=%v err=%v", has, err)
	}

	other, err := repo.ListTasksForDay(ctx, "u2", 1)
	if err != nil || len(other) != 0 {
		t.Fatalf("tasks leaked across users: %v %v", other, err)
	}
}

func TestSetTaskStatus(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	id, err := repo.InsertTask(ctx, dayTask(1, 1, "to complete"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := repo.SetTaskStatus(ctx, id, "u1", "completed"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	tasks, err := repo.ListTasksForDay(ctx, "u1", 1)
	if err != nil || len(tasks) != 1 {
		t.Fatalf("list: %v %v", tasks, err)
	}
	if tasks[0].Status != "completed" || tasks[0].CompletedAt == nil {
		t.Fatalf("complete did not stamp: %+v", tasks[0])
	}

	if err := repo.SetTaskStatus(ctx, id, "u1", "skipped"); err != nil {
		t.Fatalf("skip: %v", err)
	}
	tasks, _ = repo.ListTasksForDay(ctx, "u1", 1)
	if tasks[0].SkippedCount != 1 {
		t.Fatalf("expected skipped_count 1, got %d", tasks[0].SkippedCount)
	}

	err = repo.SetTaskStatus(ctx, "00000000-0000-0000-0000-000000000000", "u1", "completed")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	err = repo.SetTaskStatus(ctx, id, "someone-else", "completed")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for other user, got %v", err)
	}
}

func TestTaskFieldAndNoteUpdatesAndDelete(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	id, err := repo.InsertTask(ctx, dayTask(1, 1, "draft"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := repo.UpdateTaskFields(ctx, id, "u1", "final", "with details"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := repo.SetTaskNote(ctx, id, "u1", "went well"); err != nil {
		t.Fatalf("note: %v", err)
	}
	tasks, err := repo.ListTasksForDay(ctx, "u1", 1)
	if err != nil || len(tasks) != 1 {
		t.Fatalf("list: %v %v", tasks, err)
	}
	if tasks[0].Title != "final" || tasks[0].Description != "with details" || tasks[0].Note != "went well" {
		t.Fatalf("updates did not land: %+v", tasks[0])
	}

	if err := repo.DeleteTask(ctx, id, "u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.DeleteTask(ctx, id, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestProfileRoundTrip(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := repo.GetProfile(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for missing profile, got %v", err)
	}

	p := models.Profile{UserID: "u1", DailyTaskCount: "5", FocusArea: "seo", AvoidPlatforms: []string{"reddit"}, XP: 40}
	if err := repo.SaveProfile(ctx, p); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := repo.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.DailyTaskCount != "5" || got.FocusArea != "seo" || got.XP != 40 || len(got.AvoidPlatforms) != 1 {
		t.Fatalf("profile did not round-trip: %+v", got)
	}

	p.XP = 90
	if err := repo.SaveProfile(ctx, p); err != nil {
		t.Fatalf("resave: %v", err)
	}
	got, _ = repo.GetProfile(ctx, "u1")
	if got.XP != 90 {
		t.Fatalf("upsert did not overwrite: %+v", got)
	}
}

func TestStatsUpsertAndStaleStreakReset(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	old := time.Now().UTC().Add(-72 * time.Hour)
	if err := repo.UpsertStats(ctx, models.ProgressStats{UserID: "u1", CurrentStreak: 4, LastActivity: &old, TotalCompleted: 12}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	recent := time.Now().UTC()
	if err := repo.UpsertStats(ctx, models.ProgressStats{UserID: "u2", CurrentStreak: 2, LastActivity: &recent, TotalCompleted: 3}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	n, err := repo.ResetStaleStreaks(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 stale streak reset, got %d", n)
	}
	st, err := repo.GetStats(ctx, "u1")
	if err != nil || st.CurrentStreak != 0 || st.TotalCompleted != 12 {
		t.Fatalf("stale streak not zeroed: %+v err=%v", st, err)
	}
	st, err = repo.GetStats(ctx, "u2")
	if err != nil || st.CurrentStreak != 2 {
		t.Fatalf("active streak touched: %+v err=%v", st, err)
	}
}

func TestRecountCompletedTasks(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	id1, err := repo.InsertTask(ctx, dayTask(1, 1, "a"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := repo.InsertTask(ctx, dayTask(1, 1, "b")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := repo.SetTaskStatus(ctx, id1, "u1", "completed"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := repo.UpsertStats(ctx, models.ProgressStats{UserID: "u1", TotalCompleted: 9}); err != nil {
		t.Fatalf("stats: %v", err)
	}

	n, err := repo.RecountCompletedTasks(ctx)
	if err != nil {
		t.Fatalf("recount: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row healed, got %d", n)
	}
	st, _ := repo.GetStats(ctx, "u1")
	if st.TotalCompleted != 1 {
		t.Fatalf("expected recounted total 1, got %d", st.TotalCompleted)
	}
}

func TestMilestoneProgressAutoUnlock(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	target := 100.0
	start := 10.0
	id, err := repo.CreateMilestone(ctx, models.Milestone{
		UserID: "u1", Title: "100 newsletter subscribers", Emoji: "📬",
		Type: models.MilestoneUserAdded, GoalType: "subscribers",
		ProgressCurrent: &start, ProgressTarget: &target, Unit: "subs",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	unlocked, err := repo.UpdateMilestoneProgress(ctx, id, "u1", 60)
	if err != nil || unlocked {
		t.Fatalf("expected still locked at 60/100: unlocked=%v err=%v", unlocked, err)
	}
	unlocked, err = repo.UpdateMilestoneProgress(ctx, id, "u1", 100)
	if err != nil || !unlocked {
		t.Fatalf("expected unlock at 100/100: unlocked=%v err=%v", unlocked, err)
	}

	ms, err := repo.ListMilestones(ctx, "u1")
	if err != nil || len(ms) != 1 {
		t.Fatalf("list: %v %v", ms, err)
	}
	if !ms[0].Unlocked || ms[0].Type != models.MilestoneGoalAchieved || ms[0].Date == nil {
		t.Fatalf("unlock did not stamp the milestone: %+v", ms[0])
	}

	if _, err := repo.UpdateMilestoneProgress(ctx, "00000000-0000-0000-0000-000000000000", "u1", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestContentAndWeeklyReviews(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := repo.InsertContent(ctx, models.ContentItem{UserID: "u1", Platform: "twitter", Title: "launch thread", Body: "1/7 ..."}); err != nil {
		t.Fatalf("content: %v", err)
	}
	items, err := repo.ListRecentContent(ctx, "u1", 10)
	if err != nil || len(items) != 1 || items[0].Platform != "twitter" {
		t.Fatalf("content list: %v %v", items, err)
	}

	if _, err := repo.LatestWeeklyReview(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found before first review, got %v", err)
	}
	if _, err := repo.InsertWeeklyReview(ctx, models.WeeklyReview{UserID: "u1", Week: 1, Feedback: "too many reddit tasks"}); err != nil {
		t.Fatalf("review: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := repo.InsertWeeklyReview(ctx, models.WeeklyReview{UserID: "u1", Week: 2, Feedback: "better mix"}); err != nil {
		t.Fatalf("review: %v", err)
	}
	rev, err := repo.LatestWeeklyReview(ctx, "u1")
	if err != nil || rev.Week != 2 || rev.Feedback != "better mix" {
		t.Fatalf("latest review wrong: %+v err=%v", rev, err)
	}
}
