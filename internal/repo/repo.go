package repo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"growthboard/internal/models"
)

var ErrNotFound = errors.New("not found")

type Repo struct {
	Pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repo {
	return &Repo{Pool: pool}
}

const taskColumns = `id, user_id, title, description, category, platform, status, metadata, completion_note, skipped_count, xp, completed_at, created_at`

func scanTask(row pgx.Row) (models.Task, error) {
	var t models.Task
	var metadata []byte
	var note *string
	err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Category, &t.Platform, &t.Status, &metadata, &note, &t.SkippedCount, &t.XP, &t.CompletedAt, &t.CreatedAt)
	if err != nil {
		return models.Task{}, err
	}
	if note != nil {
		t.Note = *note
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &t.Meta); err != nil {
			return models.Task{}, err
		}
	}
	return t, nil
}

func (r *Repo) collectTasks(ctx context.Context, query string, args ...any) ([]models.Task, error) {
	rows, err := r.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *Repo) InsertTask(ctx context.Context, t models.Task) (string, error) {
	meta, err := json.Marshal(t.Meta)
	if err != nil {
		return "", err
	}
	var id string
	err = r.Pool.QueryRow(ctx, `INSERT INTO tasks (user_id, title, description, category, platform, status, metadata, xp)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		t.UserID, t.Title, t.Description, t.Category, t.Platform, t.Status, meta, t.XP).Scan(&id)
	return id, err
}

// BulkInsertTasks inserts the given tasks in one transaction and returns them
// with their store ids and creation times filled in.
func (r *Repo) BulkInsertTasks(ctx context.Context, tasks []models.Task) ([]models.Task, error) {
	if len(tasks) == 0 {
		return nil, nil
	}
	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	out := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		meta, err := json.Marshal(t.Meta)
		if err != nil {
			return nil, err
		}
		err = tx.QueryRow(ctx, `INSERT INTO tasks (user_id, title, description, category, platform, status, metadata, xp)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id, created_at`,
			t.UserID, t.Title, t.Description, t.Category, t.Platform, t.Status, meta, t.XP).Scan(&t.ID, &t.CreatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) ListTasksForDay(ctx context.Context, userID string, day int) ([]models.Task, error) {
	return r.collectTasks(ctx, `SELECT `+taskColumns+` FROM tasks
		WHERE user_id=$1 AND (metadata->>'day')::int = $2
		ORDER BY created_at ASC`, userID, day)
}

func (r *Repo) ListTasksForDays(ctx context.Context, userID string, from, to int) ([]models.Task, error) {
	return r.collectTasks(ctx, `SELECT `+taskColumns+` FROM tasks
		WHERE user_id=$1 AND (metadata->>'day')::int BETWEEN $2 AND $3
		ORDER BY created_at ASC`, userID, from, to)
}

// ListTasksForWeek matches on the metadata blob itself rather than the day
// range, so week-tagged rows are found even if their day drifted out of range.
func (r *Repo) ListTasksForWeek(ctx context.Context, userID string, week int) ([]models.Task, error) {
	return r.collectTasks(ctx, `SELECT `+taskColumns+` FROM tasks
		WHERE user_id=$1 AND metadata @> jsonb_build_object('week', $2::int)
		ORDER BY created_at ASC`, userID, week)
}

func (r *Repo) WeekHasTasks(ctx context.Context, userID string, week int) (bool, error) {
	var exists bool
	err := r.Pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tasks
		WHERE user_id=$1 AND metadata @> jsonb_build_object('week', $2::int))`, userID, week).Scan(&exists)
	return exists, err
}

func (r *Repo) SetTaskStatus(ctx context.Context, id, userID, status string) error {
	cmd, err := r.Pool.Exec(ctx, `UPDATE tasks SET status=$1,
		completed_at = CASE WHEN $1 = 'completed' THEN now() ELSE completed_at END,
		skipped_count = skipped_count + CASE WHEN $1 = 'skipped' THEN 1 ELSE 0 END,
		last_status_change = now(), updated_at = now()
		WHERE id=$2 AND user_id=$3`, status, id, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) UpdateTaskFields(ctx context.Context, id, userID, title, description string) error {
	cmd, err := r.Pool.Exec(ctx, `UPDATE tasks SET title=$1, description=$2, updated_at=now()
		WHERE id=$3 AND user_id=$4`, title, description, id, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) SetTaskNote(ctx context.Context, id, userID, note string) error {
	cmd, err := r.Pool.Exec(ctx, `UPDATE tasks SET completion_note=$1, updated_at=now()
		WHERE id=$2 AND user_id=$3`, note, id, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) DeleteTask(ctx context.Context, id, userID string) error {
	cmd, err := r.Pool.Exec(ctx, `DELETE FROM tasks WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) CreateMilestone(ctx context.Context, m models.Milestone) (string, error) {
	var id string
	err := r.Pool.QueryRow(ctx, `INSERT INTO milestones (user_id, title, emoji, description, achieved_at, type, goal_type, progress_current, progress_target, unit, unlocked)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id`,
		m.UserID, m.Title, m.Emoji, m.Description, m.Date, m.Type, nullIfEmpty(m.GoalType), m.ProgressCurrent, m.ProgressTarget, m.Unit, m.Unlocked).Scan(&id)
	return id, err
}

func (r *Repo) ListMilestones(ctx context.Context, userID string) ([]models.Milestone, error) {
	rows, err := r.Pool.Query(ctx, `SELECT id, user_id, title, emoji, description, achieved_at, type, goal_type, progress_current, progress_target, unit, unlocked, created_at
		FROM milestones WHERE user_id=$1 ORDER BY achieved_at DESC NULLS LAST, created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []models.Milestone
	for rows.Next() {
		var m models.Milestone
		var goalType *string
		if err := rows.Scan(&m.ID, &m.UserID, &m.Title, &m.Emoji, &m.Description, &m.Date, &m.Type, &goalType, &m.ProgressCurrent, &m.ProgressTarget, &m.Unit, &m.Unlocked, &m.CreatedAt); err != nil {
			return nil, err
		}
		if goalType != nil {
			m.GoalType = *goalType
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// UpdateMilestoneProgress sets progress_current and unlocks the milestone when
// the target is reached. Returns the post-update unlocked flag.
func (r *Repo) UpdateMilestoneProgress(ctx context.Context, id, userID string, current float64) (bool, error) {
	var unlocked bool
	err := r.Pool.QueryRow(ctx, `UPDATE milestones SET
		progress_current = $1,
		achieved_at = CASE WHEN NOT unlocked AND progress_target IS NOT NULL AND $1 >= progress_target THEN now() ELSE achieved_at END,
		type = CASE WHEN NOT unlocked AND progress_target IS NOT NULL AND $1 >= progress_target THEN 'goal_achieved' ELSE type END,
		unlocked = unlocked OR (progress_target IS NOT NULL AND $1 >= progress_target),
		updated_at = now()
		WHERE id=$2 AND user_id=$3
		RETURNING unlocked`, current, id, userID).Scan(&unlocked)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrNotFound
	}
	return unlocked, err
}

func (r *Repo) UnlockMilestone(ctx context.Context, id, userID string, at time.Time) error {
	cmd, err := r.Pool.Exec(ctx, `UPDATE milestones SET unlocked=true, achieved_at=$1, updated_at=now()
		WHERE id=$2 AND user_id=$3`, at, id, userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) InsertContent(ctx context.Context, c models.ContentItem) (string, error) {
	var id string
	err := r.Pool.QueryRow(ctx, `INSERT INTO content_items (user_id, platform, title, body)
		VALUES ($1,$2,$3,$4) RETURNING id`, c.UserID, c.Platform, c.Title, c.Body).Scan(&id)
	return id, err
}

func (r *Repo) ListRecentContent(ctx context.Context, userID string, limit int) ([]models.ContentItem, error) {
	rows, err := r.Pool.Query(ctx, `SELECT id, user_id, platform, title, body, created_at
		FROM content_items WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []models.ContentItem
	for rows.Next() {
		var c models.ContentItem
		if err := rows.Scan(&c.ID, &c.UserID, &c.Platform, &c.Title, &c.Body, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r *Repo) InsertWeeklyReview(ctx context.Context, rev models.WeeklyReview) (string, error) {
	var id string
	err := r.Pool.QueryRow(ctx, `INSERT INTO weekly_reviews (user_id, week, feedback)
		VALUES ($1,$2,$3) RETURNING id`, rev.UserID, rev.Week, rev.Feedback).Scan(&id)
	return id, err
}

func (r *Repo) LatestWeeklyReview(ctx context.Context, userID string) (models.WeeklyReview, error) {
	var rev models.WeeklyReview
	err := r.Pool.QueryRow(ctx, `SELECT id, user_id, week, feedback, created_at
		FROM weekly_reviews WHERE user_id=$1 ORDER BY created_at DESC LIMIT 1`, userID).
		Scan(&rev.ID, &rev.UserID, &rev.Week, &rev.Feedback, &rev.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.WeeklyReview{}, ErrNotFound
	}
	return rev, err
}

func (r *Repo) GetProfile(ctx context.Context, userID string) (models.Profile, error) {
	var blob []byte
	err := r.Pool.QueryRow(ctx, `SELECT profile FROM user_profiles WHERE user_id=$1`, userID).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Profile{UserID: userID}, ErrNotFound
	}
	if err != nil {
		return models.Profile{}, err
	}
	p := models.Profile{UserID: userID}
	if len(blob) > 0 {
		if err := json.Unmarshal(blob, &p); err != nil {
			return models.Profile{}, err
		}
	}
	return p, nil
}

func (r *Repo) SaveProfile(ctx context.Context, p models.Profile) error {
	blob, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = r.Pool.Exec(ctx, `INSERT INTO user_profiles (user_id, profile) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET profile=EXCLUDED.profile, updated_at=now()`, p.UserID, blob)
	return err
}

func (r *Repo) GetStats(ctx context.Context, userID string) (models.ProgressStats, error) {
	st := models.ProgressStats{UserID: userID}
	err := r.Pool.QueryRow(ctx, `SELECT current_streak, last_activity_date, total_tasks_completed
		FROM user_stats WHERE user_id=$1`, userID).
		Scan(&st.CurrentStreak, &st.LastActivity, &st.TotalCompleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return st, ErrNotFound
	}
	return st, err
}

func (r *Repo) UpsertStats(ctx context.Context, st models.ProgressStats) error {
	_, err := r.Pool.Exec(ctx, `INSERT INTO user_stats (user_id, current_streak, last_activity_date, total_tasks_completed)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (user_id) DO UPDATE SET
			current_streak=EXCLUDED.current_streak,
			last_activity_date=EXCLUDED.last_activity_date,
			total_tasks_completed=EXCLUDED.total_tasks_completed,
			updated_at=now()`,
		st.UserID, st.CurrentStreak, st.LastActivity, st.TotalCompleted)
	return err
}

// ResetStaleStreaks zeroes streaks whose last activity predates the cutoff.
func (r *Repo) ResetStaleStreaks(ctx context.Context, cutoff time.Time) (int64, error) {
	cmd, err := r.Pool.Exec(ctx, `UPDATE user_stats SET current_streak=0, updated_at=now()
		WHERE current_streak > 0 AND (last_activity_date IS NULL OR last_activity_date < $1)`, cutoff)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

// RecountCompletedTasks heals total_tasks_completed from the task table. The
// interactive path writes it without a transaction, so the count can drift.
func (r *Repo) RecountCompletedTasks(ctx context.Context) (int64, error) {
	cmd, err := r.Pool.Exec(ctx, `UPDATE user_stats SET total_tasks_completed = sub.c, updated_at=now()
		FROM (SELECT user_id, count(*) AS c FROM tasks WHERE status='completed' GROUP BY user_id) sub
		WHERE user_stats.user_id = sub.user_id AND user_stats.total_tasks_completed <> sub.c`)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
