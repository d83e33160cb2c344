package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"growthboard/internal/auth"
	"growthboard/internal/board"
	"growthboard/internal/models"
	"growthboard/internal/plan"
	"growthboard/internal/repo"

	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 1 << 20

type taskResponse struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Category     string          `json:"category"`
	Platform     string          `json:"platform,omitempty"`
	Completed    bool            `json:"completed"`
	Skipped      bool            `json:"skipped"`
	Note         string          `json:"note,omitempty"`
	SkippedCount int             `json:"skipped_count"`
	XP           int             `json:"xp"`
	Metadata     models.TaskMeta `json:"metadata"`
}

func toTaskResponse(t models.Task) taskResponse {
	return taskResponse{
		ID:           t.Key(),
		Title:        t.Title,
		Description:  t.Description,
		Category:     t.Category,
		Platform:     t.Platform,
		Completed:    t.Completed(),
		Skipped:      t.Skipped(),
		Note:         t.Note,
		SkippedCount: t.SkippedCount,
		XP:           t.XP,
		Metadata:     t.Meta,
	}
}

func toTaskResponses(tasks []models.Task) []taskResponse {
	out := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, toTaskResponse(t))
	}
	return out
}

type addTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type updateTaskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
}

type noteRequest struct {
	Note string `json:"note"`
}

type reorderRequest struct {
	Order []string `json:"order"`
}

type reviewRequest struct {
	Feedback string `json:"feedback"`
}

type milestoneRequest struct {
	Title           string     `json:"title"`
	Emoji           string     `json:"emoji"`
	Description     string     `json:"description"`
	Date            *time.Time `json:"date"`
	GoalType        string     `json:"goal_type"`
	ProgressCurrent *float64   `json:"progress_current"`
	ProgressTarget  *float64   `json:"progress_target"`
	Unit            string     `json:"unit"`
}

type milestoneProgressRequest struct {
	Current float64 `json:"current"`
}

type contentRequest struct {
	Platform string `json:"platform"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	Day      int    `json:"day"`
}

type profileRequest struct {
	DailyTaskCount  string   `json:"daily_task_count"`
	FocusArea       string   `json:"focus_area"`
	Audience        string   `json:"audience"`
	WebsiteAnalysis string   `json:"website_analysis"`
	AvoidPlatforms  []string `json:"avoid_platforms"`
}

type entityResponse struct {
	ID string `json:"id"`
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) userBoard(w http.ResponseWriter, r *http.Request) (*board.Board, string, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing user")
		return nil, "", false
	}
	return a.Boards.ForUser(r.Context(), userID), userID, true
}

func pathInt(r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func (a *API) handleDayTasks(w http.ResponseWriter, r *http.Request) {
	day, ok := pathInt(r, "day")
	if !ok {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid day")
		return
	}
	b, _, ok := a.userBoard(w, r)
	if !ok {
		return
	}
	tasks, locked, fresh := b.LoadDay(r.Context(), day)
	if !fresh {
		// The user navigated away mid-load; hand back whatever the bucket
		// holds rather than the discarded resolve.
		tasks = b.Tasks(day)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"day":    day,
		"week":   plan.WeekOf(day),
		"locked": locked,
		"tasks":  toTaskResponses(tasks),
	})
}

func (a *API) handleReorder(w http.ResponseWriter, r *http.Request) {
	day, ok := pathInt(r, "day")
	if !ok {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid day")
		return
	}
	var req reorderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	b, _, ok := a.userBoard(w, r)
	if !ok {
		return
	}
	if err := b.Reorder(day, req.Order); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to reorder")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": toTaskResponses(b.Tasks(day))})
}

func (a *API) handleAddTask(w http.ResponseWriter, r *http.Request) {
	var req addTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Title required")
		return
	}
	b, _, ok := a.userBoard(w, r)
	if !ok {
		return
	}
	t := b.Add(req.Title, req.Description)
	writeJSON(w, http.StatusCreated, toTaskResponse(t))
}

func (a *API) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req updateTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	b, _, ok := a.userBoard(w, r)
	if !ok {
		return
	}
	t, err := b.Update(id, req.Title, req.Description)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Task not found")
		return
	}
	writeJSON(w, http.StatusOK, toTaskResponse(t))
}

func (a *API) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b, _, ok := a.userBoard(w, r)
	if !ok {
		return
	}
	if err := b.Delete(id); err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Task not found")
		return
	}
	writeJSON(w, http.StatusOK, entityResponse{ID: id})
}

func (a *API) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b, _, ok := a.userBoard(w, r)
	if !ok {
		return
	}
	snap, err := b.Complete(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Task not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "progress": snap})
}

func (a *API) handleSkipTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b, _, ok := a.userBoard(w, r)
	if !ok {
		return
	}
	nudge, err := b.Skip(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Task not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "nudge": nudge})
}

func (a *API) handleTaskNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req noteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	b, _, ok := a.userBoard(w, r)
	if !ok {
		return
	}
	if err := b.SetNote(id, req.Note); err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Task not found")
		return
	}
	writeJSON(w, http.StatusOK, entityResponse{ID: id})
}

func (a *API) handleAcceptNudge(w http.ResponseWriter, r *http.Request) {
	b, _, ok := a.userBoard(w, r)
	if !ok {
		return
	}
	sub, err := b.AcceptNudge()
	if err != nil {
		writeError(w, http.StatusConflict, "NO_NUDGE", "No pending nudge")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"substitute": toTaskResponse(sub)})
}

func (a *API) handleWeekStatus(w http.ResponseWriter, r *http.Request) {
	week, ok := pathInt(r, "week")
	if !ok {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid week")
		return
	}
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing user")
		return
	}
	attempted, total, err := a.Plan.AttemptRatio(r.Context(), userID, week)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load week")
		return
	}
	ratio := 0.0
	if total > 0 {
		ratio = float64(attempted) / float64(total)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"week":          week,
		"unlocked":      a.Plan.Unlocked(r.Context(), userID, week),
		"attempted":     attempted,
		"total":         total,
		"attempt_ratio": ratio,
	})
}

func (a *API) handleRegenerateWeek(w http.ResponseWriter, r *http.Request) {
	week, ok := pathInt(r, "week")
	if !ok {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid week")
		return
	}
	b, _, ok := a.userBoard(w, r)
	if !ok {
		return
	}
	generated, err := a.Plan.RegenerateWeek(r.Context(), b.Profile(), week)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "GENERATION_FAILED", "Failed to regenerate week")
		return
	}
	from, to := plan.WeekDays(week)
	for day := from; day <= to; day++ {
		b.Invalidate(day)
	}
	status := "ok"
	if generated == 0 {
		status = "empty"
	}
	writeJSON(w, http.StatusOK, map[string]any{"week": week, "generated": generated, "status": status})
}

func (a *API) handleWeeklyReview(w http.ResponseWriter, r *http.Request) {
	week, ok := pathInt(r, "week")
	if !ok {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid week")
		return
	}
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing user")
		return
	}
	var req reviewRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id, err := a.Repo.InsertWeeklyReview(r.Context(), models.WeeklyReview{UserID: userID, Week: week, Feedback: req.Feedback})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to save review")
		return
	}
	writeJSON(w, http.StatusCreated, entityResponse{ID: id})
}

func (a *API) handleProgress(w http.ResponseWriter, r *http.Request) {
	b, _, ok := a.userBoard(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, b.Progress())
}

func (a *API) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	b, _, ok := a.userBoard(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, b.Profile())
}

func (a *API) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	b, userID, ok := a.userBoard(w, r)
	if !ok {
		return
	}
	p := b.Profile()
	p.UserID = userID
	p.DailyTaskCount = req.DailyTaskCount
	p.FocusArea = req.FocusArea
	p.Audience = req.Audience
	p.WebsiteAnalysis = req.WebsiteAnalysis
	p.AvoidPlatforms = req.AvoidPlatforms
	if err := a.Repo.SaveProfile(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to save profile")
		return
	}
	b.SetProfile(p)
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleListMilestones(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing user")
		return
	}
	all, err := a.Repo.ListMilestones(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list milestones")
		return
	}
	goals := make([]models.Milestone, 0)
	history := make([]models.Milestone, 0)
	for _, m := range all {
		if m.Unlocked {
			history = append(history, m)
		} else if m.InProgress() {
			goals = append(goals, m)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"goals": goals, "history": history})
}

func (a *API) handleCreateMilestone(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing user")
		return
	}
	var req milestoneRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Title required")
		return
	}
	m := models.Milestone{
		UserID:          userID,
		Title:           req.Title,
		Emoji:           req.Emoji,
		Description:     req.Description,
		Date:            req.Date,
		Type:            models.MilestoneUserAdded,
		GoalType:        req.GoalType,
		ProgressCurrent: req.ProgressCurrent,
		ProgressTarget:  req.ProgressTarget,
		Unit:            req.Unit,
		Unlocked:        req.Date != nil,
	}
	id, err := a.Repo.CreateMilestone(r.Context(), m)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create milestone")
		return
	}
	writeJSON(w, http.StatusCreated, entityResponse{ID: id})
}

func (a *API) handleMilestoneProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing user")
		return
	}
	var req milestoneProgressRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	unlocked, err := a.Repo.UpdateMilestoneProgress(r.Context(), id, userID, req.Current)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Milestone not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update milestone")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "unlocked": unlocked})
}

func (a *API) handleUnlockMilestone(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing user")
		return
	}
	if err := a.Repo.UnlockMilestone(r.Context(), id, userID, time.Now().UTC()); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Milestone not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to unlock milestone")
		return
	}
	writeJSON(w, http.StatusOK, entityResponse{ID: id})
}

func (a *API) handleCreateContent(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing user")
		return
	}
	var req contentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Title == "" || req.Day < 1 {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Title and day required")
		return
	}
	contentID, err := a.Repo.InsertContent(r.Context(), models.ContentItem{
		UserID:   userID,
		Platform: req.Platform,
		Title:    req.Title,
		Body:     req.Body,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to save content")
		return
	}
	// The published piece gets a linked distribution task on the chosen day.
	task := models.Task{
		UserID:      userID,
		Title:       "Share \"" + req.Title + "\"",
		Description: "Publish this piece and reply to the first comments it gets.",
		Category:    models.CategoryContent,
		Platform:    req.Platform,
		Status:      models.StatusPending,
		XP:          models.DefaultTaskXP,
		Meta: models.TaskMeta{
			Day:    req.Day,
			Week:   plan.WeekOf(req.Day),
			Month:  plan.MonthOf(req.Day),
			Source: models.SourceContentLink,
		},
	}
	taskID, err := a.Repo.InsertTask(r.Context(), task)
	if err != nil {
		a.Log.Warn("content: linked task insert failed", "err", err)
	} else {
		a.Boards.ForUser(r.Context(), userID).Invalidate(req.Day)
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": contentID, "task_id": taskID})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid payload")
		return false
	}
	return true
}
