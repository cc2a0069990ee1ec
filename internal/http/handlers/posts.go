package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"blogpilot/internal/domain"
	"blogpilot/internal/posts"
)

type createPostRequest struct {
	Title         string     `json:"title" validate:"required,max=1000"`
	Content       string     `json:"content" validate:"max=1000000"`
	Excerpt       string     `json:"excerpt" validate:"max=2000"`
	Tags          []string   `json:"tags" validate:"max=50"`
	CoverImageURL string     `json:"coverImageUrl" validate:"omitempty,url"`
	Status        string     `json:"status" validate:"omitempty,oneof=draft scheduled published"`
	PublishAt     *time.Time `json:"publishAt"`
}

type updatePostRequest struct {
	Title         *string   `json:"title" validate:"omitempty,max=1000"`
	Content       *string   `json:"content" validate:"omitempty,max=1000000"`
	Excerpt       *string   `json:"excerpt" validate:"omitempty,max=2000"`
	Tags          *[]string `json:"tags"`
	CoverImageURL *string   `json:"coverImageUrl"`
}

type publishRequest struct {
	SyncWordPress bool    `json:"syncWordPress"`
	Categories    []int64 `json:"categories"`
}

type scheduleRequest struct {
	PublishAt time.Time `json:"publishAt" validate:"required"`
}

type syncRequest struct {
	Categories []int64 `json:"categories"`
}

type shareRequest struct {
	IdempotencyKey string `json:"idempotencyKey" validate:"omitempty,max=200"`
}

func (a *App) ListPosts(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			a.fail(w, r, fmt.Errorf("%w: limit must be a positive integer", domain.ErrInvalidInput))
			return
		}
		limit = n
	}
	status := domain.PostStatus(strings.TrimSpace(r.URL.Query().Get("status")))
	list, err := a.Posts.List(r.Context(), a.currentUserID(r), status, limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"posts": list})
}

func (a *App) CreatePost(w http.ResponseWriter, r *http.Request) {
	var req createPostRequest
	if err := a.decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	p, err := a.Posts.Create(r.Context(), a.currentUserID(r), posts.CreateInput{
		Title:         req.Title,
		Content:       req.Content,
		Excerpt:       req.Excerpt,
		Tags:          req.Tags,
		CoverImageURL: req.CoverImageURL,
		Status:        domain.PostStatus(req.Status),
		PublishAt:     req.PublishAt,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, map[string]any{"post": p})
}

func (a *App) GetPost(w http.ResponseWriter, r *http.Request) {
	p, err := a.Posts.Get(r.Context(), a.currentUserID(r), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"post": p})
}

func (a *App) UpdatePost(w http.ResponseWriter, r *http.Request) {
	var req updatePostRequest
	if err := a.decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	p, err := a.Posts.Update(r.Context(), a.currentUserID(r), chi.URLParam(r, "id"), posts.UpdateInput{
		Title:         req.Title,
		Content:       req.Content,
		Excerpt:       req.Excerpt,
		Tags:          req.Tags,
		CoverImageURL: req.CoverImageURL,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"post": p})
}

func (a *App) DeletePost(w http.ResponseWriter, r *http.Request) {
	if err := a.Posts.Delete(r.Context(), a.currentUserID(r), chi.URLParam(r, "id")); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"deleted": true})
}

// PublishPost publishes and optionally mirrors the post to WordPress. A
// failed sync does not undo the publish; the error is reported alongside.
func (a *App) PublishPost(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	if err := a.decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	userID := a.currentUserID(r)
	p, err := a.Posts.Publish(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	resp := map[string]any{"post": p}
	if req.SyncWordPress {
		synced, err := a.WordPress.SyncPost(r.Context(), userID, p.ID, req.Categories)
		if err != nil {
			a.Logger.Warn().Err(err).Str("post_id", p.ID).Msg("wordpress sync after publish failed")
			resp["wordpressError"] = err.Error()
		} else {
			resp["post"] = synced
		}
	}
	a.json(w, http.StatusOK, resp)
}

func (a *App) SchedulePost(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := a.decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	p, err := a.Posts.Schedule(r.Context(), a.currentUserID(r), chi.URLParam(r, "id"), req.PublishAt)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"post": p})
}

func (a *App) ArchivePost(w http.ResponseWriter, r *http.Request) {
	p, err := a.Posts.Archive(r.Context(), a.currentUserID(r), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"post": p})
}

func (a *App) SyncPostWordPress(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := a.decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	p, err := a.WordPress.SyncPost(r.Context(), a.currentUserID(r), chi.URLParam(r, "id"), req.Categories)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"post": p})
}

func (a *App) SharePostThreads(w http.ResponseWriter, r *http.Request) {
	var req shareRequest
	if err := a.decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	p, err := a.Threads.SharePost(r.Context(), a.currentUserID(r), chi.URLParam(r, "id"), idempotencyKey(r, req.IdempotencyKey))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{"post": p})
}

// ExportPosts streams a zip with one HTML file per post.
func (a *App) ExportPosts(w http.ResponseWriter, r *http.Request) {
	data, n, err := a.Posts.Export(r.Context(), a.currentUserID(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	name := "posts-" + time.Now().UTC().Format("20060102") + ".zip"
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("X-Post-Count", strconv.Itoa(n))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
