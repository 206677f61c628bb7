// Package handlers exposes the moderator manage and settings API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/twist-judge/internal/platform/api"
	"github.com/example/twist-judge/internal/platform/auth"
	"github.com/example/twist-judge/internal/platform/httpserver"
	"github.com/example/twist-judge/services/judge/internal/announce"
	"github.com/example/twist-judge/services/judge/internal/config"
	"github.com/example/twist-judge/services/judge/internal/content"
	"github.com/example/twist-judge/services/judge/internal/store"
)

const maxBodyBytes = 65536

// Manage actions.
const (
	ActionTrack   = "track"
	ActionUntrack = "untrack"
	ActionUpdate  = "update"
	ActionDelete  = "delete"
	ActionLog     = "log"
	ActionSet     = "set"
)

// errBadRequest carries a client-facing code for a rejected action.
type errBadRequest struct {
	code    string
	message string
}

func (e errBadRequest) Error() string { return e.message }

// Snapshot is the debugging view returned by the log action.
type Snapshot struct {
	PostID         string              `json:"post_id"`
	TrackedPosts   []store.TrackedPost `json:"tracked_posts"`
	Candidates     []store.Candidate   `json:"candidates"`
	AnnouncementID string              `json:"announcement_id,omitempty"`
	WinnerID       string              `json:"winner_id,omitempty"`
	Settings       config.Settings     `json:"settings"`
}

// ActionResult is returned by every mutating action.
type ActionResult struct {
	ID             string    `json:"id"`
	Action         string    `json:"action"`
	PostID         string    `json:"post_id,omitempty"`
	AnnouncementID string    `json:"announcement_id,omitempty"`
	Snapshot       *Snapshot `json:"snapshot,omitempty"`
}

type ManageHandler struct {
	store     store.Store
	content   content.Provider
	settings  config.Editor
	announcer *announce.Manager
	log       *zap.Logger
}

func NewManageHandler(st store.Store, cp content.Provider, settings config.Editor, ann *announce.Manager, log *zap.Logger) *ManageHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ManageHandler{store: st, content: cp, settings: settings, announcer: ann, log: log}
}

// Register mounts the moderator routes behind bearer auth.
func (h *ManageHandler) Register(r chi.Router, verifier auth.JWTVerifier) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(verifier))
		r.Use(auth.RequireModerator)

		r.Get("/v1/manage/{id}", h.GetSnapshot)
		r.Post("/v1/manage/{id}/{action}", h.PostAction)
		r.Get("/v1/settings", h.GetSettings)
		r.Put("/v1/settings", h.PutSettings)
	})
}

func (h *ManageHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	rid := httpserver.RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")
	if !content.IsPostID(id) {
		api.BadRequest(w, "INVALID_ID", "a post fullname (t3_...) is required", rid, map[string]any{"id": id})
		return
	}
	snap, err := h.snapshot(r.Context(), id)
	if err != nil {
		h.fail(w, r, id, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, snap)
}

func (h *ManageHandler) PostAction(w http.ResponseWriter, r *http.Request) {
	rid := httpserver.RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")
	action := chi.URLParam(r, "action")
	moderator, _ := auth.SubjectFromContext(r.Context())

	if !content.IsPostID(id) && !content.IsCommentID(id) {
		api.BadRequest(w, "INVALID_ID", "a full post (t3_) or comment (t1_) id is required", rid, map[string]any{"id": id})
		return
	}
	if !knownAction(action) {
		h.fail(w, r, id, unknownAction(action))
		return
	}

	var res ActionResult
	thing, err := content.Fetch(r.Context(), h.content, id)
	if err == nil {
		switch thing.Kind {
		case content.KindPost:
			res, err = h.postAction(r.Context(), *thing.Post, action)
		case content.KindComment:
			res, err = h.commentAction(r.Context(), *thing.Comment, action)
		}
	}
	if err != nil {
		h.fail(w, r, id, err)
		return
	}
	h.log.Info("manage action",
		zap.String("id", id),
		zap.String("action", action),
		zap.String("moderator", moderator),
	)
	api.WriteJSON(w, http.StatusOK, res)
}

func (h *ManageHandler) postAction(ctx context.Context, post content.Post, action string) (ActionResult, error) {
	res := ActionResult{ID: post.ID, Action: action, PostID: post.ID}
	switch action {
	case ActionTrack:
		return res, h.store.TrackPost(ctx, post.ID, post.CreatedAt)
	case ActionUntrack:
		return res, h.store.UntrackPost(ctx, post.ID)
	case ActionUpdate:
		return res, h.reopen(ctx, post.ID)
	case ActionDelete:
		if err := h.store.UntrackPost(ctx, post.ID); err != nil {
			return res, err
		}
		return res, h.announcer.Remove(ctx, post.ID)
	case ActionLog:
		snap, err := h.snapshot(ctx, post.ID)
		res.Snapshot = snap
		return res, err
	case ActionSet:
		return res, errBadRequest{code: "COMMENT_ONLY", message: "set is only available for comments"}
	}
	return res, unknownAction(action)
}

func (h *ManageHandler) commentAction(ctx context.Context, c content.Comment, action string) (ActionResult, error) {
	res := ActionResult{ID: c.ID, Action: action}
	if !c.IsTopLevel() {
		return res, errBadRequest{code: "NOT_TOP_LEVEL", message: "comment is not a top-level reply"}
	}
	res.PostID = c.PostID

	switch action {
	case ActionTrack:
		return res, h.store.TrackCandidate(ctx, c.PostID, c.ID, c.Score)
	case ActionUntrack:
		return res, h.store.UntrackCandidate(ctx, c.PostID, c.ID)
	case ActionUpdate:
		return res, h.reopen(ctx, c.PostID)
	case ActionDelete:
		if err := h.store.UntrackCandidate(ctx, c.PostID, c.ID); err != nil {
			return res, err
		}
		if err := h.content.DeleteComment(ctx, c.ID); err != nil && !errors.Is(err, content.ErrNotFound) {
			h.log.Warn("manage: delete comment", zap.String("comment_id", c.ID), zap.Error(err))
		}
		return res, nil
	case ActionLog:
		snap, err := h.snapshot(ctx, c.PostID)
		res.Snapshot = snap
		return res, err
	default:
		ann, err := h.set(ctx, c)
		res.AnnouncementID = ann
		return res, err
	}
}

// set forces c as the winner of its post and stops tracking the post so
// the result sticks.
func (h *ManageHandler) set(ctx context.Context, c content.Comment) (string, error) {
	tracked, err := h.store.IsTrackedPost(ctx, c.PostID)
	if err != nil {
		return "", err
	}
	if !tracked {
		return "", errBadRequest{code: "NOT_TRACKED", message: "parent post is not tracked"}
	}
	s, err := h.settings.Settings(ctx)
	if err != nil {
		return "", err
	}
	ann, err := h.announcer.Announce(ctx, c.PostID, announce.RenderWinner(s.StickyTemplate, c))
	if err != nil {
		return "", err
	}
	if err := h.store.SetCommentAnnouncement(ctx, c.ID, ann.ID); err != nil {
		return ann.ID, err
	}
	if err := h.store.SetFinished(ctx, c.PostID, c.ID); err != nil {
		return ann.ID, err
	}
	return ann.ID, h.store.UntrackPost(ctx, c.PostID)
}

// reopen clears the finished marker so the next sweep re-resolves postID.
func (h *ManageHandler) reopen(ctx context.Context, postID string) error {
	winner, err := h.store.FinishedWinner(ctx, postID)
	if err != nil {
		return err
	}
	if err := h.store.DeleteFinished(ctx, postID); err != nil {
		return err
	}
	if winner == "" {
		return nil
	}
	return h.store.DeleteCommentAnnouncement(ctx, winner)
}

func (h *ManageHandler) snapshot(ctx context.Context, postID string) (*Snapshot, error) {
	tracked, err := h.store.TrackedPosts(ctx, 0, math.MaxInt64)
	if err != nil {
		return nil, err
	}
	cands, err := h.store.Candidates(ctx, postID)
	if err != nil {
		return nil, err
	}
	ann, err := h.store.PostAnnouncement(ctx, postID)
	if err != nil {
		return nil, err
	}
	winner, err := h.store.FinishedWinner(ctx, postID)
	if err != nil {
		return nil, err
	}
	s, err := h.settings.Settings(ctx)
	if err != nil {
		return nil, err
	}
	if tracked == nil {
		tracked = []store.TrackedPost{}
	}
	if cands == nil {
		cands = []store.Candidate{}
	}
	return &Snapshot{
		PostID:         postID,
		TrackedPosts:   tracked,
		Candidates:     cands,
		AnnouncementID: ann,
		WinnerID:       winner,
		Settings:       s,
	}, nil
}

func (h *ManageHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.Settings(r.Context())
	if err != nil {
		h.fail(w, r, "", err)
		return
	}
	api.WriteJSON(w, http.StatusOK, s)
}

func (h *ManageHandler) PutSettings(w http.ResponseWriter, r *http.Request) {
	rid := httpserver.RequestIDFromContext(r.Context())
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		api.BadRequest(w, "READ_ERROR", "cannot read body", rid, nil)
		return
	}
	var patch map[string]json.RawMessage
	if err := json.Unmarshal(body, &patch); err != nil || patch == nil {
		api.BadRequest(w, "INVALID_JSON", "body must be a JSON object", rid, nil)
		return
	}
	s, err := h.settings.Update(r.Context(), patch)
	if err != nil {
		h.fail(w, r, "", err)
		return
	}
	moderator, _ := auth.SubjectFromContext(r.Context())
	h.log.Info("settings updated", zap.String("moderator", moderator), zap.Int("keys", len(patch)))
	api.WriteJSON(w, http.StatusOK, s)
}

func (h *ManageHandler) fail(w http.ResponseWriter, r *http.Request, id string, err error) {
	rid := httpserver.RequestIDFromContext(r.Context())
	var bad errBadRequest
	switch {
	case errors.As(err, &bad):
		api.BadRequest(w, bad.code, bad.message, rid, nil)
	case errors.Is(err, content.ErrNotFound):
		api.NotFound(w, "NOT_FOUND", "post or comment not found", rid)
	case errors.Is(err, store.ErrInvalidID):
		api.BadRequest(w, "INVALID_ID", err.Error(), rid, nil)
	case errors.Is(err, config.ErrUnknownSetting), errors.Is(err, config.ErrInvalidSetting):
		api.BadRequest(w, "INVALID_SETTING", err.Error(), rid, nil)
	default:
		h.log.Error("manage request failed", zap.String("id", id), zap.String("path", r.URL.Path), zap.Error(err))
		api.Internal(w, rid)
	}
}

func knownAction(action string) bool {
	switch action {
	case ActionTrack, ActionUntrack, ActionUpdate, ActionDelete, ActionLog, ActionSet:
		return true
	}
	return false
}

func unknownAction(action string) error {
	return errBadRequest{code: "INVALID_ACTION", message: "unknown action " + action}
}
