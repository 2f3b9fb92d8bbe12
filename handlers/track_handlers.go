package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"mabletask/tracker/logger"
	"mabletask/tracker/middleware"
	"mabletask/tracker/models"
	"mabletask/tracker/tracker"
)

const (
	visitorCookie    = "bt_visitor"
	visitorCookieAge = 365 * 24 * 60 * 60
	unloadTimeout    = 10 * time.Second
)

// TrackHandlers forwards client events to the live session trackers.
type TrackHandlers struct {
	Registry *tracker.Registry
	log      logger.Logger
}

func NewTrackHandlers(reg *tracker.Registry, log logger.Logger) *TrackHandlers {
	return &TrackHandlers{Registry: reg, log: log}
}

type startSessionRequest struct {
	models.Environment
	// Path is the landing page path; defaults to the path of url.
	Path string `json:"path"`
}

// StartSession creates a tracked session from the client's environment.
func (h *TrackHandlers) StartSession(c *gin.Context) {
	var req startSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}
	}

	env := req.Environment
	if env.UserAgent == "" {
		env.UserAgent = c.Request.UserAgent()
	}
	env.AcceptLanguage = c.GetHeader("Accept-Language")
	if env.VisitorID == "" {
		env.VisitorID = h.visitorID(c)
	}

	t := h.Registry.Start(middleware.UserID(c), env, req.Path)
	c.JSON(http.StatusCreated, gin.H{"session_id": t.SessionID()})
}

// visitorID returns the durable visitor cookie, issuing one when missing.
func (h *TrackHandlers) visitorID(c *gin.Context) string {
	if id, err := c.Cookie(visitorCookie); err == nil && id != "" {
		return id
	}
	id := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(visitorCookie, id, visitorCookieAge, "/", "", false, true)
	return id
}

// session resolves :id or writes a 404.
func (h *TrackHandlers) session(c *gin.Context) (*tracker.Tracker, bool) {
	t, ok := h.Registry.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return nil, false
	}
	return t, true
}

type identifyRequest struct {
	UserID string `json:"user_id"`
}

// Identify attaches a user id from the body or, failing that, from the
// request's token.
func (h *TrackHandlers) Identify(c *gin.Context) {
	t, ok := h.session(c)
	if !ok {
		return
	}

	var req identifyRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}
	}
	userID := req.UserID
	if userID == "" {
		if id := middleware.UserID(c); id != nil {
			userID = *id
		}
	}
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	t.Identify(userID)
	c.Status(http.StatusNoContent)
}

type pageViewRequest struct {
	Path string `json:"path" binding:"required"`
}

func (h *TrackHandlers) PageView(c *gin.Context) {
	t, ok := h.session(c)
	if !ok {
		return
	}
	var req pageViewRequest
	if !bind(c, &req) {
		return
	}
	t.TrackPageView(req.Path)
	c.Status(http.StatusNoContent)
}

type productViewRequest struct {
	ProductID string  `json:"product_id" binding:"required"`
	Price     float64 `json:"price"      binding:"gte=0"`
	Category  string  `json:"category"`
}

func (h *TrackHandlers) ProductView(c *gin.Context) {
	t, ok := h.session(c)
	if !ok {
		return
	}
	var req productViewRequest
	if !bind(c, &req) {
		return
	}
	t.TrackProductView(req.ProductID, req.Price, req.Category)
	c.Status(http.StatusNoContent)
}

type cartRequest struct {
	Action string `json:"action" binding:"required,oneof=add remove"`
}

func (h *TrackHandlers) CartAction(c *gin.Context) {
	t, ok := h.session(c)
	if !ok {
		return
	}
	var req cartRequest
	if !bind(c, &req) {
		return
	}
	t.TrackCartAction(tracker.CartDirection(req.Action))
	c.Status(http.StatusNoContent)
}

type searchRequest struct {
	Query string `json:"query"`
}

func (h *TrackHandlers) Search(c *gin.Context) {
	t, ok := h.session(c)
	if !ok {
		return
	}
	var req searchRequest
	if !bind(c, &req) {
		return
	}
	t.TrackSearch(req.Query)
	c.Status(http.StatusNoContent)
}

func (h *TrackHandlers) FilterUsage(c *gin.Context) {
	h.latch(c, (*tracker.Tracker).TrackFilterUsage)
}

func (h *TrackHandlers) ReviewsRead(c *gin.Context) {
	h.latch(c, (*tracker.Tracker).TrackReviewsRead)
}

func (h *TrackHandlers) SizeGuideView(c *gin.Context) {
	h.latch(c, (*tracker.Tracker).TrackSizeGuideView)
}

func (h *TrackHandlers) latch(c *gin.Context, fn func(*tracker.Tracker)) {
	t, ok := h.session(c)
	if !ok {
		return
	}
	fn(t)
	c.Status(http.StatusNoContent)
}

// Interaction types accepted by the interaction endpoint.
const (
	InteractionClick   = "click"
	InteractionScroll  = "scroll"
	InteractionPointer = "pointer"
	InteractionKey     = "key"
	InteractionTouch   = "touch"
)

type interactionRequest struct {
	Type   string                  `json:"type"   binding:"required,oneof=click scroll pointer key touch"`
	Scroll *tracker.ScrollPosition `json:"scroll"`
}

func (h *TrackHandlers) Interaction(c *gin.Context) {
	t, ok := h.session(c)
	if !ok {
		return
	}
	var req interactionRequest
	if !bind(c, &req) {
		return
	}

	switch req.Type {
	case InteractionClick:
		t.OnClick()
	case InteractionScroll:
		if req.Scroll == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "scroll position is required for scroll events"})
			return
		}
		t.OnScroll(*req.Scroll)
	case InteractionPointer:
		t.OnPointerMove()
	case InteractionKey:
		t.OnKeyPress()
	case InteractionTouch:
		t.OnTouchStart()
	}
	c.Status(http.StatusNoContent)
}

type visibilityRequest struct {
	Visible *bool `json:"visible" binding:"required"`
}

func (h *TrackHandlers) Visibility(c *gin.Context) {
	t, ok := h.session(c)
	if !ok {
		return
	}
	var req visibilityRequest
	if !bind(c, &req) {
		return
	}
	t.SetVisibility(*req.Visible)
	c.Status(http.StatusNoContent)
}

// Unload flushes the session and ends it. Unknown sessions are accepted
// since unload beacons may race with eviction.
func (h *TrackHandlers) Unload(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), unloadTimeout)
	defer cancel()

	if !h.Registry.End(ctx, c.Param("id")) {
		h.log.Debug("Unload for unknown session", logger.String("session_id", c.Param("id")))
	}
	c.Status(http.StatusNoContent)
}

// Metrics returns the live metrics tree of a session.
func (h *TrackHandlers) Metrics(c *gin.Context) {
	t, ok := h.session(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"state":   t.State().String(),
		"metrics": t.Metrics(),
	})
}

// HealthCheck reports liveness and the number of live sessions.
func (h *TrackHandlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": h.Registry.Len(),
	})
}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return false
	}
	return true
}
