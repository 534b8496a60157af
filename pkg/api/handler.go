// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prebid/openrtb/v20/openrtb2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/luxfi/vastplayer/pkg/log"
	"github.com/luxfi/vastplayer/pkg/metric"
	"github.com/luxfi/vastplayer/pkg/monitor"
	"github.com/luxfi/vastplayer/pkg/session"
	"github.com/luxfi/vastplayer/pkg/vast"
)

// ResolveQuery holds the query parameters of GET /vast/resolve.
type ResolveQuery struct {
	URL        string   `form:"url" binding:"required"`
	MIMETypes  []string `form:"mime"`
	Deliveries []string `form:"delivery"`
	DW         int      `form:"dw" binding:"min=0"`
	DH         int      `form:"dh" binding:"min=0"`
	PlayerSize string   `form:"playersize"` // WxH, overrides dw/dh
	MaxBitrate int      `form:"maxbitrate" binding:"min=0"`
}

// ResolveRequest is the body of POST /vast/resolve. The OpenRTB video
// object, when present, replaces the server's default capabilities.
type ResolveRequest struct {
	URL   string          `json:"url" binding:"required"`
	Video *openrtb2.Video `json:"video,omitempty"`
}

// ResolveResponse is returned for a resolved ad.
type ResolveResponse struct {
	SessionID string         `json:"session_id"`
	Media     vast.MediaFile `json:"media"`
	Model     *vast.Model    `json:"model"`
}

// EventRequest reports a lifecycle event or a progress sample.
type EventRequest struct {
	Event     string  `json:"event,omitempty"`
	Position  float64 `json:"position,omitempty"` // seconds
	Duration  float64 `json:"duration,omitempty"` // seconds
	ErrorCode int     `json:"error_code,omitempty"`
}

// EventResponse lists the events the request fired.
type EventResponse struct {
	Fired  []vast.Event `json:"fired"`
	Closed bool         `json:"closed"`
}

// ErrorResponse describes a failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Code  int    `json:"code,omitempty"`
}

// Config wires a Handler. Fetcher and Sessions are required.
type Config struct {
	Fetcher         vast.Fetcher
	ResolverOptions []vast.Option
	Capabilities    vast.Capabilities
	Sessions        *session.Store
	Monitor         *monitor.Hub
	Metrics         *metric.Metrics
	Logger          log.Logger
}

// Handler serves ad resolution and server-side tracking sessions.
type Handler struct {
	cfg Config
	log log.Logger
}

// NewHandler creates a handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NoLog
	}
	return &Handler{cfg: cfg, log: logger}
}

// Router returns a gin engine serving every route.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes mounts the handler on r.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.HandleHealth)
	if h.cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.cfg.Metrics.GetGatherer(), promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/api/v1")
	v1.GET("/vast/resolve", h.HandleResolveQuery)
	v1.POST("/vast/resolve", h.HandleResolve)
	v1.POST("/sessions/:id/events", h.HandleEvent)
	v1.POST("/sessions/:id/click", h.HandleClick)
	v1.DELETE("/sessions/:id", h.HandleClose)
	if h.cfg.Monitor != nil {
		v1.GET("/monitor", gin.WrapH(h.cfg.Monitor))
	}
}

// HandleHealth reports liveness.
func (h *Handler) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"sessions": h.cfg.Sessions.Len(),
	})
}

// HandleResolveQuery resolves the ad at ?url= against capabilities taken
// from the query string, falling back to the server defaults.
func (h *Handler) HandleResolveQuery(c *gin.Context) {
	var q ResolveQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request parameters: " + err.Error()})
		return
	}

	caps := h.cfg.Capabilities
	if len(q.MIMETypes) > 0 {
		caps.MIMETypes = splitList(q.MIMETypes)
	}
	if len(q.Deliveries) > 0 {
		caps.Deliveries = splitList(q.Deliveries)
	}
	if q.DW > 0 && q.DH > 0 {
		caps.DisplayWidth, caps.DisplayHeight = q.DW, q.DH
	}
	if q.PlayerSize != "" {
		w, hgt, ok := parseSize(q.PlayerSize)
		if !ok {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "playersize must be WxH"})
			return
		}
		caps.DisplayWidth, caps.DisplayHeight = w, hgt
	}
	if q.MaxBitrate > 0 {
		caps.MaxBitrate = q.MaxBitrate
	}

	h.resolve(c, q.URL, caps)
}

// HandleResolve resolves the ad named in the JSON body.
func (h *Handler) HandleResolve(c *gin.Context) {
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	caps := h.cfg.Capabilities
	if req.Video != nil {
		caps = vast.CapabilitiesFromVideo(req.Video)
	}
	h.resolve(c, req.URL, caps)
}

func (h *Handler) resolve(c *gin.Context, url string, caps vast.Capabilities) {
	opts := append(append([]vast.Option(nil), h.cfg.ResolverOptions...), vast.WithCapabilities(caps))
	resolver := vast.NewResolver(h.cfg.Fetcher, opts...)

	model, err := resolver.Resolve(c.Request.Context(), url)
	if err != nil {
		h.renderLoadError(c, err)
		return
	}
	media, ok := vast.SelectMediaFile(model.MediaFiles(), caps)
	if !ok {
		h.renderLoadError(c, vast.ErrNoCompatibleMediaFile)
		return
	}

	sess := h.cfg.Sessions.Open(model, media)
	h.log.Info("session opened",
		log.String("session", sess.ID.String()),
		log.String("url", url),
		log.String("media", media.URL))

	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, ResolveResponse{
		SessionID: sess.ID.String(),
		Media:     media,
		Model:     model,
	})
}

func (h *Handler) renderLoadError(c *gin.Context, err error) {
	if ctxErr := c.Request.Context().Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		// Client went away.
		c.Status(499)
		return
	}

	kind := vast.KindOf(err)
	status := http.StatusUnprocessableEntity
	switch kind {
	case vast.KindNoInternetConnection, vast.KindTooManyWrappers:
		status = http.StatusBadGateway
	case vast.KindNone:
		status = http.StatusInternalServerError
	}

	h.log.Info("ad failed to load", log.Stringer("kind", kind), log.Error(err))
	c.JSON(status, ErrorResponse{
		Error: err.Error(),
		Kind:  kind.String(),
		Code:  kind.Code(),
	})
}

// HandleEvent applies a lifecycle event, progress sample or error report
// to a session.
func (h *Handler) HandleEvent(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	fired := []vast.Event{}
	switch {
	case req.ErrorCode > 0:
		sess.Processor.TrackError(req.ErrorCode)
	case strings.TrimSpace(req.Event) != "":
		ev := vast.ParseEvent(req.Event)
		if sess.Processor.Track(ev) {
			fired = append(fired, ev)
		}
	case req.Position > 0:
		fired = append(fired, sess.Processor.Progress(seconds(req.Position), seconds(req.Duration))...)
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "one of event, position or error_code is required"})
		return
	}

	c.JSON(http.StatusOK, EventResponse{Fired: fired, Closed: sess.Processor.Closed()})
}

// HandleClick fires click tracking and returns the click-through URL.
func (h *Handler) HandleClick(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	url, ok := sess.Processor.Click()
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, gin.H{"click_through": url})
}

// HandleClose closes a session.
func (h *Handler) HandleClose(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid session id"})
		return
	}
	if !h.cfg.Sessions.Close(id) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "session not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) session(c *gin.Context) (*session.Session, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid session id"})
		return nil, false
	}
	sess, ok := h.cfg.Sessions.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "session not found"})
		return nil, false
	}
	return sess, true
}

// splitList accepts both repeated parameters and comma separated values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func parseSize(s string) (int, int, bool) {
	ws, hs, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, false
	}
	w, err := strconv.Atoi(ws)
	if err != nil || w <= 0 {
		return 0, 0, false
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
