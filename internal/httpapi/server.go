// Package httpapi exposes the engine over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/petrijr/docflow/pkg/api"
)

const basePath = "/api/v1"

// Runner starts instances and delivers signals. *worker.Worker implements
// it: starts are queued, signals are delivered synchronously so the
// caller learns whether the signal was accepted.
type Runner interface {
	EnqueueStart(ctx context.Context, props api.DocumentProperties) (*api.Instance, error)
	Signal(ctx context.Context, id string, name api.SignalName, payload any) (*api.SignalResult, error)
}

// Options configures the HTTP handler.
type Options struct {
	Engine api.Engine
	Runner Runner

	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger

	// PageSize is used when a list request does not set one.
	PageSize int
	Now      func() time.Time
}

type handler struct {
	engine   api.Engine
	runner   Runner
	logger   *slog.Logger
	pageSize int
	now      func() time.Time
}

// New returns the gin engine serving the docflow API.
func New(opts Options) *gin.Engine {
	h := &handler{
		engine:   opts.Engine,
		runner:   opts.Runner,
		logger:   opts.Logger,
		pageSize: opts.PageSize,
		now:      opts.Now,
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.pageSize <= 0 {
		h.pageSize = api.DefaultPageSize
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := gin.New()
	r.Use(gin.Recovery(), h.requestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := r.Group(basePath)
	{
		v1.POST("/instances", h.start)
		v1.GET("/instances", h.list)
		v1.GET("/instances/:id", h.get)
		v1.GET("/instances/:id/history", h.history)
		v1.POST("/instances/:id/events/:signal", h.signal)
	}
	return r
}

func (h *handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.DebugContext(c.Request.Context(), "http_request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	}
}

func (h *handler) start(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("%v: %v", api.ErrInvalidInput, err)})
		return
	}

	var (
		inst *api.Instance
		err  error
	)
	if h.runner != nil {
		inst, err = h.runner.EnqueueStart(c.Request.Context(), req.properties())
	} else {
		inst, err = h.engine.Start(c.Request.Context(), req.properties())
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	handle := newCheckStatus(basePath, inst.ID)
	c.Header("Location", handle.StatusQueryGetURI)
	c.JSON(http.StatusAccepted, handle)
}

func (h *handler) signal(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	id := c.Param("id")
	name := api.SignalName(c.Param("signal"))
	payload := json.RawMessage(body)

	var res *api.SignalResult
	if h.runner != nil {
		res, err = h.runner.Signal(c.Request.Context(), id, name, payload)
	} else {
		res, err = h.engine.Signal(c.Request.Context(), id, name, payload)
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, signalResponse{
		Delivery: res.Delivery,
		Instance: newInstanceResponse(res.Instance),
	})
}

func (h *handler) get(c *gin.Context) {
	inst, err := h.engine.GetInstance(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newInstanceResponse(inst))
}

func (h *handler) history(c *gin.Context) {
	entries, err := h.engine.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]historyEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyEntry{
			Sequence:   e.Sequence,
			Kind:       e.Kind,
			Name:       e.Name,
			RecordedAt: e.RecordedAt,
			Payload:    e.Payload,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) list(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("%v: %v", api.ErrInvalidInput, err)})
		return
	}
	opts, err := h.listOptions(q)
	if err != nil {
		h.fail(c, err)
		return
	}

	page, err := h.engine.ListInstances(c.Request.Context(), opts)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponse{Instances: page.Instances, NextPageToken: page.NextPageToken})
}

// listOptions applies the defaults of the list endpoint: the configured
// page size and a window over the last seven days.
func (h *handler) listOptions(q listQuery) (api.InstanceListOptions, error) {
	opts := api.InstanceListOptions{
		PageSize:     q.PageSize,
		PageToken:    q.PageToken,
		CreatedAfter: h.now().Add(-api.DefaultLookback),
	}
	if opts.PageSize == 0 {
		opts.PageSize = h.pageSize
	}
	if q.CreatedAfter != "" {
		t, err := time.Parse(time.RFC3339Nano, q.CreatedAfter)
		if err != nil {
			return opts, fmt.Errorf("%w: createdAfter: %v", api.ErrInvalidInput, err)
		}
		opts.CreatedAfter = t
	}
	for _, s := range q.Status {
		st, err := api.ParseRuntimeState(s)
		if err != nil {
			return opts, err
		}
		opts.States = append(opts.States, st)
	}
	return opts, nil
}

func (h *handler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, api.ErrInstanceNotFound):
		status = http.StatusNotFound
	case api.IsClientError(err):
		status = http.StatusBadRequest
	default:
		h.logger.ErrorContext(c.Request.Context(), "request_failed",
			slog.String("path", c.FullPath()),
			slog.Any("error", err),
		)
	}
	c.JSON(status, errorResponse{Error: err.Error()})
}
