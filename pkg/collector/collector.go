// Package collector is a small local endpoint that accepts analytics
// batches. It is meant for development: point a client at it to see what
// would be sent, or force failures to exercise error handling.
package collector

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/docker/eventreporter/pkg/analytics"
	"github.com/docker/eventreporter/pkg/concurrent"
)

// ClientStats are the counters kept per client ID.
type ClientStats struct {
	AppName     string         `json:"app_name"`
	Batches     int            `json:"batches"`
	Events      int            `json:"events"`
	EmptyBatch  int            `json:"empty_batches"`
	ByType      map[string]int `json:"by_type"`
	LastBatchID string         `json:"last_batch_id"`
	LastSeen    time.Time      `json:"last_seen"`
}

type Collector struct {
	e       *echo.Echo
	status  int
	clients *concurrent.Map[string, ClientStats]
}

type Opt func(*Collector)

// WithStatus makes /collect answer every batch with code. Batches are
// not counted while a non-2xx code is forced.
func WithStatus(code int) Opt {
	return func(c *Collector) {
		c.status = code
	}
}

func New(opts ...Opt) *Collector {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.RequestLogger())

	c := &Collector{
		e:       e,
		status:  http.StatusNoContent,
		clients: concurrent.NewMap[string, ClientStats](),
	}
	for _, opt := range opts {
		opt(c)
	}

	e.POST("/collect", c.collect)
	e.GET("/stats", c.stats)

	// Health check endpoint
	e.GET("/ping", func(ec echo.Context) error {
		return ec.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	return c
}

// Handler exposes the routes for use with httptest.
func (c *Collector) Handler() http.Handler {
	return c.e
}

// Stats returns a copy of the per-client counters.
func (c *Collector) Stats() map[string]ClientStats {
	return c.clients.Snapshot()
}

func (c *Collector) collect(ec echo.Context) error {
	var req analytics.Request
	if err := ec.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid batch: "+err.Error())
	}
	if req.BatchID == "" || req.ClientID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "batch_id and client_id are required")
	}

	if c.status < 200 || c.status >= 300 {
		slog.Debug("Rejecting batch", "batch_id", req.BatchID, "status", c.status)
		return ec.JSON(c.status, map[string]string{"error": http.StatusText(c.status)})
	}

	c.clients.Update(req.ClientID, func(s ClientStats) ClientStats {
		// Snapshot hands out the stored maps, so never mutate them in place.
		s.ByType = maps.Clone(s.ByType)
		if s.ByType == nil {
			s.ByType = map[string]int{}
		}

		s.AppName = req.AppName
		s.Batches++
		s.Events += len(req.Records)
		if len(req.Records) == 0 {
			s.EmptyBatch++
		}
		for _, r := range req.Records {
			s.ByType[string(r.Event)]++
		}
		s.LastBatchID = req.BatchID
		s.LastSeen = time.Now()
		return s
	})

	slog.Debug("Batch accepted", "batch_id", req.BatchID, "client_id", req.ClientID, "events", len(req.Records))
	return ec.NoContent(c.status)
}

func (c *Collector) stats(ec echo.Context) error {
	return ec.JSON(http.StatusOK, c.Stats())
}

// Serve handles requests on ln until ctx is done.
func (c *Collector) Serve(ctx context.Context, ln net.Listener) error {
	srv := http.Server{
		Handler:           c.e,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
		slog.Error("Failed to start collector", "error", err)
		return err
	}

	return nil
}
