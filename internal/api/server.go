// Package api exposes the tracker over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"memeWatch/internal/marketdata"
	"memeWatch/internal/model"
	"memeWatch/internal/tracker"
)

// Registry is the registry surface the API needs.
type Registry interface {
	Add(ctx context.Context, address string) (model.TrackedToken, error)
	List(ctx context.Context, address string) ([]model.TrackedToken, error)
}

// Refresher is the refresher surface the API needs.
type Refresher interface {
	Refresh(ctx context.Context, now time.Time) (tracker.RefreshResult, error)
	LastResult() (tracker.RefreshResult, bool)
	LastRun(ctx context.Context) (time.Time, bool, error)
}

// Options holds the server's collaborators. Source and Validator back the
// save-token route; Gatherer, EnvCheck and Clock are optional.
type Options struct {
	Registry  Registry
	Refresher Refresher
	Source    marketdata.Source
	Validator tracker.Validator
	Gatherer  prometheus.Gatherer
	EnvCheck  map[string]string
	Clock     func() time.Time
	Logger    *zap.Logger
}

// Server serves the tracker API.
type Server struct {
	opts   Options
	engine *gin.Engine
}

// NewServer builds the router.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.EnvCheck == nil {
		opts.EnvCheck = map[string]string{}
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	engine.Use(gin.Recovery(), requestLogger(opts.Logger))

	s := &Server{opts: opts, engine: engine}

	engine.GET("/healthz", s.health)
	if opts.Gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	api := engine.Group("/api")
	api.POST("/save-token", s.saveToken)
	api.POST("/tokens/add", s.addToken)
	api.GET("/tokens/list", s.listTokens)
	api.GET("/tokens/update", s.refresh)
	api.POST("/tokens/update", s.refresh)
	api.GET("/refresh/status", s.refreshStatus)
	api.GET("/env-check", s.envCheck)

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.opts.Logger.Info("http server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

type addRequest struct {
	Address string `json:"address"`
}

func (s *Server) addToken(c *gin.Context) {
	var req addRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	token, err := s.opts.Registry.Add(c.Request.Context(), req.Address)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "token": token})
}

type saveTokenRequest struct {
	TokenAddress string `json:"tokenAddress"`
}

// quickSnapshot is the flat snapshot returned by save-token.
type quickSnapshot struct {
	TokenAddress string    `json:"token_address"`
	MarketCap    float64   `json:"market_cap"`
	Price        float64   `json:"price"`
	Volume5m     float64   `json:"volume_5m"`
	Volume15m    float64   `json:"volume_15m"`
	Volume30m    float64   `json:"volume_30m"`
	Holders      uint64    `json:"holders"`
	CreatedAt    time.Time `json:"created_at"`
}

// saveToken fetches one snapshot for an address without tracking it.
func (s *Server) saveToken(c *gin.Context) {
	if s.opts.Source == nil || s.opts.Validator == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "snapshot source not configured"})
		return
	}

	var req saveTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	address := strings.TrimSpace(req.TokenAddress)
	if err := s.opts.Validator.Validate(address); err != nil {
		s.writeError(c, &tracker.ValidationError{Address: req.TokenAddress, Err: err})
		return
	}

	snap, err := s.opts.Source.FetchSnapshot(c.Request.Context(), address)
	if err == nil {
		err = snap.Validate()
	}
	if err != nil {
		s.writeError(c, &tracker.DependencyError{Op: "fetch snapshot", Address: address, Err: err})
		return
	}

	c.JSON(http.StatusOK, quickSnapshot{
		TokenAddress: address,
		MarketCap:    snap.MarketCap,
		Price:        snap.Price,
		Volume5m:     snap.Volume5m,
		Volume15m:    snap.Volume15m,
		Volume30m:    snap.Volume30m,
		Holders:      snap.Holders,
		CreatedAt:    snap.Timestamp,
	})
}

func (s *Server) listTokens(c *gin.Context) {
	tokens, err := s.opts.Registry.List(c.Request.Context(), c.Query("address"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokens)
}

func (s *Server) refresh(c *gin.Context) {
	res, err := s.opts.Refresher.Refresh(c.Request.Context(), s.opts.Clock())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) refreshStatus(c *gin.Context) {
	lastRun, ok, err := s.opts.Refresher.LastRun(c.Request.Context())
	if err != nil {
		s.writeError(c, &tracker.DependencyError{Op: "load refresh state", Err: err})
		return
	}

	resp := gin.H{"last_run": nil, "last_result": nil}
	if ok {
		resp["last_run"] = lastRun
	}
	if res, ok := s.opts.Refresher.LastResult(); ok {
		resp["last_result"] = res
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) envCheck(c *gin.Context) {
	c.JSON(http.StatusOK, s.opts.EnvCheck)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.opts.Logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	var (
		validation *tracker.ValidationError
		dependency *tracker.DependencyError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.Is(err, tracker.ErrAlreadyTracked), errors.Is(err, tracker.ErrRefreshInProgress):
		return http.StatusConflict
	case errors.As(err, &dependency):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
