package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"citypulse.nyc/pulse/internal/auth"
	"citypulse.nyc/pulse/internal/catalog"
	"citypulse.nyc/pulse/internal/db"
	"citypulse.nyc/pulse/internal/globaltime"
	"citypulse.nyc/pulse/internal/ingest"
)

const maxBatchItems = 500

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// APIKeyHash is the bcrypt hash the intake key is verified against.
	// Empty disables intake authentication (local development).
	APIKeyHash string
}

type Server struct {
	pool     *db.Pool
	ingester *ingest.Service
	catalog  *catalog.Catalog
	logger   zerolog.Logger
	opts     Options
}

type candidateBatchRequest struct {
	Source string            `json:"source"`
	Items  []json.RawMessage `json:"items"`
}

func NewServer(pool *db.Pool, ingester *ingest.Service, cat *catalog.Catalog, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8090
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 30 * time.Second
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	return &Server{
		pool:     pool,
		ingester: ingester,
		catalog:  cat,
		logger:   logger,
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
			APIKeyHash:      strings.TrimSpace(opts.APIKeyHash),
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "X-API-Key"},
		MaxAge:       3600,
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	api := e.Group("/api/v1")
	api.GET("/health", s.handleHealth)
	api.GET("/stats", s.handleStats)
	api.GET("/catalog", s.handleCatalog)
	api.POST("/candidates", s.handleCandidateBatch, s.requireAPIKey())

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("pulse api server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("pulse api server stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		switch v := he.Message.(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				message = v
			}
		default:
			if text := strings.TrimSpace(http.StatusText(status)); text != "" {
				message = text
			}
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message, nil)
}

// requireAPIKey verifies the X-API-Key header against the configured bcrypt
// hash. With no hash configured the check is disabled.
func (s *Server) requireAPIKey() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if s.opts.APIKeyHash == "" {
				return next(c)
			}
			key := strings.TrimSpace(c.Request().Header.Get("X-API-Key"))
			if !auth.VerifyAPIKey(key, s.opts.APIKeyHash) {
				return fail(c, http.StatusUnauthorized, "Invalid or missing API key", nil)
			}
			return next(c)
		}
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return success(c, map[string]any{
		"service": "pulse",
		"time":    globaltime.UTC(),
	})
}

func (s *Server) handleStats(c echo.Context) error {
	stats, err := s.pool.PipelineStats(c.Request().Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("query stats failed")
		return internalError(c, "Failed to load stats")
	}
	return success(c, stats)
}

func (s *Server) handleCatalog(c echo.Context) error {
	types := s.catalog.ContentTypes()
	items := make([]map[string]any, 0, len(types))
	for _, t := range types {
		items = append(items, map[string]any{
			"slug":             t.Slug,
			"urgency":          t.Urgency,
			"windows":          t.PreferredWindows,
			"default_priority": t.DefaultPriority,
			"inverse_of":       t.InverseOf,
		})
	}
	return success(c, map[string]any{
		"content_types": items,
		"windows":       s.catalog.WindowOrder(),
	})
}

func (s *Server) handleCandidateBatch(c echo.Context) error {
	var req candidateBatchRequest
	if err := decodeJSONBody(c, &req); err != nil {
		return failValidation(c, map[string]string{"body": err.Error()})
	}

	source := strings.TrimSpace(strings.ToLower(req.Source))
	if source == "" {
		return failValidation(c, map[string]string{"source": "is required"})
	}
	if len(req.Items) == 0 {
		return failValidation(c, map[string]string{"items": "must not be empty"})
	}
	if len(req.Items) > maxBatchItems {
		return failValidation(c, map[string]string{"items": fmt.Sprintf("must contain at most %d items", maxBatchItems)})
	}

	result, err := s.ingester.IngestBatch(c.Request().Context(), source, req.Items)
	if err != nil {
		s.logger.Error().Err(err).Str("source", source).Msg("ingest batch failed")
		return internalError(c, "Failed to ingest batch")
	}

	response := map[string]any{
		"source":     source,
		"received":   result.Received,
		"invalid":    result.Invalid,
		"duplicates": result.Duplicates,
		"accepted":   result.Accepted,
	}
	if result.Report != nil {
		response["failure_report"] = result.Report
	}
	return success(c, response)
}
