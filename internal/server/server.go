package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mohammad-safakhou/ideascope/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the HTTP surface over the run service.
type Server struct {
	echo   *echo.Echo
	runs   *RunsHandler
	logger *log.Logger
}

// New wires the routes. tel may be nil, in which case /metrics serves the
// default prometheus registry.
func New(runs *RunsHandler, tel *telemetry.Telemetry) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if tel != nil {
		e.GET("/metrics", echo.WrapHandler(tel.Handler()))
		e.GET("/api/ops/performance", func(c echo.Context) error {
			return c.JSON(http.StatusOK, tel.GetMetrics())
		})
	} else {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}
	runs.Register(e.Group("/api/runs"))

	return &Server{echo: e, runs: runs, logger: baseLogger}
}

func (s *Server) Handler() http.Handler { return s.echo }

// Run serves on addr until ctx is done, then drains in-flight requests and
// waits for background runs to finish.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("listening on %s", addr)
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.runs.Wait()
	return nil
}
