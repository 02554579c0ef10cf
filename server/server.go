// Package server exposes the query service over HTTP.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/razeghi71/dqserve/auth"
	"github.com/razeghi71/dqserve/qerr"
	"github.com/razeghi71/dqserve/service"
)

// Options configures the HTTP layer.
type Options struct {
	BodyLimit   string
	CORSOrigins []string
}

// Server is the HTTP front end of a service.Service.
type Server struct {
	echo     *echo.Echo
	svc      *service.Service
	verifier *auth.Verifier
	logger   *slog.Logger
}

// New builds the router with its middleware.
func New(svc *service.Service, verifier *auth.Verifier, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e, svc: svc, verifier: verifier, logger: logger}
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"request_id", v.RequestID,
			}
			if id, ok := auth.FromContext(c.Request().Context()); ok {
				attrs = append(attrs, "user_id", id.UserID)
			}
			if v.Error != nil {
				logger.Warn("Request failed", append(attrs, "error", v.Error)...)
				return nil
			}
			logger.Info("Request handled", attrs...)
			return nil
		},
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: opts.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType},
	}))
	if opts.BodyLimit != "" {
		e.Use(middleware.BodyLimit(opts.BodyLimit))
	}

	e.GET("/", s.health)

	e.POST("/upload", s.upload, s.authenticate)
	e.POST("/query", s.query, s.authenticate)
	e.POST("/query/download", s.download, s.authenticate)
	e.POST("/describe", s.describe, s.authenticate)
	e.GET("/uploads", s.listUploads, s.authenticate)
	e.DELETE("/uploads/:id", s.deleteUpload, s.authenticate)
	e.GET("/profile", s.profile, s.authenticate)

	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("Server listening", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// authenticate requires a valid bearer token and stores the caller on the
// request context.
func (s *Server) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		id, err := s.verifier.Verify(header)
		if err != nil {
			return &qerr.Error{Kind: qerr.KindUnauthorized, Op: qerr.NoOp, Msg: "missing or invalid bearer token", Err: err}
		}
		req := c.Request()
		c.SetRequest(req.WithContext(auth.WithIdentity(req.Context(), id)))
		return next(c)
	}
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var body ErrorResponse
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg, ok := he.Message.(string)
		if !ok {
			msg = http.StatusText(he.Code)
		}
		body = ErrorResponse{Error: msg, Status: he.Code}
	} else {
		body = NewErrorResponse(err)
	}
	if body.Status >= http.StatusInternalServerError {
		s.logger.Error("Internal error", "path", c.Path(), "error", err)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(body.Status)
	} else {
		err = c.JSON(body.Status, body)
	}
	if err != nil {
		s.logger.Error("Failed to write error response", "error", err)
	}
}
