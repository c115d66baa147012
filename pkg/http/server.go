package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"RiskGraph/pkg/http/middleware"
	applogger "RiskGraph/pkg/logger"
)

// Handler registers routes on the server.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}

type ServerOption func(*Server)

// Server is an echo instance with logging, recovery, CORS, request ids and
// Prometheus metrics already mounted.
type Server struct {
	echo *echo.Echo
	log  *applogger.Logger

	host          string
	port          int
	readTimeout   time.Duration
	writeTimeout  time.Duration
	bodyLimit     string
	corsOrigins   []string
	metricsPath   string
	slowThreshold time.Duration
	registry      *prometheus.Registry
}

func NewServer(handler Handler, opts ...ServerOption) *Server {
	s := &Server{
		log:           applogger.NewNop(),
		host:          "0.0.0.0",
		port:          8080,
		readTimeout:   10 * time.Second,
		writeTimeout:  10 * time.Second,
		bodyLimit:     "1M",
		corsOrigins:   []string{"*"},
		metricsPath:   "/metrics",
		slowThreshold: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = s.readTimeout
	e.Server.WriteTimeout = s.writeTimeout
	e.HTTPErrorHandler = s.handleError

	var (
		reg      prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if s.registry != nil {
		reg, gatherer = s.registry, s.registry
	}

	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogging(s.log))
	e.Use(middleware.Metrics(reg, s.log, s.slowThreshold))
	e.Use(echomw.RecoverWithConfig(echomw.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			s.log.Error("http handler panic",
				applogger.String("path", c.Path()),
				applogger.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
				applogger.String("stack", string(stack)),
				applogger.Error(err),
			)
			return err
		},
	}))
	if s.bodyLimit != "" {
		e.Use(echomw.BodyLimit(s.bodyLimit))
	}
	if len(s.corsOrigins) > 0 {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins: s.corsOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}

	if handler != nil {
		handler.RegisterRoutes(e)
	}
	if s.metricsPath != "" {
		e.GET(s.metricsPath, echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	s.echo = e
	return s
}

// handleError renders errors that escape handlers (unknown routes, body
// limit, panics) in the same envelope as handler responses.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status := http.StatusInternalServerError
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
	}
	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(status)
	} else {
		werr = DataResponse(c, status, http.StatusText(status))
	}
	if werr != nil {
		s.log.Warn("write error response", applogger.Error(werr))
	}
}

// Start listens in the background. Listen errors are logged.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	go func() {
		s.log.Info("http server: listening", applogger.String("addr", addr))
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server error", applogger.Error(err))
		}
	}()
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.log.Info("http server: stopped gracefully")
	return nil
}

func (s *Server) Echo() *echo.Echo { return s.echo }

func WithHost(host string) ServerOption {
	return func(s *Server) { s.host = host }
}

func WithPort(port int) ServerOption {
	return func(s *Server) { s.port = port }
}

func WithTimeouts(read, write time.Duration) ServerOption {
	return func(s *Server) {
		if read > 0 {
			s.readTimeout = read
		}
		if write > 0 {
			s.writeTimeout = write
		}
	}
}

// WithBodyLimit caps request bodies, e.g. "512K". Empty disables the limit.
func WithBodyLimit(limit string) ServerOption {
	return func(s *Server) { s.bodyLimit = limit }
}

// WithCORSOrigins sets the allowed origins. None disables CORS handling.
func WithCORSOrigins(origins ...string) ServerOption {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithMetricsPath sets the scrape path. Empty disables the endpoint.
func WithMetricsPath(path string) ServerOption {
	return func(s *Server) { s.metricsPath = path }
}

// WithRegistry serves and records HTTP metrics on reg instead of the default registry.
func WithRegistry(reg *prometheus.Registry) ServerOption {
	return func(s *Server) { s.registry = reg }
}

func WithLogger(l *applogger.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithSlowThreshold sets the latency above which requests are logged as slow.
func WithSlowThreshold(d time.Duration) ServerOption {
	return func(s *Server) { s.slowThreshold = d }
}
