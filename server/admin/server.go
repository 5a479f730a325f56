package admin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/andydunstall/meshmaster/pkg/log"
	"github.com/andydunstall/meshmaster/pkg/middleware"
	"github.com/andydunstall/meshmaster/server/status"
)

// Server serves the nodes admin endpoints: health checks, Prometheus metrics
// and the status routes used by 'meshmaster status'.
//
// Unlike the API server, the admin server binds to all interfaces by default
// so operators can inspect a node remotely.
type Server struct {
	httpServer *http.Server
	router     *gin.Engine

	metricsRegistry *prometheus.Registry

	logger log.Logger
}

// NewServer creates the admin server. If metricsRegistry is nil the
// '/metrics' route is not registered.
func NewServer(metricsRegistry *prometheus.Registry, logger log.Logger) *Server {
	logger = logger.WithSubsystem("admin")

	router := gin.New()
	s := &Server{
		httpServer: &http.Server{
			Handler:  router,
			ErrorLog: logger.StdLogger(zapcore.WarnLevel),
		},
		router:          router,
		metricsRegistry: metricsRegistry,
		logger:          logger,
	}

	router.Use(gin.CustomRecoveryWithWriter(nil, s.panicRoute))
	router.Use(middleware.NewLogger(logger))

	router.GET("/health", s.healthRoute)
	if metricsRegistry != nil {
		router.GET("/metrics", s.metricsRoute())
	}

	return s
}

func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info(
		"starting admin server",
		zap.String("addr", ln.Addr().String()),
	)

	err := s.httpServer.Serve(ln)
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("http serve: %w", err)
}

// Shutdown stops accepting requests and waits for in-flight requests to
// complete, until ctx is cancelled.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// AddStatus registers the status handler routes under '/status/{route}'.
func (s *Server) AddStatus(route string, handler status.Handler) {
	group := s.router.Group("/status").Group(route)
	handler.Register(group)
}

func (s *Server) healthRoute(c *gin.Context) {
	c.Status(http.StatusOK)
}

func (s *Server) metricsRoute() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(
		s.metricsRegistry,
		promhttp.HandlerOpts{Registry: s.metricsRegistry},
	))
}

func (s *Server) panicRoute(c *gin.Context, err any) {
	s.logger.Error(
		"admin handler panic",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Any("err", err),
	)
	c.AbortWithStatus(http.StatusInternalServerError)
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}
