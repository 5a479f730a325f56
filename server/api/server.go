package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/andydunstall/meshmaster/pkg/log"
	"github.com/andydunstall/meshmaster/pkg/middleware"
	"github.com/andydunstall/meshmaster/server/cluster"
)

// Server is the API HTTP server, which local processes use to publish and
// unpublish topics and to lookup the publishers of a topic across the
// cluster.
type Server struct {
	registry  *cluster.Registry
	directory *cluster.Directory

	// shutdown requests the node shuts down.
	shutdown func()

	httpServer *http.Server

	router *gin.Engine

	logger log.Logger
}

func NewServer(
	registry *cluster.Registry,
	directory *cluster.Directory,
	shutdown func(),
	metricsRegistry *prometheus.Registry,
	logger log.Logger,
) *Server {
	logger = logger.WithSubsystem("api")

	router := gin.New()
	server := &Server{
		registry:  registry,
		directory: directory,
		shutdown:  shutdown,
		httpServer: &http.Server{
			Handler:  router,
			ErrorLog: logger.StdLogger(zapcore.WarnLevel),
		},
		router: router,
		logger: logger,
	}

	// Recover from panics.
	router.Use(gin.CustomRecoveryWithWriter(nil, server.panicRoute))

	router.Use(middleware.NewLogger(logger))

	if metricsRegistry != nil {
		metrics := middleware.NewMetrics("api")
		metrics.Register(metricsRegistry)
		router.Use(metrics.Handler())
	}

	server.registerRoutes(router)

	return server
}

func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info(
		"starting api server",
		zap.String("addr", ln.Addr().String()),
	)

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http serve: %w", err)
	}
	return nil
}

// Shutdown attempts to gracefully shutdown the server by waiting for pending
// requests to complete.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes(router *gin.Engine) {
	v1 := router.Group("/v1")
	v1.POST("/publishers", s.publishRoute)
	v1.DELETE("/publishers", s.unpublishRoute)
	v1.GET("/publishers", s.lookupRoute)
	v1.POST("/subscribers", s.subscribeRoute)
	v1.DELETE("/subscribers", s.unsubscribeRoute)
	v1.GET("/pid", s.pidRoute)
	v1.GET("/uri", s.uriRoute)
	v1.POST("/shutdown", s.shutdownRoute)
}

// publishRoute registers a local publisher and returns the known publishers
// of the topic, including the new publisher.
func (s *Server) publishRoute(c *gin.Context) {
	var req PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	s.registry.Register(req.Topic, req.Port)

	c.JSON(http.StatusOK, &PublishersResponse{
		Topic:      req.Topic,
		Publishers: s.directory.Resolve(req.Topic),
	})
}

func (s *Server) unpublishRoute(c *gin.Context) {
	var req PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	s.registry.Unregister(req.Topic, req.Port)

	c.JSON(http.StatusOK, &PublishersResponse{
		Topic:      req.Topic,
		Publishers: s.directory.Resolve(req.Topic),
	})
}

func (s *Server) lookupRoute(c *gin.Context) {
	topic, ok := c.GetQuery("topic")
	if !ok || topic == "" {
		c.JSON(http.StatusBadRequest, &errorResponse{Error: "missing topic"})
		return
	}

	c.JSON(http.StatusOK, &PublishersResponse{
		Topic:      topic,
		Publishers: s.directory.Resolve(topic),
	})
}

// subscribeRoute returns the known publishers of the topic. Subscribers
// aren't tracked, so subscribing is equivalent to a lookup.
func (s *Server) subscribeRoute(c *gin.Context) {
	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}

	c.JSON(http.StatusOK, &PublishersResponse{
		Topic:      req.Topic,
		Publishers: s.directory.Resolve(req.Topic),
	})
}

// unsubscribeRoute accepts a request to unregister a subscriber. As
// subscribers aren't tracked there is nothing to remove.
func (s *Server) unsubscribeRoute(c *gin.Context) {
	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (s *Server) pidRoute(c *gin.Context) {
	c.JSON(http.StatusOK, &PIDResponse{PID: os.Getpid()})
}

// uriRoute returns the URI of the API server, using the address of the
// listener that accepted the request.
func (s *Server) uriRoute(c *gin.Context) {
	addr, ok := c.Request.Context().Value(http.LocalAddrContextKey).(net.Addr)
	if !ok {
		c.Status(http.StatusInternalServerError)
		return
	}
	c.JSON(http.StatusOK, &URIResponse{URI: "http://" + addr.String()})
}

func (s *Server) shutdownRoute(c *gin.Context) {
	s.logger.Info("shutdown requested", zap.String("client-ip", c.ClientIP()))

	if s.shutdown != nil {
		s.shutdown()
	}
	c.Status(http.StatusOK)
}

func (s *Server) badRequest(c *gin.Context, err error) {
	s.logger.Debug("bad request", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusBadRequest, &errorResponse{Error: err.Error()})
}

func (s *Server) panicRoute(c *gin.Context, err any) {
	s.logger.Error(
		"handler panic",
		zap.String("path", c.FullPath()),
		zap.Any("err", err),
	)
	c.AbortWithStatus(http.StatusInternalServerError)
}

func init() {
	// Disable Gin debug logs.
	gin.SetMode(gin.ReleaseMode)
}
