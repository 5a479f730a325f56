package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/go-sockaddr"
	rungroup "github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/andydunstall/meshmaster/pkg/log"
	"github.com/andydunstall/meshmaster/server/admin"
	"github.com/andydunstall/meshmaster/server/api"
	"github.com/andydunstall/meshmaster/server/cluster"
	"github.com/andydunstall/meshmaster/server/config"
	"github.com/andydunstall/meshmaster/server/gossip"
)

// Server is a meshmaster node.
//
// The node serves the API used by local processes to publish and lookup
// topics, gossips its local publishers with the configured peers and serves
// the admin API to inspect the node.
type Server struct {
	gossipLn net.Listener
	apiLn    net.Listener
	adminLn  net.Listener

	registry   *cluster.Registry
	directory  *cluster.Directory
	reconciler *gossip.Reconciler

	apiServer   *api.Server
	adminServer *admin.Server

	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	conf *config.Config

	logger log.Logger
}

// NewServer binds the nodes listeners and creates its components. Failing
// to bind any listener returns an error.
func NewServer(conf *config.Config, logger log.Logger, opts ...gossip.Option) (*Server, error) {
	logger = logger.WithSubsystem("server")

	name := conf.Node.Name
	if name == "" {
		var err error
		name, err = cluster.NodeName()
		if err != nil {
			return nil, fmt.Errorf("node name: %w", err)
		}
	}

	gossipLn, err := net.Listen("tcp", conf.Gossip.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("gossip listen: %s: %w", conf.Gossip.BindAddr, err)
	}
	apiLn, err := net.Listen("tcp", conf.API.BindAddr)
	if err != nil {
		gossipLn.Close()
		return nil, fmt.Errorf("api listen: %s: %w", conf.API.BindAddr, err)
	}
	adminLn, err := net.Listen("tcp", conf.Admin.BindAddr)
	if err != nil {
		gossipLn.Close()
		apiLn.Close()
		return nil, fmt.Errorf("admin listen: %s: %w", conf.Admin.BindAddr, err)
	}

	advertiseAddr := conf.Gossip.AdvertiseAddr
	if advertiseAddr == "" {
		// Use the listener address rather than the bind address to support
		// binding to a random port.
		advertiseAddr, err = advertiseAddrFromListenAddr(gossipLn.Addr().String())
		if err != nil {
			gossipLn.Close()
			apiLn.Close()
			adminLn.Close()
			return nil, fmt.Errorf("gossip advertise addr: %w", err)
		}
	}

	metricsRegistry := prometheus.NewRegistry()

	registry := cluster.NewRegistry(logger)
	registry.Metrics().Register(metricsRegistry)

	directory := cluster.NewDirectory(advertiseAddr, name, registry, logger)
	directory.Metrics().Register(metricsRegistry)

	reconciler := gossip.NewReconciler(
		gossipLn, directory, registry, &conf.Gossip, logger, opts...,
	)
	reconciler.Metrics().Register(metricsRegistry)

	s := &Server{
		gossipLn:   gossipLn,
		apiLn:      apiLn,
		adminLn:    adminLn,
		registry:   registry,
		directory:  directory,
		reconciler: reconciler,
		shutdownCh: make(chan struct{}),
		conf:       conf,
		logger:     logger,
	}

	s.apiServer = api.NewServer(
		registry, directory, s.RequestShutdown, metricsRegistry, logger,
	)

	s.adminServer = admin.NewServer(metricsRegistry, logger)
	s.adminServer.AddStatus("/cluster", cluster.NewStatus(directory))
	s.adminServer.AddStatus("/gossip", gossip.NewStatus(reconciler))

	return s, nil
}

// Run runs the node until the context is cancelled, shutdown is requested
// or a component fails.
//
// On shutdown, the gossip loop completes its current round and the HTTP
// servers wait for in-progress requests, bounded by the grace period.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info(
		"starting node",
		zap.String("node-id", s.directory.LocalID()),
		zap.String("name", s.directory.LocalName()),
		zap.Any("conf", s.conf),
	)

	var group rungroup.Group

	// Termination handler.
	terminateCtx, terminateCancel := context.WithCancel(ctx)
	group.Add(func() error {
		select {
		case <-terminateCtx.Done():
			if ctx.Err() != nil {
				s.logger.Info("received shutdown signal")
			}
		case <-s.shutdownCh:
			s.logger.Info("shutdown requested")
		}
		return nil
	}, func(error) {
		terminateCancel()
	})

	// Gossip.
	var gossipTimeout *time.Timer
	group.Add(func() error {
		if err := s.reconciler.Run(); err != nil {
			return fmt.Errorf("gossip: %w", err)
		}
		return nil
	}, func(error) {
		s.reconciler.RequestShutdown()

		// If the reconciler doesn't complete its current round within the
		// grace period, stop it immediately.
		gossipTimeout = time.AfterFunc(s.conf.GracePeriod, func() {
			s.logger.Warn("gossip shutdown timed out")
			if err := s.reconciler.Close(); err != nil {
				s.logger.Warn("failed to close gossip", zap.Error(err))
			}
		})
	})

	// API server.
	group.Add(func() error {
		if err := s.apiServer.Serve(s.apiLn); err != nil {
			return fmt.Errorf("api server serve: %w", err)
		}
		return nil
	}, func(error) {
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			s.conf.GracePeriod,
		)
		defer cancel()

		if err := s.apiServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("failed to gracefully shutdown api server", zap.Error(err))
		}

		s.logger.Info("api server shut down")
	})

	// Admin server.
	group.Add(func() error {
		if err := s.adminServer.Serve(s.adminLn); err != nil {
			return fmt.Errorf("admin server serve: %w", err)
		}
		return nil
	}, func(error) {
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			s.conf.GracePeriod,
		)
		defer cancel()

		if err := s.adminServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("failed to gracefully shutdown admin server", zap.Error(err))
		}

		s.logger.Info("admin server shut down")
	})

	err := group.Run()
	// Interrupts run before group.Run returns.
	if gossipTimeout != nil {
		gossipTimeout.Stop()
	}
	if err != nil {
		return err
	}

	s.logger.Info("shutdown complete")

	return nil
}

// RequestShutdown requests the node to shutdown. Run returns once shutdown
// completes.
func (s *Server) RequestShutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdownCh)
	})
}

// Close closes the nodes listeners without running the node.
func (s *Server) Close() error {
	var errs error
	errs = multierr.Append(errs, s.reconciler.Close())
	errs = multierr.Append(errs, ignoreClosed(s.apiLn.Close()))
	errs = multierr.Append(errs, ignoreClosed(s.adminLn.Close()))
	return errs
}

// Directory returns the peer directory.
func (s *Server) Directory() *cluster.Directory {
	return s.directory
}

func (s *Server) GossipAddr() string {
	return s.gossipLn.Addr().String()
}

func (s *Server) APIAddr() string {
	return s.apiLn.Addr().String()
}

func (s *Server) AdminAddr() string {
	return s.adminLn.Addr().String()
}

// advertiseAddrFromListenAddr returns the address to advertise to peers. If
// the listener is bound to all interfaces, the nodes private IP is used.
func advertiseAddrFromListenAddr(addr string) (string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("invalid listen addr: %s: %w", addr, err)
	}

	if host != "" {
		if ip := net.ParseIP(host); ip == nil || !ip.IsUnspecified() {
			return net.JoinHostPort(host, port), nil
		}
	}

	ip, err := sockaddr.GetPrivateIP()
	if err != nil {
		return "", fmt.Errorf("get interface addr: %w", err)
	}
	if ip == "" {
		return "", fmt.Errorf("no private ip found")
	}
	return net.JoinHostPort(ip, port), nil
}

func ignoreClosed(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
