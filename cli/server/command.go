package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/andydunstall/meshmaster/pkg/config"
	"github.com/andydunstall/meshmaster/pkg/log"
	"github.com/andydunstall/meshmaster/server"
	serverconfig "github.com/andydunstall/meshmaster/server/config"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "start a node",
		Long: `Start a meshmaster node.

The node serves an API for local processes to publish topics and lookup the
publishers of a topic. It gossips its local publishers with the configured
peers every gossip interval, and keeps the publishers reported by each
connected peer.

Peers are configured statically with '--gossip.peers'. The node connects to
each peer that isn't reachable every gossip interval, and peers may also
connect to this node.

Examples:
  # Start a node.
  meshmaster server

  # Start a node that gossips with node2 and node3.
  meshmaster server --gossip.peers node2.cluster:11411,node3.cluster:11411

  # Start a node listening for peers on :7000, API requests on
  # localhost:7001 and admin connections on :7002.
  meshmaster server --gossip.bind-addr :7000 --api.bind-addr localhost:7001 --admin.bind-addr :7002

  # Start a node using a YAML config file.
  meshmaster server --config.path ./meshmaster.yaml
`,
	}

	conf := serverconfig.Default()

	var configPath string
	cmd.Flags().StringVar(
		&configPath,
		"config.path",
		"",
		`
YAML config file path.`,
	)

	var configExpandEnv bool
	cmd.Flags().BoolVar(
		&configExpandEnv,
		"config.expand-env",
		false,
		`
Whether to expand environment variables in the config file.

This will replaces references to ${VAR} or $VAR with the corresponding
environment variable. The replacement is case-sensitive.

References to undefined variables will be replaced with an empty string. A
default value can be given using form ${VAR:default}.`,
	)

	// Register flags and set default values.
	conf.RegisterFlags(cmd.Flags())

	cmd.Run = func(cmd *cobra.Command, args []string) {
		if configPath != "" {
			if err := config.Load(conf, configPath, configExpandEnv); err != nil {
				fmt.Printf("load config: %s\n", err.Error())
				os.Exit(1)
			}
		}

		if err := conf.Validate(); err != nil {
			fmt.Printf("invalid config: %s\n", err.Error())
			os.Exit(1)
		}

		logger, err := log.NewLogger(conf.Log)
		if err != nil {
			fmt.Printf("failed to setup logger: %s\n", err.Error())
			os.Exit(1)
		}

		if err := run(conf, logger); err != nil {
			logger.Error("failed to run server", zap.Error(err))
			os.Exit(1)
		}
	}

	return cmd
}

func run(conf *serverconfig.Config, logger log.Logger) error {
	defer func() {
		_ = logger.Sync()
	}()

	s, err := server.NewServer(conf, logger)
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}

	ctx, cancel := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM,
	)
	defer cancel()

	return s.Run(ctx)
}
