package topic

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	yaml "github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/andydunstall/meshmaster/server/api/client"
	"github.com/andydunstall/meshmaster/server/cluster"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "topic",
		Short: "publish and lookup topics",
		Long: `Publish and lookup topics.

Sends requests to the API of the local node to register publishers and lookup
the publishers of a topic across the cluster.

Examples:
  # Register a publisher of topic /foo on port 6000.
  meshmaster topic publish /foo 6000

  # Lookup the publishers of topic /foo.
  meshmaster topic lookup /foo
`,
	}

	cmd.AddCommand(newPublishCommand())
	cmd.AddCommand(newUnpublishCommand())
	cmd.AddCommand(newLookupCommand())
	cmd.AddCommand(newSubscribeCommand())
	cmd.AddCommand(newUnsubscribeCommand())

	return cmd
}

func newPublishCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish [topic] [port]",
		Args:  cobra.ExactArgs(2),
		Short: "register a publisher",
		Long: `Register a publisher.

Registers a publisher of the topic on the given port on the local node. The
node gossips the publisher to its peers.

Outputs the publishers of the topic known by the node.

Examples:
  meshmaster topic publish /foo 6000
`,
	}

	var conf client.Config
	conf.RegisterFlags(cmd.Flags())

	cmd.Run = func(cmd *cobra.Command, args []string) {
		if err := conf.Validate(); err != nil {
			fmt.Printf("invalid config: %s\n", err.Error())
			os.Exit(1)
		}
		port, err := parsePort(args[1])
		if err != nil {
			fmt.Printf("invalid port: %s\n", err.Error())
			os.Exit(1)
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*15)
		defer cancel()

		publishers, err := newClient(&conf).Publish(ctx, args[0], port)
		if err != nil {
			fmt.Printf("failed to publish: %s\n", err.Error())
			os.Exit(1)
		}
		showPublishers(args[0], publishers)
	}

	return cmd
}

func newUnpublishCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unpublish [topic] [port]",
		Args:  cobra.ExactArgs(2),
		Short: "unregister a publisher",
		Long: `Unregister a publisher.

Unregisters the publisher of the topic on the given port from the local node.
Unregistering an unknown publisher has no effect.

Examples:
  meshmaster topic unpublish /foo 6000
`,
	}

	var conf client.Config
	conf.RegisterFlags(cmd.Flags())

	cmd.Run = func(cmd *cobra.Command, args []string) {
		if err := conf.Validate(); err != nil {
			fmt.Printf("invalid config: %s\n", err.Error())
			os.Exit(1)
		}
		port, err := parsePort(args[1])
		if err != nil {
			fmt.Printf("invalid port: %s\n", err.Error())
			os.Exit(1)
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*15)
		defer cancel()

		publishers, err := newClient(&conf).Unpublish(ctx, args[0], port)
		if err != nil {
			fmt.Printf("failed to unpublish: %s\n", err.Error())
			os.Exit(1)
		}
		showPublishers(args[0], publishers)
	}

	return cmd
}

func newLookupCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookup [topic]",
		Args:  cobra.ExactArgs(1),
		Short: "lookup the publishers of a topic",
		Long: `Lookup the publishers of a topic.

Outputs the publishers of the topic across the cluster. Publishers on the
local node have host 'localhost', and publishers on other nodes use the
name of the node as the host.

Examples:
  meshmaster topic lookup /foo
`,
	}

	var conf client.Config
	conf.RegisterFlags(cmd.Flags())

	cmd.Run = func(cmd *cobra.Command, args []string) {
		if err := conf.Validate(); err != nil {
			fmt.Printf("invalid config: %s\n", err.Error())
			os.Exit(1)
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*15)
		defer cancel()

		publishers, err := newClient(&conf).Lookup(ctx, args[0])
		if err != nil {
			fmt.Printf("failed to lookup: %s\n", err.Error())
			os.Exit(1)
		}
		showPublishers(args[0], publishers)
	}

	return cmd
}

func newSubscribeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscribe [topic]",
		Args:  cobra.ExactArgs(1),
		Short: "subscribe to a topic",
		Long: `Subscribe to a topic.

Subscribers aren't tracked by the node, so this outputs the publishers of the
topic the same as 'meshmaster topic lookup'.

Examples:
  meshmaster topic subscribe /foo
`,
	}

	var conf client.Config
	conf.RegisterFlags(cmd.Flags())

	cmd.Run = func(cmd *cobra.Command, args []string) {
		if err := conf.Validate(); err != nil {
			fmt.Printf("invalid config: %s\n", err.Error())
			os.Exit(1)
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*15)
		defer cancel()

		publishers, err := newClient(&conf).Subscribe(ctx, args[0])
		if err != nil {
			fmt.Printf("failed to subscribe: %s\n", err.Error())
			os.Exit(1)
		}
		showPublishers(args[0], publishers)
	}

	return cmd
}

func newUnsubscribeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unsubscribe [topic]",
		Args:  cobra.ExactArgs(1),
		Short: "unsubscribe from a topic",
		Long: `Unsubscribe from a topic.

Subscribers aren't tracked by the node so this has no effect, though the
request is still validated by the node.

Examples:
  meshmaster topic unsubscribe /foo
`,
	}

	var conf client.Config
	conf.RegisterFlags(cmd.Flags())

	cmd.Run = func(cmd *cobra.Command, args []string) {
		if err := conf.Validate(); err != nil {
			fmt.Printf("invalid config: %s\n", err.Error())
			os.Exit(1)
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Second*15)
		defer cancel()

		if err := newClient(&conf).Unsubscribe(ctx, args[0]); err != nil {
			fmt.Printf("failed to unsubscribe: %s\n", err.Error())
			os.Exit(1)
		}
	}

	return cmd
}

type publishersOutput struct {
	Topic      string            `json:"topic"`
	Publishers []cluster.Locator `json:"publishers"`
}

func showPublishers(topic string, publishers []cluster.Locator) {
	output := publishersOutput{
		Topic:      topic,
		Publishers: publishers,
	}
	b, _ := yaml.Marshal(output)
	fmt.Println(string(b))
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if port <= 0 || port > 65535 {
		return 0, fmt.Errorf("out of range: %d", port)
	}
	return port, nil
}

func newClient(conf *client.Config) *client.Client {
	// The URL has already been validated in conf.
	url, _ := url.Parse(conf.URL)
	return client.NewClient(url)
}
