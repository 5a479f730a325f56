package status

import (
	"fmt"
	"net/url"
	"os"

	yaml "github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/andydunstall/meshmaster/server/cluster"
	"github.com/andydunstall/meshmaster/server/status/client"
	"github.com/andydunstall/meshmaster/server/status/config"
)

func newClusterCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "inspect cluster state",
	}

	cmd.AddCommand(newClusterRegistryCommand())
	cmd.AddCommand(newClusterPeersCommand())
	cmd.AddCommand(newClusterPeerCommand())
	cmd.AddCommand(newClusterPublishersCommand())

	return cmd
}

func newClusterRegistryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "inspect local publishers",
		Long: `Inspect local publishers.

Queries the node for the publishers registered by local processes.

Examples:
  meshmaster status cluster registry
`,
	}

	var conf config.Config
	conf.RegisterFlags(cmd.Flags())

	cmd.Run = func(cmd *cobra.Command, args []string) {
		if err := conf.Validate(); err != nil {
			fmt.Printf("invalid config: %s\n", err.Error())
			os.Exit(1)
		}

		showClusterRegistry(&conf)
	}

	return cmd
}

type clusterRegistryOutput struct {
	Publishers map[string][]int `json:"publishers"`
}

func showClusterRegistry(conf *config.Config) {
	table, err := newClusterClient(conf).Registry()
	if err != nil {
		fmt.Printf("failed to get registry: %s\n", err.Error())
		os.Exit(1)
	}

	output := clusterRegistryOutput{
		Publishers: table,
	}
	b, _ := yaml.Marshal(output)
	fmt.Println(string(b))
}

func newClusterPeersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peers",
		Short: "inspect known peers",
		Long: `Inspect known peers.

Queries the node for the set of peers it knows about, including itself. The
output contains the metadata of each known peer.

Examples:
  meshmaster status cluster peers
`,
	}

	var conf config.Config
	conf.RegisterFlags(cmd.Flags())

	cmd.Run = func(cmd *cobra.Command, args []string) {
		if err := conf.Validate(); err != nil {
			fmt.Printf("invalid config: %s\n", err.Error())
			os.Exit(1)
		}

		showClusterPeers(&conf)
	}

	return cmd
}

type clusterPeersOutput struct {
	Peers []*cluster.PeerMetadata `json:"peers"`
}

func showClusterPeers(conf *config.Config) {
	peers, err := newClusterClient(conf).Peers()
	if err != nil {
		fmt.Printf("failed to get peers: %s\n", err.Error())
		os.Exit(1)
	}

	output := clusterPeersOutput{
		Peers: peers,
	}
	b, _ := yaml.Marshal(output)
	fmt.Println(string(b))
}

func newClusterPeerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peer",
		Args:  cobra.ExactArgs(1),
		Short: "inspect a peer",
		Long: `Inspect a peer.

Queries the node for the known state of the peer with the given ID, which is
the peers gossip address. Or use a peer ID of 'local' to query the node
itself.

Examples:
  # Inspect peer 10.26.104.56:11411.
  meshmaster status cluster peer 10.26.104.56:11411

  # Inspect the local node.
  meshmaster status cluster peer local
`,
	}

	var conf config.Config
	conf.RegisterFlags(cmd.Flags())

	cmd.Run = func(cmd *cobra.Command, args []string) {
		if err := conf.Validate(); err != nil {
			fmt.Printf("invalid config: %s\n", err.Error())
			os.Exit(1)
		}

		showClusterPeer(args[0], &conf)
	}

	return cmd
}

func showClusterPeer(peerID string, conf *config.Config) {
	client := newClusterClient(conf)

	var peer *cluster.Peer
	var err error
	if peerID == "local" {
		peer, err = client.LocalPeer()
	} else {
		peer, err = client.Peer(peerID)
	}
	if err != nil {
		fmt.Printf("failed to get peer: %s: %s\n", peerID, err.Error())
		os.Exit(1)
	}

	b, _ := yaml.Marshal(peer)
	fmt.Println(string(b))
}

func newClusterPublishersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publishers",
		Args:  cobra.ExactArgs(1),
		Short: "inspect the publishers of a topic",
		Long: `Inspect the publishers of a topic.

Queries the node for the publishers of the topic across the cluster, as known
by the node.

Examples:
  meshmaster status cluster publishers /foo
`,
	}

	var conf config.Config
	conf.RegisterFlags(cmd.Flags())

	cmd.Run = func(cmd *cobra.Command, args []string) {
		if err := conf.Validate(); err != nil {
			fmt.Printf("invalid config: %s\n", err.Error())
			os.Exit(1)
		}

		showClusterPublishers(args[0], &conf)
	}

	return cmd
}

type clusterPublishersOutput struct {
	Topic      string            `json:"topic"`
	Publishers []cluster.Locator `json:"publishers"`
}

func showClusterPublishers(topic string, conf *config.Config) {
	locators, err := newClusterClient(conf).Publishers(topic)
	if err != nil {
		fmt.Printf("failed to get publishers: %s: %s\n", topic, err.Error())
		os.Exit(1)
	}

	output := clusterPublishersOutput{
		Topic:      topic,
		Publishers: locators,
	}
	b, _ := yaml.Marshal(output)
	fmt.Println(string(b))
}

func newClusterClient(conf *config.Config) *client.Cluster {
	// The URL has already been validated in conf.
	url, _ := url.Parse(conf.Server.URL)
	return client.NewCluster(client.NewClient(url))
}
