package status

import (
	"fmt"
	"net/url"
	"os"

	yaml "github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/andydunstall/meshmaster/server/gossip"
	"github.com/andydunstall/meshmaster/server/status/client"
	"github.com/andydunstall/meshmaster/server/status/config"
)

func newGossipCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gossip",
		Short: "inspect gossip state",
	}

	cmd.AddCommand(newGossipConnectionsCommand())

	return cmd
}

func newGossipConnectionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connections",
		Short: "inspect peer connections",
		Long: `Inspect peer connections.

Queries the node for its open connections to peers. A peer may have multiple
connections, such as if both nodes connected to each other.

Examples:
  meshmaster status gossip connections
`,
	}

	var conf config.Config
	conf.RegisterFlags(cmd.Flags())

	cmd.Run = func(cmd *cobra.Command, args []string) {
		if err := conf.Validate(); err != nil {
			fmt.Printf("invalid config: %s\n", err.Error())
			os.Exit(1)
		}

		showGossipConnections(&conf)
	}

	return cmd
}

type gossipConnectionsOutput struct {
	Connections []gossip.ConnStatus `json:"connections"`
}

func showGossipConnections(conf *config.Config) {
	// The URL has already been validated in conf.
	url, _ := url.Parse(conf.Server.URL)
	conns, err := client.NewGossip(client.NewClient(url)).Connections()
	if err != nil {
		fmt.Printf("failed to get connections: %s\n", err.Error())
		os.Exit(1)
	}

	output := gossipConnectionsOutput{
		Connections: conns,
	}
	b, _ := yaml.Marshal(output)
	fmt.Println(string(b))
}
