package cli

import (
	"github.com/spf13/cobra"

	"github.com/andydunstall/meshmaster/cli/server"
	"github.com/andydunstall/meshmaster/cli/status"
	"github.com/andydunstall/meshmaster/cli/topic"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "meshmaster [command] (flags)",
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Long: `meshmaster is a topic registry that runs on each machine in a cluster.

Local processes register the topics they publish with the node on their
machine. Each node gossips its local publishers with a static list of peers,
so a node can lookup the publishers of a topic across the cluster.

Start a node with:

  $ meshmaster server --gossip.peers node2.cluster:11411

Publish and lookup topics with:

  $ meshmaster topic publish /foo 6000
  $ meshmaster topic lookup /foo

You can also inspect the status of a node using:

  $ meshmaster status
`,
	}

	cmd.AddCommand(server.NewCommand())
	cmd.AddCommand(topic.NewCommand())
	cmd.AddCommand(status.NewCommand())

	return cmd
}

func init() {
	cobra.EnableCommandSorting = false
}
