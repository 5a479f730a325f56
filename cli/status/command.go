package status

import "github.com/spf13/cobra"

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "inspect node status",
		Long: `Inspect node status.

Each meshmaster node exposes a status API on its admin port to inspect the
state of the node, this can be used to answer questions such as:
* What publishers are registered on this node?
* What peers does this node know about, and what do they publish?
* Which peers is this node connected to?

See 'status --help' for the availale commands.

Examples:
  # Inspect the peers known by the node.
  meshmaster status cluster peers

  # Inspect the gossip connections of node 10.26.104.56:11312.
  meshmaster status gossip connections --server.url http://10.26.104.56:11312
`,
	}

	cmd.AddCommand(newClusterCommand())
	cmd.AddCommand(newGossipCommand())

	return cmd
}
