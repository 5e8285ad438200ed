package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kestrelkb/kestrel/internal/store"
)

func newGraphCmd() *cobra.Command {
	var (
		collection string
		maxNodes   int
		maxDepth   int
		maxEdges   int
		jsonOut    bool
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Show the document link graph",
		Long:  `Walks the link graph between documents (spec §4.6), bounded by --max-nodes, --max-depth, and --max-edges.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := eng.Graph(cmd.Context(), store.GraphOptions{
				Collection: collection,
				MaxNodes:   maxNodes,
				MaxDepth:   maxDepth,
				MaxEdges:   maxEdges,
			})
			if err != nil {
				return err
			}
			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(g)
			}
			printGraph(cmd, g)
			return nil
		},
	}

	cmd.Flags().StringVarP(&collection, "collection", "c", "", "restrict the graph to one collection")
	cmd.Flags().IntVar(&maxNodes, "max-nodes", 100, "maximum number of nodes to return")
	cmd.Flags().IntVar(&maxDepth, "max-depth", 2, "maximum traversal depth")
	cmd.Flags().IntVar(&maxEdges, "max-edges", 2000, "maximum number of edges to return")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")

	return cmd
}

func printGraph(cmd *cobra.Command, g *store.Graph) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d nodes, %d edges\n\n", len(g.Nodes), len(g.Edges))
	titles := make(map[string]string, len(g.Nodes))
	for _, n := range g.Nodes {
		titles[n.DocID] = n.Title
		fmt.Fprintf(out, "  %s  %s\n", n.DocID, n.Title)
	}
	if len(g.Edges) > 0 {
		fmt.Fprintln(out, "\nedges:")
		for _, e := range g.Edges {
			target := e.TargetDocID
			if target == "" {
				target = e.TargetRef + " (unresolved)"
			} else if t, ok := titles[target]; ok {
				target = t
			}
			if e.LinkType == store.LinkTypeSimilar {
				fmt.Fprintf(out, "  %s -[similar %.2f]-> %s\n", titles[e.SourceDocID], e.Score, target)
				continue
			}
			fmt.Fprintf(out, "  %s -[%s]-> %s\n", titles[e.SourceDocID], e.LinkType, target)
		}
	}
	if g.Meta.NodesTruncated || g.Meta.EdgesTruncated {
		fmt.Fprintf(out, "\n(truncated: nodes=%t edges=%t)\n", g.Meta.NodesTruncated, g.Meta.EdgesTruncated)
	}
}
