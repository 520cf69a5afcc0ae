package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/Sternrassler/zoomphone-tap/pkg/streams"
	"github.com/spf13/cobra"
)

func newStreamsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "streams",
		Short: "List the available streams",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STREAM\tPATH\tKEY\tREPLICATION\tPAGING\tPARENT")
			for _, d := range streams.All() {
				replication := "full"
				if d.Incremental() {
					replication = d.ReplicationKey
				}
				parent := d.Parent
				if parent == "" {
					parent = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					d.Name, d.Path, strings.Join(d.PrimaryKeys, ","), replication, d.Paging, parent)
			}
			return w.Flush()
		},
	}
}
