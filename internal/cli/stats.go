package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/docsnap/pkg/snapshot"
)

type statsOpts struct {
	fromMongo bool
	filter    string
	limit     int64
	noCache   bool
}

// statsCommand creates the stats command.
func (c *CLI) statsCommand() *cobra.Command {
	var opts statsOpts

	cmd := &cobra.Command{
		Use:   "stats [file|-]",
		Short: "Count instance records per type and schema version",
		Long: `Count instance records per type and schema version.

Records written before a type declared versions count as version 1. Use
this before dropping an upgrade step to check that no stored data still
needs it.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := c.loadDocuments(cmd, args, opts.fromMongo, opts.filter, opts.limit, opts.noCache)
			if err != nil {
				return err
			}

			stats := snapshot.NewStats()
			for _, doc := range docs {
				stats.Add(doc)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, StyleTitle.Render(fmt.Sprintf("%d documents", stats.Documents)))
			if opts.fromMongo {
				query, err := parseFilter(opts.filter)
				if err != nil {
					return err
				}
				src, err := c.mongoSource(true)
				if err != nil {
					return err
				}
				total, err := src.count(cmd.Context(), query)
				if err != nil {
					return err
				}
				if total > int64(stats.Documents) {
					printDetail("sampled %d of %d matching documents", stats.Documents, total)
				}
			}
			fmt.Fprintln(out, renderStats(stats))
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.fromMongo, "from-mongo", false, "read from the configured MongoDB collection")
	cmd.Flags().StringVar(&opts.filter, "filter", "", "Extended JSON query for --from-mongo")
	cmd.Flags().Int64Var(&opts.limit, "limit", 0, "maximum documents to read with --from-mongo (0 for all)")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "bypass the document cache")

	return cmd
}
