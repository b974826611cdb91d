package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/matzehuels/docsnap/pkg/snapshot"
)

type inspectOpts struct {
	fromMongo bool
	filter    string
	limit     int64
	noCache   bool
	tagsOnly  bool
}

// inspectCommand creates the inspect command.
func (c *CLI) inspectCommand() *cobra.Command {
	opts := inspectOpts{limit: 20}

	cmd := &cobra.Command{
		Use:   "inspect [file|-]",
		Short: "Print stored snapshots as tagged trees",
		Long: `Print stored snapshots as tagged trees.

Documents are read as Extended JSON, either one array or one document per
line (the mongoexport format), from a file or stdin. With --from-mongo they
are read from the collection named in the config instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := c.loadDocuments(cmd, args, opts.fromMongo, opts.filter, opts.limit, opts.noCache)
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				printInfo("No documents")
				return nil
			}

			out := cmd.OutOrStdout()
			for i, doc := range docs {
				if i > 0 {
					fmt.Fprintln(out)
				}
				if opts.tagsOnly {
					fmt.Fprint(out, renderTagPaths(doc))
					continue
				}
				fmt.Fprint(out, renderTree(doc))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.fromMongo, "from-mongo", false, "read from the configured MongoDB collection")
	cmd.Flags().StringVar(&opts.filter, "filter", "", "Extended JSON query for --from-mongo")
	cmd.Flags().Int64Var(&opts.limit, "limit", opts.limit, "maximum documents to read with --from-mongo (0 for all)")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "bypass the document cache")
	cmd.Flags().BoolVar(&opts.tagsOnly, "tags", false, "list the path of every tag and instance record instead of the tree")

	return cmd
}

// loadDocuments reads documents from args or MongoDB.
func (c *CLI) loadDocuments(cmd *cobra.Command, args []string, fromMongo bool, filter string, limit int64, noCache bool) ([]bson.D, error) {
	ctx := cmd.Context()
	if !fromMongo {
		path := ""
		if len(args) > 0 {
			path = args[0]
		}
		in, err := openInput(path)
		if err != nil {
			return nil, err
		}
		defer in.Close()
		return readDocuments(in)
	}

	query, err := parseFilter(filter)
	if err != nil {
		return nil, err
	}
	src, err := c.mongoSource(noCache)
	if err != nil {
		return nil, err
	}
	defer src.cache.Close()

	prog := newProgress(loggerFromContext(ctx))
	spin := startSpinner(cmd.ErrOrStderr(), "Reading "+c.config.Mongo.Collection)
	docs, err := src.fetch(ctx, query, limit)
	spin.stopSpinner()
	if err != nil {
		return nil, err
	}
	prog.done(fmt.Sprintf("Read %d documents", len(docs)))
	return docs, nil
}

// renderTagPaths lists "path  tag" for every tagged sequence and
// "path  Type vN" for every instance record in doc.
func renderTagPaths(doc any) string {
	var lines string
	_ = snapshot.Walk(doc, func(path string, node any) error {
		if path == "" {
			path = "."
		}
		if name, ok := snapshot.TypeName(node); ok {
			version := "v1"
			if v, ok := snapshot.Lookup(node, snapshot.VersionKey); ok {
				version = fmt.Sprintf("v%v", v)
			}
			lines += fmt.Sprintf("%s  %s %s\n", StyleDim.Render(path), styleInstance.Render(name), version)
		} else if tag, ok := snapshot.Tag(node); ok {
			lines += fmt.Sprintf("%s  %s\n", StyleDim.Render(path), styleAtom.Render(tag))
		}
		return nil
	})
	return lines
}
