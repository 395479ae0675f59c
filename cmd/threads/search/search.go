// Package searchcmder provides the search command for semantic and tag
// search over a stream.
package searchcmder

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/threads/api"
	"github.com/papercomputeco/threads/cmd/threads/remote"
	historycmder "github.com/papercomputeco/threads/cmd/threads/history"
	"github.com/papercomputeco/threads/pkg/cliui"
)

type searchCommander struct {
	remote remote.Flags
	uuid   string
	chat   string
	topK   int
	tags   []string
	byTag  string
	quiet  bool
}

const searchLongDesc string = `Search the messages of a stream via the threads API.

A query returns the messages closest to it in meaning, best match first.
Requires a server with an embedding provider and vector store configured.
--tag narrows the search to messages carrying every given tag.

With --by-tag no query is given: the most recent messages carrying the tag
are listed instead.

Use --quiet to print only message IDs, one per line.

Examples:
  threads search "where do I live"
  threads search "deadlines" --tag work --top 3
  threads search --by-tag travel`

const searchShortDesc string = "Search messages"

func NewSearchCmd() *cobra.Command {
	cmder := &searchCommander{}

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: searchShortDesc,
		Long:  searchLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case cmder.byTag != "" && len(args) > 0:
				return errors.New("--by-tag takes no query")
			case cmder.byTag == "" && len(args) == 0:
				return errors.New("a query or --by-tag is required")
			}
			query := ""
			if len(args) > 0 {
				query = args[0]
			}
			return cmder.run(cmd, query)
		},
	}

	remote.AddFlags(cmd, &cmder.remote)
	cmd.Flags().StringVarP(&cmder.uuid, "uuid", "u", "", "User to search (defaults to the logged in user)")
	cmd.Flags().StringVar(&cmder.chat, "chat", "", "Chat ID of the stream")
	cmd.Flags().IntVarP(&cmder.topK, "top", "k", 5, "Number of results to return")
	cmd.Flags().StringSliceVar(&cmder.tags, "tag", nil, "Only match messages with this tag (repeatable)")
	cmd.Flags().StringVar(&cmder.byTag, "by-tag", "", "List recent messages with this tag")
	cmd.Flags().BoolVarP(&cmder.quiet, "quiet", "q", false, "Output only message IDs, one per line (for piping)")

	return cmd
}

func (c *searchCommander) run(cmd *cobra.Command, query string) error {
	cl, err := remote.Client(cmd)
	if err != nil {
		return err
	}

	var resp *api.SearchResponse
	if c.byTag != "" {
		resp, err = cl.SearchByTag(remote.Context(cmd), c.uuid, c.chat, c.byTag, c.topK)
	} else {
		resp, err = cl.Search(remote.Context(cmd), api.SearchRequest{
			UUID:   c.uuid,
			Query:  query,
			TopK:   c.topK,
			Tags:   c.tags,
			ChatID: c.chat,
		})
	}
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if len(resp.Hits) == 0 {
		if !c.quiet {
			fmt.Fprintln(w, "No results found.")
		}
		return nil
	}

	if c.quiet {
		for _, hit := range resp.Hits {
			fmt.Fprintln(w, hit.ID.String())
		}
		return nil
	}

	label := fmt.Sprintf("%q", query)
	if c.byTag != "" {
		label = "#" + c.byTag
	}
	fmt.Fprintf(w, "\n%s %s\n\n",
		cliui.HeaderStyle.Render("Search results for:"),
		cliui.NameStyle.Render(label),
	)
	historycmder.PrintEntries(w, resp.Hits)
	fmt.Fprintln(w)
	return nil
}
