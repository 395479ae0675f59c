// Package historycmder provides the add, history and context commands that
// write to and read from a stream on a running threads server.
package historycmder

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/threads/api"
	"github.com/papercomputeco/threads/cmd/threads/remote"
	"github.com/papercomputeco/threads/pkg/cliui"
	"github.com/papercomputeco/threads/pkg/stream"
	"github.com/papercomputeco/threads/pkg/utils"
)

const previewWidth = 100

type streamFlags struct {
	remote remote.Flags
	uuid   string
	chat   string
	json   bool
}

func (f *streamFlags) add(cmd *cobra.Command) {
	remote.AddFlags(cmd, &f.remote)
	cmd.Flags().StringVarP(&f.uuid, "uuid", "u", "", "User to act on (defaults to the logged in user)")
	cmd.Flags().StringVar(&f.chat, "chat", "", "Chat ID of the stream")
	cmd.Flags().BoolVar(&f.json, "json", false, "Print the raw JSON response")
}

const historyLongDesc string = `Show the most recent messages of a stream, oldest first.

Examples:
  threads history
  threads history --chat work --limit 50
  threads history --uuid alice --json`

func NewHistoryCmd() *cobra.Command {
	var (
		flags streamFlags
		limit int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent messages",
		Long:  historyLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cl, err := remote.Client(cmd)
			if err != nil {
				return err
			}
			resp, err := cl.History(remote.Context(cmd), flags.uuid, flags.chat, limit)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if flags.json {
				return printJSON(w, resp)
			}
			if len(resp.Messages) == 0 {
				fmt.Fprintln(w, "No messages.")
				return nil
			}
			PrintEntries(w, resp.Messages)
			return nil
		},
	}

	flags.add(cmd)
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Number of messages (server default when 0)")

	return cmd
}

const contextLongDesc string = `Show the context an assistant would be given for a stream: the
recent messages, older messages related to them, the stored facts and the
latest summary.

Examples:
  threads context
  threads context --chat work --limit 10 --top 5`

func NewContextCmd() *cobra.Command {
	var (
		flags streamFlags
		limit int
		topK  int
	)

	cmd := &cobra.Command{
		Use:   "context",
		Short: "Show the context an assistant would be given",
		Long:  contextLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cl, err := remote.Client(cmd)
			if err != nil {
				return err
			}
			resp, err := cl.Context(remote.Context(cmd), flags.uuid, flags.chat, limit, topK)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if flags.json {
				return printJSON(w, resp)
			}
			printContext(w, resp)
			return nil
		},
	}

	flags.add(cmd)
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Number of recent messages (server default when 0)")
	cmd.Flags().IntVarP(&topK, "top", "k", 0, "Number of related messages (server default when 0)")

	return cmd
}

func printContext(w io.Writer, resp *api.ContextResponse) {
	if resp.Summary != "" {
		fmt.Fprintf(w, "\n%s\n", cliui.HeaderStyle.Render("Summary"))
		rendered, err := cliui.RenderMarkdown(resp.Summary)
		if err != nil {
			rendered = resp.Summary + "\n"
		}
		fmt.Fprint(w, rendered)
	}

	if resp.Facts != nil && resp.Facts.Content != "" {
		fmt.Fprintf(w, "\n%s\n", cliui.HeaderStyle.Render("Facts"))
		for line := range strings.SplitSeq(resp.Facts.Content, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				fmt.Fprintf(w, "  %s\n", cliui.ValueStyle.Render(line))
			}
		}
	}

	if len(resp.Relevant) > 0 {
		fmt.Fprintf(w, "\n%s\n", cliui.HeaderStyle.Render("Related"))
		PrintEntries(w, resp.Relevant)
	}

	fmt.Fprintf(w, "\n%s\n", cliui.HeaderStyle.Render("Recent"))
	if len(resp.Messages) == 0 {
		fmt.Fprintf(w, "  %s\n", cliui.DimStyle.Render("(no messages)"))
		return
	}
	PrintEntries(w, resp.Messages)
}

// PrintEntries writes one line per entry: ID, role, tags and a preview of
// the content.
func PrintEntries(w io.Writer, entries []stream.Entry) {
	for _, e := range entries {
		m := e.Message

		content := m.Content
		if !m.IsText() {
			content = strings.TrimSpace("[" + m.Type + "] " + m.Content)
		}

		line := fmt.Sprintf("  %s %s %s",
			cliui.IDStyle.Render(e.ID.String()),
			cliui.RoleStyle.Render(fmt.Sprintf("%-9s", m.Role)),
			cliui.PreviewStyle.Render(utils.Preview(content, previewWidth)),
		)
		if len(m.Tags) > 0 {
			line += " " + cliui.TagStyle.Render("#"+strings.Join(m.Tags, " #"))
		}
		fmt.Fprintln(w, line)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
