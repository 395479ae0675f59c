// Package calendarcmder provides the calendar command for listing, adding,
// changing and removing reminders, and for the calendar assistant.
package calendarcmder

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/threads/api"
	"github.com/papercomputeco/threads/cmd/threads/remote"
	"github.com/papercomputeco/threads/pkg/cliui"
	"github.com/papercomputeco/threads/pkg/stream"
)

const calendarLongDesc string = `Manage a user's calendar.

Events are extracted from messages when the company has the calendar
enabled, or added directly. Each event is addressed by its index in the
listing. Due events are delivered as reminders by the server.

Times are ISO 8601 and read in --tz unless they carry an offset.

Examples:
  threads calendar
  threads calendar add "2025-03-11T18:00" "Dinner with Sam" --tz Europe/Berlin
  threads calendar update 0 --when 2025-03-11T19:00
  threads calendar delete 0
  threads calendar ask "what do I have tomorrow?"`

const calendarShortDesc string = "Manage the calendar"

type calendarCommander struct {
	remote remote.Flags
	uuid   string
	chat   string
	tz     string
}

func NewCalendarCmd() *cobra.Command {
	cmder := &calendarCommander{}

	cmd := &cobra.Command{
		Use:   "calendar",
		Short: calendarShortDesc,
		Long:  calendarLongDesc,
		Args:  cobra.NoArgs,
		RunE:  cmder.runList,
	}

	remote.AddFlags(cmd, &cmder.remote)
	cmd.PersistentFlags().StringVarP(&cmder.uuid, "uuid", "u", "", "User to act on (defaults to the logged in user)")
	cmd.PersistentFlags().StringVar(&cmder.tz, "tz", "UTC", "IANA time zone for times without an offset")

	cmd.AddCommand(cmder.newAddCmd())
	cmd.AddCommand(cmder.newUpdateCmd())
	cmd.AddCommand(cmder.newDeleteCmd())
	cmd.AddCommand(cmder.newAskCmd())

	return cmd
}

func (c *calendarCommander) runList(cmd *cobra.Command, _ []string) error {
	cl, err := remote.Client(cmd)
	if err != nil {
		return err
	}
	resp, err := cl.Calendar(remote.Context(cmd), c.uuid)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if len(resp.Events) == 0 {
		fmt.Fprintf(w, "\n  %s No events for %s.\n\n", cliui.DimStyle.Render("●"), resp.UUID)
		return nil
	}

	fmt.Fprintf(w, "\n  %s %s\n\n", cliui.HeaderStyle.Render("Calendar of"), cliui.NameStyle.Render(resp.UUID))
	for _, e := range resp.Events {
		printEvent(w, e)
	}
	fmt.Fprintln(w)
	return nil
}

func printEvent(w io.Writer, e api.Event) {
	status := cliui.DimStyle.Render("pending")
	if e.Notified {
		status = cliui.SuccessMark + " " + cliui.DimStyle.Render("notified")
	}
	fmt.Fprintf(w, "  %s %s %s %s  %s\n",
		cliui.IDStyle.Render(fmt.Sprintf("[%d]", e.Index)),
		cliui.KeyStyle.Render(e.When.Format("Mon 2006-01-02 15:04")),
		cliui.DimStyle.Render(e.TZ),
		cliui.ValueStyle.Render(e.Text),
		status,
	)
}

func (c *calendarCommander) newAddCmd() *cobra.Command {
	var flags remote.Flags

	cmd := &cobra.Command{
		Use:   "add <when> <text>",
		Short: "Add a reminder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := remote.Client(cmd)
			if err != nil {
				return err
			}
			resp, err := cl.AddReminder(remote.Context(cmd), api.ReminderRequest{
				UUID:   c.uuid,
				When:   args[0],
				Text:   args[1],
				TZ:     c.tz,
				ChatID: c.chat,
			})
			if err != nil {
				return err
			}
			return printStatus(cmd.OutOrStdout(), resp)
		},
	}

	remote.AddFlags(cmd, &flags)
	cmd.Flags().StringVar(&c.chat, "chat", "", "Chat the reminder is delivered to")
	return cmd
}

func (c *calendarCommander) newUpdateCmd() *cobra.Command {
	var (
		flags remote.Flags
		when  string
		text  string
	)

	cmd := &cobra.Command{
		Use:   "update <index>",
		Short: "Change an event",
		Long: `Change the time, text or time zone of an event.

Only the flags given are changed. A new --when is read in --tz when given,
and in the event's current time zone otherwise.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIndex(args[0])
			if err != nil {
				return err
			}

			req := api.CalendarUpdateRequest{UUID: c.uuid}
			if cmd.Flags().Changed("when") {
				req.When = &when
			}
			if cmd.Flags().Changed("text") {
				req.Text = &text
			}
			if cmd.Flags().Changed("tz") {
				req.TZ = &c.tz
			}
			if req.When == nil && req.Text == nil && req.TZ == nil {
				return errors.New("nothing to change; pass --when, --text or --tz")
			}

			cl, err := remote.Client(cmd)
			if err != nil {
				return err
			}
			resp, err := cl.UpdateEvent(remote.Context(cmd), index, req)
			if err != nil {
				return err
			}
			return printStatus(cmd.OutOrStdout(), resp)
		},
	}

	remote.AddFlags(cmd, &flags)
	cmd.Flags().StringVar(&when, "when", "", "New time")
	cmd.Flags().StringVar(&text, "text", "", "New text")
	return cmd
}

func (c *calendarCommander) newDeleteCmd() *cobra.Command {
	var flags remote.Flags

	cmd := &cobra.Command{
		Use:   "delete <index>",
		Short: "Remove an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			cl, err := remote.Client(cmd)
			if err != nil {
				return err
			}
			if err := cl.DeleteEvent(remote.Context(cmd), c.uuid, index); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  %s Deleted event %d\n", cliui.SuccessMark, index)
			return nil
		},
	}

	remote.AddFlags(cmd, &flags)
	return cmd
}

func (c *calendarCommander) newAskCmd() *cobra.Command {
	var flags remote.Flags

	cmd := &cobra.Command{
		Use:   "ask <request>",
		Short: "Ask the calendar assistant",
		Long: `Ask the calendar assistant in free text. It can list, add, move and
remove events. Requires a chat completion provider on the server.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := remote.Client(cmd)
			if err != nil {
				return err
			}
			var reply *stream.Message
			err = cliui.Step(cmd.ErrOrStderr(), "Asking the calendar assistant", func() error {
				var err error
				reply, err = cl.Assist(remote.Context(cmd), api.AssistantRequest{
					UUID:   c.uuid,
					Query:  args[0],
					TZ:     c.tz,
					ChatID: c.chat,
				})
				return err
			})
			if err != nil {
				return err
			}

			rendered, err := cliui.RenderMarkdown(reply.Content)
			if err != nil {
				rendered = reply.Content + "\n"
			}
			fmt.Fprint(cmd.OutOrStdout(), rendered)
			return nil
		},
	}

	remote.AddFlags(cmd, &flags)
	cmd.Flags().StringVar(&c.chat, "chat", "", "Chat new reminders are delivered to")
	return cmd
}

func printStatus(w io.Writer, resp *api.CalendarStatus) error {
	fmt.Fprintf(w, "  %s %s\n", cliui.SuccessMark, cliui.NameStyle.Render(resp.Status))
	if resp.Event != nil {
		printEvent(w, *resp.Event)
	}
	return nil
}

func parseIndex(s string) (int, error) {
	index, err := strconv.Atoi(s)
	if err != nil || index < 0 {
		return 0, fmt.Errorf("invalid event index %q", s)
	}
	return index, nil
}
