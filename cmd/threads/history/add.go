package historycmder

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/threads/api"
	"github.com/papercomputeco/threads/cmd/threads/remote"
	"github.com/papercomputeco/threads/pkg/cliui"
	"github.com/papercomputeco/threads/pkg/stream"
)

const addLongDesc string = `Append a message to a stream.

Attach a file with --file; its type decides how the server stores it
(images, audio and documents are uploaded, audio is also transcribed).

Examples:
  threads add "I moved to Berlin last month"
  threads add "Sure, noted." --role assistant --chat work
  threads add "" --file voice.ogg --type audio`

func NewAddCmd() *cobra.Command {
	var (
		flags       streamFlags
		role        string
		msgType     string
		file        string
		contentType string
		importance  int
		tags        []string
	)

	cmd := &cobra.Command{
		Use:   "add <content>",
		Short: "Append a message to a stream",
		Long:  addLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cl, err := remote.Client(cmd)
			if err != nil {
				return err
			}

			msg := api.AddMessage{Message: stream.Message{
				Role:       role,
				Content:    args[0],
				Type:       msgType,
				TS:         time.Now().UTC(),
				Importance: importance,
				Tags:       tags,
			}}
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("reading attachment: %w", err)
				}
				msg.File = &api.Upload{
					Filename:    filepath.Base(file),
					ContentType: contentType,
					Data:        data,
				}
			}

			resp, err := cl.Add(remote.Context(cmd), api.AddRequest{
				UUID:     flags.uuid,
				ChatID:   flags.chat,
				Messages: []api.AddMessage{msg},
			})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if flags.json {
				return printJSON(w, resp)
			}
			for _, id := range resp.StreamIDs {
				fmt.Fprintf(w, "  %s Appended %s\n", cliui.SuccessMark, cliui.IDStyle.Render(id))
			}
			return nil
		},
	}

	flags.add(cmd)
	cmd.Flags().StringVarP(&role, "role", "r", stream.RoleUser, "Message role (user, assistant, system, tool)")
	cmd.Flags().StringVar(&msgType, "type", stream.TypeText, "Message type (text, image, audio, document)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Attach a file")
	cmd.Flags().StringVar(&contentType, "content-type", "", "MIME type of the attachment")
	cmd.Flags().IntVar(&importance, "importance", 0, "Importance score")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Tag the message (repeatable)")

	return cmd
}
