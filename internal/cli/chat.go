package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"clanchat/internal/client/api"
	"clanchat/internal/client/chat"
	"clanchat/internal/client/notify"
	"clanchat/internal/client/socket"
	"clanchat/internal/models"

	"github.com/spf13/cobra"
)

func init() {
	historyCmd.Flags().String("before", "", "page backwards from this message id")
	historyCmd.Flags().Int("limit", 50, "number of messages")

	sendCmd.Flags().String("reply-to", "", "id of the message being answered")
	sendCmd.Flags().String("image", "", "image file to attach")
	sendCmd.Flags().String("voice", "", "voice clip to attach")

	rootCmd.AddCommand(historyCmd, sendCmd, reactCmd, deleteCmd, watchCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history [room-id]",
	Short: "Print a room's messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		before, _ := cmd.Flags().GetString("before")
		limit, _ := cmd.Flags().GetInt("limit")

		ctx, cancel := requestContext(cmd)
		defer cancel()
		msgs, err := newAPI().History(ctx, args[0], before, limit)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			printMessage(cmd.OutOrStdout(), *m)
		}
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send [room-id] [text]",
	Short: "Post a message to a room",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		client := newAPI()
		draft := models.Draft{}
		if len(args) == 2 {
			draft.Text = args[1]
		}
		draft.ReplyToID, _ = cmd.Flags().GetString("reply-to")
		var err error
		if path, _ := cmd.Flags().GetString("image"); path != "" {
			if draft.ImageURL, err = upload(ctx, client, path); err != nil {
				return err
			}
		}
		if path, _ := cmd.Flags().GetString("voice"); path != "" {
			if draft.VoiceURL, err = upload(ctx, client, path); err != nil {
				return err
			}
		}

		return withRoom(ctx, client, args[0], func(room *chat.Room, _ *socket.Manager) error {
			msg, err := room.Send(ctx, draft)
			if msg != nil {
				printMessage(cmd.OutOrStdout(), *msg)
			}
			return err
		})
	},
}

var reactCmd = &cobra.Command{
	Use:   "react [room-id] [message-id] [emoji]",
	Short: "Set your reaction on a message; omit the emoji to clear it",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		emoji := ""
		if len(args) == 3 {
			emoji = args[2]
		}
		return withRoom(ctx, newAPI(), args[0], func(room *chat.Room, _ *socket.Manager) error {
			if err := room.React(ctx, args[1], emoji); err != nil {
				return err
			}
			printTally(cmd.OutOrStdout(), args[1], room.Tally(args[1]))
			return nil
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete [room-id] [message-id]",
	Short: "Delete one of your messages",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		return withRoom(ctx, newAPI(), args[0], func(room *chat.Room, _ *socket.Manager) error {
			if err := room.Delete(ctx, args[1]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "🗑️  Deleted", args[1])
			return nil
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch [room-id]",
	Short: "Follow a room live; lines typed on stdin are sent",
	Long: `Follow a room live. Every line read from stdin is posted. Lines starting
with a slash are commands:

  /more                 load older messages
  /react <id> [emoji]   set or clear your reaction
  /delete <id>          delete one of your messages
  /read <id>...         mark messages as read
  /seen                 mark all notifications seen`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client := newAPI()
		out := cmd.OutOrStdout()
		return withRoom(ctx, client, args[0], func(room *chat.Room, m *socket.Manager) error {
			for _, msg := range room.Messages() {
				printMessage(out, msg)
			}
			printRoster(out, room.Roster())
			watchRoom(out, room, m)

			self, _ := whoami()
			feed := notify.NewFeed(self.ID, client, m)
			feed.OnChange(func() { fmt.Fprintf(out, "🔔 %d unseen\n", feed.Unseen()) })
			if err := feed.Start(ctx); err != nil {
				return err
			}
			defer feed.Stop()

			lines := make(chan string)
			go readLines(cmd.InOrStdin(), lines)
			for {
				select {
				case <-ctx.Done():
					return nil
				case line, ok := <-lines:
					if !ok {
						return nil
					}
					if err := runLine(ctx, out, room, feed, line); err != nil {
						fmt.Fprintf(out, "❌ %v\n", err)
					}
				}
			}
		})
	},
}

// withRoom connects, opens roomID, runs fn and closes both again.
func withRoom(ctx context.Context, client *api.Client, roomID string, fn func(*chat.Room, *socket.Manager) error) error {
	self, err := whoami()
	if err != nil {
		return err
	}
	m, err := connect(ctx, client, self)
	if err != nil {
		return err
	}
	defer m.Disconnect()

	room := chat.NewRoom(chat.Config{
		RoomID: roomID,
		Self:   models.Sender{ID: self.ID, Name: self.Name},
		API:    client,
		Socket: m,
	})
	if err := room.Open(ctx); err != nil {
		return err
	}
	defer room.Close()
	return fn(room, m)
}

// watchRoom prints room events after the room has applied them.
func watchRoom(out io.Writer, room *chat.Room, m *socket.Manager) {
	m.Subscribe(models.EventMessage, func(data json.RawMessage) {
		var msg models.Message
		if json.Unmarshal(data, &msg) == nil && msg.RoomID == room.ID() {
			printMessage(out, msg)
		}
	})
	m.Subscribe(models.EventDeleteMessage, func(data json.RawMessage) {
		var ref models.MessageRef
		if json.Unmarshal(data, &ref) == nil && ref.RoomID == room.ID() {
			fmt.Fprintf(out, "🗑️  %s was deleted\n", ref.MessageID)
		}
	})
	m.Subscribe(models.EventReactionUpdate, func(data json.RawMessage) {
		var p models.ReactionPayload
		if json.Unmarshal(data, &p) == nil && p.RoomID == room.ID() {
			printTally(out, p.MessageID, room.Tally(p.MessageID))
		}
	})
	for _, event := range []models.EventName{models.EventOnlineUsers, models.EventUserJoined, models.EventUserLeft} {
		m.Subscribe(event, func(json.RawMessage) { printRoster(out, room.Roster()) })
	}
	room.Typing().OnChange(func(name string) {
		if name != "" {
			fmt.Fprintf(out, "✏️  %s is typing...\n", name)
		}
	})
}

func runLine(ctx context.Context, out io.Writer, room *chat.Room, feed *notify.Feed, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	switch fields[0] {
	case "/more":
		n, err := room.LoadOlder(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "📜 %d older messages\n", n)
		for _, msg := range room.Messages()[:n] {
			printMessage(out, msg)
		}
		return nil
	case "/react":
		if len(fields) < 2 {
			return fmt.Errorf("usage: /react <id> [emoji]")
		}
		emoji := ""
		if len(fields) > 2 {
			emoji = fields[2]
		}
		if err := room.React(ctx, fields[1], emoji); err != nil {
			return err
		}
		printTally(out, fields[1], room.Tally(fields[1]))
		return nil
	case "/delete":
		if len(fields) != 2 {
			return fmt.Errorf("usage: /delete <id>")
		}
		return room.Delete(ctx, fields[1])
	case "/read":
		return room.MarkRead(fields[1:])
	case "/seen":
		return feed.MarkAllSeen()
	}
	room.NotifyTyping()
	_, err := room.Send(ctx, models.Draft{Text: line})
	return err
}

func readLines(r io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
}

func upload(ctx context.Context, client *api.Client, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return client.Upload(ctx, filepath.Base(path), contentType, f)
}
