package cli

import (
	"fmt"
	"io"
	"strings"

	"clanchat/internal/client/chat"
	"clanchat/internal/models"
)

var statusMarks = map[models.MessageStatus]string{
	models.StatusSent:      "✓",
	models.StatusDelivered: "✓✓",
	models.StatusRead:      "👁",
}

func printMessage(out io.Writer, m models.Message) {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s %s:", m.CreatedAt.Local().Format("15:04"), m.ID, m.Sender.Name)
	if m.ReplyTo != nil {
		fmt.Fprintf(&b, " ↪ %s %q", m.ReplyTo.SenderName, m.ReplyTo.Text)
	}
	if m.Text != "" {
		b.WriteString(" " + m.Text)
	}
	if m.ImageURL != "" {
		b.WriteString(" 🖼 " + m.ImageURL)
	}
	if m.VoiceURL != "" {
		b.WriteString(" 🎤 " + m.VoiceURL)
	}
	b.WriteString(" " + statusMarks[m.Status])
	fmt.Fprintln(out, b.String())
}

func printTally(out io.Writer, messageID string, tally []chat.EmojiCount) {
	parts := make([]string, len(tally))
	for i, t := range tally {
		parts[i] = fmt.Sprintf("%s %d", t.Emoji, t.Count)
	}
	fmt.Fprintf(out, "%s reactions: %s\n", messageID, strings.Join(parts, "  "))
}

func printRoster(out io.Writer, members []models.Member) {
	parts := make([]string, len(members))
	for i, m := range members {
		state := "offline"
		if m.Online {
			state = "online"
		}
		parts[i] = fmt.Sprintf("%s (%s)", m.Name, state)
	}
	fmt.Fprintf(out, "👥 %s\n", strings.Join(parts, ", "))
}
