package chat

import (
	"sort"

	"clanchat/internal/models"
)

// EmojiCount is one badge in a message's reaction row.
type EmojiCount struct {
	Emoji string
	Count int
}

// SetReaction applies the one-reaction-per-member rule: an empty emoji removes
// the member's reaction, anything else replaces or inserts it. It returns the
// member's previous emoji ("" if none) and whether the message is known.
func (s *Store) SetReaction(messageID, memberID, emoji string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(messageID)
	if i < 0 {
		return "", false
	}
	msg := s.msgs[i]

	prev := ""
	at := -1
	for j, r := range msg.Reactions {
		if r.MemberID == memberID {
			prev, at = r.Emoji, j
			break
		}
	}

	switch {
	case emoji == "" && at >= 0:
		msg.Reactions = append(msg.Reactions[:at:at], msg.Reactions[at+1:]...)
	case emoji == "":
	case at >= 0:
		msg.Reactions[at].Emoji = emoji
	default:
		msg.Reactions = append(msg.Reactions, models.Reaction{MemberID: memberID, Emoji: emoji, MessageID: messageID})
	}
	return prev, true
}

// Reaction returns memberID's emoji on a message, or "".
func (s *Store) Reaction(messageID, memberID string) string {
	msg, ok := s.Get(messageID)
	if !ok {
		return ""
	}
	for _, r := range msg.Reactions {
		if r.MemberID == memberID {
			return r.Emoji
		}
	}
	return ""
}

// Tally groups a message's reactions by emoji, most used first.
func (s *Store) Tally(messageID string) []EmojiCount {
	msg, ok := s.Get(messageID)
	if !ok {
		return nil
	}
	counts := make(map[string]int)
	for _, r := range msg.Reactions {
		counts[r.Emoji]++
	}
	out := make([]EmojiCount, 0, len(counts))
	for e, n := range counts {
		out = append(out, EmojiCount{Emoji: e, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Emoji < out[j].Emoji
	})
	return out
}
