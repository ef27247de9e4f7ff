// Package chat binds a client to one clan room and keeps its local state.
package chat

import (
	"errors"
	"fmt"
	"sync"

	"clanchat/internal/models"
)

var ErrStatusRegression = errors.New("status regression")

// Store is the ordered message list of one room. Order is arrival order;
// every lookup is by id.
type Store struct {
	mu   sync.RWMutex
	msgs []*models.Message
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) indexLocked(id string) int {
	for i, m := range s.msgs {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// Append adds msg at the end unless its id is already present.
func (s *Store) Append(msg *models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(msg.ID) >= 0 {
		return false
	}
	cp := *msg
	s.msgs = append(s.msgs, &cp)
	return true
}

// Reset replaces the whole list with page, dropping repeated ids.
func (s *Store) Reset(page []*models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = make([]*models.Message, 0, len(page))
	for _, m := range page {
		if s.indexLocked(m.ID) >= 0 {
			continue
		}
		cp := *m
		s.msgs = append(s.msgs, &cp)
	}
}

// Prepend puts an older page in front, skipping ids already present.
// It returns how many were added.
func (s *Store) Prepend(page []*models.Message) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	fresh := make([]*models.Message, 0, len(page))
	for _, m := range page {
		if s.indexLocked(m.ID) >= 0 {
			continue
		}
		cp := *m
		fresh = append(fresh, &cp)
	}
	s.msgs = append(fresh, s.msgs...)
	return len(fresh)
}

// Remove deletes the message with id and returns it with its position.
// A missing id is a no-op.
func (s *Store) Remove(id string) (models.Message, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return models.Message{}, -1, false
	}
	removed := *s.msgs[i]
	s.msgs = append(s.msgs[:i], s.msgs[i+1:]...)
	return removed, i, true
}

// Insert puts msg back at pos, clamped to the list bounds.
func (s *Store) Insert(pos int, msg models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexLocked(msg.ID) >= 0 {
		return
	}
	if pos < 0 {
		pos = 0
	}
	if pos > len(s.msgs) {
		pos = len(s.msgs)
	}
	s.msgs = append(s.msgs, nil)
	copy(s.msgs[pos+1:], s.msgs[pos:])
	s.msgs[pos] = &msg
}

// SetStatus moves a message forward through sent, delivered, read.
// Unknown ids are ignored; backward or repeated moves return ErrStatusRegression.
func (s *Store) SetStatus(id string, status models.MessageStatus) error {
	if !status.Valid() {
		return fmt.Errorf("unknown status %q", status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return nil
	}
	cur := s.msgs[i].Status
	if !cur.CanAdvanceTo(status) {
		return fmt.Errorf("%w: %s to %s", ErrStatusRegression, cur, status)
	}
	s.msgs[i].Status = status
	return nil
}

func (s *Store) Get(id string) (models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexLocked(id)
	if i < 0 {
		return models.Message{}, false
	}
	return copyMessage(s.msgs[i]), true
}

// Messages returns a snapshot in display order.
func (s *Store) Messages() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Message, len(s.msgs))
	for i, m := range s.msgs {
		out[i] = copyMessage(m)
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}

// OldestID is the paging cursor for loading older history.
func (s *Store) OldestID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.msgs) == 0 {
		return ""
	}
	return s.msgs[0].ID
}

func copyMessage(m *models.Message) models.Message {
	out := *m
	out.Reactions = append([]models.Reaction(nil), m.Reactions...)
	return out
}
