package chat

import (
	"sync"
	"time"

	"clanchat/internal/models"
)

// TypingWindow is how long a typing label stays up after the latest event.
const TypingWindow = time.Second

// Typing holds the "who is typing" label for a room.
type Typing struct {
	mu       sync.Mutex
	selfID   string
	now      func() time.Time
	name     string
	until    time.Time
	timer    *time.Timer
	onChange func(name string)
}

func NewTyping(selfID string, now func() time.Time) *Typing {
	if now == nil {
		now = time.Now
	}
	return &Typing{selfID: selfID, now: now}
}

// OnChange registers fn to run when the label appears, changes, or expires.
func (t *Typing) OnChange(fn func(name string)) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

// Observe applies a typing event. Each event restarts the window.
func (t *Typing) Observe(p models.TypingPayload) {
	if p.UserID == t.selfID {
		return
	}
	t.mu.Lock()
	changed := t.name != p.Name || !t.now().Before(t.until)
	t.name = p.Name
	t.until = t.now().Add(TypingWindow)
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(TypingWindow, t.expire)
	fn := t.onChange
	t.mu.Unlock()

	if changed && fn != nil {
		fn(p.Name)
	}
}

func (t *Typing) expire() {
	t.mu.Lock()
	if t.name == "" {
		t.mu.Unlock()
		return
	}
	if left := t.until.Sub(t.now()); left > 0 {
		t.timer = time.AfterFunc(left, t.expire)
		t.mu.Unlock()
		return
	}
	t.name = ""
	fn := t.onChange
	t.mu.Unlock()
	if fn != nil {
		fn("")
	}
}

// Current returns the label, or "" once the window has passed.
func (t *Typing) Current() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.now().Before(t.until) {
		return ""
	}
	return t.name
}

func (t *Typing) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.name = ""
	t.until = time.Time{}
}
