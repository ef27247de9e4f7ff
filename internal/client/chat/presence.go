package chat

import (
	"sync"

	"clanchat/internal/models"
)

// Presence tracks which members are online. It only changes on events; there
// is no client-side expiry.
type Presence struct {
	mu      sync.RWMutex
	online  map[string]bool
	members []models.Member
}

func NewPresence() *Presence {
	return &Presence{online: make(map[string]bool)}
}

// Replace installs a full snapshot.
func (p *Presence) Replace(ids []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online = make(map[string]bool, len(ids))
	for _, id := range ids {
		p.online[id] = true
	}
}

func (p *Presence) Join(id string) {
	p.mu.Lock()
	p.online[id] = true
	p.mu.Unlock()
}

func (p *Presence) Leave(id string) {
	p.mu.Lock()
	delete(p.online, id)
	p.mu.Unlock()
}

func (p *Presence) IsOnline(id string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.online[id]
}

func (p *Presence) SetMembers(members []models.Member) {
	p.mu.Lock()
	p.members = append([]models.Member(nil), members...)
	p.mu.Unlock()
}

// Roster returns the fetched members with Online set from the current set.
func (p *Presence) Roster() []models.Member {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]models.Member, len(p.members))
	for i, m := range p.members {
		m.Online = p.online[m.ID]
		out[i] = m
	}
	return out
}
