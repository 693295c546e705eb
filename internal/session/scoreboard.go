package session

import (
	"sort"

	"quiz-session-client/internal/domain"
)

// Scoreboard folds join/leave/snapshot events into a roster keyed by
// player id, with display name as a degraded fallback until an id is
// known. Entries keep arrival order; ranking is a view-time projection.
// Not safe for concurrent use: the owning Machine serializes access.
type Scoreboard struct {
	entries []domain.ScoreboardEntry
}

// Join inserts a participant if absent and reports whether the roster
// changed. Duplicate joins, including replayed notifications for a
// reconnecting player, are no-ops. An existing name-keyed entry adopts
// the id once one is announced.
func (b *Scoreboard) Join(id, name string) bool {
	if id == "" && name == "" {
		return false
	}
	if id != "" {
		for i := range b.entries {
			if b.entries[i].PlayerID == id {
				return false
			}
		}
	}
	if name != "" {
		for i := range b.entries {
			e := &b.entries[i]
			if e.Name != name {
				continue
			}
			if e.PlayerID == "" || id == "" {
				if e.PlayerID == "" && id != "" {
					e.PlayerID = id
				}
				return false
			}
		}
	}
	b.entries = append(b.entries, domain.ScoreboardEntry{PlayerID: id, Name: name, Score: 0})
	return true
}

// Leave removes entries matching by id or by name. Removing a participant
// never seen is a no-op.
func (b *Scoreboard) Leave(id, name string) bool {
	kept := b.entries[:0]
	removed := false
	for _, e := range b.entries {
		if (id != "" && e.PlayerID == id) || (name != "" && e.Name == name) {
			removed = true
			continue
		}
		kept = append(kept, e)
	}
	b.entries = kept
	return removed
}

// Replace swaps the roster wholesale for an authoritative snapshot,
// discarding any locally accumulated drift.
func (b *Scoreboard) Replace(entries []domain.ScoreboardEntry) {
	b.entries = append(b.entries[:0:0], entries...)
}

// Ranked returns a copy sorted by score descending; ties keep arrival
// order.
func (b *Scoreboard) Ranked() []domain.ScoreboardEntry {
	out := append([]domain.ScoreboardEntry(nil), b.entries...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// Len reports the number of participants.
func (b *Scoreboard) Len() int {
	return len(b.entries)
}
