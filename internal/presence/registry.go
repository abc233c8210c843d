// Package presence tracks which users are currently connected to each
// document's collaboration room. State is process-local and rebuilt from
// nothing on restart; it only ever reflects live connections.
package presence

import "sync"

// Collaborator identifies one connected user within a document room.
type Collaborator struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// Registry maps document identifiers to their ordered collaborator lists.
// It is an explicit service object injected into the relay rather than a
// package-level map, so it can be torn down cleanly or swapped for a shared
// store when presence must span processes.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string][]Collaborator
}

// NewRegistry constructs an empty presence registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string][]Collaborator),
	}
}

// Join records a collaborator under the document. A rejoining user replaces
// their prior entry in place, refreshing the user name instead of duplicating
// it. Returns a copy of the updated collaborator list.
func (r *Registry) Join(documentID, userID, userName string) []Collaborator {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.rooms[documentID]
	replaced := false
	for i := range entries {
		if entries[i].UserID == userID {
			entries[i] = Collaborator{UserID: userID, UserName: userName}
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, Collaborator{UserID: userID, UserName: userName})
	}
	r.rooms[documentID] = entries

	return copyCollaborators(entries)
}

// Leave removes the collaborator from the document. When the last member
// leaves, the room entry is dropped entirely so no empty lists linger.
// Returns a copy of the remaining collaborator list.
func (r *Registry) Leave(documentID, userID string) []Collaborator {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.rooms[documentID]
	remaining := entries[:0]
	for _, entry := range entries {
		if entry.UserID != userID {
			remaining = append(remaining, entry)
		}
	}
	if len(remaining) == 0 {
		delete(r.rooms, documentID)
		return nil
	}
	r.rooms[documentID] = remaining

	return copyCollaborators(remaining)
}

// Snapshot returns a copy of the current collaborator list for the document,
// or an empty list when nobody is connected.
func (r *Registry) Snapshot(documentID string) []Collaborator {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries, ok := r.rooms[documentID]
	if !ok {
		return []Collaborator{}
	}
	return copyCollaborators(entries)
}

func copyCollaborators(entries []Collaborator) []Collaborator {
	copied := make([]Collaborator, len(entries))
	copy(copied, entries)
	return copied
}
