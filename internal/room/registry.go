package room

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrNameMissing  = errors.New("no room name specified")
	ErrNameTaken    = errors.New("room already exists")
	ErrNotFound     = errors.New("room does not exist")
	ErrNotOwner     = errors.New("not the room owner")
	ErrNotInvited   = errors.New("not invited to the room")
	ErrNotMember    = errors.New("not a member of the room")
	ErrEmptyMessage = errors.New("message has no content")
)

// Registry holds every room on the server. Each method holds the registry
// lock for its duration; messages are sent after the lock is released.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

// Create registers a new room owned by owner, who also becomes its first
// member. Of two concurrent creators of the same name, the second gets
// ErrNameTaken.
func (r *Registry) Create(name string, owner Member) error {
	if name == "" {
		return ErrNameMissing
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rooms[name]; exists {
		return ErrNameTaken
	}
	r.rooms[name] = newRoom(name, owner)
	return nil
}

// Invite adds invitees to the room's invitation set. Only the owner may
// invite. Invitees who are already members are skipped; the ones actually
// invited are returned so the caller can notify them.
func (r *Registry) Invite(name, ownerAddress string, invitees []Member) ([]Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[name]
	if !ok {
		return nil, ErrNotFound
	}
	if !room.isOwner(ownerAddress) {
		return nil, ErrNotOwner
	}

	var invited []Member
	for _, m := range invitees {
		if room.isMember(m.Address()) {
			continue
		}
		room.invited[m.Address()] = m
		invited = append(invited, m)
	}
	return invited, nil
}

// Join moves m from the room's invitation set to its members and returns
// the resulting member list.
func (r *Registry) Join(name string, m Member) ([]Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[name]
	if !ok {
		return nil, ErrNotFound
	}
	if !room.isInvited(m.Address()) {
		return nil, ErrNotInvited
	}

	delete(room.invited, m.Address())
	room.members[m.Address()] = m
	return room.memberList(), nil
}

// Members returns the current members of a room.
func (r *Registry) Members(name string) ([]Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[name]
	if !ok {
		return nil, ErrNotFound
	}
	return room.memberList(), nil
}

// Broadcast sends "<room>-<sender>: <body>" to every member of the room.
// address must belong to a member. Every member is attempted; delivery
// failures are returned together.
func (r *Registry) Broadcast(name, address, sender, body string) error {
	r.mu.Lock()
	room, ok := r.rooms[name]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	if !room.isMember(address) {
		r.mu.Unlock()
		return ErrNotMember
	}
	if body == "" {
		r.mu.Unlock()
		return ErrEmptyMessage
	}
	members := room.memberList()
	r.mu.Unlock()

	return Deliver(members, fmt.Sprintf("%s-%s: %s", name, sender, body))
}

// Deliver sends text to each of members, continuing past failures.
func Deliver(members []Member, text string) error {
	var errs []error
	for _, m := range members {
		if err := m.Send(text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RemoveParticipant strips address from the invited and member sets of
// every room. Calling it for an address that isn't present is a no-op.
func (r *Registry) RemoveParticipant(address string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, room := range r.rooms {
		delete(room.invited, address)
		delete(room.members, address)
	}
}

// Lookup returns a copy of the named room's state.
func (r *Registry) Lookup(name string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[name]
	if !ok {
		return Snapshot{}, false
	}
	return room.snapshot(), true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}
