// Package room implements the named, invitation-gated chat rooms shared by
// every session on the server.
package room

import "sort"

// Member is anything that can take part in a room. Rooms hold Members as
// non-owning references; closing the underlying connection is up to whoever
// registered it.
type Member interface {
	// Address identifies the member. Two Members with the same address are
	// the same participant.
	Address() string
	// Send delivers one frame of text to the member.
	Send(text string) error
}

// Room is a broadcast group with an owner, pending invitations, and members.
// An address is never in both invited and members.
type Room struct {
	name    string
	owner   string
	invited map[string]Member
	members map[string]Member
}

func newRoom(name string, owner Member) *Room {
	r := &Room{
		name:    name,
		owner:   owner.Address(),
		invited: make(map[string]Member),
		members: make(map[string]Member),
	}
	r.members[owner.Address()] = owner
	return r
}

func (r *Room) isOwner(address string) bool   { return r.owner == address }
func (r *Room) isInvited(address string) bool { _, ok := r.invited[address]; return ok }
func (r *Room) isMember(address string) bool  { _, ok := r.members[address]; return ok }

func (r *Room) memberList() []Member {
	members := make([]Member, 0, len(r.members))
	for _, m := range r.members {
		members = append(members, m)
	}
	return members
}

// Snapshot is a point-in-time copy of a room's state.
type Snapshot struct {
	Name    string
	Owner   string
	Invited []string
	Members []string
}

func (r *Room) snapshot() Snapshot {
	return Snapshot{
		Name:    r.name,
		Owner:   r.owner,
		Invited: sortedKeys(r.invited),
		Members: sortedKeys(r.members),
	}
}

func sortedKeys(m map[string]Member) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
