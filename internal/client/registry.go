// Package client tracks the sessions connected to the chat server.
package client

import (
	"container/list"
	"errors"
	"net"
	"sync"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/dcrodman/roomchat/internal/protocol"
)

const (
	MinNameLength = 1
	MaxNameLength = 20
)

var (
	ErrNameMissing   = errors.New("no name specified")
	ErrNameTooShort  = errors.New("name is too short")
	ErrNameTooLong   = errors.New("name is too long")
	ErrNameTaken     = errors.New("name is already taken")
	ErrNotRegistered = errors.New("client is not registered")
)

// Registry is a concurrency-safe collection of connected clients kept in
// the order they connected. Names are unique among registered clients.
type Registry struct {
	mu        sync.Mutex
	clients   *list.List
	byAddress map[string]*list.Element
}

func NewRegistry() *Registry {
	return &Registry{
		clients:   list.New(),
		byAddress: make(map[string]*list.Element),
	}
}

// Register wraps the connection in an unnamed Client and adds it.
func (r *Registry) Register(connection net.Conn) *Client {
	c := newClient(connection)

	r.mu.Lock()
	r.byAddress[c.address] = r.clients.PushBack(c)
	r.mu.Unlock()

	return c
}

// normalizeName returns the canonical form used for storage and comparison.
func normalizeName(name string) string {
	return norm.NFC.String(name)
}

// SetName validates the name and assigns it to c. A client may re-identify
// with the name it already holds.
func (r *Registry) SetName(c *Client, name string) error {
	if name == "" {
		return ErrNameMissing
	}
	name = normalizeName(name)
	switch length := utf8.RuneCountInString(name); {
	case length < MinNameLength:
		return ErrNameTooShort
	case length > MaxNameLength:
		return ErrNameTooLong
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byAddress[c.address]; !ok {
		return ErrNotRegistered
	}
	for e := r.clients.Front(); e != nil; e = e.Next() {
		other := e.Value.(*Client)
		if other != c && other.name == name {
			return ErrNameTaken
		}
	}

	c.name = name
	return nil
}

// SetStatus updates the status advertised by c.
func (r *Registry) SetStatus(c *Client, status protocol.ClientStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byAddress[c.address]; !ok {
		return ErrNotRegistered
	}
	c.status = status
	return nil
}

// Name returns the name of c and whether it has identified.
func (r *Registry) Name(c *Client) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return c.name, c.name != ""
}

// Status returns the status of c.
func (r *Registry) Status(c *Client) protocol.ClientStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return c.status
}

// FindByName returns the client holding name, if any.
func (r *Registry) FindByName(name string) (*Client, bool) {
	if name == "" {
		return nil, false
	}
	name = normalizeName(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	for e := r.clients.Front(); e != nil; e = e.Next() {
		if c := e.Value.(*Client); c.name == name {
			return c, true
		}
	}
	return nil, false
}

// FindAllByName returns the clients holding any of names in registry order.
// Unknown names are ignored.
func (r *Registry) FindAllByName(names []string) []*Client {
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		if name != "" {
			wanted[normalizeName(name)] = true
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var found []*Client
	for e := r.clients.Front(); e != nil; e = e.Next() {
		if c := e.Value.(*Client); c.name != "" && wanted[c.name] {
			found = append(found, c)
		}
	}
	return found
}

// ListNamed returns the names of every identified client in the order they
// connected.
func (r *Registry) ListNamed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, r.clients.Len())
	for e := r.clients.Front(); e != nil; e = e.Next() {
		if c := e.Value.(*Client); c.name != "" {
			names = append(names, c.name)
		}
	}
	return names
}

// All returns a snapshot of every registered client, named or not.
func (r *Registry) All() []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := make([]*Client, 0, r.clients.Len())
	for e := r.clients.Front(); e != nil; e = e.Next() {
		all = append(all, e.Value.(*Client))
	}
	return all
}

// Has reports whether a client with the same address is registered.
// Note: this comparison is by address, not element value.
func (r *Registry) Has(address string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byAddress[address]
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clients.Len()
}

// Remove deletes c from the registry and hands it back so the caller can
// close it. The second return is false if c wasn't registered.
func (r *Registry) Remove(c *Client) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byAddress[c.address]
	if !ok || e.Value.(*Client) != c {
		return nil, false
	}
	r.clients.Remove(e)
	delete(r.byAddress, c.address)
	return c, true
}

// CloseAll closes the connection of every registered client and returns how
// many were closed. Clients stay registered until their sessions exit.
func (r *Registry) CloseAll() int {
	clients := r.All()
	for _, c := range clients {
		_ = c.Close()
	}
	return len(clients)
}
