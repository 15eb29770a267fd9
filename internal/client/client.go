package client

import (
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/dcrodman/roomchat/internal/frame"
	"github.com/dcrodman/roomchat/internal/protocol"
)

// Client is the server side of one accepted connection. The name and status
// fields are owned by the Registry and only change under its lock.
type Client struct {
	// ID uniquely identifies the session in logs, even across reconnects
	// from the same address.
	ID uuid.UUID

	connection net.Conn
	address    string

	name   string
	status protocol.ClientStatus

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newClient(connection net.Conn) *Client {
	return &Client{
		ID:         uuid.New(),
		connection: connection,
		address:    connection.RemoteAddr().String(),
		status:     protocol.Active,
	}
}

// Address returns the remote endpoint of the connection, which is how the
// registries identify a client.
func (c *Client) Address() string { return c.address }

// Read consumes the available bytes directly from the client's connection.
func (c *Client) Read(b []byte) (int, error) {
	return c.connection.Read(b)
}

// Send writes text to the client as a single frame. Writes from different
// goroutines are serialized so frames never interleave.
func (c *Client) Send(text string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := frame.Write(c.connection, text); err != nil {
		return fmt.Errorf("failed to send to client %v: %w", c.address, err)
	}
	return nil
}

// Close closes the underlying connection. Only the first call has any
// effect; later calls return the same result.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.connection.Close()
	})
	return c.closeErr
}
