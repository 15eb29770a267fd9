package internal

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/roomchat/internal/chat"
	"github.com/dcrodman/roomchat/internal/core"
	"github.com/dcrodman/roomchat/internal/core/debug"
	"github.com/dcrodman/roomchat/internal/event"
)

// Controller is the main entrypoint for roomchat. It's responsible for initializing
// any shared resources (such as logging), defining the server, and launching everything.
type Controller struct {
	Config *core.Config

	logger *logrus.Logger
	server *chat.Server
}

// Start runs the chat server until ctx is cancelled. It only returns once the
// server has shut down; the context's error is returned in that case.
func (c *Controller) Start(ctx context.Context) error {
	var err error
	// Set up the logger, which will be used by everything the server spins off.
	c.logger, err = core.NewLogger(c.Config)
	if err != nil {
		return fmt.Errorf("error initializing logger: %w", err)
	}

	// Start any debug utilities if we're configured to do so.
	if c.Config.Debugging.Enabled {
		debug.StartPprofServer(c.logger, c.Config.PprofAddress())
	}

	c.server = chat.NewServer(c.Config, c.logger)
	events := c.server.Subscribe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.logEvents(events)
	}()

	if err := c.server.Start(ctx); err != nil {
		c.server.Shutdown()
		<-done
		return fmt.Errorf("error starting %s server: %w", c.server.Name, err)
	}

	c.server.Wait()
	<-done
	return ctx.Err()
}

// logEvents records server lifecycle events until the server closes the channel.
func (c *Controller) logEvents(events <-chan event.Event) {
	for e := range events {
		switch e {
		case event.ServerUp, event.ServerDown:
			c.logger.Infof("[%s] %v", c.server.Name, e)
		default:
			c.logger.Debugf("[%s] %v", c.server.Name, e)
		}
	}
}
