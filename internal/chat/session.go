package chat

import (
	"errors"
	"runtime/debug"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/roomchat/internal/client"
	chatdebug "github.com/dcrodman/roomchat/internal/core/debug"
	"github.com/dcrodman/roomchat/internal/frame"
)

// session is the per-connection loop. It owns no state of its own beyond the
// client reference; everything shared lives in the registries.
type session struct {
	server *Server
	client *client.Client
	logger *logrus.Entry
}

// run reads and dispatches one frame at a time until the client disconnects
// or its connection fails, then tears the session down.
func (s *session) run() {
	defer s.closeConnectionAndRecover()

	for {
		_, text, err := frame.Read(s.client)
		switch {
		case errors.Is(err, frame.ErrInvalidEncoding):
			s.logger.Warn("received a frame that is not valid utf-8")
		case err != nil:
			s.logger.Debugf("read failed: %v", err)
		case s.server.Config.Debugging.FrameLoggingEnabled:
			chatdebug.LogFrame(s.logger, chatdebug.Inbound, text)
		}

		cmd, args := frame.Decode(text, err)

		reply, err := s.server.dispatcher.Dispatch(s.client, cmd, args)
		if errors.Is(err, ErrDisconnect) {
			return
		}
		if reply == "" {
			continue
		}

		if s.server.Config.Debugging.FrameLoggingEnabled {
			chatdebug.LogFrame(s.logger, chatdebug.Outbound, reply)
		}
		if err := s.client.Send(reply); err != nil {
			s.logger.Warnf("error in client communication: %v", err)
			return
		}
	}
}

// closeConnectionAndRecover is the failsafe that catches any panics, removes
// the client from the registries, and closes its connection regardless of
// the state it was left in.
func (s *session) closeConnectionAndRecover() {
	if err := recover(); err != nil {
		s.logger.Errorf("error in client communication: error=%s, trace: %s", err, debug.Stack())
	}

	s.server.clients.Remove(s.client)
	s.server.rooms.RemoveParticipant(s.client.Address())
	if err := s.client.Close(); err != nil && !isClosedConnError(err) {
		s.logger.Warnf("failed to close client connection: %s", err)
	}

	s.logger.Infof("[%s] disconnected client %s", s.server.Name, s.client.Address())
}
