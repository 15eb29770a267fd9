package chat

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/roomchat/internal/client"
	"github.com/dcrodman/roomchat/internal/core"
	"github.com/dcrodman/roomchat/internal/event"
	"github.com/dcrodman/roomchat/internal/frame"
	"github.com/dcrodman/roomchat/internal/room"
)

const (
	msgServerFull = "Server is full, try again later"
	msgThrottled  = "Too many connections, try again later"
)

var errAlreadyStarted = errors.New("server already started")

// Server accepts TCP connections and runs a session for each of them. All
// sessions share the same client and room registries.
type Server struct {
	Name   string
	Config *core.Config
	Logger *logrus.Logger

	clients    *client.Registry
	rooms      *room.Registry
	events     *event.Broadcaster
	dispatcher *Dispatcher
	throttle   *Throttle

	listener  *net.TCPListener
	accepting atomic.Bool

	acceptWg  sync.WaitGroup
	sessionWg sync.WaitGroup

	stop         chan struct{}
	done         chan struct{}
	shutdownOnce sync.Once
}

// NewServer returns a Server with empty registries. Nothing is bound until Start.
func NewServer(cfg *core.Config, logger *logrus.Logger) *Server {
	s := &Server{
		Name:     "CHAT",
		Config:   cfg,
		Logger:   logger,
		clients:  client.NewRegistry(),
		rooms:    room.NewRegistry(),
		events:   event.NewBroadcaster(cfg.SubscriberBuffer, logger),
		throttle: NewThrottle(cfg.Throttle.Window, cfg.Throttle.MaxAccepts),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.dispatcher = &Dispatcher{
		Clients: s.clients,
		Rooms:   s.rooms,
		Events:  s.events,
		Logger:  logger,
	}
	return s
}

// Subscribe returns a channel that receives every lifecycle event published
// after the call. The channel is closed once the server has shut down.
func (s *Server) Subscribe() <-chan event.Event {
	return s.events.Subscribe()
}

// Start opens the listening socket and spins off the accept loop. A failure to
// bind is returned to the caller. Cancelling ctx shuts the server down.
func (s *Server) Start(ctx context.Context) error {
	if s.listener != nil {
		return errAlreadyStarted
	}

	socket, err := s.createSocket()
	if err != nil {
		return fmt.Errorf("error creating socket on %s: %w", s.Config.Address(), err)
	}
	s.listener = socket
	s.accepting.Store(true)

	s.Logger.Infof("[%s] waiting for connections on %v", s.Name, socket.Addr())
	s.events.Publish(event.ServerUp)

	s.acceptWg.Add(1)
	go s.startBlockingLoop()

	go func() {
		select {
		case <-ctx.Done():
			s.Shutdown()
		case <-s.stop:
		}
	}()

	return nil
}

func (s *Server) createSocket() (*net.TCPListener, error) {
	hostAddr, err := net.ResolveTCPAddr("tcp", s.Config.Address())
	if err != nil {
		return nil, fmt.Errorf("error resolving address: %w", err)
	}

	socket, err := net.ListenTCP("tcp", hostAddr)
	if err != nil {
		return nil, fmt.Errorf("error listening on socket: %w", err)
	}

	return socket, nil
}

// Addr returns the address the server is listening on, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Accepting reports whether the accept loop is still taking new connections.
func (s *Server) Accepting() bool {
	return s.accepting.Load()
}

// startBlockingLoop accepts connections until the server is stopped. The
// listener deadline wakes the loop up periodically to check for shutdown.
func (s *Server) startBlockingLoop() {
	defer s.acceptWg.Done()

	for {
		select {
		case <-s.stop:
			return
		default:
		}

		if err := s.listener.SetDeadline(time.Now().Add(s.Config.AcceptPollInterval)); err != nil {
			if isClosedConnError(err) {
				return
			}
			s.Logger.Warnf("[%s] failed to set accept deadline: %v", s.Name, err)
		}

		connection, err := s.listener.AcceptTCP()
		if err != nil {
			var netErr net.Error
			switch {
			case errors.As(err, &netErr) && netErr.Timeout():
			case isClosedConnError(err):
				return
			default:
				s.Logger.Warnf("[%s] failed to accept connection: %v", s.Name, err)
			}
			continue
		}

		s.acceptClient(connection)
	}
}

// acceptClient applies the connection limits and, if the connection passes
// them, registers the client and starts its session.
func (s *Server) acceptClient(connection *net.TCPConn) {
	addr := connection.RemoteAddr()

	if !s.throttle.Allow(addr) {
		s.Logger.Infof("[%s] throttled connection from %s", s.Name, addr)
		s.reject(connection, msgThrottled)
		return
	}
	if max := s.Config.MaxConnections; max > 0 && s.clients.Len() >= max {
		s.Logger.Infof("[%s] rejected connection from %s: server is full", s.Name, addr)
		s.reject(connection, msgServerFull)
		return
	}

	c := s.clients.Register(connection)
	sess := &session{
		server: s,
		client: c,
		logger: s.Logger.WithFields(logrus.Fields{
			"session": c.ID.String(),
			"addr":    c.Address(),
		}),
	}
	sess.logger.Infof("[%s] accepted connection from %s", s.Name, c.Address())

	s.sessionWg.Add(1)
	go func() {
		defer s.sessionWg.Done()
		sess.run()
	}()
}

func (s *Server) reject(connection net.Conn, reason string) {
	if err := frame.Write(connection, reason); err != nil {
		s.Logger.Debugf("[%s] failed to send rejection to %s: %v", s.Name, connection.RemoteAddr(), err)
	}
	_ = connection.Close()
}

// Shutdown stops accepting connections, closes every client connection, and
// waits for the sessions to exit before announcing ServerDown. It is safe to
// call more than once.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.accepting.Store(false)
		close(s.stop)

		if s.listener != nil {
			if err := s.listener.Close(); err != nil && !isClosedConnError(err) {
				s.Logger.Warnf("[%s] failed to close listener: %v", s.Name, err)
			}
		}
		s.acceptWg.Wait()

		s.Logger.Infof("[%s] shutting down (closing %d connections)", s.Name, s.clients.CloseAll())
		s.sessionWg.Wait()

		s.events.Publish(event.ServerDown)
		s.events.Close()
		s.Logger.Infof("[%s] exited", s.Name)
		close(s.done)
	})
}

// Wait blocks until the server has shut down and every session has exited.
func (s *Server) Wait() {
	<-s.done
}

func isClosedConnError(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
