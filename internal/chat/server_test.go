package chat

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dcrodman/roomchat/internal/core"
	"github.com/dcrodman/roomchat/internal/event"
	"github.com/dcrodman/roomchat/internal/protocol"
)

func newTestServer(t *testing.T, modify func(*core.Config)) *Server {
	t.Helper()
	cfg := core.DefaultConfig()
	cfg.Hostname = "127.0.0.1"
	cfg.Port = 0
	cfg.AcceptPollInterval = 20 * time.Millisecond
	if modify != nil {
		modify(cfg)
	}
	return NewServer(cfg, discardLogger())
}

func startServer(t *testing.T, s *Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		cancel()
		t.Fatalf("Start() returned error: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		s.Shutdown()
	})
}

func runServer(t *testing.T, modify func(*core.Config)) *Server {
	t.Helper()
	s := newTestServer(t, modify)
	startServer(t, s)
	return s
}

func dial(t *testing.T, s *Server) *peer {
	t.Helper()
	conn, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatalf("failed to dial %v: %v", s.Addr(), err)
	}
	return newPeer(t, conn)
}

func dialAs(t *testing.T, s *Server, name string) *peer {
	t.Helper()
	p := dial(t, s)
	p.roundTrip("IDENTIFY "+name, "Name changed to: "+name)
	return p
}

func expectEvent(t *testing.T, events <-chan event.Event, want event.Event) {
	t.Helper()
	select {
	case got := <-events:
		if got != want {
			t.Fatalf("got event %v, want %v", got, want)
		}
	case <-time.After(readTimeout):
		t.Fatalf("timed out waiting for %v", want)
	}
}

func TestServer_IdentifyNameTaken(t *testing.T) {
	s := runServer(t, nil)

	dialAs(t, s, "alice")
	second := dial(t, s)
	second.roundTrip("IDENTIFY alice", "A user with that name already exists")
	second.roundTrip("IDENTIFY bob", "Name changed to: bob")
}

func TestServer_RoomInvitationFlow(t *testing.T) {
	s := runServer(t, nil)
	alice := dialAs(t, s, "alice")
	bob := dialAs(t, s, "bob")

	alice.roundTrip("CREATEROOM S1", "Room S1 created")
	bob.roundTrip("JOINROOM S1", "You are not invited to join S1")

	alice.roundTrip("INVITE S1 bob", "Invitations for S1 sent")
	bob.expect("Invitation to join room S1 from alice")

	bob.roundTrip("JOINROOM S1", "bob joined S1")
	alice.expect("bob joined S1")
	alice.expectSilence()
}

func TestServer_RoomMessage(t *testing.T) {
	s := runServer(t, nil)
	alice := dialAs(t, s, "alice")
	bob := dialAs(t, s, "bob")
	carol := dialAs(t, s, "carol")

	alice.roundTrip("CREATEROOM S1", "Room S1 created")
	alice.roundTrip("INVITE S1 bob", "Invitations for S1 sent")
	bob.expect("Invitation to join room S1 from alice")
	bob.roundTrip("JOINROOM S1", "bob joined S1")
	alice.expect("bob joined S1")

	alice.roundTrip("ROOMESSAGE S1 hello", "S1-alice: hello")
	bob.expect("S1-alice: hello")

	carol.roundTrip("ROOMESSAGE S1 hi", "You are not a member of S1")
	alice.expectSilence()
	bob.expectSilence()
}

func TestServer_PrivateMessage(t *testing.T) {
	s := runServer(t, nil)

	anonymous := dial(t, s)
	anonymous.roundTrip("MESSAGE bob hi", "You must identify before sending messages")

	alice := dialAs(t, s, "alice")
	alice.roundTrip("MESSAGE bob hi", "User bob not found")

	bob := dialAs(t, s, "bob")
	alice.roundTrip("MESSAGE bob hi", "alice: hi")
	bob.expect("alice: hi")
}

func TestServer_PublicMessage(t *testing.T) {
	s := runServer(t, nil)
	anonymous := dial(t, s)
	alice := dialAs(t, s, "alice")
	bob := dialAs(t, s, "bob")

	alice.roundTrip("PUBLICMESSAGE hello everyone", "Public-alice: hello everyone")
	anonymous.expect("Public-alice: hello everyone")
	bob.expect("Public-alice: hello everyone")
}

func TestServer_UsersAndStatus(t *testing.T) {
	s := runServer(t, nil)
	alice := dialAs(t, s, "alice")
	dial(t, s).roundTrip("STATUS BUSY", "Status changed to: BUSY")
	dialAs(t, s, "bob")

	alice.roundTrip("USERS", "alice bob")
}

func TestServer_InvalidInputKeepsSession(t *testing.T) {
	s := runServer(t, nil)
	p := dial(t, s)

	p.roundTrip("HELLO", protocol.HelpText)

	p.sendBytes([]byte{0xff, 0xfe, 0xfd})
	p.expect(protocol.HelpText)

	p.roundTrip("IDENTIFY alice\r\n", "Name changed to: alice")
}

func TestServer_DisconnectPurgesRegistries(t *testing.T) {
	s := runServer(t, nil)
	alice := dialAs(t, s, "alice")
	bob := dialAs(t, s, "bob")

	alice.roundTrip("CREATEROOM S1", "Room S1 created")
	alice.roundTrip("INVITE S1 bob", "Invitations for S1 sent")
	bob.expect("Invitation to join room S1 from alice")
	bob.roundTrip("JOINROOM S1", "bob joined S1")
	alice.expect("bob joined S1")

	bob.send("DISCONNECT")
	bob.expectClosed()

	eventually(t, func() bool {
		snapshot, _ := s.rooms.Lookup("S1")
		return s.clients.Len() == 1 && len(snapshot.Members) == 1
	}, "bob was never purged from the registries")
	if _, ok := s.rooms.Lookup("S1"); !ok {
		t.Fatalf("room S1 should survive a member disconnecting")
	}

	alice.roundTrip("USERS", "alice")
	alice.roundTrip("ROOMESSAGE S1 anyone?", "S1-alice: anyone?")

	// The name is free again once its owner is gone.
	dialAs(t, s, "bob")
}

func TestServer_PeerClosePurgesRegistries(t *testing.T) {
	s := runServer(t, nil)
	alice := dialAs(t, s, "alice")
	_ = alice.conn.Close()

	eventually(t, func() bool { return s.clients.Len() == 0 }, "closed client was never removed")
	dialAs(t, s, "alice")
}

func TestServer_LifecycleEvents(t *testing.T) {
	s := newTestServer(t, nil)
	first := s.Subscribe()
	second := s.Subscribe()
	startServer(t, s)

	expectEvent(t, first, event.ServerUp)
	expectEvent(t, second, event.ServerUp)

	alice := dialAs(t, s, "alice")
	expectEvent(t, first, event.NewClient)

	alice.roundTrip("CREATEROOM S1", "Room S1 created")
	expectEvent(t, first, event.NewRoom)

	s.Shutdown()
	expectEvent(t, first, event.ServerDown)
	if _, ok := <-first; ok {
		t.Errorf("subscriber channel should be closed after shutdown")
	}

	var got []event.Event
	for e := range second {
		got = append(got, e)
	}
	want := []event.Event{event.NewClient, event.NewRoom, event.ServerDown}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("second subscriber events (-want +got):\n%s", diff)
	}
}

func TestServer_Shutdown(t *testing.T) {
	s := runServer(t, nil)
	alice := dialAs(t, s, "alice")

	if !s.Accepting() {
		t.Fatalf("server should be accepting after Start")
	}

	s.Shutdown()
	s.Shutdown()
	s.Wait()

	if s.Accepting() {
		t.Errorf("server still accepting after Shutdown")
	}
	alice.expectClosed()
	if _, err := net.DialTimeout("tcp", s.Addr().String(), 100*time.Millisecond); err == nil {
		t.Errorf("listener still open after Shutdown")
	}
}

func TestServer_ContextCancelShutsDown(t *testing.T) {
	s := newTestServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() returned error: %v", err)
	}
	alice := dialAs(t, s, "alice")

	cancel()
	s.Wait()
	alice.expectClosed()
}

func TestServer_MaxConnections(t *testing.T) {
	s := runServer(t, func(cfg *core.Config) { cfg.MaxConnections = 1 })
	dialAs(t, s, "alice")

	rejected := dial(t, s)
	rejected.expect("Server is full, try again later")
	rejected.expectClosed()
}

func TestServer_Throttle(t *testing.T) {
	s := runServer(t, func(cfg *core.Config) {
		cfg.Throttle.Window = time.Minute
		cfg.Throttle.MaxAccepts = 1
	})
	dialAs(t, s, "alice")

	rejected := dial(t, s)
	rejected.expect("Too many connections, try again later")
	rejected.expectClosed()
}

func TestServer_StartFailsWhenPortInUse(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer taken.Close()

	port := taken.Addr().(*net.TCPAddr).Port
	s := newTestServer(t, func(cfg *core.Config) { cfg.Port = port })
	if err := s.Start(context.Background()); err == nil {
		s.Shutdown()
		t.Fatalf("Start() on port %d should fail", port)
	}
}
