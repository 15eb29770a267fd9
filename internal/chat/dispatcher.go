package chat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/roomchat/internal/client"
	"github.com/dcrodman/roomchat/internal/event"
	"github.com/dcrodman/roomchat/internal/protocol"
	"github.com/dcrodman/roomchat/internal/room"
)

// ErrDisconnect is returned by Dispatch when the session should end.
var ErrDisconnect = errors.New("client ended the connection")

// Reply texts sent back to clients.
const (
	msgNameMissing      = "No name specified"
	msgNameLength       = "Name must be between 1 and 20 characters"
	msgNameTaken        = "A user with that name already exists"
	msgStatusMissing    = "No status specified"
	msgStatusInvalid    = "Provide a valid status: ACTIVE, AWAY, BUSY"
	msgMustIdentify     = "You must identify before sending messages"
	msgRecipientMissing = "No recipient specified"
	msgEmptyMessage     = "Message has no content"
	msgRoomMissing      = "No room specified"
	msgRoomNameMissing  = "No room name specified"
	msgRoomTaken        = "A room with that name already exists"
	msgNotOwner         = "You must be the room owner to invite users"
)

// Dispatcher maps each command to the registry operations it needs and
// produces the reply for the requesting client.
type Dispatcher struct {
	Clients *client.Registry
	Rooms   *room.Registry
	Events  *event.Broadcaster
	Logger  *logrus.Logger
}

// Dispatch executes cmd on behalf of c. The returned reply is sent back to c
// unless it is empty. Validation failures are reported in the reply; the
// only error returned is ErrDisconnect.
func (d *Dispatcher) Dispatch(c *client.Client, cmd protocol.Command, args []string) (string, error) {
	switch cmd {
	case protocol.Identify:
		return d.identify(c, args), nil
	case protocol.Status:
		return d.setStatus(c, args), nil
	case protocol.Users:
		return strings.Join(d.Clients.ListNamed(), " "), nil
	case protocol.Message:
		return d.privateMessage(c, args), nil
	case protocol.PublicMessage:
		return d.publicMessage(c, args), nil
	case protocol.CreateRoom:
		return d.createRoom(c, args), nil
	case protocol.Invite:
		return d.invite(c, args), nil
	case protocol.JoinRoom:
		return d.joinRoom(c, args), nil
	case protocol.RoomMessage:
		return d.roomMessage(c, args), nil
	case protocol.Disconnect, protocol.Error:
		return "", ErrDisconnect
	default:
		return protocol.HelpText, nil
	}
}

// popArg removes and returns the first positional argument.
func popArg(args []string) (string, []string) {
	if len(args) == 0 {
		return "", nil
	}
	return args[0], args[1:]
}

func (d *Dispatcher) log(c *client.Client) *logrus.Entry {
	return d.Logger.WithFields(logrus.Fields{"session": c.ID.String(), "addr": c.Address()})
}

func (d *Dispatcher) identify(c *client.Client, args []string) string {
	name, _ := popArg(args)
	_, wasIdentified := d.Clients.Name(c)

	if err := d.Clients.SetName(c, name); err != nil {
		switch {
		case errors.Is(err, client.ErrNameMissing):
			return msgNameMissing
		case errors.Is(err, client.ErrNameTaken):
			return msgNameTaken
		case errors.Is(err, client.ErrNameTooShort), errors.Is(err, client.ErrNameTooLong):
			return msgNameLength
		default:
			return err.Error()
		}
	}

	name, _ = d.Clients.Name(c)
	d.log(c).Infof("client identified as %s", name)
	if !wasIdentified {
		d.Events.Publish(event.NewClient)
	}
	return "Name changed to: " + name
}

func (d *Dispatcher) setStatus(c *client.Client, args []string) string {
	arg, _ := popArg(args)
	if arg == "" {
		return msgStatusMissing
	}
	status, err := protocol.ParseStatus(arg)
	if err != nil {
		return msgStatusInvalid
	}
	if err := d.Clients.SetStatus(c, status); err != nil {
		return err.Error()
	}

	d.log(c).Infof("status updated to %v", status)
	return "Status changed to: " + status.String()
}

func (d *Dispatcher) privateMessage(c *client.Client, args []string) string {
	sender, ok := d.Clients.Name(c)
	if !ok {
		return msgMustIdentify
	}
	to, args := popArg(args)
	if to == "" {
		return msgRecipientMissing
	}
	recipient, found := d.Clients.FindByName(to)
	if !found {
		return fmt.Sprintf("User %s not found", to)
	}
	body := strings.Join(args, " ")
	if body == "" {
		return msgEmptyMessage
	}

	message := fmt.Sprintf("%s: %s", sender, body)
	if err := recipient.Send(message); err != nil {
		d.log(c).Warnf("failed to deliver private message to %s: %v", to, err)
		return fmt.Sprintf("Could not deliver message to %s", to)
	}
	return message
}

func (d *Dispatcher) publicMessage(c *client.Client, args []string) string {
	sender, ok := d.Clients.Name(c)
	if !ok {
		return msgMustIdentify
	}
	body := strings.Join(args, " ")
	if body == "" {
		return msgEmptyMessage
	}

	var members []room.Member
	for _, other := range d.Clients.All() {
		members = append(members, other)
	}
	if err := room.Deliver(members, fmt.Sprintf("Public-%s: %s", sender, body)); err != nil {
		d.log(c).Warnf("public message not delivered to everyone: %v", err)
	}
	return ""
}

func (d *Dispatcher) createRoom(c *client.Client, args []string) string {
	owner, ok := d.Clients.Name(c)
	if !ok {
		return msgMustIdentify
	}
	name, _ := popArg(args)

	if err := d.Rooms.Create(name, c); err != nil {
		return d.roomError(name, err)
	}

	d.log(c).Infof("%s created the room %s", owner, name)
	d.Events.Publish(event.NewRoom)
	return fmt.Sprintf("Room %s created", name)
}

func (d *Dispatcher) invite(c *client.Client, args []string) string {
	name, args := popArg(args)
	if name == "" {
		return msgRoomMissing
	}
	owner, ok := d.Clients.Name(c)
	if !ok {
		return msgMustIdentify
	}

	var candidates []room.Member
	for _, invitee := range d.Clients.FindAllByName(args) {
		candidates = append(candidates, invitee)
	}

	invited, err := d.Rooms.Invite(name, c.Address(), candidates)
	if err != nil {
		return d.roomError(name, err)
	}

	invitation := fmt.Sprintf("Invitation to join room %s from %s", name, owner)
	if err := room.Deliver(invited, invitation); err != nil {
		d.log(c).Warnf("invitations for %s not delivered to everyone: %v", name, err)
	}
	d.log(c).Infof("%s invited %d users to %s", owner, len(invited), name)
	return fmt.Sprintf("Invitations for %s sent", name)
}

func (d *Dispatcher) joinRoom(c *client.Client, args []string) string {
	name, _ := popArg(args)
	if name == "" {
		return msgRoomMissing
	}
	joiner, ok := d.Clients.Name(c)
	if !ok {
		return msgMustIdentify
	}

	members, err := d.Rooms.Join(name, c)
	if err != nil {
		return d.roomError(name, err)
	}

	d.log(c).Infof("%s joined the room %s", joiner, name)
	if err := room.Deliver(members, fmt.Sprintf("%s joined %s", joiner, name)); err != nil {
		d.log(c).Warnf("join announcement for %s not delivered to everyone: %v", name, err)
	}
	return ""
}

func (d *Dispatcher) roomMessage(c *client.Client, args []string) string {
	name, args := popArg(args)
	if name == "" {
		return msgRoomMissing
	}
	sender, ok := d.Clients.Name(c)
	if !ok {
		return msgMustIdentify
	}

	err := d.Rooms.Broadcast(name, c.Address(), sender, strings.Join(args, " "))
	switch {
	case err == nil:
		return ""
	case errors.Is(err, room.ErrNotFound), errors.Is(err, room.ErrNotMember), errors.Is(err, room.ErrEmptyMessage):
		return d.roomError(name, err)
	default:
		// The message went out, some members just didn't get it.
		d.log(c).Warnf("room message for %s not delivered to everyone: %v", name, err)
		return ""
	}
}

// roomError converts a room registry failure into reply text.
func (d *Dispatcher) roomError(name string, err error) string {
	switch {
	case errors.Is(err, room.ErrNameMissing):
		return msgRoomNameMissing
	case errors.Is(err, room.ErrNameTaken):
		return msgRoomTaken
	case errors.Is(err, room.ErrNotFound):
		return fmt.Sprintf("Room %s does not exist", name)
	case errors.Is(err, room.ErrNotOwner):
		return msgNotOwner
	case errors.Is(err, room.ErrNotInvited):
		return fmt.Sprintf("You are not invited to join %s", name)
	case errors.Is(err, room.ErrNotMember):
		return fmt.Sprintf("You are not a member of %s", name)
	case errors.Is(err, room.ErrEmptyMessage):
		return msgEmptyMessage
	default:
		return err.Error()
	}
}
