// Package protocol defines the commands and client states exchanged over the
// chat wire protocol.
package protocol

import "strings"

// Command identifies the action requested by a client frame. The first
// whitespace-delimited token of a frame selects the Command.
type Command int

const (
	Invalid Command = iota
	Identify
	Status
	Users
	Message
	PublicMessage
	CreateRoom
	Invite
	JoinRoom
	RoomMessage
	Disconnect
	// Error is never sent by a client; it marks a frame that could not be
	// read because the connection failed.
	Error
)

var commandNames = map[Command]string{
	Invalid:       "INVALID",
	Identify:      "IDENTIFY",
	Status:        "STATUS",
	Users:         "USERS",
	Message:       "MESSAGE",
	PublicMessage: "PUBLICMESSAGE",
	CreateRoom:    "CREATEROOM",
	Invite:        "INVITE",
	JoinRoom:      "JOINROOM",
	RoomMessage:   "ROOMESSAGE",
	Disconnect:    "DISCONNECT",
	Error:         "ERROR",
}

// clientCommands are the tokens a client is allowed to send.
var clientCommands = map[string]Command{
	"IDENTIFY":      Identify,
	"STATUS":        Status,
	"USERS":         Users,
	"MESSAGE":       Message,
	"PUBLICMESSAGE": PublicMessage,
	"CREATEROOM":    CreateRoom,
	"INVITE":        Invite,
	"JOINROOM":      JoinRoom,
	"ROOMESSAGE":    RoomMessage,
	"DISCONNECT":    Disconnect,
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "INVALID"
}

// ParseCommand maps a token to its Command. Anything that isn't a client
// command, including the literal INVALID and ERROR tokens, is Invalid.
func ParseCommand(token string) Command {
	if cmd, ok := clientCommands[token]; ok {
		return cmd
	}
	return Invalid
}

// Parse splits a frame's text on whitespace and returns the Command named by
// the first token along with the remaining arguments.
func Parse(text string) (Command, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Invalid, nil
	}
	return ParseCommand(fields[0]), fields[1:]
}

// HelpText is sent in response to any unrecognized command.
const HelpText = "Invalid message, valid messages are:\n" +
	"IDENTIFY name\n" +
	"STATUS [ACTIVE, AWAY, BUSY]\n" +
	"USERS\n" +
	"MESSAGE recipient message\n" +
	"PUBLICMESSAGE message\n" +
	"CREATEROOM room_name\n" +
	"INVITE room_name users...\n" +
	"JOINROOM room_name\n" +
	"ROOMESSAGE room_name message\n" +
	"DISCONNECT\n"
