package protocol

import "fmt"

// ClientStatus is the availability a client advertises with STATUS.
type ClientStatus int

const (
	Active ClientStatus = iota
	Away
	Busy
)

func (s ClientStatus) String() string {
	switch s {
	case Active:
		return "ACTIVE"
	case Away:
		return "AWAY"
	case Busy:
		return "BUSY"
	default:
		return fmt.Sprintf("ClientStatus(%d)", int(s))
	}
}

// ParseStatus is the inverse of ClientStatus.String. Matching is exact.
func ParseStatus(s string) (ClientStatus, error) {
	switch s {
	case "ACTIVE":
		return Active, nil
	case "AWAY":
		return Away, nil
	case "BUSY":
		return Busy, nil
	default:
		return Active, fmt.Errorf("unknown status %q", s)
	}
}
