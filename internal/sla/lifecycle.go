package sla

import (
	"time"

	"github.com/spec-kit/servicedesk-sla/internal/domain"
)

// Command is what a ticket status change asks of the timer.
type Command int

const (
	CommandNone Command = iota
	CommandResume
	CommandPause
	CommandStop
)

func (c Command) String() string {
	switch c {
	case CommandResume:
		return "resume"
	case CommandPause:
		return "pause"
	case CommandStop:
		return "stop"
	default:
		return "none"
	}
}

// CommandFor maps a ticket status to its timer command. Open and Delegated
// leave the timer alone.
func CommandFor(status domain.TicketStatus) Command {
	switch status {
	case domain.TicketStatusWorkingInProgress:
		return CommandResume
	case domain.TicketStatusWaitingForUser:
		return CommandPause
	case domain.TicketStatusResolved, domain.TicketStatusClosed,
		domain.TicketStatusBreached, domain.TicketStatusCanceled:
		return CommandStop
	default:
		return CommandNone
	}
}

// ApplyStatus runs the command for status at now. Moving a ticket to
// Breached also raises the breached flag.
func (m *Machine) ApplyStatus(status domain.TicketStatus, now time.Time) Change {
	var change Change
	switch CommandFor(status) {
	case CommandResume:
		change = m.Resume(now)
	case CommandPause:
		change = m.Pause(now)
	case CommandStop:
		change = m.Stop(now)
	}
	if status == domain.TicketStatusBreached {
		m.MarkBreached()
	}
	return change
}
