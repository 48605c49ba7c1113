package alert

import (
	"fmt"
	"strings"
)

// CommandKind enumerates the commands users can issue on any adapter channel.
type CommandKind int

const (
	CmdAck CommandKind = iota
	CmdPending
	CmdHelp
)

// Command is a parsed user command. Alert is only meaningful for CmdAck.
type Command struct {
	Kind  CommandKind
	Alert ID
}

// String renders the command in its canonical text form, the same form the
// parser accepts.
func (c Command) String() string {
	switch c.Kind {
	case CmdAck:
		return fmt.Sprintf("ack %s", c.Alert)
	case CmdPending:
		return "pending"
	case CmdHelp:
		return "help"
	default:
		return fmt.Sprintf("unknown(%d)", c.Kind)
	}
}

// UserAction is one inbound command received on an adapter channel.
// ChannelID is the position of the originating channel within the emitting
// adapter's own level sequence.
type UserAction struct {
	User          User
	ChannelID     uint
	IsLastChannel bool
	Command       Command
}

// NotificationKind tags an outbound notification.
type NotificationKind int

const (
	// NotifyAlert carries an alert context to be posted at a tier.
	NotifyAlert NotificationKind = iota
	// NotifyAcknowledged tells previously notified channels who resolved an
	// alert.
	NotifyAcknowledged
)

// Notification is the payload adapters deliver to their channels.
type Notification struct {
	Kind    NotificationKind
	Context *Context // set for NotifyAlert
	Alert   ID       // set for NotifyAcknowledged
	AckedBy User     // set for NotifyAcknowledged
	AckedOn uint     // adapter-local channel the ack came from
}

// AlertNotification wraps an alert context for dispatch.
func AlertNotification(ctx *Context) Notification {
	return Notification{Kind: NotifyAlert, Context: ctx}
}

// AckNotification builds the retro-notification for a successful ack.
func AckNotification(id ID, by User, on uint) Notification {
	return Notification{Kind: NotifyAcknowledged, Alert: id, AckedBy: by, AckedOn: on}
}

// AckMessage is the text posted to previously notified channels after an ack.
func (n Notification) AckMessage() string {
	return fmt.Sprintf("Alert %s was acknowledged by %s", n.Alert, n.AckedBy)
}

// ConfirmationKind enumerates the user-visible outcomes of a command.
type ConfirmationKind int

const (
	ConfirmPendingAlerts ConfirmationKind = iota
	ConfirmNoPermission
	ConfirmOutOfScope
	ConfirmAcknowledged
	ConfirmNotFound
	ConfirmHelp
	ConfirmInternalError
)

// Confirmation is the response sent back to the channel a command came from.
type Confirmation struct {
	Kind    ConfirmationKind
	Alert   ID
	Pending []*Context
}

// PendingConfirmation lists the currently un-acked alerts.
func PendingConfirmation(pending []*Context) Confirmation {
	return Confirmation{Kind: ConfirmPendingAlerts, Pending: pending}
}

// AckedConfirmation reports a successful (or idempotently repeated) ack.
func AckedConfirmation(id ID) Confirmation {
	return Confirmation{Kind: ConfirmAcknowledged, Alert: id}
}

const helpText = "Commands:\n" +
	"  ack <id>          acknowledge an alert\n" +
	"  acknowledge <id>  same as ack\n" +
	"  pending           list unacknowledged alerts\n" +
	"  help              show this message"

// Message renders the confirmation as the plain text the adapters post.
func (c Confirmation) Message() string {
	switch c.Kind {
	case ConfirmPendingAlerts:
		if len(c.Pending) == 0 {
			return "No pending alerts"
		}
		var b strings.Builder
		b.WriteString("Pending alerts:\n")
		for _, ctx := range c.Pending {
			fmt.Fprintf(&b, "  [%s] %s (level %d)\n", ctx.ID, ctx.Alert.Labels.AlertName, ctx.Level)
		}
		return strings.TrimRight(b.String(), "\n")
	case ConfirmNoPermission:
		return "You are not permitted to acknowledge alerts"
	case ConfirmOutOfScope:
		return fmt.Sprintf("Alert %s cannot be acknowledged from this escalation level", c.Alert)
	case ConfirmAcknowledged:
		return fmt.Sprintf("Alert %s acknowledged", c.Alert)
	case ConfirmNotFound:
		return fmt.Sprintf("Alert %s not found", c.Alert)
	case ConfirmHelp:
		return helpText
	case ConfirmInternalError:
		return "Internal error, please try again"
	default:
		return fmt.Sprintf("unknown confirmation (%d)", c.Kind)
	}
}
