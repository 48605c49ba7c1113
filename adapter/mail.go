package adapter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"watchtower/alert"
	"watchtower/errors"
	"watchtower/level"
)

// ackKeyword is the marker scanned for in inbound mail bodies; the text after
// it must start with an alert id.
const ackKeyword = "ack"

// MailMessage is one inbox message.
type MailMessage struct {
	ID      string
	From    string
	Subject string
	Body    string
}

// MailGateway abstracts the mailbox backend: sending notification mails and
// searching the inbox for acknowledgement replies.
type MailGateway interface {
	Send(ctx context.Context, to, subject, body string) error
	Search(ctx context.Context, query string) ([]MailMessage, error)
}

// MailAdapterConfig holds the mail adapter options.
type MailAdapterConfig struct {
	// Addresses is the escalation order of recipient addresses.
	Addresses []string
	// PollInterval is how often the inbox is scanned.
	PollInterval time.Duration
	// LookbackDays bounds the inbox query to recent messages.
	LookbackDays int
}

// MailAdapter escalates through an ordered list of addresses and polls the
// inbox for replies containing "ack <id>". The acknowledging user is taken
// from the From header.
type MailAdapter struct {
	gateway      MailGateway
	levels       *level.Manager[string]
	pollInterval time.Duration
	lookbackDays int
	log          *zap.SugaredLogger

	actions   chan alert.UserAction
	processed *ttlCache

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewMailAdapter creates the adapter and starts the inbox poll loop.
func NewMailAdapter(gateway MailGateway, cfg MailAdapterConfig, log *zap.SugaredLogger) (*MailAdapter, error) {
	levels, err := level.NewManager(cfg.Addresses)
	if err != nil {
		return nil, fmt.Errorf("mail adapter: %w", err)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 1
	}
	a := &MailAdapter{
		gateway:      gateway,
		levels:       levels,
		pollInterval: cfg.PollInterval,
		lookbackDays: cfg.LookbackDays,
		log:          log,
		actions:      make(chan alert.UserAction, actionBuffer),
		processed:    newTTLCache(24 * time.Hour),
		done:         make(chan struct{}),
	}
	a.wg.Add(1)
	go a.poll()
	return a, nil
}

// Name returns the adapter tag.
func (a *MailAdapter) Name() Name {
	return NameMail
}

// Notify mails an alert or acknowledgement to the addresses the tier maps to.
func (a *MailAdapter) Notify(ctx context.Context, n alert.Notification, tier uint) error {
	switch n.Kind {
	case alert.NotifyAlert:
		return a.notifyAlert(ctx, n.Context, tier)
	case alert.NotifyAcknowledged:
		return a.notifyAcked(ctx, n, tier)
	default:
		return fmt.Errorf("mail adapter: unknown notification kind %d", n.Kind)
	}
}

func (a *MailAdapter) notifyAlert(ctx context.Context, c *alert.Context, tier uint) error {
	prev, addr := a.levels.WithPrev(tier)

	if prev != nil {
		subject := fmt.Sprintf("Escalation occurred for alert %s", c.ID)
		body := fmt.Sprintf("Escalation occurred! Notifying next address about escalation ID %s", c.ID)
		if err := a.gateway.Send(ctx, *prev, subject, body); err != nil {
			return errors.E(errors.KindAdapterUnavailable, "mail.Notify", err)
		}
	}

	subject := fmt.Sprintf("Alert occurred: %s", c.Alert.Labels.AlertName)
	if prev != nil {
		subject = fmt.Sprintf("Escalation occurred: %s", c.Alert.Labels.AlertName)
	}
	body := fmt.Sprintf("%s\n\nReply with \"ack %s\" to acknowledge.", c.Alert.Summary(), c.ID)
	if err := a.gateway.Send(ctx, addr, subject, body); err != nil {
		return errors.E(errors.KindAdapterUnavailable, "mail.Notify", err)
	}
	return nil
}

func (a *MailAdapter) notifyAcked(ctx context.Context, n alert.Notification, tier uint) error {
	excluded := a.levels.Single(n.AckedOn)
	subject := fmt.Sprintf("Alert %s acknowledged", n.Alert)
	for _, addr := range a.levels.AllUpToExcluding(tier, excluded) {
		if err := a.gateway.Send(ctx, addr, subject, n.AckMessage()); err != nil {
			return errors.E(errors.KindAdapterUnavailable, "mail.Notify", err)
		}
	}
	return nil
}

// Respond mails a confirmation to the address a command came from.
func (a *MailAdapter) Respond(ctx context.Context, c alert.Confirmation, tier uint) error {
	addr := a.levels.Single(tier)
	if err := a.gateway.Send(ctx, addr, "Watchtower", c.Message()); err != nil {
		return errors.E(errors.KindAdapterUnavailable, "mail.Respond", err)
	}
	return nil
}

// Actions returns the outbound user-action queue, closed on Close.
func (a *MailAdapter) Actions() <-chan alert.UserAction {
	return a.actions
}

// Close stops the poll loop and closes the action queue.
func (a *MailAdapter) Close() error {
	a.closeOnce.Do(func() {
		close(a.done)
		a.wg.Wait()
		close(a.actions)
	})
	return nil
}

func (a *MailAdapter) poll() {
	defer a.wg.Done()
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.done:
			return
		case <-ticker.C:
			a.pollOnce()
		}
	}
}

func (a *MailAdapter) pollOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), a.pollInterval)
	defer cancel()

	query := fmt.Sprintf("newer_than:%dd", a.lookbackDays)
	messages, err := a.gateway.Search(ctx, query)
	if err != nil {
		a.log.Warnw("mail poll failed", "error", err)
		return
	}

	now := time.Now()
	for _, msg := range messages {
		if a.processed.Seen(msg.ID, now) {
			continue
		}
		id, ok := parseAckBody(msg.Body)
		if !ok {
			continue
		}

		action := alert.UserAction{
			User:          alert.MailUser(msg.From),
			ChannelID:     0,
			IsLastChannel: true,
			Command:       alert.Command{Kind: alert.CmdAck, Alert: id},
		}
		select {
		case a.actions <- action:
		case <-a.done:
			return
		}
	}
}

// parseAckBody extracts the alert id from a mail body containing the ack
// keyword followed by a decimal id.
func parseAckBody(body string) (alert.ID, bool) {
	lower := strings.ToLower(body)
	idx := strings.Index(lower, ackKeyword)
	if idx < 0 {
		return 0, false
	}
	rest := strings.TrimSpace(lower[idx+len(ackKeyword):])
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return 0, false
	}
	id, err := alert.ParseID(fields[0])
	if err != nil {
		return 0, false
	}
	return id, true
}
