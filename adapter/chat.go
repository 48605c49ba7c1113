package adapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"watchtower/alert"
	"watchtower/command"
	"watchtower/errors"
	"watchtower/level"
)

// Chat room message prefixes, part of the room-facing protocol.
const (
	alertOccurredPrefix      = "Alert occurred:\n"
	escalationOccurredPrefix = "Escalation occurred:\n"
)

// respondTimeout bounds replies the listener sends on its own, outside any
// caller-supplied context.
const respondTimeout = 10 * time.Second

// ChatEvent is one inbound room message.
type ChatEvent struct {
	Room string
	User string
	Text string
}

// ChatClient abstracts the chat backend so the adapter can be driven by a
// fake in tests.
type ChatClient interface {
	PostMessage(ctx context.Context, room, text string) error
	Events() <-chan ChatEvent
	Close() error
}

// ChatAdapter escalates through an ordered list of rooms and listens on all
// of them for commands. Messages from rooms outside the list are ignored.
type ChatAdapter struct {
	client  ChatClient
	levels  *level.Manager[string]
	log     *zap.SugaredLogger
	actions chan alert.UserAction

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewChatAdapter creates the adapter over the given room order and starts
// listening for inbound messages.
func NewChatAdapter(client ChatClient, rooms []string, log *zap.SugaredLogger) (*ChatAdapter, error) {
	levels, err := level.NewManager(rooms)
	if err != nil {
		return nil, fmt.Errorf("chat adapter: %w", err)
	}
	a := &ChatAdapter{
		client:  client,
		levels:  levels,
		log:     log,
		actions: make(chan alert.UserAction, actionBuffer),
		done:    make(chan struct{}),
	}
	a.wg.Add(1)
	go a.listen()
	return a, nil
}

// Name returns the adapter tag.
func (a *ChatAdapter) Name() Name {
	return NameChat
}

// Notify posts an alert or acknowledgement to the rooms the tier maps to.
func (a *ChatAdapter) Notify(ctx context.Context, n alert.Notification, tier uint) error {
	switch n.Kind {
	case alert.NotifyAlert:
		return a.notifyAlert(ctx, n.Context, tier)
	case alert.NotifyAcknowledged:
		return a.notifyAcked(ctx, n, tier)
	default:
		return fmt.Errorf("chat adapter: unknown notification kind %d", n.Kind)
	}
}

func (a *ChatAdapter) notifyAlert(ctx context.Context, c *alert.Context, tier uint) error {
	prev, room := a.levels.WithPrev(tier)

	if prev != nil {
		notice := fmt.Sprintf("Escalation occurred! Notifying next room about escalation ID %s", c.ID)
		if err := a.client.PostMessage(ctx, *prev, notice); err != nil {
			return errors.E(errors.KindAdapterUnavailable, "chat.Notify", err)
		}
	}

	prefix := alertOccurredPrefix
	if prev != nil {
		prefix = escalationOccurredPrefix
	}
	if err := a.client.PostMessage(ctx, room, prefix+c.Alert.Summary()); err != nil {
		return errors.E(errors.KindAdapterUnavailable, "chat.Notify", err)
	}
	return nil
}

func (a *ChatAdapter) notifyAcked(ctx context.Context, n alert.Notification, tier uint) error {
	ackedRoom := a.levels.Single(n.AckedOn)
	for _, room := range a.levels.AllUpToExcluding(tier, ackedRoom) {
		if err := a.client.PostMessage(ctx, room, n.AckMessage()); err != nil {
			return errors.E(errors.KindAdapterUnavailable, "chat.Notify", err)
		}
	}
	return nil
}

// Respond posts a confirmation back on the room a command came from.
func (a *ChatAdapter) Respond(ctx context.Context, c alert.Confirmation, tier uint) error {
	room := a.levels.Single(tier)
	if err := a.client.PostMessage(ctx, room, c.Message()); err != nil {
		return errors.E(errors.KindAdapterUnavailable, "chat.Respond", err)
	}
	return nil
}

// Actions returns the outbound user-action queue, closed on Close.
func (a *ChatAdapter) Actions() <-chan alert.UserAction {
	return a.actions
}

// Close stops the listener and closes the action queue.
func (a *ChatAdapter) Close() error {
	var err error
	a.closeOnce.Do(func() {
		close(a.done)
		err = a.client.Close()
		a.wg.Wait()
		close(a.actions)
	})
	return err
}

// listen consumes room messages until the client stream or the adapter shuts
// down.
func (a *ChatAdapter) listen() {
	defer a.wg.Done()
	for {
		select {
		case <-a.done:
			return
		case ev, ok := <-a.client.Events():
			if !ok {
				return
			}
			a.handleEvent(ev)
		}
	}
}

func (a *ChatAdapter) handleEvent(ev ChatEvent) {
	position, known := a.levels.Position(ev.Room)
	if !known {
		a.log.Debugw("ignoring message from unknown room", "room", ev.Room)
		return
	}

	cmd, ok, err := command.Parse(ev.Text)
	if err != nil {
		// Malformed ack syntax gets the help text on the source room.
		a.log.Infow("invalid command", "room", ev.Room, "text", ev.Text, "error", err)
		respCtx, cancel := context.WithTimeout(context.Background(), respondTimeout)
		if respErr := a.Respond(respCtx, alert.Confirmation{Kind: alert.ConfirmHelp}, position); respErr != nil {
			a.log.Warnw("failed to answer invalid command", "room", ev.Room, "error", respErr)
		}
		cancel()
		return
	}
	if !ok {
		return
	}

	action := alert.UserAction{
		User:          alert.ChatUser(ev.User),
		ChannelID:     position,
		IsLastChannel: a.levels.IsLast(ev.Room),
		Command:       cmd,
	}
	select {
	case a.actions <- action:
	case <-a.done:
	}
}
