package adapter

import (
	"context"
	"sync"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// SlackClient implements ChatClient over the Slack RTM stream. Rooms are
// Slack channel ids.
type SlackClient struct {
	api *slack.Client
	rtm *slack.RTM
	log *zap.SugaredLogger

	events    chan ChatEvent
	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewSlackClient connects to Slack with the given bot token and starts
// consuming the event stream.
func NewSlackClient(token string, log *zap.SugaredLogger) *SlackClient {
	api := slack.New(token)
	c := &SlackClient{
		api:    api,
		rtm:    api.NewRTM(),
		log:    log,
		events: make(chan ChatEvent, actionBuffer),
		done:   make(chan struct{}),
	}
	go c.rtm.ManageConnection()
	c.wg.Add(1)
	go c.pump()
	return c
}

// PostMessage posts plain text to a channel.
func (c *SlackClient) PostMessage(ctx context.Context, room, text string) error {
	_, _, err := c.api.PostMessageContext(ctx, room, slack.MsgOptionText(text, false))
	return err
}

// Events returns the inbound message stream.
func (c *SlackClient) Events() <-chan ChatEvent {
	return c.events
}

// Close disconnects from Slack and closes the event stream.
func (c *SlackClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.rtm.Disconnect()
		c.wg.Wait()
		close(c.events)
	})
	return err
}

// pump converts RTM events into ChatEvents, dropping everything that is not
// a plain user message.
func (c *SlackClient) pump() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case msg, ok := <-c.rtm.IncomingEvents:
			if !ok {
				return
			}
			switch ev := msg.Data.(type) {
			case *slack.MessageEvent:
				if ev.User == "" || ev.Text == "" {
					continue
				}
				select {
				case c.events <- ChatEvent{Room: ev.Channel, User: ev.User, Text: ev.Text}:
				case <-c.done:
					return
				}
			case *slack.RTMError:
				c.log.Warnw("slack rtm error", "error", ev.Error())
			case *slack.InvalidAuthEvent:
				c.log.Errorw("slack authentication failed")
				return
			}
		}
	}
}
