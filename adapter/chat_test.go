package adapter

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"watchtower/alert"
)

// fakeChatClient records posted messages and lets tests inject room events.
type fakeChatClient struct {
	mutex  sync.Mutex
	posts  []fakePost
	events chan ChatEvent
}

type fakePost struct {
	Room     string
	Text     string
	Deadline bool
}

func newFakeChatClient() *fakeChatClient {
	return &fakeChatClient{events: make(chan ChatEvent, 8)}
}

func (c *fakeChatClient) PostMessage(ctx context.Context, room, text string) error {
	_, hasDeadline := ctx.Deadline()
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.posts = append(c.posts, fakePost{Room: room, Text: text, Deadline: hasDeadline})
	return nil
}

func (c *fakeChatClient) Events() <-chan ChatEvent {
	return c.events
}

func (c *fakeChatClient) Close() error {
	close(c.events)
	return nil
}

func (c *fakeChatClient) recorded() []fakePost {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	out := make([]fakePost, len(c.posts))
	copy(out, c.posts)
	return out
}

func newTestChatAdapter(t *testing.T, rooms []string) (*ChatAdapter, *fakeChatClient) {
	t.Helper()
	client := newFakeChatClient()
	a, err := NewChatAdapter(client, rooms, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("Failed to create chat adapter: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a, client
}

func testContext(id alert.ID) *alert.Context {
	return alert.NewContext(id, alert.Alert{
		Annotations: alert.Annotations{Message: "disk is full"},
		Labels:      alert.Labels{Severity: "critical", AlertName: "DiskFull"},
	}, 1700000000)
}

func TestChatNotifyFirstTier(t *testing.T) {
	a, client := newTestChatAdapter(t, []string{"R0", "R1", "R2"})

	if err := a.Notify(context.Background(), alert.AlertNotification(testContext(7)), 0); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	posts := client.recorded()
	if len(posts) != 1 {
		t.Fatalf("Expected 1 post, got %d", len(posts))
	}
	if posts[0].Room != "R0" {
		t.Errorf("Posted to %s, expected R0", posts[0].Room)
	}
	if !strings.HasPrefix(posts[0].Text, "Alert occurred:") {
		t.Errorf("First-tier post missing alert prefix: %q", posts[0].Text)
	}
}

func TestChatNotifyEscalationWarnsPreviousRoom(t *testing.T) {
	a, client := newTestChatAdapter(t, []string{"R0", "R1", "R2"})

	if err := a.Notify(context.Background(), alert.AlertNotification(testContext(7)), 1); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	posts := client.recorded()
	if len(posts) != 2 {
		t.Fatalf("Expected 2 posts, got %d", len(posts))
	}
	if posts[0].Room != "R0" || !strings.Contains(posts[0].Text, "Escalation occurred!") {
		t.Errorf("Previous room did not get the escalation notice: %+v", posts[0])
	}
	if posts[1].Room != "R1" || !strings.HasPrefix(posts[1].Text, "Escalation occurred:") {
		t.Errorf("Escalated room did not get the alert: %+v", posts[1])
	}
}

func TestChatNotifyClampsPastLastRoom(t *testing.T) {
	a, client := newTestChatAdapter(t, []string{"R0", "R1"})

	if err := a.Notify(context.Background(), alert.AlertNotification(testContext(7)), 5); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	posts := client.recorded()
	if len(posts) != 2 {
		t.Fatalf("Expected 2 posts, got %d", len(posts))
	}
	if posts[1].Room != "R1" {
		t.Errorf("Clamped escalation posted to %s, expected the last room R1", posts[1].Room)
	}
}

func TestChatNotifyAckedSkipsAcknowledgerRoom(t *testing.T) {
	a, client := newTestChatAdapter(t, []string{"R0", "R1", "R2"})

	// Alert escalated to tier 2, ack came from the channel at position 1.
	n := alert.AckNotification(7, alert.ChatUser("dana"), 1)
	if err := a.Notify(context.Background(), n, 2); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	posts := client.recorded()
	if len(posts) != 1 {
		t.Fatalf("Expected 1 post, got %d: %+v", len(posts), posts)
	}
	if posts[0].Room != "R0" {
		t.Errorf("Retro-notification went to %s, expected R0", posts[0].Room)
	}
	if !strings.Contains(posts[0].Text, "acknowledged by dana") {
		t.Errorf("Retro-notification missing acknowledger: %q", posts[0].Text)
	}
}

func TestChatEmitsAckAction(t *testing.T) {
	a, client := newTestChatAdapter(t, []string{"R0", "R1", "R2"})

	client.events <- ChatEvent{Room: "R1", User: "dana", Text: "ack 7"}

	select {
	case action := <-a.Actions():
		if action.User != alert.ChatUser("dana") {
			t.Errorf("Action user = %v, expected chat user dana", action.User)
		}
		if action.ChannelID != 1 {
			t.Errorf("Action channel = %d, expected 1", action.ChannelID)
		}
		if action.IsLastChannel {
			t.Error("R1 is not the last room")
		}
		expected := alert.Command{Kind: alert.CmdAck, Alert: 7}
		if action.Command != expected {
			t.Errorf("Action command = %+v, expected %+v", action.Command, expected)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for action")
	}
}

func TestChatIgnoresUnknownRoom(t *testing.T) {
	a, client := newTestChatAdapter(t, []string{"R0"})

	client.events <- ChatEvent{Room: "random-room", User: "dana", Text: "ack 7"}
	client.events <- ChatEvent{Room: "R0", User: "dana", Text: "pending"}

	// Only the message from the configured room becomes an action.
	select {
	case action := <-a.Actions():
		if action.Command.Kind != alert.CmdPending {
			t.Errorf("Got command %+v, expected pending", action.Command)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for action")
	}
	if posts := client.recorded(); len(posts) != 0 {
		t.Errorf("Unknown-room message triggered %d posts", len(posts))
	}
}

func TestChatAnswersMalformedAckWithHelp(t *testing.T) {
	a, client := newTestChatAdapter(t, []string{"R0", "R1"})

	client.events <- ChatEvent{Room: "R1", User: "dana", Text: "ack seven"}

	deadline := time.Now().Add(2 * time.Second)
	for {
		posts := client.recorded()
		if len(posts) == 1 {
			if posts[0].Room != "R1" {
				t.Errorf("Help posted to %s, expected R1", posts[0].Room)
			}
			if !strings.Contains(posts[0].Text, "ack <id>") {
				t.Errorf("Expected help text, got %q", posts[0].Text)
			}
			// The listener replies on its own, so the call must carry its
			// own deadline rather than run unbounded.
			if !posts[0].Deadline {
				t.Error("Help reply was posted without a deadline")
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for help response")
		}
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case action := <-a.Actions():
		t.Errorf("Malformed ack produced an action: %+v", action)
	default:
	}
}

func TestChatCloseClosesActionQueue(t *testing.T) {
	a, _ := newTestChatAdapter(t, []string{"R0"})

	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	select {
	case _, ok := <-a.Actions():
		if ok {
			t.Error("Expected the action queue to be closed")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Action queue not closed after Close")
	}

	// Close is idempotent.
	if err := a.Close(); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}
}
