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

// dedupPrefix is the marker the paging service folds repeated triggers on and
// the ack poller parses alert ids back out of.
const dedupPrefix = "ID#"

// Ack detection polls the paging service's log entries; entries of this type
// mark resolved incidents.
const resolveLogEntryType = "resolve_log_entry"

// PagingLevel is one escalation target on the paging service.
type PagingLevel struct {
	IntegrationKey string
	Severity       string
}

// PagingEvent is the body of one enqueue call, §6 wire format.
type PagingEvent struct {
	RoutingKey  string         `json:"routing_key"`
	EventAction string         `json:"event_action"`
	DedupKey    string         `json:"dedup_key"`
	Payload     *PagingPayload `json:"payload,omitempty"`
}

// PagingPayload carries the incident details of a trigger event.
type PagingPayload struct {
	Summary  string `json:"summary"`
	Source   string `json:"source"`
	Severity string `json:"severity"`
}

// PagingLogEntry is one entry of the log-entries poll response.
type PagingLogEntry struct {
	Type  string `json:"type"`
	Agent struct {
		Summary string `json:"summary"`
	} `json:"agent"`
	Incident struct {
		Summary string `json:"summary"`
	} `json:"incident"`
}

// PagingClient abstracts the paging service REST surface.
type PagingClient interface {
	Enqueue(ctx context.Context, event PagingEvent) error
	LogEntries(ctx context.Context, limit int) ([]PagingLogEntry, error)
}

// PagingAdapterConfig holds the paging adapter options.
type PagingAdapterConfig struct {
	Levels []PagingLevel
	// OnlyOnEscalation suppresses tier-0 notifications; the paging service
	// runs its own first-tier logic.
	OnlyOnEscalation bool
	// PollInterval is how often the log entries are polled for acks.
	PollInterval time.Duration
	// Source labels triggered incidents with their origin host.
	Source string
}

// PagingAdapter escalates through (integration key, severity) pairs and
// detects acknowledgements by polling the service's log entries.
type PagingAdapter struct {
	client           PagingClient
	levels           *level.Manager[PagingLevel]
	onlyOnEscalation bool
	pollInterval     time.Duration
	source           string
	log              *zap.SugaredLogger

	actions chan alert.UserAction
	seen    *ttlCache

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewPagingAdapter creates the adapter and starts the acknowledgement poll
// loop.
func NewPagingAdapter(client PagingClient, cfg PagingAdapterConfig, log *zap.SugaredLogger) (*PagingAdapter, error) {
	levels, err := level.NewManager(cfg.Levels)
	if err != nil {
		return nil, fmt.Errorf("paging adapter: %w", err)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.Source == "" {
		cfg.Source = "watchtower"
	}
	a := &PagingAdapter{
		client:           client,
		levels:           levels,
		onlyOnEscalation: cfg.OnlyOnEscalation,
		pollInterval:     cfg.PollInterval,
		source:           cfg.Source,
		log:              log,
		actions:          make(chan alert.UserAction, actionBuffer),
		seen:             newTTLCache(time.Hour),
		done:             make(chan struct{}),
	}
	a.wg.Add(1)
	go a.poll()
	return a, nil
}

// Name returns the adapter tag.
func (a *PagingAdapter) Name() Name {
	return NamePaging
}

// Notify triggers or acknowledges incidents on the paging service. The dedup
// key makes repeated triggers for the same alert fold into one incident.
func (a *PagingAdapter) Notify(ctx context.Context, n alert.Notification, tier uint) error {
	switch n.Kind {
	case alert.NotifyAlert:
		return a.notifyAlert(ctx, n.Context, tier)
	case alert.NotifyAcknowledged:
		return a.notifyAcked(ctx, n, tier)
	default:
		return fmt.Errorf("paging adapter: unknown notification kind %d", n.Kind)
	}
}

func (a *PagingAdapter) notifyAlert(ctx context.Context, c *alert.Context, tier uint) error {
	if a.onlyOnEscalation && tier == 0 {
		a.log.Debugw("suppressing tier-0 page", "alert_id", c.ID)
		return nil
	}

	lvl := a.levels.Single(tier)
	event := PagingEvent{
		RoutingKey:  lvl.IntegrationKey,
		EventAction: "trigger",
		DedupKey:    dedupKey(c.ID),
		Payload: &PagingPayload{
			Summary:  fmt.Sprintf("%s - %s%s", c.Alert.Labels.AlertName, dedupPrefix, c.ID),
			Source:   a.source,
			Severity: normalizeSeverity(lvl.Severity, c.Alert.Labels.Severity),
		},
	}
	if err := a.client.Enqueue(ctx, event); err != nil {
		return errors.E(errors.KindAdapterUnavailable, "paging.Notify", err)
	}
	return nil
}

func (a *PagingAdapter) notifyAcked(ctx context.Context, n alert.Notification, tier uint) error {
	excluded := a.levels.Single(n.AckedOn)
	for _, lvl := range a.levels.AllUpToExcluding(tier, excluded) {
		event := PagingEvent{
			RoutingKey:  lvl.IntegrationKey,
			EventAction: "acknowledge",
			DedupKey:    dedupKey(n.Alert),
		}
		if err := a.client.Enqueue(ctx, event); err != nil {
			return errors.E(errors.KindAdapterUnavailable, "paging.Notify", err)
		}
	}
	return nil
}

// Respond is a no-op: the paging service has no free-form reply channel, so
// confirmations are only logged.
func (a *PagingAdapter) Respond(_ context.Context, c alert.Confirmation, _ uint) error {
	a.log.Infow("paging confirmation", "message", c.Message())
	return nil
}

// Actions returns the outbound user-action queue, closed on Close.
func (a *PagingAdapter) Actions() <-chan alert.UserAction {
	return a.actions
}

// Close stops the poll loop and closes the action queue.
func (a *PagingAdapter) Close() error {
	a.closeOnce.Do(func() {
		close(a.done)
		a.wg.Wait()
		close(a.actions)
	})
	return nil
}

// poll scans the paging service's log entries for resolved incidents and
// turns them into acknowledgement actions.
func (a *PagingAdapter) poll() {
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

func (a *PagingAdapter) pollOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), a.pollInterval)
	defer cancel()

	entries, err := a.client.LogEntries(ctx, 20)
	if err != nil {
		a.log.Warnw("paging log poll failed", "error", err)
		return
	}

	now := time.Now()
	for _, entry := range entries {
		if !strings.Contains(entry.Type, resolveLogEntryType) {
			continue
		}
		id, ok := parseIncidentID(entry.Incident.Summary)
		if !ok {
			a.log.Warnw("dropping log entry without parseable alert id",
				"summary", entry.Incident.Summary)
			continue
		}
		if a.seen.Seen(id.String(), now) {
			continue
		}

		action := alert.UserAction{
			User:          alert.PagingUser(entry.Agent.Summary),
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

// parseIncidentID extracts the alert id from an incident summary. Summaries
// normally end with "- ID#<n>"; a substring scan backs up summaries that were
// reformatted by the paging service.
func parseIncidentID(summary string) (alert.ID, bool) {
	parts := strings.Split(summary, "-")
	last := strings.TrimSpace(parts[len(parts)-1])
	if strings.HasPrefix(last, dedupPrefix) {
		if id, err := alert.ParseID(strings.TrimPrefix(last, dedupPrefix)); err == nil {
			return id, true
		}
	}

	idx := strings.Index(summary, dedupPrefix)
	if idx < 0 {
		return 0, false
	}
	digits := summary[idx+len(dedupPrefix):]
	end := 0
	for end < len(digits) && digits[end] >= '0' && digits[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	id, err := alert.ParseID(digits[:end])
	if err != nil {
		return 0, false
	}
	return id, true
}

func dedupKey(id alert.ID) string {
	return dedupPrefix + id.String()
}

// normalizeSeverity maps a free-form severity label onto the closed set the
// paging service accepts. A per-level severity override wins over the alert's
// own label.
func normalizeSeverity(levelSeverity, alertSeverity string) string {
	s := levelSeverity
	if s == "" {
		s = alertSeverity
	}
	switch strings.ToLower(s) {
	case "critical", "crit", "fatal":
		return "critical"
	case "error", "err":
		return "error"
	case "warning", "warn":
		return "warning"
	case "info":
		return "info"
	default:
		return "warning"
	}
}
