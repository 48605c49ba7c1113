// Package handler routes inbound user actions: it authorises and applies
// acknowledgements, answers queries, and retro-notifies previously alerted
// channels.
package handler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"watchtower/adapter"
	"watchtower/alert"
	"watchtower/metrics"
	"watchtower/permission"
	"watchtower/store"
)

// Handler is the single consumer of every adapter's action queue.
type Handler struct {
	store       *store.AlertStore
	policy      *permission.Policy
	adapters    []adapter.Adapter
	callTimeout time.Duration
	log         *zap.SugaredLogger
	metrics     *metrics.Metrics
}

// New creates the handler.
func New(alertStore *store.AlertStore, policy *permission.Policy, adapters []adapter.Adapter, callTimeout time.Duration, m *metrics.Metrics, log *zap.SugaredLogger) *Handler {
	if callTimeout <= 0 {
		callTimeout = 10 * time.Second
	}
	return &Handler{
		store:       alertStore,
		policy:      policy,
		adapters:    adapters,
		callTimeout: callTimeout,
		log:         log,
		metrics:     m,
	}
}

// sourcedAction pairs an action with the adapter it arrived on, so responses
// go back to the right place.
type sourcedAction struct {
	source adapter.Adapter
	action alert.UserAction
}

// Run merges all adapter queues and consumes them until every adapter has
// closed its queue. Closing the queues is the shutdown signal.
func (h *Handler) Run(ctx context.Context) {
	merged := make(chan sourcedAction)

	var wg sync.WaitGroup
	for _, a := range h.adapters {
		wg.Add(1)
		go func(a adapter.Adapter) {
			defer wg.Done()
			for action := range a.Actions() {
				merged <- sourcedAction{source: a, action: action}
			}
		}(a)
	}
	go func() {
		wg.Wait()
		close(merged)
	}()

	for sa := range merged {
		h.Handle(ctx, sa.source, sa.action)
	}
	h.log.Info("action handler stopped")
}

// Handle processes one user action from one adapter.
func (h *Handler) Handle(ctx context.Context, source adapter.Adapter, action alert.UserAction) {
	switch action.Command.Kind {
	case alert.CmdAck:
		h.handleAck(ctx, source, action)
	case alert.CmdPending:
		h.handlePending(ctx, source, action)
	case alert.CmdHelp:
		h.respond(ctx, source, action, alert.Confirmation{Kind: alert.ConfirmHelp})
	default:
		h.log.Warnw("dropping action with unknown command",
			"adapter", source.Name(), "kind", action.Command.Kind)
	}
}

func (h *Handler) handleAck(ctx context.Context, source adapter.Adapter, action alert.UserAction) {
	id := action.Command.Alert

	switch h.policy.Evaluate(action) {
	case permission.Deny:
		h.log.Infow("acknowledgement denied",
			"adapter", source.Name(), "user", action.User.String(), "alert_id", id)
		h.respond(ctx, source, action, alert.Confirmation{Kind: alert.ConfirmNoPermission})
		return
	case permission.OutOfScope:
		h.log.Infow("acknowledgement out of scope",
			"adapter", source.Name(), "channel", action.ChannelID, "alert_id", id)
		h.respond(ctx, source, action, alert.Confirmation{Kind: alert.ConfirmOutOfScope, Alert: id})
		return
	case permission.Allow:
	}

	outcome, ctxt, err := h.store.Acknowledge(ctx, id, action.User, action.ChannelID)
	if err != nil {
		h.log.Errorw("acknowledgement failed", "alert_id", id, "error", err)
		h.respond(ctx, source, action, alert.Confirmation{Kind: alert.ConfirmInternalError})
		return
	}

	switch outcome {
	case store.AckNotFound:
		h.respond(ctx, source, action, alert.Confirmation{Kind: alert.ConfirmNotFound, Alert: id})
	case store.AckAlreadyAcked:
		// Idempotent success: confirm, but no second retro-broadcast.
		h.respond(ctx, source, action, alert.AckedConfirmation(id))
	case store.AckAcknowledged:
		h.metrics.Acks.Inc()
		h.broadcastAck(ctxt, action)
		h.respond(ctx, source, action, alert.AckedConfirmation(id))
	}
}

// broadcastAck tells every adapter who resolved the alert. Each adapter
// resolves the acknowledger's channel position onto its own level list and
// notifies everything previously alerted below the alert's tier. Failures
// are logged only; the ack itself already succeeded.
func (h *Handler) broadcastAck(ctxt *alert.Context, action alert.UserAction) {
	n := alert.AckNotification(ctxt.ID, *ctxt.AckedBy, action.ChannelID)
	tier := ctxt.Level

	for _, a := range h.adapters {
		go func(a adapter.Adapter) {
			callCtx, cancel := context.WithTimeout(context.Background(), h.callTimeout)
			defer cancel()
			if err := a.Notify(callCtx, n, tier); err != nil {
				h.log.Warnw("acknowledgement broadcast failed",
					"adapter", a.Name(), "alert_id", ctxt.ID, "error", err)
				h.metrics.AdapterErrors.WithLabelValues(string(a.Name())).Inc()
			}
		}(a)
	}
}

func (h *Handler) handlePending(ctx context.Context, source adapter.Adapter, action alert.UserAction) {
	pending, err := h.store.PendingSnapshot(ctx)
	if err != nil {
		h.log.Errorw("pending snapshot failed", "error", err)
		h.respond(ctx, source, action, alert.Confirmation{Kind: alert.ConfirmInternalError})
		return
	}
	h.respond(ctx, source, action, alert.PendingConfirmation(pending))
}

// respond answers on the channel the action originated from.
func (h *Handler) respond(ctx context.Context, source adapter.Adapter, action alert.UserAction, c alert.Confirmation) {
	callCtx, cancel := context.WithTimeout(ctx, h.callTimeout)
	defer cancel()
	if err := source.Respond(callCtx, c, action.ChannelID); err != nil {
		h.log.Warnw("failed to respond",
			"adapter", source.Name(), "channel", action.ChannelID, "error", err)
		h.metrics.AdapterErrors.WithLabelValues(string(source.Name())).Inc()
	}
}
