package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/orgcopilot/orgcopilot/internal/agent"
)

var (
	// ErrNotFound is returned when no draft with the given id exists.
	ErrNotFound = errors.New("broadcast: draft not found")
	// ErrInvalidTransition is returned when approve or reject is attempted
	// on a draft that is not in the draft state. The operation is a no-op.
	ErrInvalidTransition = errors.New("broadcast: invalid state transition")
	// ErrEmptyInput is returned when a compose request contains no text.
	ErrEmptyInput = errors.New("broadcast: empty input")
	// ErrComposeRejected is returned when the composer answered but did not
	// produce a usable draft. The submitted text is untouched and can be
	// resubmitted as-is.
	ErrComposeRejected = errors.New("broadcast: composer did not produce a draft")
)

// Invoker is what the workflow needs from the agent layer.
type Invoker interface {
	Invoke(ctx context.Context, agentID, text string, cc agent.CallContext) (*agent.Envelope, error)
}

// Recorder receives drafts that reached a terminal state for archival.
type Recorder interface {
	RecordBroadcast(d Draft) error
}

// AgentIDs names the two agents the workflow calls.
type AgentIDs struct {
	Composer string
	Sender   string
}

// Workflow gates broadcast composition behind review and delivery behind
// explicit approval. Compose, approve, and reject on different drafts may
// run concurrently; each individual draft admits one mutating operation at
// a time, enforced by claiming the status under the store lock.
type Workflow struct {
	agents   Invoker
	ids      AgentIDs
	store    *Store
	recorder Recorder
	logger   *slog.Logger
}

// NewWorkflow creates a Workflow. recorder may be nil to disable archival.
func NewWorkflow(agents Invoker, ids AgentIDs, store *Store, recorder Recorder, logger *slog.Logger) *Workflow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{
		agents:   agents,
		ids:      ids,
		store:    store,
		recorder: recorder,
		logger:   logger.With("component", "broadcast"),
	}
}

// Compose asks the composition agent to draft a broadcast from free text.
// Only a success envelope yields a stored draft; any other outcome returns
// an error and stores nothing, so the caller can resubmit the same text.
func (w *Workflow) Compose(ctx context.Context, text, userID string) (Draft, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Draft{}, ErrEmptyInput
	}

	env, err := w.agents.Invoke(ctx, w.ids.Composer, text, agent.CallContext{UserID: userID})
	if err != nil {
		w.logger.Warn("compose call failed", "error", err)
		return Draft{}, err
	}
	if env.Status != agent.StatusSuccess {
		w.logger.Warn("composer returned non-success status", "status", env.Status)
		return Draft{}, fmt.Errorf("%w (status %q)", ErrComposeRejected, env.Status)
	}

	d := Draft{
		ID:        "broadcast-" + uuid.New().String(),
		Payload:   parsePayload(env.Result),
		Status:    StatusDraft,
		CreatedAt: time.Now().UTC(),
		RawResult: env.Result,
	}
	w.store.add(d)
	w.logger.Info("draft created", "draft", d.ID, "subject", d.Payload.Subject, "recipients", d.Payload.EstimatedRecipients)
	return d, nil
}

// Approve sends the identified draft. Only a draft in the draft state can be
// approved; the status is claimed before the sender call is dispatched, so a
// concurrent approve or reject on the same draft loses cleanly with
// ErrInvalidTransition. On sender success the draft becomes sent and carries
// the delivery report; on any sender failure it becomes failed with no
// report. There is no automatic retry.
func (w *Workflow) Approve(ctx context.Context, id, userID string) (Draft, error) {
	var claimed Draft
	err := w.store.mutate(id, func(d *Draft) error {
		if d.Status != StatusDraft {
			return fmt.Errorf("%w: approve requires status %q, draft %s is %q", ErrInvalidTransition, StatusDraft, d.ID, d.Status)
		}
		d.Status = StatusApproved
		claimed = *d
		return nil
	})
	if err != nil {
		return Draft{}, err
	}

	instruction := fmt.Sprintf("Send approved broadcast %s: %s", claimed.ID, claimed.Payload.Subject)
	env, sendErr := w.agents.Invoke(ctx, w.ids.Sender, instruction, agent.CallContext{UserID: userID})

	var final Draft
	if sendErr != nil || env.Status != agent.StatusSuccess {
		if sendErr != nil {
			w.logger.Error("send call failed", "draft", id, "error", sendErr)
		} else {
			w.logger.Error("sender returned non-success status", "draft", id, "status", env.Status)
			sendErr = fmt.Errorf("broadcast: sender returned status %q", env.Status)
		}
		_ = w.store.mutate(id, func(d *Draft) error {
			d.Status = StatusFailed
			final = *d
			return nil
		})
		w.archive(final)
		return final, sendErr
	}

	report := parseReport(env.Result)
	if report.Inconsistent {
		w.logger.Warn("delivery report counts do not add up",
			"draft", id,
			"total", report.TotalRecipients,
			"delivered", report.Delivered,
			"failed", report.Failed,
			"pending", report.Pending,
		)
	}

	_ = w.store.mutate(id, func(d *Draft) error {
		d.Status = StatusSent
		d.Report = &report
		d.DeliveryRaw = env.Result
		final = *d
		return nil
	})
	w.archive(final)
	w.logger.Info("broadcast sent", "draft", id, "delivered", report.Delivered, "failed", report.Failed, "pending", report.Pending)
	return final, nil
}

// Reject removes the identified draft from the collection entirely. Only a
// draft in the draft state can be rejected; anything else is a no-op error.
func (w *Workflow) Reject(id string) error {
	err := w.store.remove(id, func(d *Draft) error {
		if d.Status != StatusDraft {
			return fmt.Errorf("%w: reject requires status %q, draft %s is %q", ErrInvalidTransition, StatusDraft, d.ID, d.Status)
		}
		return nil
	})
	if err != nil {
		return err
	}
	w.logger.Info("draft rejected", "draft", id)
	return nil
}

// Get returns a copy of one draft.
func (w *Workflow) Get(id string) (Draft, error) {
	return w.store.Get(id)
}

// List returns drafts filtered by status in creation order.
func (w *Workflow) List(status Status) []Draft {
	return w.store.List(status)
}

func (w *Workflow) archive(d Draft) {
	if w.recorder == nil || d.ID == "" {
		return
	}
	if err := w.recorder.RecordBroadcast(d); err != nil {
		w.logger.Warn("failed to archive broadcast", "draft", d.ID, "error", err)
	}
}
