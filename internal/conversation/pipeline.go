package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orgcopilot/orgcopilot/internal/agent"
	"github.com/orgcopilot/orgcopilot/internal/classify"
)

// Fallback display strings for degraded turns.
const (
	apologyText   = "Sorry, I encountered an error processing your request."
	processedText = "I processed your request."
	defaultIntent = "general"
)

var (
	// ErrEmptyInput is returned when a submission contains no text.
	ErrEmptyInput = errors.New("conversation: empty input")
	// ErrTurnInFlight is returned when a submission arrives while a prior
	// turn is still awaiting resolution.
	ErrTurnInFlight = errors.New("conversation: a turn is already in flight")
)

// Invoker is what the pipeline needs from the agent layer.
type Invoker interface {
	Invoke(ctx context.Context, agentID, text string, cc agent.CallContext) (*agent.Envelope, error)
}

// Recorder receives resolved turns for archival. Recording failures are
// logged, never surfaced: the in-memory store stays authoritative.
type Recorder interface {
	RecordTurn(sessionID string, t Turn) error
}

// AgentIDs names the two agents the pipeline calls per turn.
type AgentIDs struct {
	Router       string
	Orchestrator string
}

// Pipeline drives one conversation session: it sequences the router and
// orchestrator calls per user turn, classifies the answer, and appends the
// resulting turns to the store. At most one turn is in flight at a time.
type Pipeline struct {
	agents    Invoker
	ids       AgentIDs
	store     *Store
	recorder  Recorder
	sessionID string
	logger    *slog.Logger

	mu       sync.Mutex
	inFlight bool
}

// NewPipeline creates a Pipeline with a fresh session id. recorder may be
// nil to disable archival.
func NewPipeline(agents Invoker, ids AgentIDs, store *Store, recorder Recorder, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		agents:    agents,
		ids:       ids,
		store:     store,
		recorder:  recorder,
		sessionID: "session-" + uuid.New().String(),
		logger:    logger.With("component", "conversation"),
	}
}

// SessionID returns the opaque id grouping this pipeline's turns.
func (p *Pipeline) SessionID() string {
	return p.sessionID
}

// Submit runs one full turn for the given user text and returns the agent's
// turn. userID is the role-qualified identity string passed through to both
// agents. Empty text and concurrent submissions are rejected before any
// remote call is made.
func (p *Pipeline) Submit(ctx context.Context, text, userID string) (Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Turn{}, ErrEmptyInput
	}

	p.mu.Lock()
	if p.inFlight {
		p.mu.Unlock()
		return Turn{}, ErrTurnInFlight
	}
	p.inFlight = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.inFlight = false
		p.mu.Unlock()
	}()

	p.record(Turn{
		ID:        "msg-" + uuid.New().String(),
		Author:    AuthorUser,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	})

	cc := agent.CallContext{SessionID: p.sessionID, UserID: userID}

	// Router normalization is best-effort: any failure degrades to the
	// defaults and the turn proceeds to the answer call.
	outcome := p.route(ctx, text, cc)

	// The orchestrator gets the original text; the router outcome rides
	// along as turn metadata only.
	env, err := p.agents.Invoke(ctx, p.ids.Orchestrator, text, cc)
	if err != nil {
		p.logger.Error("answer call failed", "agent", p.ids.Orchestrator, "error", err)
		failed := Turn{
			ID:         "msg-" + uuid.New().String(),
			Author:     AuthorAgent,
			Text:       apologyText,
			CreatedAt:  time.Now().UTC(),
			Failed:     true,
			Kind:       classify.PlainText,
			Confidence: outcome.Confidence,
			Intent:     outcome.NormalizedIntent,
		}
		p.record(failed)
		return failed, nil
	}

	resolved := p.resolve(env, outcome)
	p.record(resolved)
	return resolved, nil
}

// route invokes the semantic router and folds the result into a
// RouterOutcome, defaulting every field on any kind of failure.
func (p *Pipeline) route(ctx context.Context, text string, cc agent.CallContext) RouterOutcome {
	outcome := RouterOutcome{NormalizedIntent: defaultIntent}

	env, err := p.agents.Invoke(ctx, p.ids.Router, text, cc)
	if err != nil {
		p.logger.Warn("router call failed, proceeding with defaults", "error", err)
		return outcome
	}
	if env.Status != agent.StatusSuccess {
		p.logger.Warn("router returned non-success status, proceeding with defaults", "status", env.Status)
		return outcome
	}

	r := env.Result
	if intent, ok := r["intent"].(string); ok && intent != "" {
		outcome.NormalizedIntent = intent
	}
	if conf, ok := r["confidence"].(float64); ok {
		outcome.Confidence = conf
	}
	if list, ok := r["entities"].([]any); ok {
		for _, e := range list {
			obj, ok := e.(map[string]any)
			if !ok {
				continue
			}
			kind, _ := obj["type"].(string)
			value, _ := obj["value"].(string)
			outcome.Entities = append(outcome.Entities, Entity{Kind: kind, Value: value})
		}
	}
	if rf, ok := r["requires_feedback"].(bool); ok {
		outcome.ClarificationNeeded = rf
	}
	if cp, ok := r["suggested_clarification"].(string); ok {
		outcome.ClarificationPrompt = cp
	}
	return outcome
}

// resolve classifies the orchestrator envelope into the agent turn.
func (p *Pipeline) resolve(env *agent.Envelope, outcome RouterOutcome) Turn {
	kind := classify.Classify(env.Result)

	text := processedText
	if fa, ok := env.Result["final_answer"].(string); ok && fa != "" {
		text = fa
	} else if env.Message != "" {
		text = env.Message
	}

	return Turn{
		ID:          "msg-" + uuid.New().String(),
		Author:      AuthorAgent,
		Text:        text,
		CreatedAt:   time.Now().UTC(),
		Kind:        kind,
		RawResult:   env.Result,
		Suggestions: classify.Suggestions(env.Result),
		Confidence:  outcome.Confidence,
		Intent:      outcome.NormalizedIntent,
	}
}

// AppendNotice appends an agent-authored turn outside the submit flow, such
// as the delivery summary pushed into the chat after a broadcast send. The
// result is classified the same way as an answer-call result.
func (p *Pipeline) AppendNotice(text string, result map[string]any) Turn {
	t := Turn{
		ID:        "msg-" + uuid.New().String(),
		Author:    AuthorAgent,
		Text:      text,
		CreatedAt: time.Now().UTC(),
		Kind:      classify.Classify(result),
		RawResult: result,
	}
	p.record(t)
	return t
}

// History returns stored turns in order; see Store.List for limit handling.
func (p *Pipeline) History(limit int) []Turn {
	return p.store.List(limit)
}

func (p *Pipeline) record(t Turn) {
	p.store.append(t)
	if p.recorder == nil {
		return
	}
	if err := p.recorder.RecordTurn(p.sessionID, t); err != nil {
		p.logger.Warn("failed to archive turn", "turn", t.ID, "error", err)
	}
}
