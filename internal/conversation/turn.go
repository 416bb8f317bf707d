package conversation

import (
	"time"

	"github.com/orgcopilot/orgcopilot/internal/classify"
)

// Author identifies which side of the exchange produced a turn.
type Author string

const (
	AuthorUser  Author = "user"
	AuthorAgent Author = "agent"
)

// Turn is one unit of conversation. Turns are immutable once stored: the
// store appends them in creation order and never mutates or deletes them.
type Turn struct {
	ID        string         `json:"id"`
	Author    Author         `json:"author"`
	Text      string         `json:"text"`
	CreatedAt time.Time      `json:"created_at"`
	Failed    bool           `json:"failed,omitempty"`
	Kind      classify.Kind  `json:"kind,omitempty"`
	RawResult map[string]any `json:"raw_result,omitempty"`
	// Suggestions are selectable follow-up prompts carried through from a
	// conversational answer, in the order the agent returned them.
	Suggestions []string `json:"suggestions,omitempty"`
	Confidence  float64  `json:"confidence,omitempty"`
	Intent      string   `json:"intent,omitempty"`
}

// Entity is one detected entity from the router, order-preserving.
type Entity struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// RouterOutcome is the ephemeral product of the router call. It is consumed
// by the pipeline within the same turn and discarded; only Confidence and
// Intent are folded into the stored Turn.
type RouterOutcome struct {
	NormalizedIntent    string
	Confidence          float64
	Entities            []Entity
	ClarificationNeeded bool
	ClarificationPrompt string
}
