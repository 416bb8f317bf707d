// Package classify determines which semantic shape a structured agent
// result matches. Agents share no result schema, so classification inspects
// which fields are present rather than any discriminant value.
package classify

// Kind is the closed set of semantic shapes a renderer can receive.
type Kind string

const (
	Schedule             Kind = "schedule"
	Analytics            Kind = "analytics"
	DeliveryStatus       Kind = "delivery_status"
	Clarification        Kind = "clarification"
	ConversationalAnswer Kind = "conversational_answer"
	PlainText            Kind = "plain_text"
)

// rule maps a structural predicate to the kind it selects.
type rule struct {
	kind  Kind
	match func(result map[string]any) bool
}

// Ordered precedence chain. Result objects may satisfy several weak signals
// (an orchestrator answer can itself carry scheduler-shaped fields), so the
// first match wins and the order must not change: renderers key off it.
var rules = []rule{
	{Schedule, func(r map[string]any) bool {
		return nonEmptyList(r, "available_slots") || isObject(r, "recommended_slot")
	}},
	{Analytics, func(r map[string]any) bool {
		return nonEmptyList(r, "trends_identified") ||
			nonEmptyList(r, "recommendations") ||
			nonEmptyList(r, "correlations")
	}},
	{DeliveryStatus, func(r map[string]any) bool {
		return hasField(r, "broadcast_id") && hasField(r, "delivery_status")
	}},
	{Clarification, func(r map[string]any) bool {
		return truthy(r, "requires_feedback") || hasNonNull(r, "suggested_clarification")
	}},
	{ConversationalAnswer, func(r map[string]any) bool {
		return nonEmptyString(r, "final_answer")
	}},
}

// Classify returns the semantic kind of a decoded agent result. It always
// succeeds: a result matching no rule is PlainText, where the renderer falls
// back to the envelope message.
func Classify(result map[string]any) Kind {
	if result == nil {
		return PlainText
	}
	for _, r := range rules {
		if r.match(result) {
			return r.kind
		}
	}
	return PlainText
}

// Suggestions extracts follow_up_suggestions from a conversational answer,
// preserving order and skipping non-string entries. Missing or empty lists
// return nil.
func Suggestions(result map[string]any) []string {
	list, ok := result["follow_up_suggestions"].([]any)
	if !ok || len(list) == 0 {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func hasField(r map[string]any, key string) bool {
	_, ok := r[key]
	return ok
}

func hasNonNull(r map[string]any, key string) bool {
	v, ok := r[key]
	return ok && v != nil
}

func nonEmptyList(r map[string]any, key string) bool {
	list, ok := r[key].([]any)
	return ok && len(list) > 0
}

func isObject(r map[string]any, key string) bool {
	obj, ok := r[key].(map[string]any)
	return ok && obj != nil
}

func nonEmptyString(r map[string]any, key string) bool {
	s, ok := r[key].(string)
	return ok && s != ""
}

func truthy(r map[string]any, key string) bool {
	switch v := r[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	case float64:
		return v != 0
	default:
		return false
	}
}
