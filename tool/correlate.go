package tool

import (
	"fmt"

	"github.com/hupe1980/routemesh/core"
)

// Match pairs a tool call with the declaration it selected.
type Match struct {
	Call       core.ToolCall
	Definition Definition
}

// Correlate pairs calls with the tools declared in set, preserving call
// order. Calls naming an undeclared tool, or whose arguments fail schema
// validation, are skipped with a warning. When required is true and nothing
// matched, a *core.MissingToolCallError naming the current node is returned.
func Correlate(rc *core.RunContext, set Set, calls []core.ToolCall, required bool) ([]Match, error) {
	matches := make([]Match, 0, len(calls))

	for _, call := range calls {
		def, ok := set.Lookup(call.Name)
		if !ok {
			rc.LogWarn("tool.correlate.unmatched", "tool", call.Name, "tool_call_id", call.ID)
			continue
		}

		if err := def.Validate(call.Args); err != nil {
			rc.LogWarn("tool.correlate.invalid_args", "tool", call.Name, "tool_call_id", call.ID, "error", err.Error())
			continue
		}

		rc.LogDebug("tool.correlate.match", "tool", call.Name, "tool_call_id", call.ID)
		matches = append(matches, Match{Call: call, Definition: def})
	}

	if required && len(matches) == 0 {
		return nil, &core.MissingToolCallError{Node: rc.Node, Tools: set.Names()}
	}

	return matches, nil
}

// First returns the first match for name.
func First(matches []Match, name string) (Match, bool) {
	for _, m := range matches {
		if m.Call.Name == name {
			return m, true
		}
	}

	return Match{}, false
}

// AnswerUnmatched returns error responses for every call of msg that has no
// match, so the message's calls are all answered.
func AnswerUnmatched(msg core.AIMessage, matches []Match) []core.Message {
	matched := make(map[string]bool, len(matches))
	for _, m := range matches {
		matched[m.Call.ID] = true
	}

	var out []core.Message

	for _, call := range msg.ToolCalls {
		if !matched[call.ID] {
			out = append(out, Respond(call, fmt.Sprintf("Error: tool %q is not available here.", call.Name)))
		}
	}

	return out
}
