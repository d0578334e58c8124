package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/routemesh/core"
	"github.com/hupe1980/routemesh/engine"
)

// render prints what a turn added to the conversation.
func render(w io.Writer, res *engine.TurnResult) {
	if res == nil {
		return
	}

	if res.Decision.Route != "" {
		label := string(res.Decision.Route)
		if res.Decision.Fallback {
			label += " (fallback)"
		}
		fmt.Fprintf(w, "→ %s\n", label)
	}

	for _, m := range res.Patch.Messages {
		if ai, ok := m.(core.AIMessage); ok && ai.Content != "" {
			fmt.Fprintf(w, "ai: %s\n", ai.Content)
		}
	}

	for _, ev := range res.Patch.UI {
		fmt.Fprintf(w, "[%s] %s\n", ev.ComponentKey, summarize(ev.Props))
	}

	if res.Interrupted && res.Interrupt != nil {
		item, _ := res.Interrupt.Payload["planItem"].(string)
		fmt.Fprintf(w, "? approve %q  [y | n <feedback> | stop]\n", item)
	}
}

// summarize renders props as compact JSON, eliding long string values.
func summarize(props map[string]any) string {
	short := make(map[string]any, len(props))

	for k, v := range props {
		if s, ok := v.(string); ok && len(s) > 60 {
			v = s[:57] + "..."
		}
		short[k] = v
	}

	data, err := json.Marshal(short)
	if err != nil {
		return fmt.Sprintf("%v", props)
	}

	return string(data)
}

// parseDecision maps a reply to a pending approval. ok is false for input
// that should start a new turn instead.
func parseDecision(line string) (core.ResumeValue, bool) {
	word, rest, _ := strings.Cut(strings.TrimSpace(line), " ")

	switch strings.ToLower(word) {
	case "y", "yes", "accept":
		return core.ResumeValue{Action: core.ResumeAccept}, true
	case "n", "no", "reject":
		return core.ResumeValue{Action: core.ResumeReject, Feedback: strings.TrimSpace(rest)}, true
	case "stop", "terminate":
		return core.ResumeValue{Action: core.ResumeTerminate}, true
	default:
		return core.ResumeValue{}, false
	}
}

func printStats(w io.Writer, g prometheus.Gatherer) {
	families, err := g.Gather()
	if err != nil {
		fmt.Fprintf(w, "stats unavailable: %v\n", err)
		return
	}

	var lines []string

	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			labels := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}

			var value float64
			switch {
			case m.GetCounter() != nil:
				value = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				value = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				value = float64(m.GetHistogram().GetSampleCount())
			}

			lines = append(lines, fmt.Sprintf("%s{%s} %g", mf.GetName(), strings.Join(labels, ","), value))
		}
	}

	sort.Strings(lines)

	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
}
