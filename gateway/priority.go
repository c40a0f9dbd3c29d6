package gateway

import (
	"strings"

	"github.com/switchyard-ai/switchyard"
)

var (
	criticalMarkers = []string{"architecture", "security audit", "refactor", "deploy"}
	highMarkers     = []string{"analyze", "debug", "optimize", "implement", "review"}
	lowMarkers      = []string{"hello", "status", "what is", "who are"}
)

// ClassifyPriority derives a priority from the message text. Rules are
// checked in order; the first match wins.
func ClassifyPriority(message string) switchyard.Priority {
	lowered := strings.ToLower(message)
	length := len(message)

	switch {
	case length > 800 || containsAny(lowered, criticalMarkers):
		return switchyard.PriorityCritical
	case length > 300 || containsAny(lowered, highMarkers):
		return switchyard.PriorityHigh
	case length < 50 || containsAny(lowered, lowMarkers):
		return switchyard.PriorityLow
	default:
		return switchyard.PriorityMedium
	}
}

func containsAny(text string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}
