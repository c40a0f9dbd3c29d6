package decompose

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/goccy/go-json"
)

// Models often wrap the array in markdown fences or prose; take the first
// bracketed block.
var jsonArrayPattern = regexp.MustCompile(`(?s)\[.*?\]`)

var sentencePattern = regexp.MustCompile(`[.;]\s+`)

// Fragments at or below this length are noise, not subtasks.
const minFragmentChars = 10

type rawSubtask struct {
	ID          int    `json:"id"`
	Task        string `json:"task"`
	Description string `json:"description"`
	Skill       string `json:"skill"`
}

// parseSubtasks extracts subtask definitions from a model response, falling
// back to splitting the original task when nothing usable parses.
func parseSubtasks(response string, max int, originalTask string) []subtask {
	match := jsonArrayPattern.FindString(response)
	if match == "" {
		return fallbackSplit(originalTask, max)
	}

	var raw []rawSubtask
	if err := json.Unmarshal([]byte(match), &raw); err != nil || len(raw) == 0 {
		return fallbackSplit(originalTask, max)
	}
	if len(raw) > max {
		raw = raw[:max]
	}

	subtasks := make([]subtask, len(raw))
	for i, r := range raw {
		st := subtask{ID: r.ID, Task: r.Task, Skill: r.Skill}
		if st.ID == 0 {
			st.ID = i + 1
		}
		if st.Task == "" {
			st.Task = r.Description
		}
		if st.Task == "" {
			st.Task = fmt.Sprintf("Subtask %d", i+1)
		}
		if st.Skill == "" {
			st.Skill = "general"
		}
		subtasks[i] = st
	}
	return subtasks
}

// fallbackSplit splits the task on sentence boundaries; when that yields
// fewer than two usable fragments it produces three aspect-based subtasks.
func fallbackSplit(task string, max int) []subtask {
	var fragments []string
	for _, part := range sentencePattern.Split(task, -1) {
		if len(part) > minFragmentChars {
			fragments = append(fragments, part)
		}
	}

	if len(fragments) >= 2 {
		if len(fragments) > max {
			fragments = fragments[:max]
		}
		subtasks := make([]subtask, len(fragments))
		for i, fragment := range fragments {
			subtasks[i] = subtask{ID: i + 1, Task: strings.TrimSpace(fragment), Skill: "general"}
		}
		return subtasks
	}

	generic := []subtask{
		{ID: 1, Task: "Analyze and plan: " + task, Skill: "analysis"},
		{ID: 2, Task: "Implement the core logic: " + task, Skill: "code"},
		{ID: 3, Task: "Review, optimize, and document: " + task, Skill: "reasoning"},
	}
	if max < len(generic) {
		generic = generic[:max]
	}
	return generic
}
