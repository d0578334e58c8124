package opencode

import (
	"embed"
	"fmt"
)

//go:embed steps/*.txt
var stepFiles embed.FS

// Step is one entry of the master plan together with the change it makes.
type Step struct {
	Item string
	Path string
}

// MasterPlan is the fixed plan walked by the workflow.
var MasterPlan = []Step{
	{Item: "Set up a new React project with Vite and TypeScript", Path: "package.json"},
	{Item: "Create the TodoItem component", Path: "src/TodoItem.tsx"},
	{Item: "Create the TodoList component", Path: "src/TodoList.tsx"},
	{Item: "Add todo state management to the App component", Path: "src/App.tsx"},
	{Item: "Add a form for creating new todos", Path: "src/TodoForm.tsx"},
	{Item: "Style the application", Path: "src/index.css"},
}

// Items returns the plan item descriptions in order.
func Items() []string {
	out := make([]string, len(MasterPlan))
	for i, s := range MasterPlan {
		out[i] = s.Item
	}

	return out
}

// Content returns the file content written by step i (zero based).
func Content(i int) (string, error) {
	if i < 0 || i >= len(MasterPlan) {
		return "", fmt.Errorf("no file updates found for step %d", i+1)
	}

	b, err := stepFiles.ReadFile(fmt.Sprintf("steps/%d.txt", i+1))
	if err != nil {
		return "", fmt.Errorf("no file updates found for step %d: %w", i+1, err)
	}

	return string(b), nil
}
