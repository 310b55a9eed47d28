package tasklist

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/contextforge/contextforge/pkg/types"
)

// templateNode is one pre-shaped task in a template subtree.
type templateNode struct {
	name     string
	children []templateNode
}

// templates is the fixed registry. Node names may contain the {title}
// placeholder.
var templates = map[string][]templateNode{
	"feature": {
		{name: "Implement {title}", children: []templateNode{
			{name: "Design {title}"},
			{name: "Write implementation"},
			{name: "Write tests"},
			{name: "Update documentation"},
		}},
	},
	"bug_fix": {
		{name: "Fix {title}", children: []templateNode{
			{name: "Reproduce the issue"},
			{name: "Identify root cause"},
			{name: "Apply fix"},
			{name: "Add regression test"},
		}},
	},
	"refactor": {
		{name: "Refactor {title}", children: []templateNode{
			{name: "Map current behavior"},
			{name: "Restructure code"},
			{name: "Verify behavior unchanged"},
		}},
	},
	"review": {
		{name: "Review {title}", children: []templateNode{
			{name: "Read the changes"},
			{name: "Check tests"},
			{name: "Leave feedback"},
		}},
	},
	"release": {
		{name: "Release {title}", children: []templateNode{
			{name: "Finalize changelog"},
			{name: "Tag version"},
			{name: "Publish artifacts"},
			{name: "Announce release"},
		}},
	},
}

// TemplateNames lists the registered template names, sorted.
func TemplateNames() []string {
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyTemplate expands a registered template under parentID (empty for
// root), substituting title for the placeholder. One undo snapshot covers
// the whole expansion.
func (m *Manager) ApplyTemplate(name, title, parentID string) ([]*types.Task, error) {
	nodes, ok := templates[name]
	if !ok {
		return nil, fmt.Errorf("%w: template %s", types.ErrNotFound, name)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if parentID != "" {
		if _, ok := m.tasks[parentID]; !ok {
			return nil, fmt.Errorf("%w: parent task %s", types.ErrNotFound, parentID)
		}
	}

	m.pushUndo()
	now := time.Now()
	var created []*types.Task
	var expand func(nodes []templateNode, parentID string)
	expand = func(nodes []templateNode, parentID string) {
		for _, node := range nodes {
			task := &types.Task{
				ID:        uuid.New().String(),
				Name:      strings.ReplaceAll(node.name, "{title}", title),
				State:     types.TaskNotStarted,
				ParentID:  parentID,
				Children:  []string{},
				CreatedAt: now,
				UpdatedAt: now,
			}
			m.tasks[task.ID] = task
			if parentID != "" {
				parent := m.tasks[parentID]
				task.Order = len(parent.Children)
				parent.Children = append(parent.Children, task.ID)
			} else {
				task.Order = len(m.rootIDs)
				m.rootIDs = append(m.rootIDs, task.ID)
			}
			created = append(created, cloneTask(task))
			expand(node.children, task.ID)
		}
	}
	expand(nodes, parentID)

	m.logger.Info().Str("template", name).Int("tasks", len(created)).Msg("template applied")
	return created, nil
}
