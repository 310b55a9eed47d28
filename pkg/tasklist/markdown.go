package tasklist

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/contextforge/contextforge/pkg/types"
)

// newUUIDToken in reorganize input requests a fresh id for that line.
const newUUIDToken = "NEW_UUID"

var stateChars = map[types.TaskState]byte{
	types.TaskNotStarted: ' ',
	types.TaskInProgress: '/',
	types.TaskComplete:   'x',
	types.TaskCancelled:  '-',
}

var charStates = map[byte]types.TaskState{
	' ': types.TaskNotStarted,
	'/': types.TaskInProgress,
	'x': types.TaskComplete,
	'-': types.TaskCancelled,
}

// taskLineRe matches `- [S] name (task_id: id)` with optional id suffix.
var taskLineRe = regexp.MustCompile(`^- \[([ x/-])\] (.*?)(?: \(task_id: ([0-9a-fA-F-]{36}|NEW_UUID)\))?$`)

// ToMarkdown renders the hierarchy as a checklist, two spaces of indent
// per level.
func (m *Manager) ToMarkdown() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var b strings.Builder
	m.walkLocked(func(t *types.Task, depth int) {
		fmt.Fprintf(&b, "%s- [%c] %s (task_id: %s)\n",
			strings.Repeat("  ", depth), stateChars[t.State], t.Name, t.ID)
	})
	return b.String()
}

// parsedLine is one markdown checklist entry.
type parsedLine struct {
	lineNo int
	depth  int
	state  types.TaskState
	name   string
	id     string
	isNew  bool
}

// ReorganizeResult summarizes what a reorganize changed.
type ReorganizeResult struct {
	Added   int      `json:"added"`
	Moved   int      `json:"moved"`
	Removed int      `json:"removed"`
	Errors  []string `json:"errors,omitempty"`
}

// Reorganize replaces the hierarchy with the one described by markdown.
// With validateOnly the input is checked and the current state untouched.
func (m *Manager) Reorganize(markdown string, validateOnly bool) (*ReorganizeResult, error) {
	lines, errs := parseMarkdown(markdown)

	m.mu.Lock()
	defer m.mu.Unlock()

	// Referenced ids must exist, depth must stay bounded, indentation
	// must not skip a level.
	prevDepth := -1
	seen := map[string]bool{}
	for _, l := range lines {
		if !l.isNew && l.id != "" {
			if _, ok := m.tasks[l.id]; !ok {
				errs = append(errs, fmt.Sprintf("line %d: unknown task_id %s", l.lineNo, l.id))
			}
			if seen[l.id] {
				errs = append(errs, fmt.Sprintf("line %d: duplicate task_id %s", l.lineNo, l.id))
			}
			seen[l.id] = true
		}
		if l.depth >= maxDepth {
			errs = append(errs, fmt.Sprintf("line %d: depth %d exceeds max %d", l.lineNo, l.depth+1, maxDepth))
		}
		if l.depth > prevDepth+1 {
			errs = append(errs, fmt.Sprintf("line %d: indentation skips a level", l.lineNo))
		}
		prevDepth = l.depth
	}
	result := &ReorganizeResult{Errors: errs}
	if len(errs) > 0 {
		return result, fmt.Errorf("%w: %d reorganize errors", types.ErrValidation, len(errs))
	}
	if validateOnly {
		return result, nil
	}

	m.pushUndo()

	oldTasks := m.tasks
	now := time.Now()
	newTasks := make(map[string]*types.Task, len(lines))
	var newRoots []string

	// parentStack maps indentation depth to the enclosing task id.
	var parentStack []string
	for _, l := range lines {
		id := l.id
		if l.isNew || id == "" {
			id = uuid.New().String()
			result.Added++
		}

		parentStack = parentStack[:l.depth]
		parentID := ""
		if l.depth > 0 {
			parentID = parentStack[l.depth-1]
		}

		task := &types.Task{
			ID:        id,
			Name:      l.name,
			State:     l.state,
			ParentID:  parentID,
			Children:  []string{},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if old, ok := oldTasks[id]; ok {
			task.Description = old.Description
			task.Dependencies = append([]string(nil), old.Dependencies...)
			task.Metadata = old.Metadata
			task.CreatedAt = old.CreatedAt
			if old.ParentID != parentID {
				result.Moved++
			}
		}
		if parentID != "" {
			parent := newTasks[parentID]
			task.Order = len(parent.Children)
			parent.Children = append(parent.Children, id)
		} else {
			task.Order = len(newRoots)
			newRoots = append(newRoots, id)
		}
		newTasks[id] = task
		parentStack = append(parentStack, id)
	}

	for id := range oldTasks {
		if _, ok := newTasks[id]; !ok {
			result.Removed++
		}
	}

	// Drop dependencies pointing outside the new id set.
	for _, t := range newTasks {
		kept := t.Dependencies[:0]
		for _, dep := range t.Dependencies {
			if _, ok := newTasks[dep]; ok {
				kept = append(kept, dep)
			}
		}
		t.Dependencies = kept
	}

	m.tasks = newTasks
	m.rootIDs = newRoots
	m.logger.Info().
		Int("added", result.Added).
		Int("moved", result.Moved).
		Int("removed", result.Removed).
		Msg("task list reorganized")
	return result, nil
}

// parseMarkdown parses checklist lines and collects per-line errors.
func parseMarkdown(markdown string) ([]parsedLine, []string) {
	var lines []parsedLine
	var errs []string
	for i, raw := range strings.Split(markdown, "\n") {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		indent := 0
		for strings.HasPrefix(raw[indent:], "  ") {
			indent += 2
		}
		body := raw[indent:]
		if !strings.HasPrefix(body, "-") {
			continue
		}
		match := taskLineRe.FindStringSubmatch(body)
		if match == nil {
			errs = append(errs, fmt.Sprintf("line %d: malformed task line", i+1))
			continue
		}
		lines = append(lines, parsedLine{
			lineNo: i + 1,
			depth:  indent / 2,
			state:  charStates[match[1][0]],
			name:   match[2],
			id:     match[3],
			isNew:  match[3] == newUUIDToken,
		})
	}
	return lines, errs
}
