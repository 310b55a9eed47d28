// Package tasklist manages a hierarchical task list: nested tasks with
// dependencies, bounded undo/redo, markdown round-tripping, a small
// template registry, and JSON persistence.
//
// Every mutating operation pushes a deep-cloned snapshot onto the undo
// stack (bounded, oldest evicted) and clears the redo stack, so callers
// can always step back through recent changes. Returned tasks are copies;
// later mutations never alias into a caller's view.
//
// The markdown grammar is a checklist with two-space indentation:
//
//   - [ ] Build parser (task_id: 6ba7b810-9dad-11d1-80b4-00c04fd430c8)
//   - [x] Write lexer (task_id: NEW_UUID)
//
// State characters map to NOT_STARTED (space), IN_PROGRESS (/),
// COMPLETE (x), and CANCELLED (-). Reorganize parses the same grammar
// ToMarkdown emits and replaces the hierarchy, reporting added, moved,
// and removed counts.
package tasklist
