/*
Package types defines the shared data model for ContextForge.

All cross-component records live here as flat structs with string enums:
fingerprints and drift reports (content tracking), code chunks and file
states (indexing), task-list tasks, remote-agent and dispatch records
(coordination), process and stream views (supervision), and diagnostic
results.

Records are plain values. Maps keyed by id are the only graph
representation; parent/child and dependency relations are stored as id
lists, never pointers, so snapshots can be deep-copied with a simple
clone and serialized with encoding/json as-is.

Error kinds are sentinel errors matched with errors.Is; every component
wraps them with operation context rather than defining its own hierarchy.
*/
package types
