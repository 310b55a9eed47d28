// Package coordinator dispatches work to remote agents: an agent registry
// with heartbeat-based health tracking, a priority task queue, and a
// coordinator loop that matches queued tasks to available agents and fans
// state changes out to per-task subscribers.
//
// Both the registry and the queue are built on a small key-value contract
// (hash operations for records, a sorted set for the priority index). Two
// backends provide it: an in-memory store and a bbolt file. OpenBackend
// prefers the file-backed store and degrades to memory when the file
// cannot be opened, so coordination keeps working without persistence.
//
// Dispatch order is priority descending with FIFO among equal priorities.
// Agents that stop heartbeating past the configured timeout are marked
// UNHEALTHY by the health monitor, and their RUNNING tasks return to the
// queue with assignment cleared.
package coordinator
