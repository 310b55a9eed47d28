/*
Package watcher provides a polling file watcher.

Each watch owns a goroutine that rescans its root on a fixed interval
(default 1s), diffs {path -> mtime} against the previous scan, and
enqueues created/modified/deleted events. Per (path, type) debouncing
suppresses repeat emissions inside the configured window. Consumers pull
with GetEvents, which drains the queue without blocking.

Within a watch, events for the same path preserve occurrence order;
ordering across paths is unspecified. Polling keeps the watcher portable
with no native filesystem notification dependency, at the cost of up to
one interval of latency.
*/
package watcher
