/*
Package process supervises shell subprocesses.

Each launch assigns a monotonically increasing terminal id under a single
mutex; ids are never reused and handles persist for the supervisor's
lifetime. Stderr is merged into stdout and a dedicated goroutine drains
the combined stream line by line into an unbounded pending queue plus a
cumulative buffer.

Wait semantics follow the caller's choice: a foreground launch blocks
until exit or its deadline, and a deadline expiry reports TIMEOUT while
leaving the process running. Kill escalates: SIGTERM, a 5 second grace
period, then a hard kill. State refresh is lazy; listing or reading a
handle whose process has exited reports COMPLETED or FAILED by return
code.
*/
package process
