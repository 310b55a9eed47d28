/*
Package stream supervises line-streamed subprocesses.

Each stream owns a reader goroutine that splits merged process output
into StreamLines, feeding both a consumer queue and a fixed-size ring
buffer (default 10,000 lines, oldest dropped past capacity). ReadLines
blocks for the first line up to a timeout and then drains without
blocking; IterLines hands out the queue itself as a finite,
non-restartable sequence; GetBuffer snapshots the ring.

An optional per-line callback runs on the reader goroutine; a panicking
callback is logged and never stops the stream.
*/
package stream
