/*
Package fingerprint provides content tracking for ContextForge.

It has two halves. The Store registers per-file fingerprints (sha256,
mtime, size, line count) and answers drift checks: a newer sha256 for a
registered path is a drift. The ContentStore keeps truncated-output
content retrievable by short reference ids, with TTL expiry and LRU
eviction bounded by a hard count cap, plus 1-based inclusive range views
and capped context searches over the stored text.
*/
package fingerprint
