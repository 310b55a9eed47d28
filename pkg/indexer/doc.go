/*
Package indexer maintains the semantic index incrementally.

Each tracked file carries a FileState (content hash plus the chunk set
last written to the vector index). IndexFile is a per-file state machine:
unknown paths get a full index; known paths whose hash is unchanged are a
no-op; changed paths are re-chunked and the chunk sets diffed by
(start_line, end_line, content_hash). Pure additions upsert only the new
chunks; any removal or modification replaces the file's slice of the
vector index wholesale, so the resulting index state is always identical
to a clean full index of the same content.

LiveIndexer binds a polling watch to the indexer, feeding create/modify
events through IndexFile and deletes through RemoveFile, with an optional
callback after each successful update.
*/
package indexer
