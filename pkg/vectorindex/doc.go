/*
Package vectorindex defines the KNN port the indexer writes to and ships
an in-memory cosine-similarity implementation.

The Index interface is deliberately small (insert, search, delete-by-path,
clear, stats) so any vector store can back it. Upsert ids are stable:
meta.chunk_id when present, otherwise (file_path, start_line, end_line,
content_hash), which is what makes incremental re-indexing idempotent.

The bundled HashEmbedder is a deterministic feature-hashing encoder; it
exists so the engine works with no model assets and so tests get
numerically identical vectors for identical input.
*/
package vectorindex
