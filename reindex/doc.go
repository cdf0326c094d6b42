// Package reindex re-embeds the stored transcript chunks with a new or
// updated embedding model.
//
// The reindexer walks the chunk store in batches, regenerates each batch's
// vectors with bounded retries, and persists a checkpoint after every batch
// so an interrupted run resumes where it stopped.
package reindex
