// Package chunked implements a concurrent, chunked, unordered container
// with trackable weak handles and online maintenance.
//
// Elements are stored in fixed-capacity chunks linked into a chain. There
// is no external index: an element is named either by a Handle, a
// trackable weak reference stable across compaction and merge, or by a
// Cursor, valid only for the duration of a single Iterate/IterateShared
// visit. Deletion, merge, and compaction run online, piggybacked on
// Erase/Access.Release/iteration rather than as a separate background
// pass.
//
// Grounded throughout on the original C++ SyncedChunkedArray
// implementation; see DESIGN.md for the per-component mapping and the
// translation decisions (atomic.Pointer in place of shared_ptr, a
// goroutine-id-keyed depth map in place of thread_local, the Deferred type
// in place of a lambda capturing a lock guard by value).
package chunked
