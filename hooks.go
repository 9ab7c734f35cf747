package zimage

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The engine calls them from worker goroutines.
type Hooks interface {
	// The dispatch step sent a task to the cached pool (disk hit) or the
	// download pool.
	TaskRouted(uri string, cached bool)

	// A task ended without delivering.
	// reason ∈ {"collected", "reused", "interrupted"}
	TaskCancelled(uri, key, reason string)

	// A task failed before its raster reached the memory cache.
	TaskFailed(uri string, kind FailKind, err error)

	// A task had to wait for another task holding the same URI.
	URILockContended(uri string)

	// The memory cache was trimmed after allocation pressure or TrimMemory.
	MemoryTrimmed(before, after int64)

	// The disk cache dropped a file to stay under budget.
	DiskEvicted(name string, size int64)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) TaskRouted(string, bool)              {}
func (NopHooks) TaskCancelled(string, string, string) {}
func (NopHooks) TaskFailed(string, FailKind, error)   {}
func (NopHooks) URILockContended(string)              {}
func (NopHooks) MemoryTrimmed(int64, int64)           {}
func (NopHooks) DiskEvicted(string, int64)            {}
