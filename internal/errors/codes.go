package errors

// Kind identifies the category of failure an operation returned.
// Every engine-facing error carries exactly one Kind so callers (CLI,
// MCP adapter) can map it to an exit code or protocol error without
// string-matching messages.
type Kind string

const (
	// KindLocked means a cross-process or intra-process lock could not
	// be acquired within its bound.
	KindLocked Kind = "LOCKED"
	// KindJobConflict means a job was rejected because another job of
	// a conflicting type is already running.
	KindJobConflict Kind = "JOB_CONFLICT"
	// KindNotFound means the referenced collection, document, chunk,
	// tag, or job does not exist.
	KindNotFound Kind = "NOT_FOUND"
	// KindInvalidPath means a relative path failed the path guard
	// (traversal, absolute, NUL byte, sensitive directory).
	KindInvalidPath Kind = "INVALID_PATH"
	// KindInvalidInput means a request argument failed validation
	// (malformed tag, empty title, bad URI).
	KindInvalidInput Kind = "INVALID_INPUT"
	// KindDuplicate means the operation would create a record that
	// already exists under a unique constraint.
	KindDuplicate Kind = "DUPLICATE"
	// KindConflict means an optimistic concurrency check failed, e.g.
	// a stale revision was supplied to an update.
	KindConflict Kind = "CONFLICT"
	// KindHasReferences means a delete was rejected because other
	// records still reference the target (doc links, tags).
	KindHasReferences Kind = "HAS_REFERENCES"
	// KindTooLarge means input exceeded a configured size limit.
	KindTooLarge Kind = "TOO_LARGE"
	// KindCorrupt means on-disk state (blob, index, checkpoint) failed
	// an integrity check.
	KindCorrupt Kind = "CORRUPT"
	// KindAdapterError means an EmbeddingPort, GenerationPort, or
	// RerankPort call failed.
	KindAdapterError Kind = "ADAPTER_ERROR"
	// KindModelNotFound means a configured model is unavailable and
	// the download policy forbids fetching it.
	KindModelNotFound Kind = "MODEL_NOT_FOUND"
	// KindIngestError means a converter or ingestion step failed for
	// a specific document, without corrupting the rest of the store.
	KindIngestError Kind = "INGEST_ERROR"
	// KindRuntime is the catch-all for unexpected failures, including
	// panics recovered at the engine boundary.
	KindRuntime Kind = "RUNTIME"
)

// retryableKinds lists the Kinds that are safe to retry without
// operator intervention. Everything else requires the caller to fix
// input or state before trying again.
var retryableKinds = map[Kind]bool{
	KindLocked:      true,
	KindJobConflict: true,
	KindAdapterError: true,
}

func isRetryableKind(k Kind) bool {
	return retryableKinds[k]
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	return string(k)
}
