package domain

// BuildIdempotencyKey constructs the cache key for a ledger entry id.
// Entry ids are global, so the key is not scoped by user.
func BuildIdempotencyKey(entryID string) string {
	return "entry:" + entryID
}
