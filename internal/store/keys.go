package store

const (
	// progressPrefix namespaces batch progress records.
	progressPrefix = "batch:progress:"
)

func progressKey(batchID string) []byte {
	return []byte(progressPrefix + batchID)
}
