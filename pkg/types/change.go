package types

import "context"

// ChangeTuple is one flattened pending edit, the unit the persistence
// interface accepts.
type ChangeTuple struct {
	Id    RecordId `json:"id"`
	Field string   `json:"field"`
	Value string   `json:"value"`
}

// PriceChange is published when a commit moves a record's price.
type PriceChange struct {
	Id          RecordId `json:"id"`
	Description string   `json:"description"`
	OldPrice    string   `json:"oldPrice"`
	NewPrice    string   `json:"newPrice"`
}

// Committer persists a batch of flattened edits. An error means nothing was
// applied as far as the caller is concerned, pending edits stay retryable.
type Committer interface {
	CommitChanges(ctx context.Context, changes []ChangeTuple) error
}

// SnapshotSource hands out deep copies of the canonical grid plus a
// generation counter that moves on every commit or replace.
type SnapshotSource interface {
	Snapshot() *BootstrapData
	Generation() uint64
}
