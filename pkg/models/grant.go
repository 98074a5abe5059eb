package models

import "time"

type GrantKind string

const (
	GrantKindPart GrantKind = "part"
	GrantKindPack GrantKind = "pack"
)

// PartGrant gives the requester edit rights on the named steps of one item.
// An empty AllowedSteps means the whole item, used for items that have no part granularity.
type PartGrant struct {
	RequestID    string    `json:"request_id"`
	ActorID      string    `json:"actor_id"`
	ItemID       string    `json:"item_id"`
	AllowedSteps PartSet   `json:"allowed_steps,omitempty"`
	GrantedAt    time.Time `json:"granted_at"`
}

// PackGrant gives the requester edit rights on every item of a pack.
type PackGrant struct {
	RequestID string    `json:"request_id"`
	ActorID   string    `json:"actor_id"`
	PackID    string    `json:"pack_id"`
	GrantedAt time.Time `json:"granted_at"`
}
