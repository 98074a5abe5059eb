package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownPart  = errors.New("unknown part")
	ErrUnknownStage = errors.New("unknown item stage")
)

// Stage is the lifecycle stage of a song.
type Stage string

const (
	StagePlanned    Stage = "planned"
	StageInProgress Stage = "in_progress"
	StageReleased   Stage = "released"
)

// ParseStage accepts both the stage identifiers and the labels shown by the tracker UI.
func ParseStage(s string) (Stage, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "planned", "future plans", "future_plans":
		return StagePlanned, nil
	case "in_progress", "in progress", "wip":
		return StageInProgress, nil
	case "released":
		return StageReleased, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStage, s)
	}
}

// Item is a song as seen by the collaboration core. It is owned by the tracker and read-only here.
type Item struct {
	ID      string        `json:"id"`
	OwnerID string        `json:"owner_id"`
	Stage   Stage         `json:"stage"`
	Steps   map[Part]bool `json:"steps,omitempty"`
	PackID  string        `json:"pack_id,omitempty"`
}

// AllSteps returns every workflow step the owner defined for the item.
func (i *Item) AllSteps() PartSet {
	parts := make([]Part, 0, len(i.Steps))

	for p := range i.Steps {
		if p.IsValid() {
			parts = append(parts, p)
		}
	}

	set, _ := NewPartSet(parts...)

	return set
}

// CompletedSteps returns the steps marked done. Only meaningful while in progress.
func (i *Item) CompletedSteps() PartSet {
	parts := make([]Part, 0, len(i.Steps))

	for p, done := range i.Steps {
		if done && p.IsValid() {
			parts = append(parts, p)
		}
	}

	set, _ := NewPartSet(parts...)

	return set
}

func (i *Item) InProgress() bool {
	return i.Stage == StageInProgress
}
