package main

import (
	"encoding/json"
	"io"
	"time"

	"github.com/dmitrymomot/metastates/pkg/states"
)

type recordView struct {
	ID             string          `json:"id"`
	OwnerKind      string          `json:"owner_kind"`
	OwnerID        string          `json:"owner_id"`
	StateType      string          `json:"state_type"`
	Discriminator  string          `json:"discriminator,omitempty"`
	Status         string          `json:"status"`
	PreviousStatus string          `json:"previous_status,omitempty"`
	Metadata       states.Metadata `json:"metadata"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func viewOf(rec *states.Record) recordView {
	return recordView{
		ID:             rec.ID,
		OwnerKind:      string(rec.Owner.Kind),
		OwnerID:        rec.Owner.ID,
		StateType:      rec.StateType,
		Discriminator:  rec.Discriminator,
		Status:         rec.Status,
		PreviousStatus: rec.PreviousStatus,
		Metadata:       rec.Metadata,
		CompletedAt:    rec.CompletedAt,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
