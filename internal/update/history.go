// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package update

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// HistoryKind separates checks from installs.
type HistoryKind string

const (
	KindCheck HistoryKind = "check"
	KindApply HistoryKind = "apply"
)

// Outcomes recorded in the history.
const (
	OutcomeUpToDate  = "up_to_date"
	OutcomeAvailable = "available"
	OutcomeReady     = "ready"
	OutcomeDeclined  = "declined"
	OutcomeFailed    = "failed"
)

// HistoryEntry is one recorded check or apply.
type HistoryEntry struct {
	ID             uuid.UUID   `db:"id" json:"id" yaml:"id"`
	Kind           HistoryKind `db:"kind" json:"kind" yaml:"kind"`
	CurrentVersion string      `db:"current_version" json:"current_version" yaml:"current_version"`
	LatestVersion  string      `db:"latest_version" json:"latest_version" yaml:"latest_version"`
	Outcome        string      `db:"outcome" json:"outcome" yaml:"outcome"`
	Error          string      `db:"error" json:"error,omitempty" yaml:"error,omitempty"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at" yaml:"created_at"`
}

// HistoryRecorder persists history entries.
type HistoryRecorder interface {
	Record(ctx context.Context, entry HistoryEntry) error
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, HistoryEntry) error { return nil }
