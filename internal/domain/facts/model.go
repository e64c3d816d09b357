package facts

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidInput marks a malformed fact rejected before any write.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound marks a referenced fact id that does not exist.
	ErrNotFound = errors.New("fact not found")
	// ErrAlreadySuperseded marks a supersession attempt on a fact already
	// replaced by a different fact. Repeating an identical supersession is
	// a no-op, not an error.
	ErrAlreadySuperseded = errors.New("fact already superseded")
)

type SourceType string

const (
	SourceVoiceNote SourceType = "voice_note"
	SourceManual    SourceType = "manual"
	SourceEHRImport SourceType = "ehr_import"
	SourceLabResult SourceType = "lab_result"
	SourceImaging   SourceType = "imaging"
)

func (s SourceType) Valid() bool {
	switch s {
	case SourceVoiceNote, SourceManual, SourceEHRImport, SourceLabResult, SourceImaging:
		return true
	}
	return false
}

// Fact is a single attested or extracted clinical data point. Rows are
// immutable after insert except the verification fields and the one-shot
// supersession fields; that immutability is what makes the history a
// trustworthy audit trail.
type Fact struct {
	ID           uuid.UUID   `db:"id" json:"id"`
	CaseID       uuid.UUID   `db:"case_id" json:"case_id"`
	FactType     string      `db:"fact_type" json:"fact_type"`
	Value        interface{} `db:"value" json:"value"`
	Confidence   float64     `db:"confidence" json:"confidence"`
	SourceType   SourceType  `db:"source_type" json:"source_type"`
	SourceRef    *string     `db:"source_ref" json:"source_ref,omitempty"`
	Verified     bool        `db:"verified" json:"verified"`
	VerifiedBy   *string     `db:"verified_by" json:"verified_by,omitempty"`
	VerifiedAt   *time.Time  `db:"verified_at" json:"verified_at,omitempty"`
	SupersededBy *uuid.UUID  `db:"superseded_by" json:"superseded_by,omitempty"`
	SupersededAt *time.Time  `db:"superseded_at" json:"superseded_at,omitempty"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
}

// Candidate is one extracted fact in a batch, before it is committed.
type Candidate struct {
	FactType   string      `json:"fact_type"`
	Value      interface{} `json:"value"`
	Confidence float64     `json:"confidence"`
	SourceType SourceType  `json:"source_type,omitempty"`
}
