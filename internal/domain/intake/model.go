package intake

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("voice note not found")
)

type Status string

const (
	StatusReceived  Status = "received"
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
)

// VoiceNote is the intake ledger entry for one transcribed recording. The
// transcript-to-fact extraction happens upstream; the note records what
// arrived and which case its facts were committed to.
type VoiceNote struct {
	ID          uuid.UUID              `db:"id" json:"id"`
	Transcript  string                 `db:"transcript" json:"transcript"`
	Summary     *string                `db:"summary" json:"summary,omitempty"`
	ContentHash string                 `db:"content_hash" json:"content_hash"`
	MRN         *string                `db:"mrn" json:"mrn,omitempty"`
	PatientName *string                `db:"patient_name" json:"patient_name,omitempty"`
	CapturedAt  *time.Time             `db:"captured_at" json:"captured_at,omitempty"`
	AudioRef    *string                `db:"audio_ref" json:"audio_ref,omitempty"`
	CaseID      uuid.UUID              `db:"case_id" json:"case_id"`
	Status      Status                 `db:"status" json:"status"`
	Provenance  map[string]interface{} `db:"provenance" json:"provenance,omitempty"`
	CreatedAt   time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time              `db:"updated_at" json:"updated_at"`
}

// ContentHash fingerprints a note for duplicate suppression: the same
// transcript captured at the same time hashes identically no matter how many
// times an upstream webhook retries.
func ContentHash(transcript string, capturedAt *time.Time) string {
	input := transcript
	if capturedAt != nil {
		input += capturedAt.UTC().Format(time.RFC3339)
	}
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// CaseForMRN derives a stable case id from a medical record number, so notes
// for the same patient land on the same case even when no explicit case id
// accompanies them.
func CaseForMRN(mrn string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("case-mrn-"+mrn))
}
