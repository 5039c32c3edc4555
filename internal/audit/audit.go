package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Actions written after successful mutations.
const (
	ActionReceiptCreate   = "receipt.create"
	ActionReceiptEdit     = "receipt.edit"
	ActionReceiptCancel   = "receipt.cancel"
	ActionCopyFees        = "rollover.copy_fee_structures"
	ActionCarryForward    = "rollover.carry_forward"
	ActionChargeFees      = "rollover.charge_fees"
	ActionAdjustOpening   = "rollover.adjust_opening_balance"
	ActionLedgerRecompute = "ledger.recompute"
)

// Entry represents an audit log entry.
type Entry struct {
	ID            string          `json:"id"`
	Actor         string          `json:"actor"`
	Action        string          `json:"action"`
	ResourceType  string          `json:"resource_type"`
	ResourceID    string          `json:"resource_id"`
	StudentID     string          `json:"student_id,omitempty"`
	SessionID     string          `json:"session_id,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	PayloadDigest string          `json:"payload_digest,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Logger writes audit entries.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

// NewID generates a random audit id.
func NewID() string {
	return "audit-" + uuid.NewString()
}

// DigestJSON computes a SHA256 hex digest for metadata payloads.
func DigestJSON(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Prepare fills id, timestamp and digest when unset.
func Prepare(entry Entry, now time.Time) Entry {
	if entry.ID == "" {
		entry.ID = NewID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now.UTC()
	}
	if entry.PayloadDigest == "" {
		entry.PayloadDigest = DigestJSON(entry.Metadata)
	}
	return entry
}

// Metadata marshals v for Entry.Metadata, returning nil on failure.
func Metadata(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

// Nop discards entries.
type Nop struct{}

// Log implements Logger.
func (Nop) Log(ctx context.Context, entry Entry) error {
	_ = ctx
	_ = entry
	return nil
}
