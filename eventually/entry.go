package eventually

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/kbukum/restkit/rest"
)

// Entry is the persisted state of one queued request.
type Entry struct {
	ID            string          `json:"id"`
	Seq           uint64          `json:"seq"`
	Snapshot      json.RawMessage `json:"snapshot"`
	Attempts      int             `json:"attempts"`
	EnqueuedAt    time.Time       `json:"enqueued_at"`
	LastAttemptAt time.Time       `json:"last_attempt_at,omitzero"`
	LastError     string          `json:"last_error,omitempty"`
}

// NewEntry snapshots req.
func NewEntry(req *rest.Request, seq uint64, now time.Time) (*Entry, error) {
	snap, err := rest.MarshalSnapshot(req)
	if err != nil {
		return nil, err
	}
	return &Entry{
		ID:         req.ID(),
		Seq:        seq,
		Snapshot:   snap,
		EnqueuedAt: now,
	}, nil
}

// Request rebuilds the queued request.
func (e *Entry) Request() (*rest.Request, error) {
	return rest.UnmarshalSnapshot(e.Snapshot)
}

// DueAt returns the earliest time of the next attempt.
func (e *Entry) DueAt(interval time.Duration) time.Time {
	if e.LastAttemptAt.IsZero() {
		return e.EnqueuedAt
	}
	return e.LastAttemptAt.Add(interval)
}

// Clone returns a deep copy of e.
func (e *Entry) Clone() *Entry {
	c := *e
	c.Snapshot = slices.Clone(e.Snapshot)
	return &c
}

// Marshal encodes e for storage.
func (e *Entry) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// UnmarshalEntry decodes an entry produced by Marshal.
func UnmarshalEntry(data []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("eventually: decode entry: %w", err)
	}
	if e.ID == "" {
		return nil, fmt.Errorf("eventually: entry without id")
	}
	return &e, nil
}

// SortBySeq orders entries FIFO.
func SortBySeq(entries []*Entry) {
	slices.SortFunc(entries, func(a, b *Entry) int {
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// ValidateID rejects identifiers that cannot be used as storage keys.
func ValidateID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("eventually: invalid entry id %q", id)
	}
	return nil
}
