package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/campuscoin/campuscoin/core"
)

// Transaction kinds
const (
	KindSent     = "sent"
	KindReceived = "received"
)

// Account is the ledger's view of a user record.
type Account struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	StudentID string `json:"student_id"`
	Balance   int    `json:"balance"`
}

// Sender is the origin of a transaction: either an account or the system
// itself (goal payouts). The zero value is the system sender.
type Sender struct {
	accountID string
}

func SystemSender() Sender {
	return Sender{}
}

func AccountSender(id string) Sender {
	return Sender{accountID: id}
}

func (s Sender) IsSystem() bool {
	return s.accountID == ""
}

// AccountID returns the sending account's id; ok is false for the system sender.
func (s Sender) AccountID() (id string, ok bool) {
	return s.accountID, s.accountID != ""
}

func (s Sender) MarshalJSON() ([]byte, error) {
	if s.IsSystem() {
		return []byte("null"), nil
	}
	return json.Marshal(s.accountID)
}

func (s *Sender) UnmarshalJSON(data []byte) error {
	var id *string
	if err := json.Unmarshal(data, &id); err != nil {
		return err
	}
	if id != nil {
		s.accountID = *id
	} else {
		s.accountID = ""
	}
	return nil
}

// Transaction is an immutable audit record of a balance-affecting event.
// Records are only ever appended; there is no update or delete path.
type Transaction struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"` // sent | received
	Source      Sender    `json:"source"`
	Destination string    `json:"destination"`
	Amount      int       `json:"amount"`
	Description string    `json:"description"`
	Hash        string    `json:"hash"` // best-effort unique idempotency marker
	CreatedAt   time.Time `json:"created_at"` // UTC

	// populated on reads for display; never written
	SourceName      string `json:"source_name,omitempty"`
	DestinationName string `json:"destination_name,omitempty"`
}

// Involves reports whether the given account is on either side of the transaction.
func (t Transaction) Involves(accountID string) bool {
	if t.Destination == accountID {
		return true
	}
	id, ok := t.Source.AccountID()
	return ok && id == accountID
}

// NewTransfer contains information needed to move coins between two accounts.
type NewTransfer struct {
	DestinationStudentID string `json:"destination_student_id" validate:"required"`
	Amount               int    `json:"amount" validate:"required,gt=0"`
	Description          string `json:"description"`
}

func (nt *NewTransfer) Validate(validate *validator.Validate) error {
	nt.DestinationStudentID = core.CleanString(nt.DestinationStudentID)
	nt.Description = core.CleanString(nt.Description)
	if err := validate.Struct(nt); err != nil {
		return err
	}
	if nt.Description == "" {
		nt.Description = "Transfer between users"
	}
	return nil
}

// NewReward contains information needed to grant coins to an account.
type NewReward struct {
	DestinationStudentID string `json:"destination_student_id" validate:"required"`
	Amount               int    `json:"amount" validate:"required,gt=0"`
	Description          string `json:"description"`
}

func (nr *NewReward) Validate(validate *validator.Validate) error {
	nr.DestinationStudentID = core.CleanString(nr.DestinationStudentID)
	nr.Description = core.CleanString(nr.Description)
	if err := validate.Struct(nr); err != nil {
		return err
	}
	if nr.Description == "" {
		nr.Description = "Reward granted"
	}
	return nil
}

type QueryFilter struct {
	// AccountID matches transactions with the account on either side.
	AccountID   string
	Kind        string `query:"kind"`
	SourceID    string `query:"source"`
	Destination string `query:"destination"`
}

func (qf *QueryFilter) Clean() {
	qf.Kind = core.CleanString(qf.Kind, true /* lower */)
	qf.SourceID = core.CleanString(qf.SourceID)
	qf.Destination = core.CleanString(qf.Destination)
}

// newHash generates a best-effort unique marker for a transaction.
func newHash(prefix string) string {
	return fmt.Sprintf("%s_%d_%s", prefix, time.Now().UnixNano(), uuid.New().String()[:8])
}

// goalHash is deterministic per (goal, account) pair so the unique hash
// column structurally prevents a double payout.
func goalHash(goalID, accountID string) string {
	return fmt.Sprintf("goal_%s_%s", goalID, accountID)
}
