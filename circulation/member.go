package circulation

import (
	"errors"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/openshelf/circulation-ledger-go/ledgerstore"
)

// Field names of member documents in the ledger store.
const (
	fieldName     = "name"
	fieldEmail    = "email"
	fieldMemberID = "memberId"
	fieldJoinDate = "joinDate"
)

// Member is a registered library member. MemberID is the human-facing
// identifier (MEM-...) used for lookups and login; ID is the store-internal
// document id.
type Member struct {
	ID       ledgerstore.DocumentID `json:"-"`
	Name     string                 `json:"name"`
	Email    string                 `json:"email"`
	MemberID string                 `json:"memberId"`
	JoinDate time.Time              `json:"joinDate"`
}

// MemberDraft is the admin-supplied input for creating or updating a member.
// An empty MemberID on creation asks the engine to generate one.
type MemberDraft struct {
	Name     string
	Email    string
	MemberID string
}

func (d MemberDraft) validate() error {
	if strings.TrimSpace(d.Name) == "" || strings.TrimSpace(d.Email) == "" {
		return errors.Join(ErrInvariantViolation, ErrInvalidMemberDraft)
	}

	return nil
}

func memberFromDocument(doc ledgerstore.Document) (Member, error) {
	raw, marshalErr := jsoniter.ConfigFastest.Marshal(doc.Fields)
	if marshalErr != nil {
		return Member{}, marshalErr
	}

	var member Member
	if unmarshalErr := jsoniter.ConfigFastest.Unmarshal(raw, &member); unmarshalErr != nil {
		return Member{}, unmarshalErr
	}

	member.ID = doc.ID

	return member, nil
}

func (m Member) fields() ledgerstore.Fields {
	return ledgerstore.Fields{
		fieldName:     m.Name,
		fieldEmail:    m.Email,
		fieldMemberID: m.MemberID,
		fieldJoinDate: m.JoinDate.UTC().Format(time.RFC3339Nano),
	}
}
