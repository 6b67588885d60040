package domain

import (
	"time"

	"github.com/google/uuid"
)

// MessageTransport is the channel a verification code is delivered over.
type MessageTransport string

const (
	TransportSMS   MessageTransport = "SMS"
	TransportVoice MessageTransport = "VOICE"
)

// SendOutcome and CheckOutcome record what happened on one attempt, for the
// session's append-only attempt logs and for the attempt-completion sink.
type SendOutcome string

const (
	SendOutcomeSucceeded         SendOutcome = "succeeded"
	SendOutcomeSenderRejected    SendOutcome = "sender_rejected"
	SendOutcomeIllegalArgument   SendOutcome = "illegal_argument"
	SendOutcomeSenderUnavailable SendOutcome = "sender_unavailable"
)

type CheckOutcome string

const (
	CheckOutcomeMatched    CheckOutcome = "matched"
	CheckOutcomeMismatched CheckOutcome = "mismatched"
)

// SendAttempt is one append-only record of a sendCode call.
type SendAttempt struct {
	Transport   MessageTransport
	Timestamp   time.Time
	AdapterName string
	Outcome     SendOutcome
}

// CheckAttempt is one append-only record of a checkCode call.
type CheckAttempt struct {
	Timestamp time.Time
	Outcome   CheckOutcome
}

// Session is the central entity described in SPEC_FULL.md §3. SessionStore
// implementations persist it verbatim; only the orchestrator interprets it.
type Session struct {
	SessionID     uuid.UUID
	PhoneNumber   PhoneNumber
	CreatedAt     time.Time
	ExpiresAt     time.Time
	SenderName    string // "" means unset
	SenderData    []byte // nil means no code has been sent yet
	VerifiedCode  string // "" means not yet verified
	SendAttempts  []SendAttempt
	CheckAttempts []CheckAttempt
	Version       uint64
}

// Clone returns a deep-enough copy for safe mutation inside a store's CAS
// mutator: slices are copied so a failed write never leaks partial mutation
// into the record the caller is still holding.
func (s Session) Clone() Session {
	c := s
	if s.SenderData != nil {
		c.SenderData = append([]byte(nil), s.SenderData...)
	}
	c.SendAttempts = append([]SendAttempt(nil), s.SendAttempts...)
	c.CheckAttempts = append([]CheckAttempt(nil), s.CheckAttempts...)
	return c
}

// IsVerified reports whether invariant 1 (verifiedCode set) holds.
func (s Session) IsVerified() bool {
	return s.VerifiedCode != ""
}

// HasCode reports whether a send has ever succeeded for this session.
func (s Session) HasCode() bool {
	return s.SenderData != nil
}

// ExpiredAt reports whether the session is expired as of t, per invariant 4.
func (s Session) ExpiredAt(t time.Time) bool {
	return t.After(s.ExpiresAt)
}

// Metadata is the subset of a session exposed on the wire.
type Metadata struct {
	SessionID uuid.UUID
	E164      uint64
	Verified  bool
}

func (s Session) Metadata() Metadata {
	return Metadata{
		SessionID: s.SessionID,
		E164:      s.PhoneNumber.Uint64(),
		Verified:  s.IsVerified(),
	}
}
