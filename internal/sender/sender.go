// Package sender implements the adapter contract from SPEC_FULL.md §4.3: a
// uniform interface over upstream SMS/voice providers, each self-declaring
// the transports, languages, and client types it supports, and each owning
// the schema of its own opaque per-session payload.
package sender

import (
	"context"
	"errors"
	"time"

	"github.com/haloverify/verifysvc/internal/domain"
)

// ClientType distinguishes client capabilities relevant to adapter
// selection (e.g. whether the client can verify a push-delivered code).
type ClientType string

const (
	ClientUnknown       ClientType = ""
	ClientIOS           ClientType = "ios"
	ClientAndroid       ClientType = "android"
	ClientAndroidWithFCM ClientType = "android-fcm"
)

// LanguageRange is a parsed Accept-Language-style preference, ordered from
// most to least preferred.
type LanguageRange struct {
	Tag    string
	Weight float64
}

// ErrIllegalArgument, ErrRejected, and ErrUnavailable are the three upstream
// failure classes an adapter may raise from Send or Check; the orchestrator
// maps each to its public error kind per the table in SPEC_FULL.md §4.3.
var (
	ErrIllegalArgument = errors.New("sender: upstream rejected request as malformed")
	ErrRejected        = errors.New("sender: upstream refused for policy or destination reasons")
	ErrUnavailable     = errors.New("sender: upstream transient failure")
)

// Adapter is the contract every provider plug-in satisfies.
type Adapter interface {
	// Name is stable and unique; it is persisted into the session and used
	// as the registry lookup key.
	Name() string
	// SessionTTL is the maximum session lifetime this adapter needs; the
	// orchestrator extends a session's expiresAt to now+SessionTTL on a
	// successful send.
	SessionTTL() time.Duration
	// Supports reports whether this adapter can currently service the given
	// request shape.
	Supports(transport domain.MessageTransport, phone domain.PhoneNumber, languages []LanguageRange, clientType ClientType) bool
	// Send performs the upstream call and returns the opaque payload to
	// persist as the session's senderData.
	Send(ctx context.Context, transport domain.MessageTransport, phone domain.PhoneNumber, languages []LanguageRange, clientType ClientType) ([]byte, error)
	// Check validates submittedCode against storedPayload, which was
	// produced by a prior call to Send on the same adapter.
	Check(ctx context.Context, submittedCode string, storedPayload []byte) (bool, error)
}
