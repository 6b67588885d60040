package ratelimit

import (
	"context"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/google/uuid"

	"github.com/haloverify/verifysvc/internal/domain"
)

// Name identifies one of the seven named limiters from SPEC_FULL.md §4.2.
type Name string

const (
	SessionCreation    Name = "session-creation"
	SendSMSPerNumber   Name = "send-sms-per-number"
	SendVoicePerNumber Name = "send-voice-per-number"
	CheckPerNumber     Name = "check-per-number"
	SendSMSPerSession  Name = "send-sms-per-session"
	SendVoicePerSession Name = "send-voice-per-session"
	CheckPerSession    Name = "check-per-session"
)

// sendPerNumber and sendPerSession pick the per-transport limiter name.
func sendPerNumber(t domain.MessageTransport) Name {
	if t == domain.TransportVoice {
		return SendVoicePerNumber
	}
	return SendSMSPerNumber
}

func sendPerSession(t domain.MessageTransport) Name {
	if t == domain.TransportVoice {
		return SendVoicePerSession
	}
	return SendSMSPerSession
}

// Engine owns one Limiter + Policy per named limiter and knows how to build
// each limiter's key.
type Engine struct {
	limiters map[Name]Limiter
	policies map[Name]Policy
}

// NewEngine wires the same limiter implementation and set of policies to
// every named limiter; callers needing per-limiter backends or policies can
// construct an Engine directly and call SetLimiter/SetPolicy.
func NewEngine(limiter Limiter, policy Policy) *Engine {
	e := &Engine{limiters: make(map[Name]Limiter), policies: make(map[Name]Policy)}
	for _, n := range allNames {
		e.limiters[n] = limiter
		e.policies[n] = policy
	}
	return e
}

var allNames = []Name{
	SessionCreation, SendSMSPerNumber, SendVoicePerNumber, CheckPerNumber,
	SendSMSPerSession, SendVoicePerSession, CheckPerSession,
}

func (e *Engine) SetLimiter(n Name, l Limiter) { e.limiters[n] = l }
func (e *Engine) SetPolicy(n Name, p Policy)   { e.policies[n] = p }

// Deny is returned by the Check* methods when a limiter denies; it identifies which
// named limiter denied so callers can report a useful retry-after.
type Deny struct {
	Name       Name
	RetryAfter int64 // seconds
}

func (d *Deny) Error() string {
	return fmt.Sprintf("ratelimit: %s denied", d.Name)
}

func (e *Engine) check(ctx context.Context, n Name, key string) (*Deny, error) {
	limiter := e.limiters[n]
	if limiter == nil {
		return nil, fmt.Errorf("ratelimit: no limiter configured for %s", n)
	}
	// Prefix the key with the limiter name so named limiters sharing one
	// Limiter keep separate budgets for the same phone number or session.
	decision, err := limiter.Allow(ctx, string(n)+":"+key, e.policies[n])
	if err != nil {
		return nil, err
	}
	if decision.Allowed {
		return nil, nil
	}
	retryAfter := int64(decision.RetryAfter.Seconds())
	if retryAfter <= 0 {
		retryAfter = 1
	}
	return &Deny{Name: n, RetryAfter: retryAfter}, nil
}

// CheckSessionCreation consults the session-creation limiter, keyed by the
// composite (phone number, source tag) pair per SPEC_FULL.md's design note:
// the two components are hashed together rather than string-concatenated,
// so a number and tag cannot collide across the pair boundary with another
// pair's components.
func (e *Engine) CheckSessionCreation(ctx context.Context, phone domain.PhoneNumber, sourceTag string) (*Deny, error) {
	return e.check(ctx, SessionCreation, hashCompositeKey(phone.String(), sourceTag))
}

// CheckSend consults, in order, the per-number then per-session limiter for
// the given transport, stopping at (and returning) the first denial.
func (e *Engine) CheckSend(ctx context.Context, transport domain.MessageTransport, phone domain.PhoneNumber, sessionID uuid.UUID) (*Deny, error) {
	if deny, err := e.check(ctx, sendPerNumber(transport), phone.String()); err != nil || deny != nil {
		return deny, err
	}
	return e.check(ctx, sendPerSession(transport), sessionID.String())
}

// CheckCheck consults, in order, check-per-number then check-per-session.
func (e *Engine) CheckCheck(ctx context.Context, phone domain.PhoneNumber, sessionID uuid.UUID) (*Deny, error) {
	if deny, err := e.check(ctx, CheckPerNumber, phone.String()); err != nil || deny != nil {
		return deny, err
	}
	return e.check(ctx, CheckPerSession, sessionID.String())
}

// hashCompositeKey combines two key components via blake2b-256 so that,
// e.g., ("1555", "5550100") and ("15555", "550100") never collapse to the
// same backing key the way naive string concatenation would.
func hashCompositeKey(parts ...string) string {
	h, _ := blake2b.New256(nil)
	for _, p := range parts {
		_, _ = h.Write([]byte{0}) // separator so adjacent parts can't blend
		_, _ = h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
