// Package orchestrator implements the Verification Orchestrator component
// from SPEC_FULL.md §4.5: the four public operations that compose the
// session store, rate-limit engine, selection strategy, and sender
// registry, and translate every internal failure onto the public error
// taxonomy before it crosses the RPC boundary.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/haloverify/verifysvc/internal/domain"
	"github.com/haloverify/verifysvc/internal/observability"
	"github.com/haloverify/verifysvc/internal/ratelimit"
	"github.com/haloverify/verifysvc/internal/selection"
	"github.com/haloverify/verifysvc/internal/sender"
	"github.com/haloverify/verifysvc/internal/store"
)

var tracer = otel.Tracer("verifysvc/orchestrator")

// ErrInvalidArgument signals an RPC-level INVALID_ARGUMENT fault: a
// malformed request that never reaches the in-band error taxonomy.
var ErrInvalidArgument = errors.New("orchestrator: invalid argument")

// Clock is injected so tests can control "now"; defaults to time.Now.
type Clock func() time.Time

// Config holds the tunables the orchestrator needs beyond its collaborators.
type Config struct {
	DefaultSessionTTL   time.Duration
	SenderCallAttempts  uint
	DispatchConcurrency int64
}

// Orchestrator composes the session store, rate-limit engine, selection
// strategy, and sender registry into the four public operations.
type Orchestrator struct {
	store    store.SessionStore
	limits   *ratelimit.Engine
	strategy *selection.Strategy
	registry *sender.Registry
	sink     AttemptSink
	pool     *DispatchPool
	clock    Clock
	cfg      Config
}

// New builds an Orchestrator. sink may be NoopAttemptSink{} when the
// completion pipeline is not needed (e.g. unit tests).
func New(sessionStore store.SessionStore, limits *ratelimit.Engine, strategy *selection.Strategy, registry *sender.Registry, sink AttemptSink, cfg Config) *Orchestrator {
	if cfg.DefaultSessionTTL <= 0 {
		cfg.DefaultSessionTTL = 10 * time.Minute
	}
	if cfg.SenderCallAttempts == 0 {
		cfg.SenderCallAttempts = 3
	}
	if cfg.DispatchConcurrency <= 0 {
		cfg.DispatchConcurrency = 16
	}
	return &Orchestrator{
		store:    sessionStore,
		limits:   limits,
		strategy: strategy,
		registry: registry,
		sink:     sink,
		pool:     NewDispatchPool(cfg.DispatchConcurrency),
		clock:    time.Now,
		cfg:      cfg,
	}
}

// CreateSessionResult is returned by CreateSession.
type CreateSessionResult struct {
	SessionID uuid.UUID
	Metadata  domain.Metadata
	PublicErr *domain.PublicError
}

// CreateSession implements SPEC_FULL.md §4.5 createSession.
func (o *Orchestrator) CreateSession(ctx context.Context, e164 uint64, sourceTag string) (CreateSessionResult, error) {
	ctx, span := tracer.Start(ctx, "createSession")
	defer span.End()

	phone, err := domain.ParsePhoneNumber(e164)
	if err != nil {
		return CreateSessionResult{PublicErr: domain.NewPublicError(domain.ErrorIllegalPhoneNumber)}, nil
	}

	if deny, err := o.limits.CheckSessionCreation(ctx, phone, sourceTag); err != nil {
		return CreateSessionResult{}, err
	} else if deny != nil {
		return CreateSessionResult{PublicErr: domain.NewRateLimitedError(deny.RetryAfter)}, nil
	}

	now := o.clock()
	record := domain.Session{
		PhoneNumber: phone,
		CreatedAt:   now,
		ExpiresAt:   now.Add(o.cfg.DefaultSessionTTL),
	}
	id, err := o.store.Create(ctx, record, o.cfg.DefaultSessionTTL)
	if err != nil {
		return CreateSessionResult{}, err
	}
	record.SessionID = id

	return CreateSessionResult{SessionID: id, Metadata: record.Metadata()}, nil
}

// GetSession implements the pure-read getSession operation.
func (o *Orchestrator) GetSession(ctx context.Context, id uuid.UUID) (domain.Metadata, *domain.PublicError, error) {
	ctx, span := tracer.Start(ctx, "getSession")
	defer span.End()

	record, err := o.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Metadata{}, domain.NewPublicError(domain.ErrorNotFound), nil
		}
		return domain.Metadata{}, nil, err
	}
	return record.Metadata(), nil, nil
}

// SendCodeResult is returned by SendCode.
type SendCodeResult struct {
	Metadata  domain.Metadata
	PublicErr *domain.PublicError
}

// SendCode implements SPEC_FULL.md §4.5 sendCode.
func (o *Orchestrator) SendCode(ctx context.Context, id uuid.UUID, transport domain.MessageTransport, languages []sender.LanguageRange, clientType sender.ClientType) (SendCodeResult, error) {
	ctx, span := tracer.Start(ctx, "sendCode")
	defer span.End()

	current, err := o.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return SendCodeResult{}, ErrInvalidArgument
		}
		return SendCodeResult{}, err
	}

	if current.IsVerified() {
		return SendCodeResult{Metadata: current.Metadata(), PublicErr: domain.NewPublicError(domain.ErrorSessionAlreadyVerified)}, nil
	}

	if deny, err := o.limits.CheckSend(ctx, transport, current.PhoneNumber, id); err != nil {
		return SendCodeResult{}, err
	} else if deny != nil {
		return SendCodeResult{Metadata: current.Metadata(), PublicErr: domain.NewRateLimitedError(deny.RetryAfter)}, nil
	}

	adapter, err := o.strategy.Select(ctx, current.SenderName, transport, current.PhoneNumber, languages, clientType)
	if err != nil {
		return SendCodeResult{Metadata: current.Metadata(), PublicErr: domain.NewPublicError(domain.ErrorSenderUnavailable)}, nil
	}

	payload, sendErr := retrySenderCall(ctx, o.cfg.SenderCallAttempts, isTransientSenderErr, func() ([]byte, error) {
		var out []byte
		err := o.pool.Run(ctx, func(ctx context.Context) error {
			p, err := adapter.Send(ctx, transport, current.PhoneNumber, languages, clientType)
			out = p
			return err
		})
		return out, err
	})

	outcome := domain.SendOutcomeSucceeded
	var publicErr *domain.PublicError
	if sendErr != nil {
		outcome, publicErr = classifySendError(sendErr)
	}

	observability.RecordSendAttempt(ctx, adapter.Name(), string(transport), string(outcome))

	updated, casErr := retryCAS(ctx, "send_code", func() (domain.Session, error) {
		return o.store.Update(ctx, id, func(s domain.Session) (domain.Session, error) {
			s.SendAttempts = append(s.SendAttempts, domain.SendAttempt{
				Transport:   transport,
				Timestamp:   o.clock(),
				AdapterName: adapter.Name(),
				Outcome:     outcome,
			})
			if sendErr == nil {
				if s.SenderName == "" {
					s.SenderName = adapter.Name()
				}
				s.SenderData = payload
				newExpiry := o.clock().Add(adapter.SessionTTL())
				if newExpiry.After(s.ExpiresAt) {
					s.ExpiresAt = newExpiry
				}
			}
			return s, nil
		})
	})
	if casErr != nil {
		if errors.Is(casErr, store.ErrNotFound) {
			o.enqueueCompletion(ctx, id, current.PhoneNumber, adapter.Name(), transport, string(outcome))
			return SendCodeResult{}, ErrInvalidArgument
		}
		return SendCodeResult{}, casErr
	}

	o.enqueueCompletion(ctx, id, current.PhoneNumber, adapter.Name(), transport, string(outcome))

	if publicErr != nil {
		return SendCodeResult{Metadata: updated.Metadata(), PublicErr: publicErr}, nil
	}
	return SendCodeResult{Metadata: updated.Metadata()}, nil
}

// CheckCodeResult is returned by CheckCode.
type CheckCodeResult struct {
	Verified  bool
	Metadata  domain.Metadata
	PublicErr *domain.PublicError
}

// CheckCode implements SPEC_FULL.md §4.5 checkCode.
func (o *Orchestrator) CheckCode(ctx context.Context, id uuid.UUID, submittedCode string) (CheckCodeResult, error) {
	ctx, span := tracer.Start(ctx, "checkCode")
	defer span.End()

	current, err := o.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return CheckCodeResult{Verified: false}, nil
		}
		return CheckCodeResult{}, err
	}

	if current.IsVerified() && current.VerifiedCode == submittedCode {
		return CheckCodeResult{Verified: true, Metadata: current.Metadata()}, nil
	}

	if !current.HasCode() {
		return CheckCodeResult{Metadata: current.Metadata(), PublicErr: domain.NewPublicError(domain.ErrorNoCodeSent)}, nil
	}

	if deny, err := o.limits.CheckCheck(ctx, current.PhoneNumber, id); err != nil {
		return CheckCodeResult{}, err
	} else if deny != nil {
		return CheckCodeResult{Metadata: current.Metadata(), PublicErr: domain.NewRateLimitedError(deny.RetryAfter)}, nil
	}

	adapter, ok := o.registry.Get(current.SenderName)
	if !ok {
		return CheckCodeResult{Metadata: current.Metadata(), PublicErr: domain.NewPublicError(domain.ErrorSenderUnavailable)}, nil
	}

	matched, checkErr := retrySenderCall(ctx, o.cfg.SenderCallAttempts, isTransientSenderErr, func() (bool, error) {
		var out bool
		err := o.pool.Run(ctx, func(ctx context.Context) error {
			m, err := adapter.Check(ctx, submittedCode, current.SenderData)
			out = m
			return err
		})
		return out, err
	})

	outcome := domain.CheckOutcomeMismatched
	var publicErr *domain.PublicError
	switch {
	case checkErr != nil:
		_, publicErr = classifySendError(checkErr)
	case matched:
		outcome = domain.CheckOutcomeMatched
	}

	observability.RecordCheckAttempt(ctx, adapter.Name(), string(outcome))

	updated, casErr := retryCAS(ctx, "check_code", func() (domain.Session, error) {
		return o.store.Update(ctx, id, func(s domain.Session) (domain.Session, error) {
			s.CheckAttempts = append(s.CheckAttempts, domain.CheckAttempt{
				Timestamp: o.clock(),
				Outcome:   outcome,
			})
			if checkErr == nil && matched && !s.IsVerified() {
				s.VerifiedCode = submittedCode
			}
			return s, nil
		})
	})
	if casErr != nil {
		if errors.Is(casErr, store.ErrNotFound) {
			return CheckCodeResult{Verified: false}, nil
		}
		return CheckCodeResult{}, casErr
	}

	o.enqueueCompletion(ctx, id, current.PhoneNumber, adapter.Name(), "", string(outcome))

	if publicErr != nil {
		return CheckCodeResult{Metadata: updated.Metadata(), PublicErr: publicErr}, nil
	}
	return CheckCodeResult{Verified: updated.IsVerified() && checkErr == nil && matched, Metadata: updated.Metadata()}, nil
}

func (o *Orchestrator) enqueueCompletion(ctx context.Context, id uuid.UUID, phone domain.PhoneNumber, adapterName string, transport domain.MessageTransport, outcome string) {
	_ = o.sink.Enqueue(ctx, AttemptCompletion{
		SessionID:              id,
		PhoneNumberCountryCode: phone.CountryCode,
		AdapterName:            adapterName,
		Transport:              transport,
		Outcome:                outcome,
		OccurredAt:             o.clock(),
	})
}

// isTransientSenderErr reports whether err (or a wrapped cause) is the
// sender package's transient-failure sentinel.
func isTransientSenderErr(err error) bool {
	return errors.Is(err, sender.ErrUnavailable)
}

// classifySendError maps an adapter error to the §4.3 outcome/public-error
// pair; a nil input is never passed here (the caller checks sendErr == nil
// first).
func classifySendError(err error) (domain.SendOutcome, *domain.PublicError) {
	switch {
	case errors.Is(err, sender.ErrIllegalArgument):
		return domain.SendOutcomeIllegalArgument, domain.NewPublicError(domain.ErrorSenderIllegalArgument)
	case errors.Is(err, sender.ErrRejected):
		return domain.SendOutcomeSenderRejected, domain.NewPublicError(domain.ErrorSenderRejected)
	default:
		return domain.SendOutcomeSenderUnavailable, domain.NewPublicError(domain.ErrorSenderUnavailable)
	}
}
