// Package selection implements the adapter-selection strategy from
// SPEC_FULL.md §4.4: stick to a session's previously recorded sender when
// one exists, otherwise pick deterministically from a configured
// (country code, transport) routing table with a default fallback.
package selection

import (
	"context"
	"errors"
	"fmt"

	"github.com/haloverify/verifysvc/internal/domain"
	"github.com/haloverify/verifysvc/internal/sender"
)

// ErrNoSupportingAdapter is returned when no registered adapter can service
// the request, mapping to the public SENDER_UNAVAILABLE error kind.
var ErrNoSupportingAdapter = errors.New("selection: no adapter supports this request")

// routeKey identifies one (country code, transport) routing table entry.
type routeKey struct {
	countryCode int
	transport   domain.MessageTransport
}

// Strategy picks one adapter per send attempt.
type Strategy struct {
	registry *sender.Registry
	routes   map[routeKey]string
	fallback string
}

// Option configures a Strategy at construction time.
type Option func(*Strategy)

// WithRoute pins (countryCode, transport) to the adapter named name. Later
// calls for the same key overwrite earlier ones.
func WithRoute(countryCode int, transport domain.MessageTransport, name string) Option {
	return func(s *Strategy) {
		s.routes[routeKey{countryCode: countryCode, transport: transport}] = name
	}
}

// WithFallback sets the adapter name tried when no route entry matches.
func WithFallback(name string) Option {
	return func(s *Strategy) { s.fallback = name }
}

// NewStrategy builds a Strategy backed by registry.
func NewStrategy(registry *sender.Registry, opts ...Option) *Strategy {
	s := &Strategy{registry: registry, routes: make(map[routeKey]string)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select returns the adapter to use for one send attempt, given the
// session's previously recorded sender name (empty if none).
//
// Rule 1: a non-empty stickySenderName pins the choice; if that adapter no
// longer supports the request, selection fails rather than silently
// switching providers out from under an in-flight session.
//
// Rule 2: otherwise the routing table for (phone.CountryCode, transport) is
// consulted, falling back to the configured default adapter; whichever
// candidate is tried first must still pass Supports.
func (s *Strategy) Select(ctx context.Context, stickySenderName string, transport domain.MessageTransport, phone domain.PhoneNumber, languages []sender.LanguageRange, clientType sender.ClientType) (sender.Adapter, error) {
	if stickySenderName != "" {
		a, ok := s.registry.Get(stickySenderName)
		if !ok || !a.Supports(transport, phone, languages, clientType) {
			return nil, fmt.Errorf("%w: sticky adapter %q unavailable", ErrNoSupportingAdapter, stickySenderName)
		}
		return a, nil
	}

	candidates := s.candidateNames(phone.CountryCode, transport)
	for _, name := range candidates {
		a, ok := s.registry.Get(name)
		if !ok {
			continue
		}
		if a.Supports(transport, phone, languages, clientType) {
			return a, nil
		}
	}
	return nil, ErrNoSupportingAdapter
}

// candidateNames orders the routed adapter (if any) ahead of the fallback.
func (s *Strategy) candidateNames(countryCode int, transport domain.MessageTransport) []string {
	var out []string
	if name, ok := s.routes[routeKey{countryCode: countryCode, transport: transport}]; ok {
		out = append(out, name)
	}
	if s.fallback != "" {
		out = append(out, s.fallback)
	}
	return out
}
