package updater

import (
	"context"
)

// Resolver determines the public IPv4 address that DNS records should point at.
//
// A successful Resolve always returns a syntactically valid dotted-quad IPv4
// string; implementations must validate before returning.
type Resolver interface {
	Resolve(context.Context) (string, error)
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(context.Context) (string, error)

func (f ResolverFunc) Resolve(ctx context.Context) (string, error) {
	return f(ctx)
}

// Provider reconciles the managed A record for subdomain.domain against the
// given IP at a DNS provider, issuing at most one mutating request.
type Provider interface {
	EnsureRecord(ctx context.Context, domain string, subdomain string, ip string) (Outcome, error)
}

// Outcome reports what a reconcile pass did.
type Outcome int

const (
	// OutcomeNoop means the record already had the desired value and no
	// mutating request was issued.
	OutcomeNoop Outcome = iota
	// OutcomeCreated means no matching record existed and one was added.
	OutcomeCreated
	// OutcomeUpdated means the record existed with a different value and was
	// replaced.
	OutcomeUpdated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoop:
		return "noop"
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	default:
		return "unknown"
	}
}
