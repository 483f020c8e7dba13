package updater

import (
	"context"
	"fmt"
)

// FromString constructs a resolver that always returns addr.
// The address is validated here rather than trusted, so a typo in a pinned
// address fails at construction instead of ending up in a DNS record.
func FromString(addr string) (Resolver, error) {
	if !validIPv4(addr) {
		return nil, fmt.Errorf("%q: %w", addr, ErrInvalidIPv4)
	}
	return staticResolver(addr), nil
}

type staticResolver string

func (s staticResolver) Resolve(context.Context) (string, error) {
	return string(s), nil
}
