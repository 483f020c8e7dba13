package updater

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidIPv4 reports a candidate address that is not four dot-separated
	// decimal octets in [0,255].
	ErrInvalidIPv4 = errors.New("invalid IPv4 address")

	// ErrZoneNotFound reports that the provider returned no zone whose name
	// exactly matches the requested domain. This is a misconfiguration, not a
	// reason to create a zone.
	ErrZoneNotFound = errors.New("zone not found")
)

// ServiceError records the failure of a single public IP lookup service.
type ServiceError struct {
	URL string
	Err error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %s", e.URL, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// AllServicesFailedError is returned when every configured lookup service
// failed. Attempts holds one error per service, in trial order.
type AllServicesFailedError struct {
	Attempts []error
}

func (e *AllServicesFailedError) Error() string {
	msgs := make([]string, 0, len(e.Attempts))
	for _, err := range e.Attempts {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("all %d public IP lookup services failed: %s", len(e.Attempts), strings.Join(msgs, "; "))
}

func (e *AllServicesFailedError) Unwrap() []error { return e.Attempts }
