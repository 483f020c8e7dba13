package updater

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Service describes one external web service that reports the caller's public
// IP address: an endpoint plus a rule for extracting the candidate address
// from the response body.
type Service struct {
	URL   string
	Parse func(body []byte) (string, error)
}

// JSONService returns a Service for an endpoint that responds with a JSON
// object carrying the address in an "ip" field.
func JSONService(rawurl string) Service {
	return Service{
		URL: rawurl,
		Parse: func(body []byte) (string, error) {
			var payload struct {
				IP string `json:"ip"`
			}
			if err := json.Unmarshal(body, &payload); err != nil {
				return "", fmt.Errorf("error decoding response body: %w", err)
			}
			return payload.IP, nil
		},
	}
}

// TextService returns a Service for an endpoint that responds with the bare
// address as plain text.
func TextService(rawurl string) Service {
	return Service{
		URL: rawurl,
		Parse: func(body []byte) (string, error) {
			return strings.TrimSpace(string(body)), nil
		},
	}
}

// DefaultServices returns the lookup services tried by the default resolver,
// in trial order.
//
// I'm not vouching for these services, but they do return the IP of the
// client connection. If possible, run your own and use WebResolver directly.
func DefaultServices() []Service {
	return []Service{
		JSONService("https://api.ipify.org/?format=json"),
		TextService("https://icanhazip.com/"),
		JSONService("https://jsonip.com/"),
	}
}

// WebResolver constructs a resolver which uses external web services to look
// up a "public" IPv4 address.
//
// Services are tried strictly in the order given, one request each, and the
// first one that yields a syntactically valid IPv4 address wins; the
// remaining services are never contacted. Requests are sequential rather than
// fanned out: only the first success matters, and trying one service at a
// time keeps each failure attributable and avoids needless load on
// third-party endpoints. A service that fails - non-2xx status, unreadable or
// unparseable body, or a candidate that is not a valid IPv4 address - is
// recorded and the next service is tried. When every service has failed the
// resolver returns an *AllServicesFailedError carrying each failure in trial
// order.
func WebResolver(services ...Service) Resolver {
	return &webResolver{services: services}
}

type webResolver struct {
	httpClient *http.Client
	services   []Service
}

// Resolve implements updater.Resolver.
func (wr *webResolver) Resolve(ctx context.Context) (string, error) {
	if len(wr.services) == 0 {
		return "", errors.New("no external IP lookup services were provided")
	}

	var attempts []error
	for _, svc := range wr.services {
		ip, err := wr.lookup(ctx, svc)
		if err != nil {
			attempts = append(attempts, &ServiceError{URL: svc.URL, Err: err})
			continue
		}
		return ip, nil
	}
	return "", &AllServicesFailedError{Attempts: attempts}
}

func (wr *webResolver) lookup(ctx context.Context, svc Service) (string, error) {
	// 15 seconds is an eternity for the size of the request we're making,
	// but this ensures that all calls to resolve will eventually complete even if the user supplied context.TODO or context.Background
	// using http.DefaultClient (with no timeout).
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, svc.URL, nil)
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-cache")

	httpclient := wr.httpClient
	if httpclient == nil {
		httpclient = http.DefaultClient
	}

	resp, err := httpclient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("http request returned %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response body: %w", err)
	}
	candidate, err := svc.Parse(body)
	if err != nil {
		return "", err
	}
	if !validIPv4(candidate) {
		return "", fmt.Errorf("%q: %w", candidate, ErrInvalidIPv4)
	}
	return candidate, nil
}

// validIPv4 reports whether s is exactly four dot-separated decimal octets,
// each in [0,255].
func validIPv4(s string) bool {
	octets := strings.Split(s, ".")
	if len(octets) != 4 {
		return false
	}
	for _, o := range octets {
		// base-10 and 8 bits: rejects signs, non-digits, and anything over 255
		if _, err := strconv.ParseUint(o, 10, 8); err != nil {
			return false
		}
	}
	return true
}
