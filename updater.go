package updater

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/bert-willekens/openprovider-home-ip-updater/openprovider"
)

// DefaultResolver returns the resolver used when no resolver option is
// given: a web resolver over DefaultServices. Each call returns a fresh
// instance so that per-client configuration such as UsingHTTPClient never
// leaks between clients.
func DefaultResolver() Resolver {
	return WebResolver(DefaultServices()...)
}

// New returns a Client which keeps the A record for subdomain.domain pointed
// at the current public IP.
func New(domain string, subdomain string, options ...Option) (Client, error) {
	if domain == "" {
		return nil, fmt.Errorf("updater.New: domain cannot be empty")
	}
	if !strings.Contains(domain, ".") {
		return nil, fmt.Errorf("updater.New: domain must have at least one dot")
	}
	if subdomain == "" {
		return nil, fmt.Errorf("updater.New: subdomain cannot be empty")
	}
	c := &client{
		Resolver:  DefaultResolver(),
		logger:    logr.Discard(),
		domain:    domain,
		subdomain: subdomain,
	}
	for i, opt := range options {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("updater.New: option %d returned an error: %s", i, err)
		}
	}

	if c.Provider == nil {
		return nil, fmt.Errorf("updater.New: no DNS provider was registered and there is no default option - use updater.UsingOpenprovider or similar")
	}

	// this lets us propagate the logger to dependencies that use one if WithLogger was called before all of the dependencies were registered
	withLogger(c.logger)(c)
	return c, nil
}

// Option configures the client returned by New.
type Option func(*client) error

// UsingOpenprovider registers an Openprovider DNS provider authenticated with
// the given account credentials.
func UsingOpenprovider(username, password string) Option {
	return func(c *client) error {
		if username == "" || password == "" {
			return fmt.Errorf("updater.UsingOpenprovider: username and password cannot be empty")
		}
		c.Provider = &openproviderDNS{
			api: openprovider.NewClient(username, password),
			log: logr.Discard(),
		}
		return nil
	}
}

// UsingOpenproviderClient registers an Openprovider DNS provider backed by an
// already-constructed API client. Useful for tests and for callers that need
// a non-default base URL.
func UsingOpenproviderClient(api *openprovider.Client) Option {
	return func(c *client) error {
		if api == nil {
			return fmt.Errorf("updater.UsingOpenproviderClient: api client cannot be nil")
		}
		c.Provider = &openproviderDNS{api: api, log: logr.Discard()}
		return nil
	}
}

// UsingProvider registers a custom DNS provider implementation.
func UsingProvider(provider Provider) Option {
	return func(c *client) error {
		if provider == nil {
			return fmt.Errorf("updater.UsingProvider: provider cannot be nil")
		}
		c.Provider = provider
		return nil
	}
}

// UsingResolver replaces the default public IP resolver.
// A nil resolver restores the default.
func UsingResolver(resolver Resolver) Option {
	return func(c *client) error {
		if resolver == nil {
			resolver = DefaultResolver()
		}
		c.Resolver = resolver
		return nil
	}
}

// UsingStaticIP pins the target address instead of resolving it, for callers
// that already know the address the record should have.
func UsingStaticIP(addr string) Option {
	return func(c *client) error {
		r, err := FromString(addr)
		if err != nil {
			return fmt.Errorf("updater.UsingStaticIP: %w", err)
		}
		c.Resolver = r
		return nil
	}
}

func withLogger(logger logr.Logger) Option {
	return func(c *client) error {
		type setLogger interface {
			SetLogger(logr.Logger)
		}

		switch p := c.Provider.(type) {
		case *openproviderDNS:
			p.log = logger
			p.api.SetLogger(logger)
		case setLogger:
			p.SetLogger(logger)
		}

		switch r := c.Resolver.(type) {
		case setLogger:
			r.SetLogger(logger)
		case *webResolver:
		case staticResolver:
		}

		return nil
	}
}

// WithLogger directs client logging to logger. The default discards logs.
func WithLogger(logger logr.Logger) Option {
	return func(c *client) error {
		c.logger = logger
		return nil
	}
}

// UsingHTTPClient replaces the HTTP client used for outbound requests by the
// resolver and the provider. A nil httpclient restores the defaults.
func UsingHTTPClient(httpclient *http.Client) Option {
	return func(c *client) error {
		type setHTTPClient interface {
			SetHTTPClient(*http.Client)
		}
		switch hc := c.Resolver.(type) {
		case *webResolver:
			hc.httpClient = httpclient
		case setHTTPClient:
			hc.SetHTTPClient(httpclient)
		}
		switch p := c.Provider.(type) {
		case *openproviderDNS:
			p.api.SetHTTPClient(httpclient)
		case setHTTPClient:
			p.SetHTTPClient(httpclient)
		}
		return nil
	}
}

// Client runs one resolve-and-reconcile pass per call to Run.
type Client interface {
	Run(ctx context.Context) (Outcome, error)
}

type client struct {
	Resolver
	Provider
	logger    logr.Logger
	domain    string
	subdomain string
}

func (c *client) Run(ctx context.Context) (Outcome, error) {
	ip, err := c.Resolve(ctx)
	if err != nil {
		return OutcomeNoop, fmt.Errorf("error resolving public IP: %w", err)
	}
	c.logger.V(1).Info("resolved public IP", "ip", ip)

	outcome, err := c.EnsureRecord(ctx, c.domain, c.subdomain, ip)
	if err != nil {
		return outcome, fmt.Errorf("error updating %s.%s with new IP: %w", c.subdomain, c.domain, err)
	}
	c.logger.Info("reconcile finished", "record", c.subdomain+"."+c.domain, "ip", ip, "outcome", outcome.String())
	return outcome, nil
}

// RunDaemon starts updaterClient as a goroutine, running one pass per tick.
//
// Each tick is an independent invocation; a failed pass is logged and the
// next tick runs as usual.
func RunDaemon(updaterClient Client, ctx context.Context, interval time.Duration, logger logr.Logger) {
	if interval < 1*time.Minute {
		interval = 1 * time.Minute
	}
	if logger.GetSink() == nil {
		if c, ok := updaterClient.(*client); ok {
			logger = c.logger
		}
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				outcome, err := updaterClient.Run(ctx)
				if err != nil {
					logger.Error(err, "updater.RunDaemon: pass failed")
					continue
				}
				logger.V(1).Info("updater.RunDaemon: pass finished", "outcome", outcome.String())
			}
		}
	}()
}
