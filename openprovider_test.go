package updater_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	updater "github.com/bert-willekens/openprovider-home-ip-updater"
	"github.com/bert-willekens/openprovider-home-ip-updater/openprovider"
)

// fakeZoneAPI fakes the Openprovider endpoints the reconciler touches. PUT
// bodies are recorded and applied to the in-memory zone so that consecutive
// passes observe the result of earlier mutations.
type fakeZoneAPI struct {
	mu      sync.Mutex
	zone    openprovider.Zone // records carry fully qualified names
	hasZone bool
	logins  int
	puts    []openprovider.ZoneUpdate
}

func (f *fakeZoneAPI) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		if r.Method == http.MethodPost && r.URL.Path == "/v1beta/auth/login" {
			f.logins++
			writeEnvelope(w, map[string]string{"token": "test-token"})
			return
		}

		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/v1beta/dns/zones":
			results := []openprovider.Zone{}
			if f.hasZone && strings.Contains(f.zone.Name, r.URL.Query().Get("name_pattern")) {
				results = append(results, f.zone)
			}
			writeEnvelope(w, map[string]any{"results": results, "total": len(results)})

		case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/v1beta/dns/zones/"):
			var update openprovider.ZoneUpdate
			if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			f.puts = append(f.puts, update)
			f.apply(update)
			writeEnvelope(w, map[string]any{"success": true})

		default:
			http.NotFound(w, r)
		}
	})
}

func (f *fakeZoneAPI) apply(update openprovider.ZoneUpdate) {
	for _, add := range update.Records.Add {
		rec := add
		rec.Name = add.Name + "." + f.zone.Name
		f.zone.Records = append(f.zone.Records, rec)
	}
	for _, change := range update.Records.Update {
		fqdn := change.OriginalRecord.Name + "." + f.zone.Name
		for i := range f.zone.Records {
			r := &f.zone.Records[i]
			if r.Type == change.OriginalRecord.Type && r.Name == fqdn && r.Value == change.OriginalRecord.Value {
				r.Value = change.Record.Value
				r.TTL = change.Record.TTL
				break
			}
		}
	}
}

func writeEnvelope(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"code": 0, "desc": "", "data": data})
}

func newTestClient(t *testing.T, fake *fakeZoneAPI, ip string) (updater.Client, func()) {
	t.Helper()
	srv := httptest.NewServer(fake.handler())
	api := openprovider.NewClient("user", "secret", openprovider.WithBaseURL(srv.URL))
	c, err := updater.New("example.com", "home",
		updater.UsingOpenproviderClient(api),
		updater.UsingStaticIP(ip),
	)
	if err != nil {
		srv.Close()
		t.Fatalf("New failed: %s", err)
	}
	return c, srv.Close
}

func TestReconcileNoop(t *testing.T) {
	fake := &fakeZoneAPI{
		hasZone: true,
		zone: openprovider.Zone{
			ID:   42,
			Name: "example.com",
			Records: []openprovider.Record{
				{Name: "home.example.com", Type: "A", Value: "203.0.113.7", TTL: 900},
			},
		},
	}
	c, closeSrv := newTestClient(t, fake, "203.0.113.7")
	defer closeSrv()

	outcome, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %s", err)
	}
	if outcome != updater.OutcomeNoop {
		t.Fatalf("Expected %q; got %q", updater.OutcomeNoop, outcome)
	}
	if len(fake.puts) != 0 {
		t.Fatalf("Expected zero mutation calls; got %d", len(fake.puts))
	}
}

func TestReconcileCreate(t *testing.T) {
	fake := &fakeZoneAPI{
		hasZone: true,
		zone: openprovider.Zone{
			ID:   42,
			Name: "example.com",
			Records: []openprovider.Record{
				{Name: "example.com", Type: "A", Value: "198.51.100.1", TTL: 3600},
				{Name: "home.example.com", Type: "TXT", Value: "not me", TTL: 900},
			},
		},
	}
	c, closeSrv := newTestClient(t, fake, "203.0.113.7")
	defer closeSrv()

	outcome, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %s", err)
	}
	if outcome != updater.OutcomeCreated {
		t.Fatalf("Expected %q; got %q", updater.OutcomeCreated, outcome)
	}
	if len(fake.puts) != 1 {
		t.Fatalf("Expected exactly one mutation call; got %d", len(fake.puts))
	}
	put := fake.puts[0]
	if put.ID != 42 || put.Name != "example.com" {
		t.Fatalf("Expected mutation addressed to zone 42 example.com; got %d %q", put.ID, put.Name)
	}
	if len(put.Records.Add) != 1 || len(put.Records.Update) != 0 {
		t.Fatalf("Expected a single add block; got %+v", put.Records)
	}
	add := put.Records.Add[0]
	if add.Name != "home" || add.Type != "A" || add.Value != "203.0.113.7" || add.TTL != 900 {
		t.Fatalf("Unexpected add payload: %+v", add)
	}
}

func TestReconcileUpdate(t *testing.T) {
	fake := &fakeZoneAPI{
		hasZone: true,
		zone: openprovider.Zone{
			ID:   42,
			Name: "example.com",
			Records: []openprovider.Record{
				{Name: "home.example.com", Type: "A", Value: "198.51.100.1", TTL: 600},
			},
		},
	}
	c, closeSrv := newTestClient(t, fake, "203.0.113.7")
	defer closeSrv()

	outcome, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %s", err)
	}
	if outcome != updater.OutcomeUpdated {
		t.Fatalf("Expected %q; got %q", updater.OutcomeUpdated, outcome)
	}
	if len(fake.puts) != 1 {
		t.Fatalf("Expected exactly one mutation call; got %d", len(fake.puts))
	}
	put := fake.puts[0]
	if len(put.Records.Update) != 1 || len(put.Records.Add) != 0 {
		t.Fatalf("Expected a single update block; got %+v", put.Records)
	}
	change := put.Records.Update[0]
	if change.OriginalRecord.Name != "home" || change.OriginalRecord.Value != "198.51.100.1" || change.OriginalRecord.TTL != 600 {
		t.Fatalf("Unexpected original record snapshot: %+v", change.OriginalRecord)
	}
	if change.Record.Name != "home" || change.Record.Value != "203.0.113.7" || change.Record.TTL != 600 {
		t.Fatalf("Unexpected replacement record: %+v", change.Record)
	}
}

func TestReconcileDefaultTTLOnUpdate(t *testing.T) {
	fake := &fakeZoneAPI{
		hasZone: true,
		zone: openprovider.Zone{
			ID:   42,
			Name: "example.com",
			Records: []openprovider.Record{
				{Name: "home.example.com", Type: "A", Value: "198.51.100.1"},
			},
		},
	}
	c, closeSrv := newTestClient(t, fake, "203.0.113.7")
	defer closeSrv()

	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %s", err)
	}
	change := fake.puts[0].Records.Update[0]
	if change.OriginalRecord.TTL != 900 || change.Record.TTL != 900 {
		t.Fatalf("Expected ttl 900 to be filled in; got %d and %d", change.OriginalRecord.TTL, change.Record.TTL)
	}
}

func TestReconcileZoneMissing(t *testing.T) {
	fake := &fakeZoneAPI{}
	c, closeSrv := newTestClient(t, fake, "203.0.113.7")
	defer closeSrv()

	_, err := c.Run(context.Background())
	if err == nil {
		t.Fatalf("Expected an error; got err == nil")
	}
	if !errors.Is(err, updater.ErrZoneNotFound) {
		t.Fatalf("Expected ErrZoneNotFound; got %s", err)
	}
	if len(fake.puts) != 0 {
		t.Fatalf("Expected zero mutation calls; got %d", len(fake.puts))
	}
}

func TestReconcileZoneNameMatchIsExact(t *testing.T) {
	fake := &fakeZoneAPI{
		hasZone: true,
		zone:    openprovider.Zone{ID: 7, Name: "an-example.com"},
	}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()
	api := openprovider.NewClient("user", "secret", openprovider.WithBaseURL(srv.URL))
	c, err := updater.New("example.com", "home",
		updater.UsingOpenproviderClient(api),
		updater.UsingStaticIP("203.0.113.7"),
	)
	if err != nil {
		t.Fatalf("New failed: %s", err)
	}

	_, err = c.Run(context.Background())
	if !errors.Is(err, updater.ErrZoneNotFound) {
		t.Fatalf("Expected ErrZoneNotFound for a pattern-only match; got %v", err)
	}
}

func TestRepeatedRunMutatesOnce(t *testing.T) {
	fake := &fakeZoneAPI{
		hasZone: true,
		zone: openprovider.Zone{
			ID:   42,
			Name: "example.com",
			Records: []openprovider.Record{
				{Name: "home.example.com", Type: "A", Value: "198.51.100.1", TTL: 900},
			},
		},
	}
	c, closeSrv := newTestClient(t, fake, "203.0.113.7")
	defer closeSrv()

	outcome, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("First run failed: %s", err)
	}
	if outcome != updater.OutcomeUpdated {
		t.Fatalf("Expected first run to update; got %q", outcome)
	}

	outcome, err = c.Run(context.Background())
	if err != nil {
		t.Fatalf("Second run failed: %s", err)
	}
	if outcome != updater.OutcomeNoop {
		t.Fatalf("Expected second run to be a noop; got %q", outcome)
	}
	if len(fake.puts) != 1 {
		t.Fatalf("Expected one mutation call total; got %d", len(fake.puts))
	}
}
