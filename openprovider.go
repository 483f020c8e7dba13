package updater

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/bert-willekens/openprovider-home-ip-updater/openprovider"
)

// defaultTTL is used when creating a record, where no prior record exists to
// source a ttl from, and when an existing record carries no ttl.
const defaultTTL = 900

// openproviderDNS implements updater.Provider against the Openprovider zone
// API. It is constructed by UsingOpenprovider or UsingOpenproviderClient.
type openproviderDNS struct {
	api *openprovider.Client
	log logr.Logger
}

// EnsureRecord reconciles the A record for subdomain.domain against ip.
//
// The pass is linear: fetch the zone with its records, locate the record,
// decide, and issue at most one mutating request. A repeated invocation with
// an unchanged IP issues none.
func (p *openproviderDNS) EnsureRecord(ctx context.Context, domain string, subdomain string, ip string) (Outcome, error) {
	zones, err := p.api.SearchZones(ctx, domain, true)
	if err != nil {
		return OutcomeNoop, fmt.Errorf("unable to query zone for %s: %w", domain, err)
	}

	var zone *openprovider.Zone
	for i := range zones {
		if zones[i].Name == domain {
			zone = &zones[i]
			break
		}
	}
	if zone == nil {
		return OutcomeNoop, fmt.Errorf("no zone named %q in query results: %w", domain, ErrZoneNotFound)
	}
	p.log.V(1).Info("located zone", "zone", zone.Name, "id", zone.ID, "records", len(zone.Records))

	fqdn := subdomain + "." + domain
	var current *openprovider.Record
	for i := range zone.Records {
		r := &zone.Records[i]
		if r.Type == "A" && r.Name == fqdn {
			current = r
			break
		}
	}

	switch {
	case current == nil:
		p.log.V(1).Info("no existing A record, creating", "record", fqdn, "ip", ip)
		err = p.api.UpdateZone(ctx, domain, openprovider.ZoneUpdate{
			ID:   zone.ID,
			Name: zone.Name,
			Records: openprovider.RecordChanges{
				Add: []openprovider.Record{{
					Name:  subdomain,
					Type:  "A",
					Value: ip,
					TTL:   defaultTTL,
				}},
			},
		})
		if err != nil {
			return OutcomeNoop, fmt.Errorf("unable to add A record for %s: %w", fqdn, err)
		}
		return OutcomeCreated, nil

	case current.Value == ip:
		p.log.V(1).Info("existing A record already points at IP", "record", fqdn, "ip", ip)
		return OutcomeNoop, nil

	default:
		ttl := current.TTL
		if ttl == 0 {
			ttl = defaultTTL
		}
		p.log.V(1).Info("existing A record differs, replacing", "record", fqdn, "old", current.Value, "new", ip)
		err = p.api.UpdateZone(ctx, domain, openprovider.ZoneUpdate{
			ID:   zone.ID,
			Name: zone.Name,
			Records: openprovider.RecordChanges{
				Update: []openprovider.RecordUpdate{{
					OriginalRecord: openprovider.Record{
						Name:  subdomain,
						Type:  "A",
						Value: current.Value,
						TTL:   ttl,
						Prio:  current.Prio,
					},
					Record: openprovider.Record{
						Name:  subdomain,
						Type:  "A",
						Value: ip,
						TTL:   ttl,
					},
				}},
			},
		})
		if err != nil {
			return OutcomeNoop, fmt.Errorf("unable to replace A record for %s: %w", fqdn, err)
		}
		return OutcomeUpdated, nil
	}
}
