package openprovider

import (
	"context"
	"net/http"
	"net/url"
)

// Zone is a DNS zone as returned by the zone search endpoint.
type Zone struct {
	ID      int      `json:"id"`
	Name    string   `json:"name"`
	Records []Record `json:"records,omitempty"`
}

// Record is a single DNS record. In zone search results Name is the fully
// qualified record name; in update payloads it is relative to the zone.
type Record struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
	TTL   int    `json:"ttl,omitempty"`
	Prio  *int   `json:"prio,omitempty"`
}

// RecordUpdate pairs the exact record to replace with its replacement.
// Carrying the original snapshot lets the API do an exact-match replace
// rather than a positional update.
type RecordUpdate struct {
	OriginalRecord Record `json:"original_record"`
	Record         Record `json:"record"`
}

// RecordChanges is the mutation portion of a zone update request. Exactly one
// of the change lists is expected to be populated per request.
type RecordChanges struct {
	Add    []Record       `json:"add,omitempty"`
	Update []RecordUpdate `json:"update,omitempty"`
}

// ZoneUpdate is the body of a zone update request.
type ZoneUpdate struct {
	ID      int           `json:"id"`
	Name    string        `json:"name"`
	Records RecordChanges `json:"records"`
}

// SearchZones queries zones whose name matches namePattern, optionally with
// each zone's records included.
func (c *Client) SearchZones(ctx context.Context, namePattern string, withRecords bool) ([]Zone, error) {
	query := url.Values{}
	query.Set("name_pattern", namePattern)
	if withRecords {
		query.Set("with_records", "true")
	}

	var data struct {
		Results []Zone `json:"results"`
		Total   int    `json:"total"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1beta/dns/zones", query, nil, &data); err != nil {
		return nil, err
	}
	c.log.V(1).Info("searched zones", "pattern", namePattern, "found", len(data.Results))
	return data.Results, nil
}

// UpdateZone applies the record changes in update to the zone named name.
func (c *Client) UpdateZone(ctx context.Context, name string, update ZoneUpdate) error {
	if err := c.do(ctx, http.MethodPut, "/v1beta/dns/zones/"+url.PathEscape(name), nil, update, nil); err != nil {
		return err
	}
	c.log.V(1).Info("updated zone", "zone", name, "added", len(update.Records.Add), "updated", len(update.Records.Update))
	return nil
}
