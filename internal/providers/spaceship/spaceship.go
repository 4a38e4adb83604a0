// Package spaceship adapts the Spaceship registrar DNS API to the
// canonical Provider interface. Spaceship assigns no server-side record
// ID: a record's identity is the tuple of its own fields, so the adapter
// composes one (spec §4.5 rule 10). Zone creation is explicitly
// unsupported by the upstream API (spec §9 open question).
package spaceship

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/clouddns-gateway/dns-gateway/internal/baseprovider"
	"github.com/clouddns-gateway/dns-gateway/internal/providers"
	"github.com/clouddns-gateway/dns-gateway/internal/signing"
	"github.com/clouddns-gateway/dns-gateway/internal/transport"
	"github.com/clouddns-gateway/dns-gateway/internal/types"
)

const apiHost = "https://spaceship.dev/api/v1"

func Capabilities() types.Capabilities {
	return types.Capabilities{
		Kind:             types.Spaceship,
		SupportsWeight:   false,
		SupportsLine:     false,
		SupportsStatus:   false,
		SupportsRemark:   false,
		RequiresDomainID: false,
		RemarkMode:       types.RemarkUnsupported,
		Paging:           types.PagingClient,
		RecordTypes:      []string{"A", "AAAA", "CNAME", "MX", "TXT", "NS", "SRV", "CAA"},
		AuthFields: []types.AuthField{
			{Name: "apiKey", Label: "API Key", Kind: types.AuthFieldText, Required: true},
			{Name: "apiSecret", Label: "API Secret", Kind: types.AuthFieldPassword, Required: true},
		},
		DomainCacheTTL:  300,
		RecordCacheTTL:  60,
		RetryableErrors: []string{"rate_limited"},
		MaxRetries:      3,
	}
}

type Provider struct {
	base   baseprovider.Base
	exec   *transport.Executor
	signer signing.APIKeySigner
}

func New(secrets map[string]string) (providers.Provider, error) {
	if secrets["apiKey"] == "" || secrets["apiSecret"] == "" {
		return nil, &types.Error{Kind: types.MissingCredentials, Message: "apiKey and apiSecret are required"}
	}
	return &Provider{
		base:   baseprovider.New(Capabilities()),
		exec:   transport.NewExecutor(nil),
		signer: signing.APIKeySigner{Scheme: signing.SchemeDualHeader, Token: secrets["apiKey"], Secret: secrets["apiSecret"]},
	}, nil
}

func (p *Provider) Capabilities() types.Capabilities { return Capabilities() }

func (p *Provider) CheckAuth(ctx context.Context) bool {
	_, err := p.call(ctx, http.MethodGet, "/domains", nil, nil)
	return err == nil
}

type spaceshipDomain struct {
	Name string `json:"name"`
}

func (p *Provider) GetZones(ctx context.Context, page, pageSize int, keyword string) (types.ZoneList, error) {
	result, err := p.call(ctx, http.MethodGet, "/domains", nil, nil)
	if err != nil {
		return types.ZoneList{}, err
	}
	var parsed struct {
		Items []spaceshipDomain `json:"items"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return types.ZoneList{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	var zones []types.Zone
	for _, d := range parsed.Items {
		if keyword != "" && !strings.Contains(strings.ToLower(d.Name), strings.ToLower(keyword)) {
			continue
		}
		zones = append(zones, baseprovider.NormalizeZone(types.Zone{ID: d.Name, Name: d.Name}))
	}
	total := len(zones)
	return types.ZoneList{Items: paginateZones(zones, page, pageSize), Total: total}, nil
}

func paginateZones(items []types.Zone, page, pageSize int) []types.Zone {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		return items
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []types.Zone{}
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func (p *Provider) GetZone(ctx context.Context, zoneIDOrName string) (types.Zone, error) {
	if _, err := p.call(ctx, http.MethodGet, "/domains/"+zoneIDOrName, nil, nil); err != nil {
		return types.Zone{}, err
	}
	return baseprovider.NormalizeZone(types.Zone{ID: zoneIDOrName, Name: zoneIDOrName}), nil
}

// AddZone: Spaceship does not let an API client create a domain; domains
// are only acquired through registration (spec §9 open question).
func (p *Provider) AddZone(ctx context.Context, name string) (types.Zone, error) {
	return types.Zone{}, &types.Error{Kind: types.Unsupported, Message: "spaceship does not support creating zones via the API"}
}

type spaceshipRecord struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	Address string `json:"address"`
	TTL     int    `json:"ttl"`
	MX      *int   `json:"mx,omitempty"`
}

// composeID/splitID synthesize Spaceship's missing server-side record ID
// from the record's own fields (spec §4.5 rule 10).
func composeID(recordType, name, address string, mx *int) string {
	priority := ""
	if mx != nil {
		priority = strconv.Itoa(*mx)
	}
	return fmt.Sprintf("%s|%s|%s|%s", recordType, name, address, priority)
}

type recordIdentity struct {
	Type    string
	Name    string
	Address string
	MX      *int
}

func splitID(id string) (recordIdentity, error) {
	parts := strings.SplitN(id, "|", 4)
	if len(parts) != 4 {
		return recordIdentity{}, &types.Error{Kind: types.InvalidValue, Message: "malformed spaceship record id: " + id}
	}
	ri := recordIdentity{Type: parts[0], Name: parts[1], Address: parts[2]}
	if parts[3] != "" {
		if mx, err := strconv.Atoi(parts[3]); err == nil {
			ri.MX = &mx
		}
	}
	return ri, nil
}

func toApex(zone, name string) string {
	name = baseprovider.NormalizeName(name)
	zone = baseprovider.NormalizeName(zone)
	if name == zone {
		return "@"
	}
	return strings.TrimSuffix(strings.TrimSuffix(name, zone), ".")
}

func fromApex(zone, wire string) string {
	if wire == "@" || wire == "" {
		return zone
	}
	return wire + "." + zone
}

func (r spaceshipRecord) toRecord(zoneID string) types.DnsRecord {
	return baseprovider.NormalizeRecord(types.DnsRecord{
		ID:       composeID(r.Type, r.Name, r.Address, r.MX),
		ZoneID:   zoneID,
		ZoneName: zoneID,
		Name:     fromApex(zoneID, r.Name),
		Type:     r.Type,
		Value:    r.Address,
		TTL:      r.TTL,
		Priority: r.MX,
	})
}

// GetRecords fetches the whole zone (the real API's skip/limit pagination
// cannot express the canonical filter set) and delegates to the
// client-side helpers (spec §4.5 rule 8).
func (p *Provider) GetRecords(ctx context.Context, zoneID string, q types.RecordQuery) (types.RecordList, error) {
	result, err := p.call(ctx, http.MethodGet, "/domains/"+zoneID+"/dns/records", nil, nil)
	if err != nil {
		return types.RecordList{}, err
	}
	var parsed struct {
		Items []spaceshipRecord `json:"items"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return types.RecordList{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	out := make([]types.DnsRecord, 0, len(parsed.Items))
	for _, r := range parsed.Items {
		out = append(out, r.toRecord(zoneID))
	}
	out = baseprovider.FilterRecordsClient(out, q)
	total := len(out)
	out = baseprovider.PaginateClient(out, q.Page, q.PageSize)
	return types.RecordList{Items: out, Total: total}, nil
}

func (p *Provider) GetRecord(ctx context.Context, zoneID, recordID string) (types.DnsRecord, error) {
	records, err := p.GetRecords(ctx, zoneID, types.RecordQuery{PageSize: -1})
	if err != nil {
		return types.DnsRecord{}, err
	}
	for _, r := range records.Items {
		if r.ID == recordID {
			return r, nil
		}
	}
	return types.DnsRecord{}, &types.Error{Kind: types.RecordNotFound, Message: "record not found: " + recordID}
}

func (p *Provider) CreateRecord(ctx context.Context, zoneID string, params types.RecordParams) (types.DnsRecord, error) {
	if !p.Capabilities().HasRecordType(params.Type) {
		return types.DnsRecord{}, &types.Error{Kind: types.InvalidType, Message: "unsupported record type: " + params.Type}
	}
	wire := spaceshipRecord{Type: params.Type, Name: toApex(zoneID, params.Name), Address: params.Value, TTL: params.TTL, MX: params.Priority}
	body, _ := json.Marshal(map[string]any{"force": true, "items": []spaceshipRecord{wire}})
	if _, err := p.call(ctx, http.MethodPut, "/domains/"+zoneID+"/dns/records", nil, body); err != nil {
		return types.DnsRecord{}, err
	}
	return p.GetRecord(ctx, zoneID, composeID(wire.Type, wire.Name, wire.Address, wire.MX))
}

// UpdateRecord has no server-side identity to PATCH against: it deletes
// the tuple named by recordID and creates the new one in its place.
func (p *Provider) UpdateRecord(ctx context.Context, zoneID, recordID string, params types.RecordParams) (types.DnsRecord, error) {
	old, err := splitID(recordID)
	if err != nil {
		return types.DnsRecord{}, err
	}
	if err := p.deleteByIdentity(ctx, zoneID, old); err != nil {
		return types.DnsRecord{}, err
	}
	return p.CreateRecord(ctx, zoneID, params)
}

func (p *Provider) deleteByIdentity(ctx context.Context, zoneID string, ri recordIdentity) error {
	wire := spaceshipRecord{Type: ri.Type, Name: ri.Name, Address: ri.Address, MX: ri.MX}
	body, _ := json.Marshal(map[string]any{"items": []spaceshipRecord{wire}})
	_, err := p.call(ctx, http.MethodDelete, "/domains/"+zoneID+"/dns/records", nil, body)
	return err
}

func (p *Provider) DeleteRecord(ctx context.Context, zoneID, recordID string) (bool, error) {
	ri, err := splitID(recordID)
	if err != nil {
		return false, err
	}
	if err := p.deleteByIdentity(ctx, zoneID, ri); err != nil {
		return false, err
	}
	return true, nil
}

// SetRecordStatus: Spaceship has no per-record enable/disable concept.
func (p *Provider) SetRecordStatus(ctx context.Context, zoneID, recordID string, enabled bool) (bool, error) {
	return false, &types.Error{Kind: types.Unsupported, Message: "spaceship does not support enabling/disabling individual records"}
}

func (p *Provider) GetLines(ctx context.Context, zoneID string) (types.LineList, error) {
	return types.LineList{Items: []types.DnsLine{{Code: types.DefaultLineCode, Name: "default"}}}, nil
}

func (p *Provider) GetMinTTL(ctx context.Context, zoneID string) int { return 600 }

func (p *Provider) call(ctx context.Context, method, path string, query map[string]string, body []byte) (json.RawMessage, error) {
	result, err := p.base.WithRetry(func(attempt int) (any, error) {
		signed := p.signer.Sign()
		headers := map[string]string{}
		for k, v := range signed.Headers {
			headers[k] = v
		}
		if body != nil {
			headers["Content-Type"] = "application/json"
		}
		resp, err := p.exec.Execute(ctx, transport.Request{
			Method:  method,
			URL:     apiHost + path,
			Query:   query,
			Headers: headers,
			Body:    body,
		})
		if err != nil {
			if verr, ok := types.AsError(err); ok && verr.Kind == types.HttpError {
				var ve struct {
					Detail string `json:"detail"`
				}
				_ = json.Unmarshal([]byte(verr.Message), &ve)
				kind := types.VendorError
				switch verr.HTTPStatus {
				case 401, 403:
					kind = types.AuthFailed
				case 404:
					kind = types.ZoneNotFound
				case 429:
					kind = types.RateLimited
				case 422:
					kind = types.InvalidValue
				}
				message := ve.Detail
				if message == "" {
					message = verr.Message
				}
				return nil, p.base.NewError(kind, strconv.Itoa(verr.HTTPStatus), message, verr.HTTPStatus, nil)
			}
			return nil, err
		}
		if len(resp.Body) == 0 {
			return json.RawMessage("{}"), nil
		}
		return json.RawMessage(resp.Body), nil
	})
	if err != nil {
		return nil, err
	}
	return result.(json.RawMessage), nil
}
