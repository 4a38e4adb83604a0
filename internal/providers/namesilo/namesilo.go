// Package namesilo adapts NameSilo's registrar DNS API to the canonical
// Provider interface. Authentication is a plain "key=" query parameter
// (spec §4.2); NameSilo has no concept of enabling/disabling a record or
// creating a new zone via the API.
package namesilo

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/clouddns-gateway/dns-gateway/internal/baseprovider"
	"github.com/clouddns-gateway/dns-gateway/internal/providers"
	"github.com/clouddns-gateway/dns-gateway/internal/signing"
	"github.com/clouddns-gateway/dns-gateway/internal/transport"
	"github.com/clouddns-gateway/dns-gateway/internal/types"
)

const apiHost = "https://www.namesilo.com/api"

func Capabilities() types.Capabilities {
	return types.Capabilities{
		Kind:             types.NameSilo,
		SupportsWeight:   false,
		SupportsLine:     false,
		SupportsStatus:   false,
		SupportsRemark:   false,
		RequiresDomainID: false,
		RemarkMode:       types.RemarkUnsupported,
		Paging:           types.PagingClient,
		RecordTypes:      []string{"A", "AAAA", "CNAME", "MX", "TXT", "NS"},
		AuthFields: []types.AuthField{
			{Name: "apiKey", Label: "API Key", Kind: types.AuthFieldPassword, Required: true},
		},
		DomainCacheTTL:  300,
		RecordCacheTTL:  60,
		RetryableErrors: []string{"450"},
		MaxRetries:      3,
	}
}

type Provider struct {
	base   baseprovider.Base
	exec   *transport.Executor
	signer signing.APIKeySigner
}

func New(secrets map[string]string) (providers.Provider, error) {
	if secrets["apiKey"] == "" {
		return nil, &types.Error{Kind: types.MissingCredentials, Message: "apiKey is required"}
	}
	return &Provider{
		base:   baseprovider.New(Capabilities()),
		exec:   transport.NewExecutor(nil),
		signer: signing.APIKeySigner{Scheme: signing.SchemeQueryParam, Token: secrets["apiKey"]},
	}, nil
}

func (p *Provider) Capabilities() types.Capabilities { return Capabilities() }

func (p *Provider) CheckAuth(ctx context.Context) bool {
	_, err := p.call(ctx, "listDomains", nil)
	return err == nil
}

func (p *Provider) GetZones(ctx context.Context, page, pageSize int, keyword string) (types.ZoneList, error) {
	result, err := p.call(ctx, "listDomains", nil)
	if err != nil {
		return types.ZoneList{}, err
	}
	var parsed struct {
		Reply struct {
			Domains struct {
				Domain []string `json:"domain"`
			} `json:"domains"`
		} `json:"reply"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return types.ZoneList{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	var zones []types.Zone
	for _, name := range parsed.Reply.Domains.Domain {
		if keyword != "" && !strings.Contains(strings.ToLower(name), strings.ToLower(keyword)) {
			continue
		}
		zones = append(zones, baseprovider.NormalizeZone(types.Zone{ID: name, Name: name}))
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
	result, err := p.call(ctx, "getDomainInfo", map[string]string{"domain": zoneIDOrName})
	if err != nil {
		return types.Zone{}, err
	}
	var parsed struct {
		Reply struct {
			Status string `json:"status"`
		} `json:"reply"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return types.Zone{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	return baseprovider.NormalizeZone(types.Zone{ID: zoneIDOrName, Name: zoneIDOrName, Status: parsed.Reply.Status}), nil
}

func (p *Provider) AddZone(ctx context.Context, name string) (types.Zone, error) {
	return types.Zone{}, &types.Error{Kind: types.Unsupported, Message: "namesilo does not support creating zones via the API; domains must be registered"}
}

type nsRecord struct {
	RecordID string `json:"record_id"`
	Type     string `json:"type"`
	Host     string `json:"host"`
	Value    string `json:"value"`
	TTL      string `json:"ttl"`
	Distance string `json:"distance"`
}

func (r nsRecord) toRecord(zoneID string) types.DnsRecord {
	ttl, _ := strconv.Atoi(r.TTL)
	var priority *int
	if r.Type == "MX" {
		if d, err := strconv.Atoi(r.Distance); err == nil {
			priority = &d
		}
	}
	return types.DnsRecord{
		ID:       r.RecordID,
		ZoneID:   zoneID,
		ZoneName: zoneID,
		Name:     fromHost(zoneID, r.Host),
		Type:     r.Type,
		Value:    r.Value,
		TTL:      ttl,
		Priority: priority,
	}
}

func toHost(zone, fqdn string) string {
	name := baseprovider.NormalizeName(fqdn)
	zone = baseprovider.NormalizeName(zone)
	if name == zone {
		return zone
	}
	return name
}

func fromHost(zone, host string) string {
	if host == "" {
		return zone
	}
	return host
}

// GetRecords always fetches the full zone (NameSilo's dnsListRecords has
// no filter/paging params) and delegates to the client-side helpers (spec
// §4.5 rule 8).
func (p *Provider) GetRecords(ctx context.Context, zoneID string, q types.RecordQuery) (types.RecordList, error) {
	result, err := p.call(ctx, "dnsListRecords", map[string]string{"domain": zoneID})
	if err != nil {
		return types.RecordList{}, err
	}
	var parsed struct {
		Reply struct {
			ResourceRecord []nsRecord `json:"resource_record"`
		} `json:"reply"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return types.RecordList{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	out := make([]types.DnsRecord, 0, len(parsed.Reply.ResourceRecord))
	for _, r := range parsed.Reply.ResourceRecord {
		out = append(out, baseprovider.NormalizeRecord(r.toRecord(zoneID)))
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
	query := map[string]string{
		"domain": zoneID,
		"rrtype": params.Type,
		"rrhost": toHost(zoneID, params.Name),
		"rrvalue": params.Value,
		"rrttl":  strconv.Itoa(params.TTL),
	}
	if params.Priority != nil && params.Type == "MX" {
		query["rrdistance"] = strconv.Itoa(*params.Priority)
	}
	result, err := p.call(ctx, "dnsAddRecord", query)
	if err != nil {
		return types.DnsRecord{}, err
	}
	var created struct {
		Reply struct {
			RecordID string `json:"record_id"`
		} `json:"reply"`
	}
	if err := json.Unmarshal(result, &created); err != nil {
		return types.DnsRecord{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	return p.GetRecord(ctx, zoneID, created.Reply.RecordID)
}

func (p *Provider) UpdateRecord(ctx context.Context, zoneID, recordID string, params types.RecordParams) (types.DnsRecord, error) {
	query := map[string]string{
		"domain":  zoneID,
		"rrid":    recordID,
		"rrhost":  toHost(zoneID, params.Name),
		"rrvalue": params.Value,
		"rrttl":   strconv.Itoa(params.TTL),
	}
	if params.Priority != nil && params.Type == "MX" {
		query["rrdistance"] = strconv.Itoa(*params.Priority)
	}
	result, err := p.call(ctx, "dnsUpdateRecord", query)
	if err != nil {
		return types.DnsRecord{}, err
	}
	var updated struct {
		Reply struct {
			RecordID string `json:"record_id"`
		} `json:"reply"`
	}
	if err := json.Unmarshal(result, &updated); err != nil {
		return types.DnsRecord{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	newID := updated.Reply.RecordID
	if newID == "" {
		newID = recordID
	}
	return p.GetRecord(ctx, zoneID, newID)
}

func (p *Provider) DeleteRecord(ctx context.Context, zoneID, recordID string) (bool, error) {
	if _, err := p.call(ctx, "dnsDeleteRecord", map[string]string{"domain": zoneID, "rrid": recordID}); err != nil {
		return false, err
	}
	return true, nil
}

// SetRecordStatus is not a concept NameSilo's API exposes.
func (p *Provider) SetRecordStatus(ctx context.Context, zoneID, recordID string, enabled bool) (bool, error) {
	return false, &types.Error{Kind: types.Unsupported, Message: "namesilo does not support enabling/disabling individual records"}
}

func (p *Provider) GetLines(ctx context.Context, zoneID string) (types.LineList, error) {
	return types.LineList{Items: []types.DnsLine{{Code: types.DefaultLineCode, Name: "default"}}}, nil
}

func (p *Provider) GetMinTTL(ctx context.Context, zoneID string) int { return 3600 }

func (p *Provider) call(ctx context.Context, operation string, params map[string]string) (json.RawMessage, error) {
	result, err := p.base.WithRetry(func(attempt int) (any, error) {
		signed := p.signer.Sign()
		query := map[string]string{"version": "1", "type": "json"}
		for k, v := range params {
			query[k] = v
		}
		for k, v := range signed.Query {
			query[k] = v
		}
		resp, err := p.exec.Execute(ctx, transport.Request{
			Method:    http.MethodGet,
			URL:       apiHost + "/" + operation,
			Query:     query,
			ParseJSON: true,
		})
		if err != nil {
			return nil, err
		}
		var env struct {
			Reply struct {
				Code   int    `json:"code"`
				Detail string `json:"detail"`
			} `json:"reply"`
		}
		raw, _ := json.Marshal(resp.JSON)
		_ = json.Unmarshal(raw, &env)
		if env.Reply.Code != 0 && env.Reply.Code != 300 {
			kind := types.VendorError
			switch env.Reply.Code {
			case 110, 111:
				kind = types.AuthFailed
			case 280, 281:
				kind = types.ZoneNotFound
			case 450:
				kind = types.RateLimited
			}
			return nil, p.base.NewError(kind, strconv.Itoa(env.Reply.Code), env.Reply.Detail, resp.Status, nil)
		}
		return json.RawMessage(raw), nil
	})
	if err != nil {
		return nil, err
	}
	return result.(json.RawMessage), nil
}
