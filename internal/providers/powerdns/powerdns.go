// Package powerdns adapts a self-hosted PowerDNS authoritative server to
// the canonical Provider interface. PowerDNS groups same-name-same-type
// records into an RRSet and is the one vendor whose endpoint is operator
// supplied rather than hardcoded (spec §6): it may be plain HTTP.
// Authentication is a single X-API-Key header (spec §4.2).
package powerdns

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
	"github.com/clouddns-gateway/dns-gateway/pkg/tlsutils"
)

func Capabilities() types.Capabilities {
	return types.Capabilities{
		Kind:             types.PowerDNS,
		SupportsWeight:   false,
		SupportsLine:     false,
		SupportsStatus:   true,
		SupportsRemark:   true,
		RequiresDomainID: false,
		RemarkMode:       types.RemarkInline,
		Paging:           types.PagingClient,
		RecordTypes:      []string{"A", "AAAA", "CNAME", "MX", "TXT", "SRV", "CAA", "NS", "ALIAS", "PTR", "SOA"},
		AuthFields: []types.AuthField{
			{Name: "apiUrl", Label: "API URL", Kind: types.AuthFieldURL, Required: true, HelpText: "e.g. http://127.0.0.1:8081/api/v1/servers/localhost"},
			{Name: "apiKey", Label: "API Key", Kind: types.AuthFieldPassword, Required: true},
			{Name: "tlsCertPath", Label: "Client certificate path", Kind: types.AuthFieldText, Required: false},
			{Name: "tlsKeyPath", Label: "Client key path", Kind: types.AuthFieldText, Required: false},
			{Name: "tlsCAPath", Label: "Private CA bundle path", Kind: types.AuthFieldText, Required: false},
			{Name: "tlsInsecureSkipVerify", Label: "Skip TLS verification (\"true\"/\"false\")", Kind: types.AuthFieldText, Required: false},
		},
		DomainCacheTTL:  300,
		RecordCacheTTL:  60,
		RetryableErrors: []string{},
		MaxRetries:      2,
	}
}

type Provider struct {
	base    baseprovider.Base
	exec    *transport.Executor
	signer  signing.APIKeySigner
	baseURL string
}

func New(secrets map[string]string) (providers.Provider, error) {
	if secrets["apiUrl"] == "" || secrets["apiKey"] == "" {
		return nil, &types.Error{Kind: types.MissingCredentials, Message: "apiUrl and apiKey are required"}
	}
	client, err := httpClient(secrets)
	if err != nil {
		return nil, &types.Error{Kind: types.MissingCredentials, Message: err.Error()}
	}
	return &Provider{
		base:    baseprovider.New(Capabilities()),
		exec:    transport.NewExecutor(client),
		signer:  signing.APIKeySigner{Scheme: signing.SchemeSingleHeader, Token: secrets["apiKey"]},
		baseURL: strings.TrimSuffix(secrets["apiUrl"], "/"),
	}, nil
}

// httpClient builds an *http.Client with a private-CA-aware tls.Config
// when any TLS secret is present; operators running PowerDNS behind an
// internal certificate supply tlsCAPath (spec §6 notes PowerDNS may also
// be plain HTTP, in which case none of these fields are set).
func httpClient(secrets map[string]string) (*http.Client, error) {
	if secrets["tlsCertPath"] == "" && secrets["tlsKeyPath"] == "" && secrets["tlsCAPath"] == "" && secrets["tlsInsecureSkipVerify"] == "" {
		return nil, nil
	}
	tlsConfig, err := tlsutils.NewTLSConfig(
		secrets["tlsCertPath"],
		secrets["tlsKeyPath"],
		secrets["tlsCAPath"],
		"",
		secrets["tlsInsecureSkipVerify"] == "true",
		0,
	)
	if err != nil {
		return nil, err
	}
	return &http.Client{Transport: &http.Transport{TLSClientConfig: tlsConfig}}, nil
}

func (p *Provider) Capabilities() types.Capabilities { return Capabilities() }

func (p *Provider) CheckAuth(ctx context.Context) bool {
	_, err := p.call(ctx, http.MethodGet, "/zones", nil)
	return err == nil
}

type pdnsZone struct {
	ID     string    `json:"id"`
	Name   string    `json:"name"`
	Kind   string    `json:"kind"`
	RRSets []pdnsRRSet `json:"rrsets"`
}

type pdnsRRSet struct {
	Name       string       `json:"name"`
	Type       string       `json:"type"`
	TTL        int          `json:"ttl"`
	ChangeType string       `json:"changetype,omitempty"`
	Records    []pdnsRecord `json:"records"`
	Comments   []pdnsComment `json:"comments,omitempty"`
}

type pdnsRecord struct {
	Content  string `json:"content"`
	Disabled bool   `json:"disabled"`
}

type pdnsComment struct {
	Content string `json:"content"`
}

func (p *Provider) GetZones(ctx context.Context, page, pageSize int, keyword string) (types.ZoneList, error) {
	result, err := p.call(ctx, http.MethodGet, "/zones", nil)
	if err != nil {
		return types.ZoneList{}, err
	}
	var zones []pdnsZone
	if err := json.Unmarshal(result, &zones); err != nil {
		return types.ZoneList{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	var out []types.Zone
	for _, z := range zones {
		name := strings.TrimSuffix(z.Name, ".")
		if keyword != "" && !strings.Contains(strings.ToLower(name), strings.ToLower(keyword)) {
			continue
		}
		out = append(out, baseprovider.NormalizeZone(types.Zone{ID: name, Name: name}))
	}
	total := len(out)
	return types.ZoneList{Items: paginateZones(out, page, pageSize), Total: total}, nil
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
	z, err := p.fetchZone(ctx, zoneIDOrName)
	if err != nil {
		return types.Zone{}, err
	}
	name := strings.TrimSuffix(z.Name, ".")
	rc := len(z.RRSets)
	return baseprovider.NormalizeZone(types.Zone{ID: name, Name: name, RecordCount: &rc}), nil
}

func (p *Provider) AddZone(ctx context.Context, name string) (types.Zone, error) {
	body, _ := json.Marshal(map[string]any{"name": ensureFQDN(name), "kind": "Native"})
	if _, err := p.call(ctx, http.MethodPost, "/zones", body); err != nil {
		return types.Zone{}, err
	}
	return types.Zone{ID: name, Name: name}, nil
}

func (p *Provider) fetchZone(ctx context.Context, zoneID string) (pdnsZone, error) {
	result, err := p.call(ctx, http.MethodGet, "/zones/"+ensureFQDN(zoneID), nil)
	if err != nil {
		return pdnsZone{}, err
	}
	var z pdnsZone
	if err := json.Unmarshal(result, &z); err != nil {
		return pdnsZone{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	return z, nil
}

func ensureFQDN(name string) string { return strings.TrimSuffix(name, ".") + "." }

// composeID/splitID encode PowerDNS's composite identity: name|type|index
// into the RRSet's Records array (spec §4.5 rule 10).
func composeID(name, recordType string, idx int) string {
	return fmt.Sprintf("%s|%s|%d", name, recordType, idx)
}

func splitID(id string) (name, recordType string, idx int, err error) {
	parts := strings.SplitN(id, "|", 3)
	if len(parts) != 3 {
		return "", "", 0, &types.Error{Kind: types.InvalidValue, Message: "malformed powerdns record id: " + id}
	}
	idx, convErr := strconv.Atoi(parts[2])
	if convErr != nil {
		return "", "", 0, &types.Error{Kind: types.InvalidValue, Message: "malformed powerdns record id: " + id}
	}
	return parts[0], parts[1], idx, nil
}

// encodeContent/decodeContent implement the TXT-quoting and trailing-dot
// rules (spec §4.5 rules 3/5/6, scenario S4's sibling rule for PowerDNS).
func encodeContent(recordType, value string, priority *int) string {
	switch recordType {
	case "TXT":
		return `"` + value + `"`
	case "MX":
		p := 10
		if priority != nil {
			p = *priority
		}
		return fmt.Sprintf("%d %s", p, ensureFQDN(value))
	case "CNAME", "NS", "ALIAS", "PTR":
		return ensureFQDN(value)
	default:
		return value
	}
}

func decodeContent(recordType, content string) (value string, priority *int) {
	switch recordType {
	case "TXT":
		return strings.Trim(content, `"`), nil
	case "MX":
		parts := strings.SplitN(content, " ", 2)
		if len(parts) == 2 {
			if pr, err := strconv.Atoi(parts[0]); err == nil {
				return strings.TrimSuffix(parts[1], "."), &pr
			}
		}
		return strings.TrimSuffix(content, "."), nil
	case "CNAME", "NS", "ALIAS", "PTR":
		return strings.TrimSuffix(content, "."), nil
	default:
		return content, nil
	}
}

func expandRRSet(zoneID string, rs pdnsRRSet) []types.DnsRecord {
	out := make([]types.DnsRecord, 0, len(rs.Records))
	remark := ""
	if len(rs.Comments) > 0 {
		remark = rs.Comments[0].Content
	}
	for idx, rec := range rs.Records {
		value, priority := decodeContent(rs.Type, rec.Content)
		status := "1"
		if rec.Disabled {
			status = "0"
		}
		out = append(out, baseprovider.NormalizeRecord(types.DnsRecord{
			ID:       composeID(rs.Name, rs.Type, idx),
			ZoneID:   zoneID,
			ZoneName: zoneID,
			Name:     strings.TrimSuffix(rs.Name, "."),
			Type:     rs.Type,
			Value:    value,
			TTL:      rs.TTL,
			Priority: priority,
			Status:   status,
			Remark:   remark,
		}))
	}
	return out
}

// GetRecords fetches the whole zone (PowerDNS has no record-level listing
// endpoint) and delegates to the client-side filter/paginate helpers
// (spec §4.5 rule 8).
func (p *Provider) GetRecords(ctx context.Context, zoneID string, q types.RecordQuery) (types.RecordList, error) {
	z, err := p.fetchZone(ctx, zoneID)
	if err != nil {
		return types.RecordList{}, err
	}
	var out []types.DnsRecord
	for _, rs := range z.RRSets {
		out = append(out, expandRRSet(zoneID, rs)...)
	}
	out = baseprovider.FilterRecordsClient(out, q)
	total := len(out)
	out = baseprovider.PaginateClient(out, q.Page, q.PageSize)
	return types.RecordList{Items: out, Total: total}, nil
}

func (p *Provider) GetRecord(ctx context.Context, zoneID, recordID string) (types.DnsRecord, error) {
	name, recordType, idx, err := splitID(recordID)
	if err != nil {
		return types.DnsRecord{}, err
	}
	z, err := p.fetchZone(ctx, zoneID)
	if err != nil {
		return types.DnsRecord{}, err
	}
	for _, rs := range z.RRSets {
		if rs.Name == name && rs.Type == recordType {
			records := expandRRSet(zoneID, rs)
			if idx < 0 || idx >= len(records) {
				break
			}
			return records[idx], nil
		}
	}
	return types.DnsRecord{}, &types.Error{Kind: types.RecordNotFound, Message: "record not found: " + recordID}
}

func (p *Provider) findRRSet(z pdnsZone, name, recordType string) (pdnsRRSet, bool) {
	for _, rs := range z.RRSets {
		if rs.Name == name && rs.Type == recordType {
			return rs, true
		}
	}
	return pdnsRRSet{}, false
}

func (p *Provider) patch(ctx context.Context, zoneID string, rrsets []pdnsRRSet) error {
	body, _ := json.Marshal(map[string]any{"rrsets": rrsets})
	_, err := p.call(ctx, http.MethodPatch, "/zones/"+ensureFQDN(zoneID), body)
	return err
}

func (p *Provider) CreateRecord(ctx context.Context, zoneID string, params types.RecordParams) (types.DnsRecord, error) {
	if !p.Capabilities().HasRecordType(params.Type) {
		return types.DnsRecord{}, &types.Error{Kind: types.InvalidType, Message: "unsupported record type: " + params.Type}
	}
	name := ensureFQDN(baseprovider.NormalizeName(params.Name))
	z, err := p.fetchZone(ctx, zoneID)
	if err != nil {
		return types.DnsRecord{}, err
	}
	existing, _ := p.findRRSet(z, name, params.Type)
	records := append(existing.Records, pdnsRecord{Content: encodeContent(params.Type, params.Value, params.Priority)})
	newIndex := len(records) - 1
	rrset := pdnsRRSet{Name: name, Type: params.Type, TTL: params.TTL, ChangeType: "REPLACE", Records: records}
	if params.Remark != nil {
		rrset.Comments = []pdnsComment{{Content: *params.Remark}}
	}
	if err := p.patch(ctx, zoneID, []pdnsRRSet{rrset}); err != nil {
		return types.DnsRecord{}, err
	}
	return p.GetRecord(ctx, zoneID, composeID(name, params.Type, newIndex))
}

// UpdateRecord implements scenario S3: when name or type changes, the old
// RRset member is removed (REPLACE with the reduced set, or DELETE when
// it was the only member) and the new value is appended to (or creates)
// the RRset at the new identity.
func (p *Provider) UpdateRecord(ctx context.Context, zoneID, recordID string, params types.RecordParams) (types.DnsRecord, error) {
	oldName, oldType, oldIdx, err := splitID(recordID)
	if err != nil {
		return types.DnsRecord{}, err
	}
	z, err := p.fetchZone(ctx, zoneID)
	if err != nil {
		return types.DnsRecord{}, err
	}
	newName := ensureFQDN(baseprovider.NormalizeName(params.Name))
	newType := params.Type
	identityChanged := newName != oldName || newType != oldType

	oldRS, ok := p.findRRSet(z, oldName, oldType)
	if !ok || oldIdx < 0 || oldIdx >= len(oldRS.Records) {
		return types.DnsRecord{}, &types.Error{Kind: types.RecordNotFound, Message: "record not found: " + recordID}
	}

	var patches []pdnsRRSet
	if identityChanged {
		remaining := append(append([]pdnsRecord{}, oldRS.Records[:oldIdx]...), oldRS.Records[oldIdx+1:]...)
		if len(remaining) == 0 {
			patches = append(patches, pdnsRRSet{Name: oldName, Type: oldType, ChangeType: "DELETE"})
		} else {
			patches = append(patches, pdnsRRSet{Name: oldName, Type: oldType, TTL: oldRS.TTL, ChangeType: "REPLACE", Records: remaining})
		}
		newRS, _ := p.findRRSet(z, newName, newType)
		newRecords := append(newRS.Records, pdnsRecord{Content: encodeContent(newType, params.Value, params.Priority)})
		newRRSet := pdnsRRSet{Name: newName, Type: newType, TTL: params.TTL, ChangeType: "REPLACE", Records: newRecords}
		if params.Remark != nil {
			newRRSet.Comments = []pdnsComment{{Content: *params.Remark}}
		}
		patches = append(patches, newRRSet)
		if err := p.patch(ctx, zoneID, patches); err != nil {
			return types.DnsRecord{}, err
		}
		return p.GetRecord(ctx, zoneID, composeID(newName, newType, len(newRecords)-1))
	}

	records := append([]pdnsRecord{}, oldRS.Records...)
	records[oldIdx] = pdnsRecord{Content: encodeContent(newType, params.Value, params.Priority)}
	rrset := pdnsRRSet{Name: newName, Type: newType, TTL: params.TTL, ChangeType: "REPLACE", Records: records}
	if params.Remark != nil {
		rrset.Comments = []pdnsComment{{Content: *params.Remark}}
	}
	if err := p.patch(ctx, zoneID, []pdnsRRSet{rrset}); err != nil {
		return types.DnsRecord{}, err
	}
	return p.GetRecord(ctx, zoneID, recordID)
}

func (p *Provider) DeleteRecord(ctx context.Context, zoneID, recordID string) (bool, error) {
	name, recordType, idx, err := splitID(recordID)
	if err != nil {
		return false, err
	}
	z, err := p.fetchZone(ctx, zoneID)
	if err != nil {
		return false, err
	}
	rs, ok := p.findRRSet(z, name, recordType)
	if !ok || idx < 0 || idx >= len(rs.Records) {
		return false, &types.Error{Kind: types.RecordNotFound, Message: "record not found: " + recordID}
	}
	remaining := append(append([]pdnsRecord{}, rs.Records[:idx]...), rs.Records[idx+1:]...)
	var rrset pdnsRRSet
	if len(remaining) == 0 {
		rrset = pdnsRRSet{Name: name, Type: recordType, ChangeType: "DELETE"}
	} else {
		rrset = pdnsRRSet{Name: name, Type: recordType, TTL: rs.TTL, ChangeType: "REPLACE", Records: remaining}
	}
	if err := p.patch(ctx, zoneID, []pdnsRRSet{rrset}); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) SetRecordStatus(ctx context.Context, zoneID, recordID string, enabled bool) (bool, error) {
	name, recordType, idx, err := splitID(recordID)
	if err != nil {
		return false, err
	}
	z, err := p.fetchZone(ctx, zoneID)
	if err != nil {
		return false, err
	}
	rs, ok := p.findRRSet(z, name, recordType)
	if !ok || idx < 0 || idx >= len(rs.Records) {
		return false, &types.Error{Kind: types.RecordNotFound, Message: "record not found: " + recordID}
	}
	records := append([]pdnsRecord{}, rs.Records...)
	records[idx].Disabled = !enabled
	rrset := pdnsRRSet{Name: name, Type: recordType, TTL: rs.TTL, ChangeType: "REPLACE", Records: records}
	if err := p.patch(ctx, zoneID, []pdnsRRSet{rrset}); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) GetLines(ctx context.Context, zoneID string) (types.LineList, error) {
	return types.LineList{Items: []types.DnsLine{{Code: types.DefaultLineCode, Name: "default"}}}, nil
}

func (p *Provider) GetMinTTL(ctx context.Context, zoneID string) int { return 60 }

// call does not ask transport to parse JSON: PowerDNS's zone-list endpoint
// returns a bare top-level JSON array, which would not fit the object
// shape transport.Response.JSON assumes. Callers unmarshal resp.Body
// themselves instead.
func (p *Provider) call(ctx context.Context, method, path string, body []byte) (json.RawMessage, error) {
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
			URL:     p.baseURL + path,
			Headers: headers,
			Body:    body,
		})
		if err != nil {
			if verr, ok := types.AsError(err); ok && verr.Kind == types.HttpError {
				var ve struct {
					Error string `json:"error"`
				}
				_ = json.Unmarshal([]byte(verr.Message), &ve)
				kind := types.VendorError
				switch verr.HTTPStatus {
				case 401, 403:
					kind = types.AuthFailed
				case 404:
					kind = types.ZoneNotFound
				case 422:
					kind = types.InvalidValue
				}
				message := ve.Error
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
