// Package volcengine adapts Volcengine (Huoshan) DNS to the canonical
// Provider interface, signed with the TC3-HMAC-SHA256 family shared with
// DNSPod and JDCloud (spec §4.2).
package volcengine

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/clouddns-gateway/dns-gateway/internal/baseprovider"
	"github.com/clouddns-gateway/dns-gateway/internal/providers"
	"github.com/clouddns-gateway/dns-gateway/internal/signing"
	"github.com/clouddns-gateway/dns-gateway/internal/transport"
	"github.com/clouddns-gateway/dns-gateway/internal/types"
)

const (
	apiHost    = "open.volcengineapi.com"
	apiVersion = "2018-08-01"
	apiService = "dns"
	apiRegion  = "cn-north-1"
)

var lineNameToCode = map[string]string{
	types.DefaultLineCode: "default",
	"telecom":             "telecom",
	"unicom":              "unicom",
	"mobile":              "mobile",
	"oversea":             "oversea",
	"btvn":                "btvn",
}
var lineCodeToName = reverseMap(lineNameToCode)

func reverseMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}

// minTTLByTrade implements spec §4.9's Huoshan min-TTL derivation from the
// zone's TradeCode (an opaque billing-tier tag surfaced in Zone.Meta).
var minTTLByTrade = map[string]int{
	"free_inner":         600,
	"professional_inner": 300,
	"enterprise_inner":   60,
	"ultimate_inner":     1,
}

func Capabilities() types.Capabilities {
	return types.Capabilities{
		Kind:             types.Volcengine,
		SupportsWeight:   true,
		SupportsLine:     true,
		SupportsStatus:   true,
		SupportsRemark:   false,
		RequiresDomainID: true,
		RemarkMode:       types.RemarkUnsupported,
		Paging:           types.PagingServer,
		RecordTypes:      []string{"A", "AAAA", "CNAME", "MX", "TXT", "SRV", "NS", "CAA"},
		AuthFields: []types.AuthField{
			{Name: "accessKeyId", Label: "Access Key ID", Kind: types.AuthFieldText, Required: true},
			{Name: "secretAccessKey", Label: "Secret Access Key", Kind: types.AuthFieldPassword, Required: true},
		},
		DomainCacheTTL:  300,
		RecordCacheTTL:  60,
		RetryableErrors: []string{"Throttling", "InternalError"},
		MaxRetries:      3,
	}
}

type Provider struct {
	base   baseprovider.Base
	exec   *transport.Executor
	signer signing.TC3Signer

	mu        sync.Mutex
	zoneNames map[string]string
}

func New(secrets map[string]string) (providers.Provider, error) {
	if secrets["accessKeyId"] == "" || secrets["secretAccessKey"] == "" {
		return nil, &types.Error{Kind: types.MissingCredentials, Message: "accessKeyId and secretAccessKey are required"}
	}
	return &Provider{
		base: baseprovider.New(Capabilities()),
		exec: transport.NewExecutor(nil),
		signer: signing.TC3Signer{
			SecretID:  secrets["accessKeyId"],
			SecretKey: secrets["secretAccessKey"],
			Service:   apiService,
			Region:    apiRegion,
			Host:      apiHost,
			Clock:     signing.RealClock{},
		},
		zoneNames: map[string]string{},
	}, nil
}

// zoneName maps a ZID back to the zone's domain name for FQDN assembly;
// records in this API only carry the host-relative name. Primed by
// GetZones/GetZone, falls back to a lookup (and to the raw ID when even
// that fails, rather than failing the whole read).
func (p *Provider) zoneName(ctx context.Context, zoneID string) string {
	p.mu.Lock()
	if n, ok := p.zoneNames[zoneID]; ok {
		p.mu.Unlock()
		return n
	}
	p.mu.Unlock()
	z, err := p.GetZone(ctx, zoneID)
	if err != nil || z.Name == "" {
		return zoneID
	}
	return z.Name
}

func (p *Provider) rememberZone(id, name string) {
	if id == "" || name == "" {
		return
	}
	p.mu.Lock()
	p.zoneNames[id] = name
	p.mu.Unlock()
}

func (p *Provider) Capabilities() types.Capabilities { return Capabilities() }

func (p *Provider) CheckAuth(ctx context.Context) bool {
	_, err := p.call(ctx, "ListZones", map[string]any{"PageSize": 1})
	return err == nil
}

func (p *Provider) GetZones(ctx context.Context, page, pageSize int, keyword string) (types.ZoneList, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}
	body := map[string]any{"PageNumber": page, "PageSize": pageSize}
	if keyword != "" {
		body["Key"] = keyword
	}
	result, err := p.call(ctx, "ListZones", body)
	if err != nil {
		return types.ZoneList{}, err
	}
	var parsed struct {
		Zones []struct {
			ZID       int64  `json:"ZID"`
			ZoneName  string `json:"ZoneName"`
			Status    string `json:"Status"`
			RecordCount int  `json:"RecordCount"`
			TradeCode string `json:"TradeCode"`
		} `json:"Zones"`
		Total int `json:"Total"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return types.ZoneList{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	zones := make([]types.Zone, 0, len(parsed.Zones))
	for _, z := range parsed.Zones {
		rc := z.RecordCount
		zone := baseprovider.NormalizeZone(types.Zone{
			ID: strconv.FormatInt(z.ZID, 10), Name: z.ZoneName, Status: z.Status, RecordCount: &rc,
			Meta: map[string]any{"tradeCode": z.TradeCode},
		})
		p.rememberZone(zone.ID, zone.Name)
		zones = append(zones, zone)
	}
	return types.ZoneList{Items: zones, Total: parsed.Total}, nil
}

func (p *Provider) GetZone(ctx context.Context, zoneIDOrName string) (types.Zone, error) {
	result, err := p.call(ctx, "DescribeZone", map[string]any{"ZID": zoneIDOrName})
	if err != nil {
		return types.Zone{}, err
	}
	var z struct {
		ZID       int64  `json:"ZID"`
		ZoneName  string `json:"ZoneName"`
		Status    string `json:"Status"`
		TradeCode string `json:"TradeCode"`
	}
	if err := json.Unmarshal(result, &z); err != nil {
		return types.Zone{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	zone := baseprovider.NormalizeZone(types.Zone{
		ID: strconv.FormatInt(z.ZID, 10), Name: z.ZoneName, Status: z.Status,
		Meta: map[string]any{"tradeCode": z.TradeCode},
	})
	p.rememberZone(zone.ID, zone.Name)
	return zone, nil
}

func (p *Provider) AddZone(ctx context.Context, name string) (types.Zone, error) {
	result, err := p.call(ctx, "CreateZone", map[string]any{"ZoneName": name})
	if err != nil {
		return types.Zone{}, err
	}
	var created struct {
		ZID int64 `json:"ZID"`
	}
	if err := json.Unmarshal(result, &created); err != nil {
		return types.Zone{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	return types.Zone{ID: strconv.FormatInt(created.ZID, 10), Name: name}, nil
}

type volcRecord struct {
	RecordID string `json:"RecordID"`
	Host     string `json:"Host"`
	Type     string `json:"Type"`
	Value    string `json:"Value"`
	TTL      int    `json:"TTL"`
	Line     string `json:"Line"`
	Weight   *int   `json:"Weight,omitempty"`
	Enable   bool   `json:"Enable"`
}

func (r volcRecord) toRecord(zoneID, zoneName string) types.DnsRecord {
	status := "0"
	if r.Enable {
		status = "1"
	}
	value, priority := decodeValue(r.Type, r.Value)
	line := r.Line
	if canonical, ok := lineCodeToName[line]; ok {
		line = canonical
	}
	return types.DnsRecord{
		ID:       r.RecordID,
		ZoneID:   zoneID,
		ZoneName: zoneName,
		Name:     fromHost(zoneName, r.Host),
		Type:     r.Type,
		Value:    value,
		TTL:      r.TTL,
		Line:     line,
		Priority: priority,
		Weight:   r.Weight,
		Status:   status,
	}
}

// decodeValue/encodeValue split Volcengine's packed "<priority> <target>"
// MX value into the canonical value+priority pair (spec §4.5 rule 3).
func decodeValue(recordType, wire string) (string, *int) {
	if recordType != "MX" {
		return wire, nil
	}
	parts := strings.SplitN(wire, " ", 2)
	if len(parts) == 2 {
		if p, err := strconv.Atoi(parts[0]); err == nil {
			return parts[1], &p
		}
	}
	return wire, nil
}

func encodeValue(recordType, value string, priority *int) string {
	if recordType != "MX" {
		return value
	}
	p := 10
	if priority != nil {
		p = *priority
	}
	return strconv.Itoa(p) + " " + value
}

func toHost(zone, fqdn string) string {
	name := baseprovider.NormalizeName(fqdn)
	zone = baseprovider.NormalizeName(zone)
	if name == zone {
		return "@"
	}
	return strings.TrimSuffix(name, "."+zone)
}

func fromHost(zone, host string) string {
	if host == "@" || host == "" {
		return zone
	}
	return host + "." + zone
}

func (p *Provider) GetRecords(ctx context.Context, zoneID string, q types.RecordQuery) (types.RecordList, error) {
	page, pageSize := q.Page, q.PageSize
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}
	body := map[string]any{"ZID": zoneID, "PageNumber": page, "PageSize": pageSize}
	if q.Type != "" {
		body["Type"] = q.Type
	}
	if q.Keyword != "" {
		body["Host"] = q.Keyword
	}
	result, err := p.call(ctx, "ListRecords", body)
	if err != nil {
		return types.RecordList{}, err
	}
	var parsed struct {
		Records []volcRecord `json:"Records"`
		Total   int          `json:"Total"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return types.RecordList{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	zoneName := p.zoneName(ctx, zoneID)
	out := make([]types.DnsRecord, 0, len(parsed.Records))
	for _, r := range parsed.Records {
		out = append(out, baseprovider.NormalizeRecord(r.toRecord(zoneID, zoneName)))
	}
	if q.Value != "" || q.Line != "" || q.Status != "" || q.SubDomain != "" {
		out = baseprovider.FilterRecordsClient(out, q)
	}
	return types.RecordList{Items: out, Total: parsed.Total}, nil
}

func (p *Provider) GetRecord(ctx context.Context, zoneID, recordID string) (types.DnsRecord, error) {
	result, err := p.call(ctx, "DescribeRecord", map[string]any{"ZID": zoneID, "RecordID": recordID})
	if err != nil {
		return types.DnsRecord{}, err
	}
	var r volcRecord
	if err := json.Unmarshal(result, &r); err != nil {
		return types.DnsRecord{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	return baseprovider.NormalizeRecord(r.toRecord(zoneID, p.zoneName(ctx, zoneID))), nil
}

func (p *Provider) CreateRecord(ctx context.Context, zoneID string, params types.RecordParams) (types.DnsRecord, error) {
	if !p.Capabilities().HasRecordType(params.Type) {
		return types.DnsRecord{}, &types.Error{Kind: types.InvalidType, Message: "unsupported record type: " + params.Type}
	}
	body := map[string]any{
		"ZID":   zoneID,
		"Host":  toHost(p.zoneName(ctx, zoneID), params.Name),
		"Type":  params.Type,
		"Value": encodeValue(params.Type, params.Value, params.Priority),
		"TTL":   params.TTL,
	}
	if params.Line != "" {
		if code, ok := lineNameToCode[params.Line]; ok {
			body["Line"] = code
		} else {
			body["Line"] = params.Line
		}
	}
	if params.Weight != nil {
		body["Weight"] = *params.Weight
	}
	result, err := p.call(ctx, "CreateRecord", body)
	if err != nil {
		return types.DnsRecord{}, err
	}
	var created struct {
		RecordID string `json:"RecordID"`
	}
	if err := json.Unmarshal(result, &created); err != nil {
		return types.DnsRecord{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	return p.GetRecord(ctx, zoneID, created.RecordID)
}

func (p *Provider) UpdateRecord(ctx context.Context, zoneID, recordID string, params types.RecordParams) (types.DnsRecord, error) {
	body := map[string]any{
		"ZID":      zoneID,
		"RecordID": recordID,
		"Host":     toHost(p.zoneName(ctx, zoneID), params.Name),
		"Type":     params.Type,
		"Value":    encodeValue(params.Type, params.Value, params.Priority),
		"TTL":      params.TTL,
	}
	if params.Line != "" {
		if code, ok := lineNameToCode[params.Line]; ok {
			body["Line"] = code
		} else {
			body["Line"] = params.Line
		}
	}
	if params.Weight != nil {
		body["Weight"] = *params.Weight
	}
	if _, err := p.call(ctx, "UpdateRecord", body); err != nil {
		return types.DnsRecord{}, err
	}
	return p.GetRecord(ctx, zoneID, recordID)
}

func (p *Provider) DeleteRecord(ctx context.Context, zoneID, recordID string) (bool, error) {
	if _, err := p.call(ctx, "DeleteRecord", map[string]any{"ZID": zoneID, "RecordID": recordID}); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) SetRecordStatus(ctx context.Context, zoneID, recordID string, enabled bool) (bool, error) {
	if _, err := p.call(ctx, "UpdateRecordStatus", map[string]any{"ZID": zoneID, "RecordID": recordID, "Enable": enabled}); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) GetLines(ctx context.Context, zoneID string) (types.LineList, error) {
	result, err := p.call(ctx, "ListLines", map[string]any{"ZID": zoneID})
	if err != nil {
		return types.LineList{}, err
	}
	var parsed struct {
		Lines []struct {
			Code string `json:"Code"`
			Name string `json:"Name"`
		} `json:"Lines"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return types.LineList{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	out := []types.DnsLine{{Code: types.DefaultLineCode, Name: "default"}}
	for _, l := range parsed.Lines {
		code := l.Code
		if canonical, ok := lineCodeToName[code]; ok {
			code = canonical
		}
		if code == types.DefaultLineCode {
			continue
		}
		out = append(out, types.DnsLine{Code: code, Name: l.Name})
	}
	return types.LineList{Items: out}, nil
}

// GetMinTTL derives the vendor's per-tier floor from the zone's TradeCode
// (spec §4.9), falling back to 600 when the tier is unknown or the zone
// lookup fails.
func (p *Provider) GetMinTTL(ctx context.Context, zoneID string) int {
	z, err := p.GetZone(ctx, zoneID)
	if err != nil {
		return 600
	}
	trade, _ := z.Meta["tradeCode"].(string)
	if ttl, ok := minTTLByTrade[trade]; ok {
		return ttl
	}
	return 600
}

func (p *Provider) call(ctx context.Context, action string, body map[string]any) (json.RawMessage, error) {
	raw, _ := json.Marshal(body)
	headers := p.signer.Sign(action, apiVersion, raw)

	result, err := p.base.WithRetry(func(attempt int) (any, error) {
		resp, err := p.exec.Execute(ctx, transport.Request{
			Method:    http.MethodPost,
			URL:       "https://" + apiHost + "/?Action=" + action + "&Version=" + apiVersion,
			Headers:   headers,
			Body:      raw,
			ParseJSON: true,
		})
		if err != nil {
			return nil, err
		}
		var env struct {
			ResponseMetadata struct {
				Error *struct {
					Code    string `json:"Code"`
					Message string `json:"Message"`
				} `json:"Error"`
			} `json:"ResponseMetadata"`
			Result json.RawMessage `json:"Result"`
		}
		responseRaw, _ := json.Marshal(resp.JSON)
		if err := json.Unmarshal(responseRaw, &env); err != nil {
			return nil, &types.Error{Kind: types.InvalidResponse, Message: err.Error(), HTTPStatus: resp.Status}
		}
		if env.ResponseMetadata.Error != nil {
			kind := types.VendorError
			switch {
			case strings.Contains(env.ResponseMetadata.Error.Code, "Auth"):
				kind = types.AuthFailed
			case strings.Contains(env.ResponseMetadata.Error.Code, "NotFound"):
				kind = types.ZoneNotFound
			case strings.Contains(env.ResponseMetadata.Error.Code, "Throttling"):
				kind = types.RateLimited
			}
			return nil, p.base.NewError(kind, env.ResponseMetadata.Error.Code, env.ResponseMetadata.Error.Message, resp.Status, nil)
		}
		return env.Result, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(json.RawMessage), nil
}
