// Package westcn adapts West.cn (西部数码) domain DNS management to the
// canonical Provider interface. Authentication is the MD5-token scheme
// shared with legacy DNSPod (spec §4.2); responses are GBK-encoded and
// must be transcoded to UTF-8 by the transport layer (spec §6).
package westcn

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/clouddns-gateway/dns-gateway/internal/baseprovider"
	"github.com/clouddns-gateway/dns-gateway/internal/providers"
	"github.com/clouddns-gateway/dns-gateway/internal/signing"
	"github.com/clouddns-gateway/dns-gateway/internal/transport"
	"github.com/clouddns-gateway/dns-gateway/internal/types"
)

const apiHost = "https://api.west.cn/API/v2/domain/dns"

var lineNameToCode = map[string]string{
	types.DefaultLineCode: "",
	"telecom":             "LTEL",
	"unicom":              "LCNC",
	"mobile":              "LMOB",
}
var lineCodeToName = reverseMap(lineNameToCode)

func reverseMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if v == "" {
			continue
		}
		out[v] = k
	}
	return out
}

func Capabilities() types.Capabilities {
	return types.Capabilities{
		Kind:             types.WestCN,
		SupportsWeight:   false,
		SupportsLine:     true,
		SupportsStatus:   true,
		SupportsRemark:   false,
		RequiresDomainID: false,
		RemarkMode:       types.RemarkUnsupported,
		Paging:           types.PagingClient,
		RecordTypes:      []string{"A", "AAAA", "CNAME", "MX", "TXT", "NS"},
		AuthFields: []types.AuthField{
			{Name: "username", Label: "Username", Kind: types.AuthFieldText, Required: true},
			{Name: "apiPassword", Label: "API Password", Kind: types.AuthFieldPassword, Required: true},
		},
		DomainCacheTTL:  300,
		RecordCacheTTL:  60,
		RetryableErrors: []string{},
		MaxRetries:      3,
	}
}

type Provider struct {
	base   baseprovider.Base
	exec   *transport.Executor
	signer signing.MD5TokenSigner
}

func New(secrets map[string]string) (providers.Provider, error) {
	if secrets["username"] == "" || secrets["apiPassword"] == "" {
		return nil, &types.Error{Kind: types.MissingCredentials, Message: "username and apiPassword are required"}
	}
	return &Provider{
		base: baseprovider.New(Capabilities()),
		exec: transport.NewExecutor(nil),
		signer: signing.MD5TokenSigner{
			Username:    secrets["username"],
			APIPassword: secrets["apiPassword"],
			Clock:       signing.RealClock{},
		},
	}, nil
}

func (p *Provider) Capabilities() types.Capabilities { return Capabilities() }

func (p *Provider) CheckAuth(ctx context.Context) bool {
	_, err := p.call(ctx, url.Values{"act": {"getdomains"}})
	return err == nil
}

func (p *Provider) GetZones(ctx context.Context, page, pageSize int, keyword string) (types.ZoneList, error) {
	result, err := p.call(ctx, url.Values{"act": {"getdomains"}})
	if err != nil {
		return types.ZoneList{}, err
	}
	var parsed struct {
		Domains []struct {
			Domain string `json:"domain"`
			Status string `json:"status"`
		} `json:"domains"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return types.ZoneList{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	var zones []types.Zone
	for _, d := range parsed.Domains {
		if keyword != "" && !strings.Contains(strings.ToLower(d.Domain), strings.ToLower(keyword)) {
			continue
		}
		zones = append(zones, baseprovider.NormalizeZone(types.Zone{ID: d.Domain, Name: d.Domain, Status: d.Status}))
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
	result, err := p.call(ctx, url.Values{"act": {"getdomaininfo"}, "domain": {zoneIDOrName}})
	if err != nil {
		return types.Zone{}, err
	}
	var z struct {
		Domain string `json:"domain"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(result, &z); err != nil {
		return types.Zone{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	return baseprovider.NormalizeZone(types.Zone{ID: z.Domain, Name: z.Domain, Status: z.Status}), nil
}

func (p *Provider) AddZone(ctx context.Context, name string) (types.Zone, error) {
	return types.Zone{}, &types.Error{Kind: types.Unsupported, Message: "west.cn does not support programmatic zone creation"}
}

type westcnRecord struct {
	ID     string `json:"id"`
	Host   string `json:"host"`
	Type   string `json:"type"`
	Value  string `json:"value"`
	TTL    string `json:"ttl"`
	Line   string `json:"line"`
	MX     string `json:"mx"`
	Status string `json:"status"`
}

func (r westcnRecord) toRecord(zoneID string) types.DnsRecord {
	ttl, _ := strconv.Atoi(r.TTL)
	status := ""
	switch r.Status {
	case "1", "enable":
		status = "1"
	case "0", "disable":
		status = "0"
	}
	var priority *int
	if r.Type == "MX" {
		if mx, err := strconv.Atoi(r.MX); err == nil {
			priority = &mx
		}
	}
	line := r.Line
	if canonical, ok := lineCodeToName[line]; ok {
		line = canonical
	} else if line == "" {
		line = types.DefaultLineCode
	}
	return types.DnsRecord{
		ID:       r.ID,
		ZoneID:   zoneID,
		ZoneName: zoneID,
		Name:     fromHost(zoneID, r.Host),
		Type:     r.Type,
		Value:    r.Value,
		TTL:      ttl,
		Line:     line,
		Priority: priority,
		Status:   status,
	}
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

// GetRecords always fetches the full set: West.cn's listing endpoint
// offers no reliable server-side filter, so every query goes through
// FilterRecordsClient/PaginateClient (spec §4.5 rule 8).
func (p *Provider) GetRecords(ctx context.Context, zoneID string, q types.RecordQuery) (types.RecordList, error) {
	result, err := p.call(ctx, url.Values{"act": {"getdnsrecord"}, "domain": {zoneID}})
	if err != nil {
		return types.RecordList{}, err
	}
	var parsed struct {
		List []westcnRecord `json:"list"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return types.RecordList{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	out := make([]types.DnsRecord, 0, len(parsed.List))
	for _, r := range parsed.List {
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
	form := url.Values{
		"act":    {"adddnsrecord"},
		"domain": {zoneID},
		"host":   {toHost(zoneID, params.Name)},
		"type":   {params.Type},
		"value":  {params.Value},
		"ttl":    {strconv.Itoa(params.TTL)},
	}
	if params.Line != "" {
		if code, ok := lineNameToCode[params.Line]; ok {
			form.Set("line", code)
		} else {
			form.Set("line", params.Line)
		}
	}
	if params.Priority != nil && params.Type == "MX" {
		form.Set("mx", strconv.Itoa(*params.Priority))
	}
	result, err := p.call(ctx, form)
	if err != nil {
		return types.DnsRecord{}, err
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(result, &created); err != nil {
		return types.DnsRecord{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	return p.GetRecord(ctx, zoneID, created.ID)
}

func (p *Provider) UpdateRecord(ctx context.Context, zoneID, recordID string, params types.RecordParams) (types.DnsRecord, error) {
	form := url.Values{
		"act":       {"moddnsrecord"},
		"domain":    {zoneID},
		"record_id": {recordID},
		"host":      {toHost(zoneID, params.Name)},
		"type":      {params.Type},
		"value":     {params.Value},
		"ttl":       {strconv.Itoa(params.TTL)},
	}
	if params.Line != "" {
		if code, ok := lineNameToCode[params.Line]; ok {
			form.Set("line", code)
		} else {
			form.Set("line", params.Line)
		}
	}
	if params.Priority != nil && params.Type == "MX" {
		form.Set("mx", strconv.Itoa(*params.Priority))
	}
	if _, err := p.call(ctx, form); err != nil {
		return types.DnsRecord{}, err
	}
	return p.GetRecord(ctx, zoneID, recordID)
}

func (p *Provider) DeleteRecord(ctx context.Context, zoneID, recordID string) (bool, error) {
	if _, err := p.call(ctx, url.Values{"act": {"deldnsrecord"}, "domain": {zoneID}, "record_id": {recordID}}); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) SetRecordStatus(ctx context.Context, zoneID, recordID string, enabled bool) (bool, error) {
	status := "0"
	if enabled {
		status = "1"
	}
	if _, err := p.call(ctx, url.Values{"act": {"setdnsrecordstatus"}, "domain": {zoneID}, "record_id": {recordID}, "status": {status}}); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) GetLines(ctx context.Context, zoneID string) (types.LineList, error) {
	return types.LineList{Items: []types.DnsLine{
		{Code: types.DefaultLineCode, Name: "默认"},
		{Code: "telecom", Name: "电信"},
		{Code: "unicom", Name: "联通"},
		{Code: "mobile", Name: "移动"},
	}}, nil
}

func (p *Provider) GetMinTTL(ctx context.Context, zoneID string) int { return 600 }

func (p *Provider) call(ctx context.Context, form url.Values) (json.RawMessage, error) {
	fields := p.signer.Sign()
	for k, v := range fields {
		form.Set(k, v)
	}
	form.Set("username", p.signer.Username)

	result, err := p.base.WithRetry(func(attempt int) (any, error) {
		resp, err := p.exec.Execute(ctx, transport.Request{
			Method:      http.MethodPost,
			URL:         apiHost,
			Body:        []byte(form.Encode()),
			FormEncoded: true,
			Charset:     transport.CharsetGBK,
			ParseJSON:   true,
		})
		if err != nil {
			return nil, err
		}
		var status struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		raw, _ := json.Marshal(resp.JSON)
		_ = json.Unmarshal(raw, &status)
		if status.Code != 200 && status.Code != 0 {
			kind := types.VendorError
			switch status.Code {
			case -1:
				kind = types.AuthFailed
			case -2:
				kind = types.ZoneNotFound
			}
			return nil, p.base.NewError(kind, strconv.Itoa(status.Code), status.Msg, resp.Status, nil)
		}
		return json.RawMessage(raw), nil
	})
	if err != nil {
		return nil, err
	}
	return result.(json.RawMessage), nil
}
