package dnspod

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/clouddns-gateway/dns-gateway/internal/baseprovider"
	"github.com/clouddns-gateway/dns-gateway/internal/providers"
	"github.com/clouddns-gateway/dns-gateway/internal/signing"
	"github.com/clouddns-gateway/dns-gateway/internal/transport"
	"github.com/clouddns-gateway/dns-gateway/internal/types"
)

const legacyHost = "https://dnsapi.cn"

// legacyProvider implements providers.Provider against DNSPod's legacy
// form API, authenticated with the MD5-token scheme shared with West.cn
// (spec §4.2).
type legacyProvider struct {
	base   baseprovider.Base
	exec   *transport.Executor
	signer signing.MD5TokenSigner
}

func newLegacyProvider(secrets map[string]string) (providers.Provider, error) {
	return &legacyProvider{
		base: baseprovider.New(Capabilities()),
		exec: transport.NewExecutor(nil),
		signer: signing.MD5TokenSigner{
			Username:    secrets["username"],
			APIPassword: secrets["apiPassword"],
			Clock:       signing.RealClock{},
		},
	}, nil
}

func (p *legacyProvider) Capabilities() types.Capabilities { return Capabilities() }

func (p *legacyProvider) CheckAuth(ctx context.Context) bool {
	_, err := p.call(ctx, "Domain.List", url.Values{"offset": {"0"}, "length": {"1"}})
	return err == nil
}

func (p *legacyProvider) GetZones(ctx context.Context, page, pageSize int, keyword string) (types.ZoneList, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}
	form := url.Values{
		"offset": {strconv.Itoa((page - 1) * pageSize)},
		"length": {strconv.Itoa(pageSize)},
	}
	if keyword != "" {
		form.Set("keyword", keyword)
	}
	result, err := p.call(ctx, "Domain.List", form)
	if err != nil {
		return types.ZoneList{}, err
	}
	var parsed struct {
		Domains []struct {
			Name    string `json:"name"`
			Records string `json:"records"`
			Status  string `json:"status"`
		} `json:"domains"`
		Info struct {
			DomainTotal int `json:"domain_total"`
		} `json:"info"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return types.ZoneList{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	zones := make([]types.Zone, 0, len(parsed.Domains))
	for _, d := range parsed.Domains {
		rc, _ := strconv.Atoi(d.Records)
		zones = append(zones, baseprovider.NormalizeZone(types.Zone{ID: d.Name, Name: d.Name, Status: d.Status, RecordCount: &rc}))
	}
	return types.ZoneList{Items: zones, Total: parsed.Info.DomainTotal}, nil
}

func (p *legacyProvider) GetZone(ctx context.Context, zoneIDOrName string) (types.Zone, error) {
	result, err := p.call(ctx, "Domain.Info", url.Values{"domain": {zoneIDOrName}})
	if err != nil {
		return types.Zone{}, err
	}
	var parsed struct {
		Domain struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"domain"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return types.Zone{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	return baseprovider.NormalizeZone(types.Zone{ID: parsed.Domain.Name, Name: parsed.Domain.Name, Status: parsed.Domain.Status}), nil
}

func (p *legacyProvider) AddZone(ctx context.Context, name string) (types.Zone, error) {
	if _, err := p.call(ctx, "Domain.Create", url.Values{"domain": {name}}); err != nil {
		return types.Zone{}, err
	}
	return types.Zone{ID: name, Name: name}, nil
}

func (p *legacyProvider) GetRecords(ctx context.Context, zoneID string, q types.RecordQuery) (types.RecordList, error) {
	form := url.Values{"domain": {zoneID}}
	if q.Keyword != "" {
		form.Set("keyword", q.Keyword)
	}
	result, err := p.call(ctx, "Record.List", form)
	if err != nil {
		if te, ok := types.AsError(err); ok && te.VendorCode == "10" {
			return types.RecordList{}, nil
		}
		return types.RecordList{}, err
	}
	var parsed struct {
		Records []legacyRecord `json:"records"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return types.RecordList{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	out := make([]types.DnsRecord, 0, len(parsed.Records))
	for _, r := range parsed.Records {
		out = append(out, baseprovider.NormalizeRecord(r.toRecord(zoneID)))
	}
	// Record.List has no server-side paging in the legacy API: always
	// falls back to client filter/paginate (spec §4.5 rule 8).
	out = baseprovider.FilterRecordsClient(out, q)
	total := len(out)
	out = baseprovider.PaginateClient(out, q.Page, q.PageSize)
	return types.RecordList{Items: out, Total: total}, nil
}

func (p *legacyProvider) GetRecord(ctx context.Context, zoneID, recordID string) (types.DnsRecord, error) {
	result, err := p.call(ctx, "Record.Info", url.Values{"domain": {zoneID}, "record_id": {recordID}})
	if err != nil {
		return types.DnsRecord{}, err
	}
	var parsed struct {
		Record legacyRecord `json:"record"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return types.DnsRecord{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	return baseprovider.NormalizeRecord(parsed.Record.toRecord(zoneID)), nil
}

func (p *legacyProvider) CreateRecord(ctx context.Context, zoneID string, params types.RecordParams) (types.DnsRecord, error) {
	if !p.Capabilities().HasRecordType(params.Type) {
		return types.DnsRecord{}, &types.Error{Kind: types.InvalidType, Message: "unsupported record type: " + params.Type}
	}
	form := url.Values{
		"domain":      {zoneID},
		"sub_domain":  {toSubDomain(zoneID, params.Name)},
		"record_type": {legacyType(params.Type)},
		"value":       {params.Value},
		"ttl":         {strconv.Itoa(params.TTL)},
		"record_line": {"默认"},
	}
	if params.Line != "" {
		if code, ok := lineNameToCode[params.Line]; ok {
			form.Set("record_line", vendorLineName(code))
		} else {
			form.Set("record_line", params.Line)
		}
	}
	if params.Priority != nil && params.Type == "MX" {
		form.Set("mx", strconv.Itoa(*params.Priority))
	}
	result, err := p.call(ctx, "Record.Create", form)
	if err != nil {
		return types.DnsRecord{}, err
	}
	var created struct {
		Record struct {
			ID string `json:"id"`
		} `json:"record"`
	}
	if err := json.Unmarshal(result, &created); err != nil {
		return types.DnsRecord{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	if params.Remark != nil && *params.Remark != "" {
		if _, remarkErr := p.call(ctx, "Record.Remark", url.Values{"domain": {zoneID}, "record_id": {created.Record.ID}, "remark": {*params.Remark}}); remarkErr != nil {
			rec, readErr := p.GetRecord(ctx, zoneID, created.Record.ID)
			if readErr == nil {
				return rec, remarkErr.(*types.Error).WithMeta("partialSuccess", true)
			}
			return types.DnsRecord{}, remarkErr
		}
	}
	return p.GetRecord(ctx, zoneID, created.Record.ID)
}

func (p *legacyProvider) UpdateRecord(ctx context.Context, zoneID, recordID string, params types.RecordParams) (types.DnsRecord, error) {
	form := url.Values{
		"domain":      {zoneID},
		"record_id":   {recordID},
		"sub_domain":  {toSubDomain(zoneID, params.Name)},
		"record_type": {legacyType(params.Type)},
		"value":       {params.Value},
		"ttl":         {strconv.Itoa(params.TTL)},
		"record_line": {"默认"},
	}
	if params.Line != "" {
		if code, ok := lineNameToCode[params.Line]; ok {
			form.Set("record_line", vendorLineName(code))
		} else {
			form.Set("record_line", params.Line)
		}
	}
	if params.Priority != nil && params.Type == "MX" {
		form.Set("mx", strconv.Itoa(*params.Priority))
	}
	if _, err := p.call(ctx, "Record.Modify", form); err != nil {
		return types.DnsRecord{}, err
	}
	if params.Remark != nil {
		if _, remarkErr := p.call(ctx, "Record.Remark", url.Values{"domain": {zoneID}, "record_id": {recordID}, "remark": {*params.Remark}}); remarkErr != nil {
			rec, readErr := p.GetRecord(ctx, zoneID, recordID)
			if readErr == nil {
				return rec, remarkErr.(*types.Error).WithMeta("partialSuccess", true)
			}
			return types.DnsRecord{}, remarkErr
		}
	}
	return p.GetRecord(ctx, zoneID, recordID)
}

func (p *legacyProvider) DeleteRecord(ctx context.Context, zoneID, recordID string) (bool, error) {
	if _, err := p.call(ctx, "Record.Remove", url.Values{"domain": {zoneID}, "record_id": {recordID}}); err != nil {
		return false, err
	}
	return true, nil
}

func (p *legacyProvider) SetRecordStatus(ctx context.Context, zoneID, recordID string, enabled bool) (bool, error) {
	status := "disable"
	if enabled {
		status = "enable"
	}
	if _, err := p.call(ctx, "Record.Status", url.Values{"domain": {zoneID}, "record_id": {recordID}, "status": {status}}); err != nil {
		return false, err
	}
	return true, nil
}

func (p *legacyProvider) GetLines(ctx context.Context, zoneID string) (types.LineList, error) {
	result, err := p.call(ctx, "Record.Line", url.Values{"domain": {zoneID}})
	if err != nil {
		return types.LineList{}, err
	}
	var parsed struct {
		Lines []string `json:"lines"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return types.LineList{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	out := []types.DnsLine{{Code: types.DefaultLineCode, Name: "默认"}}
	for _, name := range parsed.Lines {
		if name == "默认" {
			continue
		}
		out = append(out, types.DnsLine{Code: name, Name: name})
	}
	return types.LineList{Items: out}, nil
}

func (p *legacyProvider) GetMinTTL(ctx context.Context, zoneID string) int { return 600 }

// legacyType maps DNSPod legacy's Chinese URL-forward synonyms onto the
// canonical REDIRECT_URL/FORWARD_URL tokens (spec §4.5 rule 2).
func legacyType(canonical string) string {
	switch canonical {
	case "REDIRECT_URL":
		return "显性URL"
	case "FORWARD_URL":
		return "隐性URL"
	default:
		return canonical
	}
}

// canonicalType is shared with the TC3 adapter: the modern API spells an
// explicit redirect "URL" where the legacy one says 显性URL.
func canonicalType(vendor string) string {
	switch vendor {
	case "URL", "显性URL":
		return "REDIRECT_URL"
	case "隐性URL":
		return "FORWARD_URL"
	default:
		return vendor
	}
}

type legacyRecord struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Value  string `json:"value"`
	TTL    string `json:"ttl"`
	Line   string `json:"line"`
	MX     string `json:"mx"`
	Status string `json:"status"`
	Remark string `json:"remark"`
}

func (r legacyRecord) toRecord(zoneID string) types.DnsRecord {
	ttl, _ := strconv.Atoi(r.TTL)
	status := ""
	switch r.Status {
	case "enable":
		status = "1"
	case "disable":
		status = "0"
	}
	recordType := canonicalType(r.Type)
	var priority *int
	if recordType == "MX" {
		if mx, err := strconv.Atoi(r.MX); err == nil {
			priority = &mx
		}
	}
	line := r.Line
	return types.DnsRecord{
		ID:       r.ID,
		ZoneID:   zoneID,
		ZoneName: zoneID,
		Name:     fromSubDomain(zoneID, r.Name),
		Type:     recordType,
		Value:    r.Value,
		TTL:      ttl,
		Line:     line,
		Priority: priority,
		Status:   status,
		Remark:   r.Remark,
	}
}

func (p *legacyProvider) call(ctx context.Context, path string, form url.Values) (json.RawMessage, error) {
	tokenFields := p.signer.Sign()
	for k, v := range tokenFields {
		form.Set(k, v)
	}
	form.Set("format", "json")

	result, err := p.base.WithRetry(func(attempt int) (any, error) {
		resp, err := p.exec.Execute(ctx, transport.Request{
			Method:      http.MethodPost,
			URL:         legacyHost + "/" + path,
			Body:        []byte(form.Encode()),
			FormEncoded: true,
			ParseJSON:   true,
		})
		if err != nil {
			return nil, err
		}
		var status struct {
			Status struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"status"`
		}
		raw, _ := json.Marshal(resp.JSON)
		if err := json.Unmarshal(raw, &status); err != nil {
			return nil, &types.Error{Kind: types.InvalidResponse, Message: err.Error(), HTTPStatus: resp.Status}
		}
		if status.Status.Code != "1" {
			kind := types.VendorError
			switch status.Status.Code {
			case "6":
				kind = types.AuthFailed
			case "10":
				kind = types.ZoneNotFound
			}
			return nil, p.base.NewError(kind, status.Status.Code, status.Status.Message, resp.Status, nil)
		}
		return json.RawMessage(raw), nil
	})
	if err != nil {
		return nil, err
	}
	return result.(json.RawMessage), nil
}
