package dnspod

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

const (
	tc3Host    = "dnspod.tencentcloudapi.com"
	tc3Version = "2021-03-23"
	tc3Service = "dnspod"
	apexHost   = "@"
)

// tc3Provider implements providers.Provider against the modern,
// TC3-HMAC-SHA256-signed Tencent Cloud API (spec §4.2).
type tc3Provider struct {
	base   baseprovider.Base
	exec   *transport.Executor
	signer signing.TC3Signer
}

func newTC3Provider(secrets map[string]string) (providers.Provider, error) {
	return &tc3Provider{
		base: baseprovider.New(Capabilities()),
		exec: transport.NewExecutor(nil),
		signer: signing.TC3Signer{
			SecretID:  secrets["secretId"],
			SecretKey: secrets["secretKey"],
			Service:   tc3Service,
			Clock:     signing.RealClock{},
		},
	}, nil
}

func (p *tc3Provider) Capabilities() types.Capabilities { return Capabilities() }

func (p *tc3Provider) CheckAuth(ctx context.Context) bool {
	_, err := p.call(ctx, "DescribeDomainList", map[string]any{"Limit": 1})
	return err == nil
}

func (p *tc3Provider) GetZones(ctx context.Context, page, pageSize int, keyword string) (types.ZoneList, error) {
	if pageSize <= 0 || pageSize > 3000 {
		pageSize = 100
	}
	if page <= 0 {
		page = 1
	}
	body := map[string]any{"Offset": (page - 1) * pageSize, "Limit": pageSize}
	if keyword != "" {
		body["Keyword"] = keyword
	}
	result, err := p.call(ctx, "DescribeDomainList", body)
	if err != nil {
		return types.ZoneList{}, err
	}
	var parsed struct {
		DomainList []struct {
			Name   string `json:"Name"`
			DomainID uint64 `json:"DomainId"`
			RecordCount int `json:"RecordCount"`
			Status string `json:"Status"`
		} `json:"DomainList"`
		DomainCountInfo struct {
			AllTotal int `json:"AllTotal"`
		} `json:"DomainCountInfo"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return types.ZoneList{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	zones := make([]types.Zone, 0, len(parsed.DomainList))
	for _, d := range parsed.DomainList {
		rc := d.RecordCount
		zones = append(zones, baseprovider.NormalizeZone(types.Zone{ID: d.Name, Name: d.Name, Status: d.Status, RecordCount: &rc}))
	}
	return types.ZoneList{Items: zones, Total: parsed.DomainCountInfo.AllTotal}, nil
}

func (p *tc3Provider) GetZone(ctx context.Context, zoneIDOrName string) (types.Zone, error) {
	result, err := p.call(ctx, "DescribeDomain", map[string]any{"Domain": zoneIDOrName})
	if err != nil {
		return types.Zone{}, err
	}
	var parsed struct {
		DomainInfo struct {
			Name   string `json:"Name"`
			Status string `json:"Status"`
		} `json:"DomainInfo"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return types.Zone{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	return baseprovider.NormalizeZone(types.Zone{ID: parsed.DomainInfo.Name, Name: parsed.DomainInfo.Name, Status: parsed.DomainInfo.Status}), nil
}

func (p *tc3Provider) AddZone(ctx context.Context, name string) (types.Zone, error) {
	if _, err := p.call(ctx, "CreateDomain", map[string]any{"Domain": name}); err != nil {
		return types.Zone{}, err
	}
	return types.Zone{ID: name, Name: name}, nil
}

func (p *tc3Provider) GetRecords(ctx context.Context, zoneID string, q types.RecordQuery) (types.RecordList, error) {
	page, pageSize := q.Page, q.PageSize
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 3000 {
		pageSize = 100
	}
	body := map[string]any{"Domain": zoneID, "Offset": (page - 1) * pageSize, "Limit": pageSize}
	if q.Keyword != "" {
		body["Keyword"] = q.Keyword
	}
	if q.Type != "" {
		body["RecordType"] = q.Type
	}
	result, err := p.call(ctx, "DescribeRecordList", body)
	if err != nil {
		if te, ok := types.AsError(err); ok && te.VendorCode == "ResourceNotFound.NoDataOfRecord" {
			return types.RecordList{}, nil
		}
		return types.RecordList{}, err
	}
	var parsed struct {
		RecordList []tc3Record `json:"RecordList"`
		RecordCountInfo struct {
			TotalCount int `json:"TotalCount"`
		} `json:"RecordCountInfo"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return types.RecordList{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	out := make([]types.DnsRecord, 0, len(parsed.RecordList))
	for _, r := range parsed.RecordList {
		out = append(out, baseprovider.NormalizeRecord(r.toRecord(zoneID)))
	}
	if q.Value != "" || q.Line != "" || q.Status != "" || q.SubDomain != "" {
		out = baseprovider.FilterRecordsClient(out, q)
	}
	return types.RecordList{Items: out, Total: parsed.RecordCountInfo.TotalCount}, nil
}

func (p *tc3Provider) GetRecord(ctx context.Context, zoneID, recordID string) (types.DnsRecord, error) {
	id, err := strconv.ParseUint(recordID, 10, 64)
	if err != nil {
		return types.DnsRecord{}, &types.Error{Kind: types.InvalidValue, Message: "invalid record id: " + recordID}
	}
	result, err := p.call(ctx, "DescribeRecord", map[string]any{"Domain": zoneID, "RecordId": id})
	if err != nil {
		return types.DnsRecord{}, err
	}
	var parsed struct {
		RecordInfo tc3Record `json:"RecordInfo"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return types.DnsRecord{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	return baseprovider.NormalizeRecord(parsed.RecordInfo.toRecord(zoneID)), nil
}

// CreateRecord implements scenario S2: an MX record at the apex becomes
// SubDomain=@, RecordType=MX, MX=<priority>, RecordLineId=0.
func (p *tc3Provider) CreateRecord(ctx context.Context, zoneID string, params types.RecordParams) (types.DnsRecord, error) {
	if !p.Capabilities().HasRecordType(params.Type) {
		return types.DnsRecord{}, &types.Error{Kind: types.InvalidType, Message: "unsupported record type: " + params.Type}
	}
	body := map[string]any{
		"Domain":     zoneID,
		"SubDomain":  toSubDomain(zoneID, params.Name),
		"RecordType": tc3Type(params.Type),
		"Value":      params.Value,
		"TTL":        params.TTL,
	}
	applyOptionalFields(body, params)
	result, err := p.call(ctx, "CreateRecord", body)
	if err != nil {
		return types.DnsRecord{}, err
	}
	var created struct {
		RecordId uint64 `json:"RecordId"`
	}
	if err := json.Unmarshal(result, &created); err != nil {
		return types.DnsRecord{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	recordID := strconv.FormatUint(created.RecordId, 10)

	if params.Remark != nil && *params.Remark != "" {
		if _, remarkErr := p.call(ctx, "ModifyRecordRemark", map[string]any{"Domain": zoneID, "RecordId": created.RecordId, "Remark": *params.Remark}); remarkErr != nil {
			rec, readErr := p.GetRecord(ctx, zoneID, recordID)
			if readErr == nil {
				return rec, remarkErr.(*types.Error).WithMeta("partialSuccess", true)
			}
			return types.DnsRecord{}, remarkErr
		}
	}
	return p.GetRecord(ctx, zoneID, recordID)
}

func (p *tc3Provider) UpdateRecord(ctx context.Context, zoneID, recordID string, params types.RecordParams) (types.DnsRecord, error) {
	id, err := strconv.ParseUint(recordID, 10, 64)
	if err != nil {
		return types.DnsRecord{}, &types.Error{Kind: types.InvalidValue, Message: "invalid record id: " + recordID}
	}
	body := map[string]any{
		"Domain":     zoneID,
		"RecordId":   id,
		"SubDomain":  toSubDomain(zoneID, params.Name),
		"RecordType": tc3Type(params.Type),
		"Value":      params.Value,
		"TTL":        params.TTL,
	}
	applyOptionalFields(body, params)
	if _, err := p.call(ctx, "ModifyRecord", body); err != nil {
		return types.DnsRecord{}, err
	}
	if params.Remark != nil {
		if _, remarkErr := p.call(ctx, "ModifyRecordRemark", map[string]any{"Domain": zoneID, "RecordId": id, "Remark": *params.Remark}); remarkErr != nil {
			rec, readErr := p.GetRecord(ctx, zoneID, recordID)
			if readErr == nil {
				return rec, remarkErr.(*types.Error).WithMeta("partialSuccess", true)
			}
			return types.DnsRecord{}, remarkErr
		}
	}
	return p.GetRecord(ctx, zoneID, recordID)
}

func (p *tc3Provider) DeleteRecord(ctx context.Context, zoneID, recordID string) (bool, error) {
	id, err := strconv.ParseUint(recordID, 10, 64)
	if err != nil {
		return false, &types.Error{Kind: types.InvalidValue, Message: "invalid record id: " + recordID}
	}
	if _, err := p.call(ctx, "DeleteRecord", map[string]any{"Domain": zoneID, "RecordId": id}); err != nil {
		return false, err
	}
	return true, nil
}

func (p *tc3Provider) SetRecordStatus(ctx context.Context, zoneID, recordID string, enabled bool) (bool, error) {
	id, err := strconv.ParseUint(recordID, 10, 64)
	if err != nil {
		return false, &types.Error{Kind: types.InvalidValue, Message: "invalid record id: " + recordID}
	}
	status := "DISABLE"
	if enabled {
		status = "ENABLE"
	}
	if _, err := p.call(ctx, "ModifyRecordStatus", map[string]any{"Domain": zoneID, "RecordId": id, "Status": status}); err != nil {
		return false, err
	}
	return true, nil
}

func (p *tc3Provider) GetLines(ctx context.Context, zoneID string) (types.LineList, error) {
	result, err := p.call(ctx, "DescribeRecordLineList", map[string]any{"Domain": zoneID, "DomainGrade": "DP_FREE"})
	if err != nil {
		return types.LineList{}, err
	}
	var parsed struct {
		LineList []struct {
			Name     string `json:"Name"`
			LineId   string `json:"LineId"`
		} `json:"LineList"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return types.LineList{}, &types.Error{Kind: types.InvalidResponse, Message: err.Error()}
	}
	out := []types.DnsLine{{Code: types.DefaultLineCode, Name: "default"}}
	for _, l := range parsed.LineList {
		code := l.LineId
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

// GetMinTTL reports the domain-purview-reported minimum (spec §4.9);
// falls back to 600 if the vendor doesn't report one.
func (p *tc3Provider) GetMinTTL(ctx context.Context, zoneID string) int {
	result, err := p.call(ctx, "DescribeDomain", map[string]any{"Domain": zoneID})
	if err != nil {
		return 600
	}
	var parsed struct {
		DomainInfo struct {
			MinTTL int `json:"TTL"`
		} `json:"DomainInfo"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil || parsed.DomainInfo.MinTTL == 0 {
		return 600
	}
	return parsed.DomainInfo.MinTTL
}

func applyOptionalFields(body map[string]any, params types.RecordParams) {
	if params.Line != "" {
		code := params.Line
		if vendorCode, ok := lineNameToCode[params.Line]; ok {
			code = vendorCode
		}
		body["RecordLine"] = vendorLineName(code)
		body["RecordLineId"] = code
	} else {
		body["RecordLine"] = "默认"
		body["RecordLineId"] = "0"
	}
	if params.Priority != nil && (params.Type == "MX" || params.Type == "SRV") {
		body["MX"] = *params.Priority
	}
	if params.Weight != nil {
		body["Weight"] = *params.Weight
	}
}

func vendorLineName(code string) string {
	switch code {
	case "0":
		return "默认"
	case "1":
		return "电信"
	case "2":
		return "联通"
	case "3":
		return "移动"
	case "99":
		return "教育网"
	case "100":
		return "境外"
	case "80":
		return "搜索引擎"
	default:
		return "默认"
	}
}

// tc3Type maps the canonical URL-forward tokens onto the modern API's
// vendor spellings; reads come back through canonicalType.
func tc3Type(canonical string) string {
	switch canonical {
	case "REDIRECT_URL":
		return "URL"
	case "FORWARD_URL":
		return "隐性URL"
	default:
		return canonical
	}
}

// toSubDomain converts a canonical FQDN to DNSPod's SubDomain field: the
// apex is "@" (spec §4.5 rule 1).
func toSubDomain(zone, fqdn string) string {
	name := baseprovider.NormalizeName(fqdn)
	zone = baseprovider.NormalizeName(zone)
	if name == zone {
		return apexHost
	}
	return strings.TrimSuffix(name, "."+zone)
}

func fromSubDomain(zone, sub string) string {
	if sub == apexHost {
		return zone
	}
	return sub + "." + zone
}

type tc3Record struct {
	RecordId   uint64 `json:"RecordId"`
	Name       string `json:"Name"`
	Type       string `json:"Type"`
	Value      string `json:"Value"`
	TTL        int    `json:"TTL"`
	Line       string `json:"Line"`
	LineId     string `json:"LineId"`
	MX         int    `json:"MX"`
	Weight     *int   `json:"Weight,omitempty"`
	Status     string `json:"Status"`
	Remark     string `json:"Remark"`
}

func (r tc3Record) toRecord(zoneID string) types.DnsRecord {
	status := ""
	switch strings.ToUpper(r.Status) {
	case "ENABLE":
		status = "1"
	case "DISABLE":
		status = "0"
	}
	line := r.LineId
	if canonical, ok := lineCodeToName[line]; ok {
		line = canonical
	}
	var priority *int
	if r.Type == "MX" || r.Type == "SRV" {
		mx := r.MX
		priority = &mx
	}
	return types.DnsRecord{
		ID:       strconv.FormatUint(r.RecordId, 10),
		ZoneID:   zoneID,
		ZoneName: zoneID,
		Name:     fromSubDomain(zoneID, r.Name),
		Type:     canonicalType(r.Type),
		Value:    r.Value,
		TTL:      r.TTL,
		Line:     line,
		Priority: priority,
		Weight:   r.Weight,
		Status:   status,
		Remark:   r.Remark,
	}
}

func (p *tc3Provider) call(ctx context.Context, action string, body map[string]any) (json.RawMessage, error) {
	raw, _ := json.Marshal(body)
	headers := p.signer.Sign(action, tc3Version, raw)
	headers["Host"] = tc3Host

	result, err := p.base.WithRetry(func(attempt int) (any, error) {
		resp, err := p.exec.Execute(ctx, transport.Request{
			Method:    http.MethodPost,
			URL:       "https://" + tc3Host + "/",
			Headers:   headers,
			Body:      raw,
			ParseJSON: true,
		})
		if err != nil {
			return nil, err
		}
		var env struct {
			Response struct {
				Error *struct {
					Code    string `json:"Code"`
					Message string `json:"Message"`
				} `json:"Error"`
			} `json:"Response"`
		}
		responseRaw, _ := json.Marshal(resp.JSON)
		if err := json.Unmarshal(responseRaw, &env); err != nil {
			return nil, &types.Error{Kind: types.InvalidResponse, Message: err.Error(), HTTPStatus: resp.Status}
		}
		if env.Response.Error != nil {
			kind := types.VendorError
			switch {
			case strings.Contains(env.Response.Error.Code, "AuthFailure"):
				kind = types.AuthFailed
			case strings.Contains(env.Response.Error.Code, "ResourceNotFound"):
				kind = types.ZoneNotFound
			case strings.Contains(env.Response.Error.Code, "RequestLimitExceeded"):
				kind = types.RateLimited
			}
			return nil, p.base.NewError(kind, env.Response.Error.Code, env.Response.Error.Message, resp.Status, nil)
		}
		responseBody, _ := json.Marshal(resp.JSON["Response"])
		return json.RawMessage(responseBody), nil
	})
	if err != nil {
		return nil, err
	}
	return result.(json.RawMessage), nil
}
