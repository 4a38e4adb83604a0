// Package providers defines the capability-set interface every vendor
// adapter implements (C5, spec §4.5) and the constructor signature the
// registry (C6) uses to build one from a ServiceContext's secrets.
package providers

import (
	"context"

	"github.com/clouddns-gateway/dns-gateway/internal/types"
)

// Provider is the capability set every vendor adapter implements.
// AddZone is optional: adapters that cannot create zones (NameSilo,
// Spaceship, West.cn) return Unsupported.
type Provider interface {
	CheckAuth(ctx context.Context) bool

	GetZones(ctx context.Context, page, pageSize int, keyword string) (types.ZoneList, error)
	GetZone(ctx context.Context, zoneIDOrName string) (types.Zone, error)

	GetRecords(ctx context.Context, zoneID string, query types.RecordQuery) (types.RecordList, error)
	GetRecord(ctx context.Context, zoneID, recordID string) (types.DnsRecord, error)
	CreateRecord(ctx context.Context, zoneID string, params types.RecordParams) (types.DnsRecord, error)
	UpdateRecord(ctx context.Context, zoneID, recordID string, params types.RecordParams) (types.DnsRecord, error)
	DeleteRecord(ctx context.Context, zoneID, recordID string) (bool, error)
	SetRecordStatus(ctx context.Context, zoneID, recordID string, enabled bool) (bool, error)

	GetLines(ctx context.Context, zoneID string) (types.LineList, error)
	GetMinTTL(ctx context.Context, zoneID string) int

	AddZone(ctx context.Context, name string) (types.Zone, error)

	Capabilities() types.Capabilities
}

// Constructor builds a Provider from the decrypted secret map a
// ServiceContext carries. Implementations validate required fields and
// return MissingCredentials when absent.
type Constructor func(secrets map[string]string) (Provider, error)
