// Package registry is the provider registry (C6): a static map from
// ProviderKind to an adapter constructor and its published Capabilities,
// built once at init time the way the teacher's provider package wires
// its init-time registration table.
package registry

import (
	"fmt"
	"sort"

	"github.com/clouddns-gateway/dns-gateway/internal/providers"
	"github.com/clouddns-gateway/dns-gateway/internal/providers/aliyun"
	"github.com/clouddns-gateway/dns-gateway/internal/providers/baidu"
	"github.com/clouddns-gateway/dns-gateway/internal/providers/cloudflare"
	"github.com/clouddns-gateway/dns-gateway/internal/providers/dnsla"
	"github.com/clouddns-gateway/dns-gateway/internal/providers/dnspod"
	"github.com/clouddns-gateway/dns-gateway/internal/providers/huawei"
	"github.com/clouddns-gateway/dns-gateway/internal/providers/jdcloud"
	"github.com/clouddns-gateway/dns-gateway/internal/providers/namesilo"
	"github.com/clouddns-gateway/dns-gateway/internal/providers/powerdns"
	"github.com/clouddns-gateway/dns-gateway/internal/providers/spaceship"
	"github.com/clouddns-gateway/dns-gateway/internal/providers/volcengine"
	"github.com/clouddns-gateway/dns-gateway/internal/providers/westcn"
	"github.com/clouddns-gateway/dns-gateway/internal/types"
)

type entry struct {
	construct    providers.Constructor
	capabilities types.Capabilities
}

// registered is built once at package init and never mutated afterward,
// so lookups need no locking.
var registered = map[types.ProviderKind]entry{}

func register(kind types.ProviderKind, construct providers.Constructor, capabilities types.Capabilities) {
	if capabilities.Kind != kind {
		panic(fmt.Sprintf("registry: capabilities.Kind %q does not match registered kind %q", capabilities.Kind, kind))
	}
	registered[kind] = entry{construct: construct, capabilities: capabilities}
}

func init() {
	register(types.Cloudflare, cloudflare.New, cloudflare.Capabilities())
	register(types.Aliyun, aliyun.New, aliyun.Capabilities())
	register(types.DNSPod, dnspod.New, dnspod.Capabilities())
	register(types.Huawei, huawei.New, huawei.Capabilities())
	register(types.Baidu, baidu.New, baidu.Capabilities())
	register(types.WestCN, westcn.New, westcn.Capabilities())
	register(types.Volcengine, volcengine.New, volcengine.Capabilities())
	register(types.JDCloud, jdcloud.New, jdcloud.Capabilities())
	register(types.DNSLA, dnsla.New, dnsla.Capabilities())
	register(types.NameSilo, namesilo.New, namesilo.Capabilities())
	register(types.PowerDNS, powerdns.New, powerdns.Capabilities())
	register(types.Spaceship, spaceship.New, spaceship.Capabilities())
}

// Kinds returns every registered ProviderKind in a stable, sorted order.
func Kinds() []types.ProviderKind {
	out := make([]types.ProviderKind, 0, len(registered))
	for k := range registered {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsSupported reports whether kind has a registered adapter.
func IsSupported(kind types.ProviderKind) bool {
	_, ok := registered[kind]
	return ok
}

// CapabilitiesFor returns the published Capabilities for kind.
func CapabilitiesFor(kind types.ProviderKind) (types.Capabilities, error) {
	e, ok := registered[kind]
	if !ok {
		return types.Capabilities{}, &types.Error{Kind: types.Unsupported, Message: "unknown provider kind: " + string(kind)}
	}
	return e.capabilities, nil
}

// AllCapabilities returns the full capability catalog in Kinds() order —
// the exact payload the UI/config layer consumes (spec §6).
func AllCapabilities() []types.Capabilities {
	kinds := Kinds()
	out := make([]types.Capabilities, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, registered[k].capabilities)
	}
	return out
}

// Construct builds a Provider instance for kind from secrets.
func Construct(kind types.ProviderKind, secrets map[string]string) (providers.Provider, error) {
	e, ok := registered[kind]
	if !ok {
		return nil, &types.Error{Kind: types.Unsupported, Message: "unknown provider kind: " + string(kind)}
	}
	return e.construct(secrets)
}
