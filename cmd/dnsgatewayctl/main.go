// Command dnsgatewayctl is an operator CLI over the facade: it exercises
// every operation the gateway exposes without requiring a running HTTP
// route layer, in the spirit of the teacher's cmd/external-dns entry
// point (flag parsing via kingpin, structured logging via logrus).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kingpin"
	log "github.com/sirupsen/logrus"

	"github.com/clouddns-gateway/dns-gateway/internal/cache"
	"github.com/clouddns-gateway/dns-gateway/internal/config"
	"github.com/clouddns-gateway/dns-gateway/internal/facade"
	"github.com/clouddns-gateway/dns-gateway/internal/types"
)

var (
	app = kingpin.New("dnsgatewayctl", "Operator CLI for the multi-tenant DNS gateway facade.")

	logFormat = app.Flag("log-format", `log output format: "text" or "json"`).Default("text").Enum("text", "json")
	logLevel  = app.Flag("log-level", "logrus level").Default("info").String()

	configFile = app.Flag("config-file", "YAML file of named credential profiles (see internal/config)").String()
	profileName = app.Flag("profile", "profile name to load from --config-file").String()

	provider    = app.Flag("provider", "provider kind (cloudflare, aliyun, dnspod, huawei, baidu, westcn, volcengine, jdcloud, dnsla, namesilo, powerdns, spaceship)").Short('p').String()
	credentialKey = app.Flag("credential-key", "stable cache-namespace key for this credential set").String()
	secretFlags = app.Flag("secret", "credential field as key=value; repeatable").Short('s').Strings()

	capabilitiesCmd = app.Command("capabilities", "print the full capability catalog as JSON")

	checkAuthCmd = app.Command("check-auth", "verify credentials against the upstream provider")

	zonesCmd     = app.Command("zones", "zone operations")
	zonesList    = zonesCmd.Command("list", "list zones")
	zonesListPage = zonesList.Flag("page", "page number").Default("1").Int()
	zonesListSize = zonesList.Flag("page-size", "page size").Default("100").Int()
	zonesListKeyword = zonesList.Flag("keyword", "filter zones by substring").String()
	zonesGet     = zonesCmd.Command("get", "get one zone")
	zonesGetName = zonesGet.Arg("zone", "zone name or ID").Required().String()
	zonesAdd     = zonesCmd.Command("add", "create a zone")
	zonesAddName = zonesAdd.Arg("name", "zone name").Required().String()

	recordsCmd     = app.Command("records", "record operations")
	recordsZone    = recordsCmd.Flag("zone", "zone name or ID").Short('z').Required().String()
	recordsList    = recordsCmd.Command("list", "list records")
	recordsListType = recordsList.Flag("type", "filter by record type").String()
	recordsListSub  = recordsList.Flag("subdomain", "filter by subdomain substring").String()
	recordsListPage = recordsList.Flag("page", "page number").Default("1").Int()
	recordsListSize = recordsList.Flag("page-size", "page size").Default("100").Int()
	recordsGet      = recordsCmd.Command("get", "get one record")
	recordsGetID    = recordsGet.Arg("id", "record id").Required().String()
	recordsCreate   = recordsCmd.Command("create", "create a record")
	recordsUpdate   = recordsCmd.Command("update", "update a record")
	recordsUpdateID = recordsUpdate.Arg("id", "record id").Required().String()
	recordsDelete   = recordsCmd.Command("delete", "delete a record")
	recordsDeleteID = recordsDelete.Arg("id", "record id").Required().String()
	recordsStatus   = recordsCmd.Command("set-status", "enable or disable a record")
	recordsStatusID = recordsStatus.Arg("id", "record id").Required().String()
	recordsStatusEnabled = recordsStatus.Arg("enabled", "true or false").Required().Bool()

	recName     = recordsCmd.Flag("name", "record name (FQDN)").String()
	recType     = recordsCmd.Flag("type", "record type").String()
	recValue    = recordsCmd.Flag("value", "record value").String()
	recTTL      = recordsCmd.Flag("ttl", "record ttl in seconds").Default("600").Int()
	recLine     = recordsCmd.Flag("line", "resolution line code").String()
	recPriority = recordsCmd.Flag("priority", "MX/SRV priority").Int()
	recRemark   = recordsCmd.Flag("remark", "free-text remark").String()

	linesCmd = app.Command("lines", "list resolution lines for a zone")
	linesZone = linesCmd.Arg("zone", "zone name or ID").Required().String()

	minTTLCmd = app.Command("min-ttl", "report the minimum TTL a zone accepts")
	minTTLZone = minTTLCmd.Arg("zone", "zone name or ID").Required().String()

	clearCacheCmd = app.Command("clear-cache", "invalidate cached entries")
	clearCacheScope = clearCacheCmd.Flag("scope", "zones, records, or all").Default("all").Enum("zones", "records", "all")
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	if *logFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}
	if level, err := log.ParseLevel(*logLevel); err == nil {
		log.SetLevel(level)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	f := facade.New()

	if command == capabilitiesCmd.FullCommand() {
		printJSON(facade.Capabilities())
		return
	}

	sc := serviceContext()
	if sc.Kind == "" && command != capabilitiesCmd.FullCommand() {
		log.Fatal("--provider is required (directly, or via --config-file/--profile)")
	}

	switch command {
	case checkAuthCmd.FullCommand():
		printJSON(map[string]bool{"ok": f.CheckAuth(ctx, sc)})

	case zonesList.FullCommand():
		result, err := f.GetZones(ctx, sc, *zonesListPage, *zonesListSize, *zonesListKeyword)
		fatalOrPrint(result, err)

	case zonesGet.FullCommand():
		result, err := f.GetZone(ctx, sc, *zonesGetName)
		fatalOrPrint(result, err)

	case zonesAdd.FullCommand():
		result, err := f.AddZone(ctx, sc, *zonesAddName)
		fatalOrPrint(result, err)

	case recordsList.FullCommand():
		q := types.RecordQuery{
			Page:      *recordsListPage,
			PageSize:  *recordsListSize,
			Type:      *recordsListType,
			SubDomain: *recordsListSub,
		}
		result, err := f.GetRecords(ctx, sc, *recordsZone, q)
		fatalOrPrint(result, err)

	case recordsGet.FullCommand():
		result, err := f.GetRecord(ctx, sc, *recordsZone, *recordsGetID)
		fatalOrPrint(result, err)

	case recordsCreate.FullCommand():
		result, err := f.CreateRecord(ctx, sc, *recordsZone, recordParams())
		fatalOrPrint(result, err)

	case recordsUpdate.FullCommand():
		result, err := f.UpdateRecord(ctx, sc, *recordsZone, *recordsUpdateID, recordParams())
		fatalOrPrint(result, err)

	case recordsDelete.FullCommand():
		result, err := f.DeleteRecord(ctx, sc, *recordsZone, *recordsDeleteID)
		fatalOrPrint(map[string]bool{"deleted": result}, err)

	case recordsStatus.FullCommand():
		result, err := f.SetRecordStatus(ctx, sc, *recordsZone, *recordsStatusID, *recordsStatusEnabled)
		fatalOrPrint(map[string]bool{"ok": result}, err)

	case linesCmd.FullCommand():
		result, err := f.GetLines(ctx, sc, *linesZone)
		fatalOrPrint(result, err)

	case minTTLCmd.FullCommand():
		printJSON(map[string]int{"minTtl": f.GetMinTTL(ctx, sc, *minTTLZone)})

	case clearCacheCmd.FullCommand():
		f.ClearCache(ctx, sc, cache.Scope(*clearCacheScope), "")
		printJSON(map[string]string{"status": "ok"})

	default:
		log.Fatalf("unrecognized command: %s", command)
	}
}

func recordParams() types.RecordParams {
	params := types.RecordParams{
		Name:  *recName,
		Type:  *recType,
		Value: *recValue,
		TTL:   *recTTL,
		Line:  *recLine,
	}
	if *recPriority != 0 {
		p := *recPriority
		params.Priority = &p
	}
	if *recRemark != "" {
		r := *recRemark
		params.Remark = &r
	}
	return params
}

// serviceContext builds the ServiceContext either from a named profile in
// --config-file, or from the --provider/--secret/--credential-key flags;
// the config file wins when both are given.
func serviceContext() types.ServiceContext {
	if *configFile != "" {
		f, err := config.Load(*configFile)
		if err != nil {
			log.Fatal(err.Error())
		}
		name := *profileName
		if name == "" {
			log.Fatal("--profile is required when --config-file is set")
		}
		p, err := f.Find(name)
		if err != nil {
			log.Fatal(err.Error())
		}
		return p.ServiceContext()
	}
	return types.ServiceContext{
		Kind:          types.ProviderKind(*provider),
		Secrets:       parseSecrets(*secretFlags),
		CredentialKey: *credentialKey,
	}
}

func parseSecrets(pairs []string) map[string]string {
	out := map[string]string{}
	for _, pair := range pairs {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			log.Fatalf("--secret must be key=value, got %q", pair)
		}
		out[kv[0]] = kv[1]
	}
	return out
}

func fatalOrPrint(v any, err error) {
	if err != nil {
		if ge, ok := types.AsError(err); ok {
			log.Fatalf("%s: %s", ge.Kind, ge.Message)
		}
		log.Fatal(err.Error())
	}
	printJSON(v)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
