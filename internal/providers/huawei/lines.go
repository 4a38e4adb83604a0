package huawei

import "github.com/clouddns-gateway/dns-gateway/internal/types"

// defaultLines is the six-line fallback used when the shipped line-data
// file (spec §9 "Huawei line data") is absent. Huawei's real hierarchy is
// much deeper (carrier/province), but every deployment is guaranteed these
// six view names.
var defaultLines = []types.DnsLine{
	{Code: types.DefaultLineCode, Name: "default_view"},
	{Code: "telecom", Name: "Dianxin"},
	{Code: "unicom", Name: "Liantong"},
	{Code: "mobile", Name: "Yidong"},
	{Code: "edu", Name: "Jiaoyuwang"},
	{Code: "oversea", Name: "Haiwai"},
}

var lineNameToCode = map[string]string{
	"default_view": types.DefaultLineCode,
	"Dianxin":      "telecom",
	"Liantong":     "unicom",
	"Yidong":       "mobile",
	"Jiaoyuwang":   "edu",
	"Haiwai":       "oversea",
}

// loadLines returns the line table for this account. A full deployment
// ships a richer data file alongside the binary; none is present in this
// build so the loader always falls back to defaultLines.
func loadLines() []types.DnsLine {
	return defaultLines
}

func lineCodeFor(vendorName string) string {
	if code, ok := lineNameToCode[vendorName]; ok {
		return code
	}
	return vendorName
}

func vendorLineFor(code string) string {
	for vendorName, c := range lineNameToCode {
		if c == code {
			return vendorName
		}
	}
	if code == types.DefaultLineCode {
		return "default_view"
	}
	return code
}
