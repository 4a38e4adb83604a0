package dnspod

import (
	"github.com/clouddns-gateway/dns-gateway/internal/providers"
	"github.com/clouddns-gateway/dns-gateway/internal/types"
)

// New dispatches to the TC3 or legacy-token adapter depending on which
// credential fields are present, wrapped behind the shared
// providers.Provider interface (spec §9).
func New(secrets map[string]string) (providers.Provider, error) {
	if secrets["secretId"] != "" && secrets["secretKey"] != "" {
		return newTC3Provider(secrets)
	}
	if secrets["username"] != "" && secrets["apiPassword"] != "" {
		return newLegacyProvider(secrets)
	}
	return nil, &types.Error{Kind: types.MissingCredentials, Message: "either secretId/secretKey or username/apiPassword are required"}
}
