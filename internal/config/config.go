// Package config loads operator credential profiles from a YAML file, the
// way the teacher's per-vendor providers (e.g. alibabacloud) load a
// config file of access keys via gopkg.in/yaml.v2. One file can hold
// several named profiles so an operator scripting dnsgatewayctl does not
// have to repeat --secret flags for every invocation.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/clouddns-gateway/dns-gateway/internal/types"
)

// Profile is one named credential set for a single provider kind.
type Profile struct {
	Name          string            `yaml:"name"`
	Provider      string            `yaml:"provider"`
	CredentialKey string            `yaml:"credentialKey"`
	Secrets       map[string]string `yaml:"secrets"`
}

// File is the top-level shape of a profiles YAML file.
type File struct {
	Profiles []Profile `yaml:"profiles"`
}

// Load reads and parses a profiles file from path.
func Load(path string) (File, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("failed to read config file %q: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(contents, &f); err != nil {
		return File{}, fmt.Errorf("failed to parse config file %q: %w", path, err)
	}
	return f, nil
}

// Find returns the named profile, or an error if no profile by that name
// exists in f.
func (f File) Find(name string) (Profile, error) {
	for _, p := range f.Profiles {
		if p.Name == name {
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("no profile named %q in config file", name)
}

// ServiceContext converts p into the types.ServiceContext the facade
// expects.
func (p Profile) ServiceContext() types.ServiceContext {
	return types.ServiceContext{
		Kind:          types.ProviderKind(p.Provider),
		Secrets:       p.Secrets,
		CredentialKey: p.CredentialKey,
	}
}
