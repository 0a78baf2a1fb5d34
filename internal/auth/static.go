package auth

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	httperr "github.com/pulseops-lab/pulseops/internal/core/errors"
	"gopkg.in/yaml.v3"
)

// staticKeyFile is the YAML layout of auth.keys_file:
//
//	keys:
//	  - key: "pk_live_..."
//	    org_id: "..."
//	    project_id: "..."
type staticKeyFile struct {
	Keys []struct {
		Key       string `yaml:"key"`
		KeyID     string `yaml:"key_id"`
		OrgID     string `yaml:"org_id"`
		ProjectID string `yaml:"project_id"`
	} `yaml:"keys"`
}

// StaticAuthenticator resolves credentials from a fixed table.
type StaticAuthenticator struct {
	keys map[string]Principal
}

var _ Authenticator = (*StaticAuthenticator)(nil)

func NewStaticAuthenticator(keys map[string]Principal) *StaticAuthenticator {
	return &StaticAuthenticator{keys: keys}
}

// LoadStaticAuthenticator reads a YAML key file.
func LoadStaticAuthenticator(path string) (*StaticAuthenticator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keys file: %w", err)
	}

	var f staticKeyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse keys file %s: %w", path, err)
	}

	keys := make(map[string]Principal, len(f.Keys))
	for i, k := range f.Keys {
		if k.Key == "" || k.OrgID == "" {
			return nil, fmt.Errorf("keys file %s: entry %d needs key and org_id", path, i)
		}
		if _, dup := keys[k.Key]; dup {
			return nil, fmt.Errorf("keys file %s: entry %d repeats a key", path, i)
		}
		keys[k.Key] = Principal{KeyID: k.KeyID, OrgID: k.OrgID, ProjectID: k.ProjectID}
	}

	slog.Info("[Auth] Loaded static api keys", "path", path, "count", len(keys))
	return NewStaticAuthenticator(keys), nil
}

func (s *StaticAuthenticator) Authenticate(ctx context.Context, credential string) (Principal, error) {
	if credential == "" {
		return Principal{}, httperr.ErrMissingCredential
	}
	p, ok := s.keys[credential]
	if !ok {
		return Principal{}, httperr.ErrInvalidCredential
	}
	return p, nil
}

func (s *StaticAuthenticator) Invalidate(context.Context, string) error {
	return nil
}

// DisabledAuthenticator accepts every request as a fixed development tenant.
type DisabledAuthenticator struct {
	principal Principal
}

var _ Authenticator = (*DisabledAuthenticator)(nil)

func NewDisabledAuthenticator(p Principal) *DisabledAuthenticator {
	slog.Warn("[Auth] AUTHENTICATION DISABLED: every request is attributed to the development tenant. Never run this in production.",
		"org_id", p.OrgID,
		"project_id", p.ProjectID)
	return &DisabledAuthenticator{principal: p}
}

func (d *DisabledAuthenticator) Authenticate(context.Context, string) (Principal, error) {
	return d.principal, nil
}

func (d *DisabledAuthenticator) Invalidate(context.Context, string) error {
	return nil
}
