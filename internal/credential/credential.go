// Package credential loads the service account identity used to authorise
// calls to Google Drive, Cloud Storage and Sheets. A Credential is loaded once
// at process start and shared read-only by every client built from it; token
// refresh is left to the underlying oauth2 token source.
package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"

	"github.com/tomasbasham/drive-uploader/internal/config"
)

const serviceAccountType = "service_account"

// Source locates the secret material. JSON takes precedence over File.
type Source struct {
	JSON string
	File string
}

// SourceFrom returns the Source described by cfg.
func SourceFrom(cfg config.CredentialConfig) Source {
	return Source{JSON: cfg.JSON, File: cfg.File}
}

// Credential is an authenticated service account handle and the scopes it
// was granted.
type Credential struct {
	creds  *google.Credentials
	email  string
	scopes []string
}

// Email is the service account's client email.
func (c *Credential) Email() string { return c.email }

// Scopes returns a copy of the granted scopes.
func (c *Credential) Scopes() []string { return slices.Clone(c.scopes) }

// ClientOptions returns the options for building google.golang.org/api
// clients authorised by this credential.
func (c *Credential) ClientOptions() []option.ClientOption {
	return []option.ClientOption{option.WithCredentials(c.creds)}
}

type serviceAccountKey struct {
	Type        string `json:"type"`
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
}

// Load reads the service account described by src and scopes it. Any problem
// with the material is reported as a *config.Error.
func Load(ctx context.Context, src Source, scopes ...string) (*Credential, error) {
	if len(scopes) == 0 {
		return nil, config.Errorf("credential", "no scopes requested")
	}

	data, field, err := read(src)
	if err != nil {
		return nil, &config.Error{Field: field, Err: err}
	}

	var key serviceAccountKey
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, config.Errorf(field, "malformed service account JSON: %v", err)
	}
	if key.Type != serviceAccountType {
		return nil, config.Errorf(field, "credential type %q is not %q", key.Type, serviceAccountType)
	}
	if key.ClientEmail == "" || key.PrivateKey == "" {
		return nil, config.Errorf(field, "service account is missing client_email or private_key")
	}

	creds, err := google.CredentialsFromJSON(ctx, data, scopes...)
	if err != nil {
		return nil, &config.Error{Field: field, Err: fmt.Errorf("load service account: %w", err)}
	}

	return &Credential{
		creds:  creds,
		email:  key.ClientEmail,
		scopes: slices.Clone(scopes),
	}, nil
}

func read(src Source) ([]byte, string, error) {
	if src.JSON != "" {
		return []byte(src.JSON), "SERVICE_ACCOUNT_JSON", nil
	}
	if src.File == "" {
		return nil, "SERVICE_ACCOUNT_FILE", errors.New("no service account configured")
	}
	data, err := os.ReadFile(src.File)
	if err != nil {
		return nil, "SERVICE_ACCOUNT_FILE", fmt.Errorf("read %s: %w", src.File, err)
	}
	return data, "SERVICE_ACCOUNT_FILE", nil
}
