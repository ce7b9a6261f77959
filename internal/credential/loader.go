package credential

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tinywideclouds/go-push-dispatcher/pkg/push"
)

// serviceAccount is the subset of a Google service-account key file we read.
type serviceAccount struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	ProjectID   string `json:"project_id"`
}

// Loader parses the service-account blob captured from configuration at
// process start. It is safe for concurrent use.
type Loader struct {
	raw string
}

func NewLoader(rawServiceAccount string) *Loader {
	return &Loader{raw: rawServiceAccount}
}

// Load parses the blob on every call; nothing is cached between dispatches.
func (l *Loader) Load() (push.ServiceCredential, error) {
	if strings.TrimSpace(l.raw) == "" {
		return push.ServiceCredential{}, push.ErrMissingConfiguration
	}

	var sa serviceAccount
	if err := json.Unmarshal([]byte(l.raw), &sa); err != nil {
		return push.ServiceCredential{}, fmt.Errorf("%w: %v", push.ErrMalformedCredential, err)
	}

	var missing []string
	if sa.PrivateKey == "" {
		missing = append(missing, "private_key")
	}
	if sa.ClientEmail == "" {
		missing = append(missing, "client_email")
	}
	if sa.ProjectID == "" {
		missing = append(missing, "project_id")
	}
	if len(missing) > 0 {
		return push.ServiceCredential{}, fmt.Errorf("%w: missing %s", push.ErrMalformedCredential, strings.Join(missing, ", "))
	}

	return push.ServiceCredential{
		ClientEmail:   sa.ClientEmail,
		PrivateKeyPEM: sa.PrivateKey,
		ProjectID:     sa.ProjectID,
	}, nil
}
