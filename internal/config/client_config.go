package config

import (
	"encoding/json"

	"github.com/jrsteele09/claimed-identity-cri/clients"
	"github.com/pkg/errors"
)

const clientConfigEnvVar = "CLIENT_CONFIG"

type ClientConfig interface {
	GetClients() ([]*clients.Client, error)
}

type Clients struct{}

var _ ClientConfig = Clients{}

// GetClients parses the JSON array held in CLIENT_CONFIG.
func (Clients) GetClients() ([]*clients.Client, error) {
	raw := GetEnv(clientConfigEnvVar, "")
	if raw == "" {
		return nil, errors.New(clientConfigEnvVar + " is required")
	}
	return ParseClients([]byte(raw))
}

// ParseClients decodes and checks a client configuration document.
func ParseClients(data []byte) ([]*clients.Client, error) {
	var list []*clients.Client
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, errors.Wrap(err, "invalid "+clientConfigEnvVar)
	}
	if len(list) == 0 {
		return nil, errors.New(clientConfigEnvVar + " must list at least one client")
	}
	for i, c := range list {
		if err := c.Validate(); err != nil {
			return nil, errors.Wrapf(err, "%s entry %d", clientConfigEnvVar, i)
		}
	}
	return list, nil
}
