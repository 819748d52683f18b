package config

import (
	"context"
	"errors"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// SecretAccessor reads one secret version payload.
type SecretAccessor interface {
	AccessSecretVersion(ctx context.Context, name string) (string, error)
}

// SecretManager reads secrets from Google Secret Manager.
type SecretManager struct {
	client *secretmanager.Client
}

func NewSecretManager(ctx context.Context) (*SecretManager, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create secret manager client: %w", err)
	}
	return &SecretManager{client: client}, nil
}

// AccessSecretVersion returns the payload of name, e.g.
// "projects/p/secrets/immutable-api-key/versions/latest".
func (s *SecretManager) AccessSecretVersion(ctx context.Context, name string) (string, error) {
	resp, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", fmt.Errorf("access secret %s: %w", name, err)
	}
	if resp == nil || resp.Payload == nil {
		return "", fmt.Errorf("secret %s has an empty payload", name)
	}
	return strings.TrimSpace(string(resp.Payload.Data)), nil
}

func (s *SecretManager) Close() error {
	return s.client.Close()
}

// ResolveProviderAPIKey fills Provider.APIKey from Secret Manager when a
// secret name is configured. It fails when no key is available at all.
func (c *Config) ResolveProviderAPIKey(ctx context.Context, secrets SecretAccessor) error {
	if c.Provider.APIKeySecret != "" {
		if secrets == nil {
			return errors.New("provider api key secret configured without a secret accessor")
		}
		key, err := secrets.AccessSecretVersion(ctx, c.Provider.APIKeySecret)
		if err != nil {
			return err
		}
		c.Provider.APIKey = key
	}
	if c.Provider.APIKey == "" {
		return errors.New("IMMUTABLE_API_KEY or IMMUTABLE_API_KEY_SECRET must be set")
	}
	return nil
}
