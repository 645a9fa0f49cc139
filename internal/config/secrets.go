package config

import (
	"context"
	"fmt"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"
)

// SecretManager reads secrets from Google Secret Manager. It opens a client
// per call; secrets are only read once at startup.
type SecretManager struct {
	Options []option.ClientOption
}

func (s *SecretManager) AccessSecret(ctx context.Context, name string) (string, error) {
	client, err := secretmanager.NewClient(ctx, s.Options...)
	if err != nil {
		return "", fmt.Errorf("failed to create secret manager client: %w", err)
	}
	defer client.Close()

	resp, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", fmt.Errorf("failed to access secret %s: %w", name, err)
	}
	return string(resp.GetPayload().GetData()), nil
}
