package persistence

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/hashicorp/vault/api"
	"github.com/spounge-ai/medvault/internal/constants"
	"github.com/spounge-ai/medvault/internal/infra/config"
)

const vaultValueField = "value"

// VaultStorage keeps values in a HashiCorp Vault KV v2 mount, one secret per key.
type VaultStorage struct {
	client *api.Client
	mount  string
	prefix string
}

func NewVaultStorage(cfg config.HashiCorpVaultConfig) (*VaultStorage, error) {
	vc := api.DefaultConfig()
	if cfg.Address != "" {
		vc.Address = cfg.Address
	}

	client, err := api.NewClient(vc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}

	return &VaultStorage{
		client: client,
		mount:  strings.Trim(cfg.MountPath, "/"),
		prefix: strings.Trim(cfg.PathPrefix, "/"),
	}, nil
}

func (v *VaultStorage) Name() string { return constants.BackendVault }

func (v *VaultStorage) secretPath(key string) string {
	if v.prefix == "" {
		return key
	}
	return path.Join(v.prefix, key)
}

func (v *VaultStorage) Get(ctx context.Context, key string) ([]byte, error) {
	secret, err := v.client.KVv2(v.mount).Get(ctx, v.secretPath(key))
	if err != nil {
		if errors.Is(err, api.ErrSecretNotFound) {
			return nil, notFound(v.Name(), key)
		}
		return nil, fmt.Errorf("failed to read secret from Vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, notFound(v.Name(), key)
	}

	encoded, ok := secret.Data[vaultValueField].(string)
	if !ok {
		return nil, fmt.Errorf("secret %q has no %s field", key, vaultValueField)
	}
	value, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode secret %q: %w", key, err)
	}
	return value, nil
}

func (v *VaultStorage) Put(ctx context.Context, key string, value []byte) error {
	_, err := v.client.KVv2(v.mount).Put(ctx, v.secretPath(key), map[string]interface{}{
		vaultValueField: base64.StdEncoding.EncodeToString(value),
	})
	if err != nil {
		return fmt.Errorf("failed to write secret to Vault: %w", err)
	}
	return nil
}

// Delete removes every version of the secret.
func (v *VaultStorage) Delete(ctx context.Context, key string) error {
	if err := v.client.KVv2(v.mount).DeleteMetadata(ctx, v.secretPath(key)); err != nil {
		return fmt.Errorf("failed to delete secret from Vault: %w", err)
	}
	return nil
}

func (v *VaultStorage) List(ctx context.Context, prefix string) ([]string, error) {
	secret, err := v.client.Logical().ListWithContext(ctx, path.Join(v.mount, "metadata", v.prefix))
	if err != nil {
		return nil, fmt.Errorf("failed to list secrets in Vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, nil
	}

	raw, _ := secret.Data["keys"].([]interface{})
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		name, ok := k.(string)
		if !ok || strings.HasSuffix(name, "/") || !strings.HasPrefix(name, prefix) {
			continue
		}
		keys = append(keys, name)
	}
	sort.Strings(keys)
	return keys, nil
}

func (v *VaultStorage) HealthCheck(ctx context.Context) error {
	health, err := v.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}
	return nil
}
