// Package vault stores key records as KV version 2 secrets in HashiCorp Vault.
// Each record lives at <mount>/data/<base>/<tenant>/<id>.
package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"time"

	"github.com/google/uuid"
	vault "github.com/hashicorp/vault/api"

	"github.com/turtacn/realmkeys/internal/config"
	"github.com/turtacn/realmkeys/internal/domain/models"
	"github.com/turtacn/realmkeys/internal/domain/repository"
	"github.com/turtacn/realmkeys/internal/domain/service"
	"github.com/turtacn/realmkeys/pkg/errors"
	"github.com/turtacn/realmkeys/pkg/logger"
)

// KeyRepository is a Vault backed implementation of repository.KeyRepository.
type KeyRepository struct {
	client  *vault.Client
	mount   string
	base    string
	logger  logger.Logger
	metrics service.Metrics
}

// NewClient creates a Vault API client from configuration.
func NewClient(cfg config.VaultConfig) (*vault.Client, error) {
	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = cfg.Address
	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	return client, nil
}

// NewKeyRepository creates a new Vault KeyRepository.
func NewKeyRepository(cfg config.VaultConfig, client *vault.Client, log logger.Logger, metrics service.Metrics) *KeyRepository {
	if metrics == nil {
		metrics = service.NoopMetrics{}
	}
	mount := cfg.MountPath
	if mount == "" {
		mount = "secret"
	}
	base := cfg.BasePath
	if base == "" {
		base = "realmkeys/keys"
	}
	return &KeyRepository{
		client:  client,
		mount:   mount,
		base:    base,
		logger:  log.WithComponent("VaultKeyRepository"),
		metrics: metrics,
	}
}

var _ repository.KeyRepository = (*KeyRepository)(nil)

func (r *KeyRepository) dataPath(tenantID, id string) string {
	return path.Join(r.mount, "data", r.base, tenantID, id)
}

func (r *KeyRepository) metadataPath(tenantID string, id ...string) string {
	return path.Join(append([]string{r.mount, "metadata", r.base, tenantID}, id...)...)
}

func (r *KeyRepository) observe(operation string, start time.Time, err error) {
	r.metrics.RecordVaultAPI(operation, time.Since(start), err)
}

// Add writes the record. A missing ID or CreatedAt is filled in.
func (r *KeyRepository) Add(ctx context.Context, record *models.KeyRecord) (string, error) {
	if record.TenantID == "" {
		return "", errors.ErrInvalidRequest("tenant id is required")
	}
	rec := record.Clone()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.Status == "" {
		rec.Status = models.KeyStatusEnabled
	}

	existing, err := r.read(ctx, rec.TenantID, rec.ID)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return "", errors.ErrInvalidRequest("key id already exists")
	}

	data, err := toSecretData(rec)
	if err != nil {
		return "", err
	}
	start := time.Now()
	_, err = r.client.Logical().WriteWithContext(ctx, r.dataPath(rec.TenantID, rec.ID), map[string]interface{}{
		"data": data,
	})
	r.observe("write", start, err)
	if err != nil {
		r.logger.Error(ctx, "failed to write key to vault", err,
			logger.String("tenant_id", rec.TenantID), logger.String("kid", rec.ID))
		return "", fmt.Errorf("failed to write key to vault: %w", err)
	}
	return rec.ID, nil
}

// Remove deletes every version of the record's secret.
func (r *KeyRepository) Remove(ctx context.Context, tenantID, id string) (bool, error) {
	existing, err := r.read(ctx, tenantID, id)
	if err != nil || existing == nil {
		return false, err
	}
	start := time.Now()
	_, err = r.client.Logical().DeleteWithContext(ctx, r.metadataPath(tenantID, id))
	r.observe("delete", start, err)
	if err != nil {
		return false, fmt.Errorf("failed to delete key from vault: %w", err)
	}
	return true, nil
}

// List returns the tenant's records ordered by creation time, then ID.
func (r *KeyRepository) List(ctx context.Context, tenantID string) ([]*models.KeyRecord, error) {
	start := time.Now()
	secret, err := r.client.Logical().ListWithContext(ctx, r.metadataPath(tenantID))
	r.observe("list", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys in vault: %w", err)
	}
	if secret == nil || secret.Data["keys"] == nil {
		return []*models.KeyRecord{}, nil
	}
	ids, ok := secret.Data["keys"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid list response from vault")
	}

	records := make([]*models.KeyRecord, 0, len(ids))
	for _, raw := range ids {
		id, ok := raw.(string)
		if !ok {
			continue
		}
		rec, err := r.read(ctx, tenantID, id)
		if err != nil {
			return nil, err
		}
		// Deleted between LIST and GET.
		if rec == nil {
			continue
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})
	return records, nil
}

// Get returns the record or errors.ErrKeyNotFound.
func (r *KeyRepository) Get(ctx context.Context, tenantID, id string) (*models.KeyRecord, error) {
	rec, err := r.read(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errors.ErrKeyNotFound
	}
	return rec, nil
}

// read returns nil, nil when the secret does not exist.
func (r *KeyRepository) read(ctx context.Context, tenantID, id string) (*models.KeyRecord, error) {
	start := time.Now()
	secret, err := r.client.Logical().ReadWithContext(ctx, r.dataPath(tenantID, id))
	r.observe("read", start, err)
	if err != nil {
		return nil, fmt.Errorf("could not read key from vault: %w", err)
	}
	if secret == nil || secret.Data["data"] == nil {
		return nil, nil
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format in vault")
	}
	return fromSecretData(data)
}

func toSecretData(rec *models.KeyRecord) (map[string]interface{}, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	var data map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil {
		return nil, err
	}
	return data, nil
}

func fromSecretData(data map[string]interface{}) (*models.KeyRecord, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var rec models.KeyRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("invalid key record in vault: %w", err)
	}
	return &rec, nil
}
