package keyprovider

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"

	"github.com/turtacn/realmkeys/internal/domain/models"
	"github.com/turtacn/realmkeys/internal/domain/service"
	"github.com/turtacn/realmkeys/pkg/constants"
	"github.com/turtacn/realmkeys/pkg/errors"
)

// ECDSAProvider generates ECDSA P-256 keys for ES256.
type ECDSAProvider struct{}

// NewECDSAGeneratedProvider creates a new ECDSAProvider.
func NewECDSAGeneratedProvider() *ECDSAProvider {
	return &ECDSAProvider{}
}

var _ service.KeyProvider = (*ECDSAProvider)(nil)

func (p *ECDSAProvider) ID() constants.ProviderID          { return constants.ProviderECDSAGenerated }
func (p *ECDSAProvider) Algorithm() constants.JWTAlgorithm { return constants.AlgorithmES256 }

// Generate creates a P-256 key pair. spec.Bits is ignored.
func (p *ECDSAProvider) Generate(ctx context.Context, spec models.KeySpec) (*models.KeyMaterial, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ECDSA key: %w", err)
	}
	privatePEM, err := encodePrivateKey(key)
	if err != nil {
		return nil, err
	}
	publicPEM, err := encodePublicKey(&key.PublicKey)
	if err != nil {
		return nil, err
	}
	return &models.KeyMaterial{
		Algorithm:     constants.AlgorithmES256,
		PublicKeyPEM:  publicPEM,
		PrivateKeyPEM: privatePEM,
	}, nil
}

// Import is not supported by the generated provider.
func (p *ECDSAProvider) Import(ctx context.Context, privateKeyPEM string) (*models.KeyMaterial, error) {
	return nil, errors.ErrInvalidRequest(fmt.Sprintf("provider %s does not accept a privateKey", constants.ProviderECDSAGenerated))
}

// Load parses the record's material. Only P-256 keys are accepted.
func (p *ECDSAProvider) Load(record *models.KeyRecord) (*models.ResolvedKey, error) {
	return loadRecord(record, constants.AlgorithmES256, func(pub interface{}) bool {
		k, ok := pub.(*ecdsa.PublicKey)
		return ok && k.Curve == elliptic.P256()
	})
}
