package keyprovider

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"slices"

	"github.com/turtacn/realmkeys/internal/domain/models"
	"github.com/turtacn/realmkeys/internal/domain/service"
	"github.com/turtacn/realmkeys/pkg/constants"
	"github.com/turtacn/realmkeys/pkg/errors"
)

// RSAProvider serves RS256 keys. The rsa-generated variant creates key pairs, the rsa
// variant imports a supplied private key.
type RSAProvider struct {
	id       constants.ProviderID
	generate bool
}

// NewRSAGeneratedProvider creates the provider that generates fresh RSA key pairs.
func NewRSAGeneratedProvider() *RSAProvider {
	return &RSAProvider{id: constants.ProviderRSAGenerated, generate: true}
}

// NewRSAImportProvider creates the provider that imports PEM encoded RSA private keys.
func NewRSAImportProvider() *RSAProvider {
	return &RSAProvider{id: constants.ProviderRSA}
}

var _ service.KeyProvider = (*RSAProvider)(nil)

func (p *RSAProvider) ID() constants.ProviderID          { return p.id }
func (p *RSAProvider) Algorithm() constants.JWTAlgorithm { return constants.AlgorithmRS256 }

// Generate creates an RSA key pair of spec.Bits (default 2048).
func (p *RSAProvider) Generate(ctx context.Context, spec models.KeySpec) (*models.KeyMaterial, error) {
	if !p.generate {
		return nil, errors.ErrInvalidRequest(fmt.Sprintf("provider %s requires a privateKey", p.id))
	}
	bits := spec.Bits
	if bits == 0 {
		bits = constants.DefaultRSAKeySize
	}
	if !slices.Contains(constants.AllowedRSAKeySizes, bits) {
		return nil, errors.ErrInvalidRequest(fmt.Sprintf("unsupported RSA key size %d", bits))
	}

	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}
	return p.material(key)
}

// Import validates an RSA private key (PKCS#1 or PKCS#8 PEM) and derives its public half.
func (p *RSAProvider) Import(ctx context.Context, privateKeyPEM string) (*models.KeyMaterial, error) {
	if p.generate {
		return nil, errors.ErrInvalidRequest(fmt.Sprintf("provider %s does not accept a privateKey", p.id))
	}
	signer, err := parsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, errors.ErrInvalidRequest("invalid privateKey").WithCause(err)
	}
	key, ok := signer.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.ErrInvalidRequest(fmt.Sprintf("provider %s expects an RSA key, got %T", p.id, signer))
	}
	if key.N.BitLen() < constants.DefaultRSAKeySize {
		return nil, errors.ErrInvalidRequest(fmt.Sprintf("RSA key size %d is below %d", key.N.BitLen(), constants.DefaultRSAKeySize))
	}
	return p.material(key)
}

func (p *RSAProvider) material(key *rsa.PrivateKey) (*models.KeyMaterial, error) {
	privatePEM, err := encodePrivateKey(key)
	if err != nil {
		return nil, err
	}
	publicPEM, err := encodePublicKey(&key.PublicKey)
	if err != nil {
		return nil, err
	}
	return &models.KeyMaterial{
		Algorithm:     constants.AlgorithmRS256,
		PublicKeyPEM:  publicPEM,
		PrivateKeyPEM: privatePEM,
	}, nil
}

// Load parses the record's material.
func (p *RSAProvider) Load(record *models.KeyRecord) (*models.ResolvedKey, error) {
	return loadRecord(record, constants.AlgorithmRS256, func(pub interface{}) bool {
		_, ok := pub.(*rsa.PublicKey)
		return ok
	})
}
