package keyprovider

import (
	"fmt"

	"github.com/turtacn/realmkeys/internal/domain/models"
	"github.com/turtacn/realmkeys/pkg/constants"
)

// loadRecord parses a record's PEM material and checks that it belongs to alg and
// that the private key, when present, matches the published public key.
func loadRecord(record *models.KeyRecord, alg constants.JWTAlgorithm, acceptPublic func(interface{}) bool) (*models.ResolvedKey, error) {
	if record.Algorithm != alg {
		return nil, fmt.Errorf("key %s has algorithm %s, provider serves %s", record.ID, record.Algorithm, alg)
	}

	pub, err := parsePublicKey(record.PublicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("key %s: %w", record.ID, err)
	}
	if !acceptPublic(pub) {
		return nil, fmt.Errorf("key %s: public key type %T does not match %s", record.ID, pub, alg)
	}

	resolved := &models.ResolvedKey{Record: record.Clone(), PublicKey: pub}
	if record.PrivateKeyPEM == "" {
		return resolved, nil
	}

	priv, err := parsePrivateKey(record.PrivateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("key %s: %w", record.ID, err)
	}
	if !samePublicKey(pub, priv.Public()) {
		return nil, fmt.Errorf("key %s: private key does not match public key", record.ID)
	}
	resolved.PrivateKey = priv
	return resolved, nil
}
