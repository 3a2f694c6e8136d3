package identity

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
)

// KeyPair holds a signing key and its address.
type KeyPair struct {
	PrivateKey *ec.PrivateKey
	Address    Address
}

// NewKeyPair generates a fresh secp256k1 key.
func NewKeyPair() (*KeyPair, error) {
	priv, err := ec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("identity: generate key: %w", err)
	}
	addr, err := FromPublicKey(priv.PubKey())
	if err != nil {
		return nil, err
	}
	return &KeyPair{PrivateKey: priv, Address: addr}, nil
}

// LoadKeyFile reads a WIF-encoded private key from path.
func LoadKeyFile(path string) (*KeyPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("identity: read key file: %w", err)
	}
	priv, err := ec.PrivateKeyFromWif(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("identity: parse WIF: %w", err)
	}
	addr, err := FromPublicKey(priv.PubKey())
	if err != nil {
		return nil, err
	}
	return &KeyPair{PrivateKey: priv, Address: addr}, nil
}

// SaveKeyFile writes the key as WIF with owner-only permissions.
func SaveKeyFile(path string, kp *KeyPair) error {
	if kp == nil || kp.PrivateKey == nil {
		return fmt.Errorf("%w: key pair", ErrNilParam)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("identity: create directory: %w", err)
	}
	return os.WriteFile(path, []byte(kp.PrivateKey.Wif()+"\n"), 0600)
}
