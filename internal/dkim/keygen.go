package dkim

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultKeyBits is the RSA key size used when none is given
const DefaultKeyBits = 2048

// txtChunk is the longest character-string allowed in a TXT record
const txtChunk = 255

// KeyPair is a generated signing key with its DNS identity
type KeyPair struct {
	PrivateKey *rsa.PrivateKey
	Domain     string
	Selector   string
}

// GenerateKey creates an RSA key pair. bits below 1024 falls back to
// DefaultKeyBits.
func GenerateKey(domain, selector string, bits int) (*KeyPair, error) {
	if domain == "" || selector == "" {
		return nil, errors.New("domain and selector are required")
	}
	if bits < 1024 {
		bits = DefaultKeyBits
	}

	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}

	return &KeyPair{
		PrivateKey: key,
		Domain:     strings.ToLower(domain),
		Selector:   selector,
	}, nil
}

// SavePrivateKey writes the key as PKCS#1 PEM with 0600 permissions
func (kp *KeyPair) SavePrivateKey(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(kp.PrivateKey),
	})
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

// Signer returns a signer for this key pair
func (kp *KeyPair) Signer() *Signer {
	return NewSigner(kp.PrivateKey, kp.Domain, kp.Selector)
}

// DNSName returns the name of the TXT record
func (kp *KeyPair) DNSName() string {
	return fmt.Sprintf("%s._domainkey.%s", kp.Selector, kp.Domain)
}

// DNSRecord returns the TXT record value
func (kp *KeyPair) DNSRecord() (string, error) {
	pub, err := x509.MarshalPKIXPublicKey(&kp.PrivateKey.PublicKey)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}
	return "v=DKIM1; k=rsa; p=" + base64.StdEncoding.EncodeToString(pub), nil
}

// ZoneRecord returns the record in zone-file syntax, with the value split
// into quoted strings no longer than a TXT character-string allows.
func (kp *KeyPair) ZoneRecord() (string, error) {
	value, err := kp.DNSRecord()
	if err != nil {
		return "", err
	}

	var parts []string
	for len(value) > txtChunk {
		parts = append(parts, `"`+value[:txtChunk]+`"`)
		value = value[txtChunk:]
	}
	parts = append(parts, `"`+value+`"`)

	return fmt.Sprintf("%s. IN TXT ( %s )", kp.DNSName(), strings.Join(parts, " ")), nil
}

// LoadPrivateKey reads an RSA key from a PKCS#1 or PKCS#8 PEM file
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("key is not RSA")
		}
		return rsaKey, nil
	default:
		return nil, fmt.Errorf("unsupported key type: %s", block.Type)
	}
}
