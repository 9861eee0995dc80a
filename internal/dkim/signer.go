// Package dkim signs outgoing mail and manages DKIM keys.
package dkim

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"fmt"
	"strings"

	"github.com/emersion/go-msgauth/dkim"
)

// signedHeaders are the header fields covered by the signature
var signedHeaders = []string{
	"From", "To", "Reply-To", "Subject", "Date", "Message-ID",
	"MIME-Version", "Content-Type", "List-Unsubscribe",
}

// Signer adds a DKIM-Signature header for one signing domain
type Signer struct {
	key      crypto.Signer
	domain   string
	selector string
}

// NewSigner creates a signer for domain using the given selector
func NewSigner(key *rsa.PrivateKey, domain, selector string) *Signer {
	return &Signer{
		key:      key,
		domain:   strings.ToLower(domain),
		selector: selector,
	}
}

// NewSignerFromFile loads a PEM key and creates a signer
func NewSignerFromFile(keyFile, domain, selector string) (*Signer, error) {
	key, err := LoadPrivateKey(keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load DKIM key: %w", err)
	}
	return NewSigner(key, domain, selector), nil
}

// Sign returns message with a DKIM-Signature header prepended
func (s *Signer) Sign(message []byte) ([]byte, error) {
	options := &dkim.SignOptions{
		Domain:                 s.domain,
		Selector:               s.selector,
		Signer:                 s.key,
		Hash:                   crypto.SHA256,
		HeaderKeys:             signedHeaders,
		HeaderCanonicalization: dkim.CanonicalizationRelaxed,
		BodyCanonicalization:   dkim.CanonicalizationRelaxed,
	}

	var out bytes.Buffer
	if err := dkim.Sign(&out, bytes.NewReader(message), options); err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	return out.Bytes(), nil
}

// Covers reports whether mail from the given sender domain may be signed
// by this signer: the domain itself or any of its subdomains.
func (s *Signer) Covers(senderDomain string) bool {
	senderDomain = strings.ToLower(senderDomain)
	return senderDomain == s.domain || strings.HasSuffix(senderDomain, "."+s.domain)
}

// Domain returns the signing domain
func (s *Signer) Domain() string {
	return s.domain
}

// Selector returns the DKIM selector
func (s *Signer) Selector() string {
	return s.selector
}
