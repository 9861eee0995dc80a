package dkim

import (
	"bytes"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/emersion/go-msgauth/dkim"
)

// testKey is shared to keep RSA generation out of every test
var testKey *KeyPair

func keyPair(t *testing.T) *KeyPair {
	t.Helper()
	if testKey == nil {
		kp, err := GenerateKey("example.com", "mailpost", 1024)
		if err != nil {
			t.Fatalf("GenerateKey() error = %v", err)
		}
		testKey = kp
	}
	return testKey
}

func TestGenerateKey(t *testing.T) {
	if _, err := GenerateKey("", "mailpost", 0); err == nil {
		t.Error("GenerateKey() without domain should fail")
	}

	kp := keyPair(t)
	if kp.PrivateKey.N.BitLen() != 1024 {
		t.Errorf("key size = %d, want 1024", kp.PrivateKey.N.BitLen())
	}
	if got := kp.DNSName(); got != "mailpost._domainkey.example.com" {
		t.Errorf("DNSName() = %q", got)
	}

	record, err := kp.DNSRecord()
	if err != nil {
		t.Fatalf("DNSRecord() error = %v", err)
	}
	if !strings.HasPrefix(record, "v=DKIM1; k=rsa; p=") {
		t.Errorf("DNSRecord() = %q", record)
	}
}

func TestZoneRecord(t *testing.T) {
	kp := keyPair(t)

	zone, err := kp.ZoneRecord()
	if err != nil {
		t.Fatalf("ZoneRecord() error = %v", err)
	}
	if !strings.HasPrefix(zone, "mailpost._domainkey.example.com. IN TXT (") {
		t.Errorf("ZoneRecord() = %q", zone)
	}

	inner := zone[strings.Index(zone, "(")+1 : strings.LastIndex(zone, ")")]
	for _, part := range strings.Fields(inner) {
		if len(strings.Trim(part, `"`)) > txtChunk {
			t.Errorf("chunk of %d chars exceeds %d", len(part)-2, txtChunk)
		}
	}
}

func TestSaveAndLoadPrivateKey(t *testing.T) {
	kp := keyPair(t)
	path := filepath.Join(t.TempDir(), "keys", "example.com.pem")

	if err := kp.SavePrivateKey(path); err != nil {
		t.Fatalf("SavePrivateKey() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("key file mode = %v, want 0600", info.Mode().Perm())
	}

	loaded, err := LoadPrivateKey(path)
	if err != nil {
		t.Fatalf("LoadPrivateKey() error = %v", err)
	}
	if !loaded.Equal(kp.PrivateKey) {
		t.Error("loaded key differs from saved key")
	}

	// PKCS#8 is accepted too
	der, err := x509.MarshalPKCS8PrivateKey(kp.PrivateKey)
	if err != nil {
		t.Fatal(err)
	}
	pkcs8 := filepath.Join(t.TempDir(), "pkcs8.pem")
	os.WriteFile(pkcs8, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), 0600)
	if _, err := LoadPrivateKey(pkcs8); err != nil {
		t.Errorf("LoadPrivateKey(pkcs8) error = %v", err)
	}

	bad := filepath.Join(t.TempDir(), "bad.pem")
	os.WriteFile(bad, []byte("not a key"), 0600)
	if _, err := LoadPrivateKey(bad); err == nil {
		t.Error("LoadPrivateKey() should fail on garbage")
	}
	if _, err := NewSignerFromFile("/nonexistent/key.pem", "example.com", "s"); err == nil {
		t.Error("NewSignerFromFile() should fail for missing file")
	}
}

func TestSignAndVerify(t *testing.T) {
	kp := keyPair(t)
	signer := kp.Signer()

	message := []byte("From: news@example.com\r\n" +
		"To: reader@example.org\r\n" +
		"Subject: Weekly digest\r\n" +
		"Date: Mon, 1 Jan 2024 12:00:00 +0000\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"Hello reader.\r\n")

	signed, err := signer.Sign(message)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if !bytes.HasPrefix(signed, []byte("DKIM-Signature:")) {
		t.Fatal("signed message should start with DKIM-Signature")
	}
	if !bytes.Contains(signed, []byte("s=mailpost")) || !bytes.Contains(signed, []byte("d=example.com")) {
		t.Error("signature should name selector and domain")
	}

	record, _ := kp.DNSRecord()
	verifications, err := dkim.VerifyWithOptions(bytes.NewReader(signed), &dkim.VerifyOptions{
		LookupTXT: func(domain string) ([]string, error) {
			return []string{record}, nil
		},
	})
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if len(verifications) != 1 || verifications[0].Err != nil {
		t.Errorf("verification failed: %+v", verifications)
	}
}

func TestCovers(t *testing.T) {
	signer := NewSigner(keyPair(t).PrivateKey, "Example.com", "s1")

	tests := []struct {
		domain string
		want   bool
	}{
		{"example.com", true},
		{"EXAMPLE.COM", true},
		{"news.example.com", true},
		{"badexample.com", false},
		{"example.org", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := signer.Covers(tt.domain); got != tt.want {
			t.Errorf("Covers(%q) = %v, want %v", tt.domain, got, tt.want)
		}
	}
}
