package ingestion

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"strconv"
	"time"
)

type Auth struct {
	apiKeyID   string
	privateKey *rsa.PrivateKey
	now        func() time.Time
}

type AuthHeaders struct {
	AccessKey       string
	AccessSignature string
	AccessTimestamp string
}

// NewAuth parses an RSA private key in PKCS#1 or PKCS#8 PEM form.
func NewAuth(apiKeyID, privateKeyPEM string) (*Auth, error) {
	block, _ := pem.Decode([]byte(privateKeyPEM))
	if block == nil {
		return nil, errors.New("failed to decode PEM block")
	}

	privateKey, err := parsePrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}

	return &Auth{
		apiKeyID:   apiKeyID,
		privateKey: privateKey,
		now:        time.Now,
	}, nil
}

func parsePrivateKey(der []byte) (*rsa.PrivateKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is %T, not RSA", parsed)
	}
	return key, nil
}

// SignRequest signs timestamp + method + path with RSA-PSS/SHA-256.
func (a *Auth) SignRequest(method, path string, body []byte) (*AuthHeaders, error) {
	timestamp := strconv.FormatInt(a.now().UnixMilli(), 10)

	message := timestamp + method + path
	if body != nil {
		message += string(body)
	}
	hashed := sha256.Sum256([]byte(message))

	signature, err := rsa.SignPSS(rand.Reader, a.privateKey, crypto.SHA256, hashed[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
		Hash:       crypto.SHA256,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign request: %w", err)
	}

	return &AuthHeaders{
		AccessKey:       a.apiKeyID,
		AccessSignature: base64.StdEncoding.EncodeToString(signature),
		AccessTimestamp: timestamp,
	}, nil
}
