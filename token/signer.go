package token

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Verifier resolves the key used to check a credential's signature.
type Verifier interface {
	GetVerificationKey(token *jwt.Token) (any, error)
}

// Signer mints and verifies credentials. The client only verifies; signing is
// used by fakes and tooling that stand in for the token-issuing endpoint.
type Signer interface {
	Verifier

	// Sign creates a signed credential from claims
	Sign(claims jwt.MapClaims) (string, error)

	// GetSigningMethod returns the JWT signing method used
	GetSigningMethod() jwt.SigningMethod
}

// HMACSigner implements Signer using a shared HMAC-SHA256 secret.
type HMACSigner struct {
	secret []byte
}

func NewHMACSigner(secret string) *HMACSigner {
	return &HMACSigner{secret: []byte(secret)}
}

func (h *HMACSigner) Sign(claims jwt.MapClaims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign credential with HMAC")
	}
	return signed, nil
}

func (h *HMACSigner) GetVerificationKey(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return h.secret, nil
}

func (h *HMACSigner) GetSigningMethod() jwt.SigningMethod {
	return jwt.SigningMethodHS256
}

// KeyPairSigner implements Signer using RSA or ECDSA. A key pair without a
// private key can still verify.
type KeyPairSigner struct {
	keyPair *KeyPair
}

func NewKeyPairSigner(keyPair *KeyPair) *KeyPairSigner {
	return &KeyPairSigner{keyPair: keyPair}
}

func (a *KeyPairSigner) Sign(claims jwt.MapClaims) (string, error) {
	if a.keyPair.PrivateKey == nil {
		return "", errors.New("key pair has no private key")
	}
	tok := jwt.NewWithClaims(a.keyPair.GetSigningMethod(), claims)
	if a.keyPair.KeyID != "" {
		tok.Header["kid"] = a.keyPair.KeyID
	}

	signed, err := tok.SignedString(a.keyPair.PrivateKey)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign credential with asymmetric key")
	}
	return signed, nil
}

func (a *KeyPairSigner) GetVerificationKey(token *jwt.Token) (any, error) {
	if token.Method.Alg() != a.keyPair.GetSigningMethod().Alg() {
		return nil, errors.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return a.keyPair.PublicKey, nil
}

func (a *KeyPairSigner) GetSigningMethod() jwt.SigningMethod {
	return a.keyPair.GetSigningMethod()
}
