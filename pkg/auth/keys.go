package auth

import (
	"crypto/rsa"
	"encoding/base64"
	"math/big"
	"strings"
	"time"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

// SigningKey is one entry of a published JSON Web Key Set. Only the RSA
// members are kept; other key types are ignored by [MaterializeRSAKey].
type SigningKey struct {
	KeyID     string `json:"kid"`
	KeyType   string `json:"kty"`
	Algorithm string `json:"alg"`
	Use       string `json:"use,omitempty"`
	Modulus   string `json:"n"`
	Exponent  string `json:"e"`
}

// KeySet is the JWKS published by one issuer, in document order.
type KeySet struct {
	Issuer    string
	Keys      []SigningKey
	FetchedAt time.Time
}

// Find returns the key whose kid equals kid.
func (s *KeySet) Find(kid string) (SigningKey, bool) {
	if s == nil {
		return SigningKey{}, false
	}
	for _, k := range s.Keys {
		if k.KeyID == kid {
			return k, true
		}
	}
	return SigningKey{}, false
}

// KeyIDs lists the kids in the set.
func (s *KeySet) KeyIDs() []string {
	ids := make([]string, 0, len(s.Keys))
	for _, k := range s.Keys {
		ids = append(ids, k.KeyID)
	}
	return ids
}

// MaterializeRSAKey builds an RSA public key from the base64url modulus and
// exponent of a JWK. Failures are INT_004 errors.
func MaterializeRSAKey(key SigningKey) (*rsa.PublicKey, error) {
	if key.KeyType != "" && key.KeyType != "RSA" {
		return nil, sserr.Newf(sserr.CodeInternalKeyMaterial,
			"auth: key %q has unsupported type %q", key.KeyID, key.KeyType)
	}

	nBytes, err := decodeBase64URL(key.Modulus)
	if err != nil {
		return nil, sserr.Wrapf(err, sserr.CodeInternalKeyMaterial,
			"auth: key %q has an undecodable modulus", key.KeyID)
	}
	eBytes, err := decodeBase64URL(key.Exponent)
	if err != nil {
		return nil, sserr.Wrapf(err, sserr.CodeInternalKeyMaterial,
			"auth: key %q has an undecodable exponent", key.KeyID)
	}

	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)
	if n.Sign() <= 0 {
		return nil, sserr.Newf(sserr.CodeInternalKeyMaterial,
			"auth: key %q has an empty modulus", key.KeyID)
	}
	// rsa.PublicKey.E is an int; reject exponents that would not survive
	// the conversion.
	if e.Sign() <= 0 || e.BitLen() > 31 {
		return nil, sserr.Newf(sserr.CodeInternalKeyMaterial,
			"auth: key %q has an out-of-range exponent", key.KeyID)
	}

	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

// decodeBase64URL decodes base64url with or without padding. Standard
// alphabet input is accepted as well.
func decodeBase64URL(s string) ([]byte, error) {
	s = strings.TrimRight(s, "=")
	if s == "" {
		return nil, base64.CorruptInputError(0)
	}
	s = strings.NewReplacer("-", "+", "_", "/").Replace(s)
	if rem := len(s) % 4; rem != 0 {
		s += strings.Repeat("=", 4-rem)
	}
	return base64.StdEncoding.DecodeString(s)
}
