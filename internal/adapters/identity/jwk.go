package identity

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

type rsaJWK struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwkSet struct {
	Keys []rsaJWK `json:"keys"`
}

// keySet maps key ids to signing keys.
type keySet map[string]*rsa.PublicKey

// parseKeySet reads a JWKS document. Keys that are not RSA signing keys are skipped.
func parseKeySet(data []byte) (keySet, error) {
	var set jwkSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parse jwks: %w", err)
	}
	keys := make(keySet, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kid == "" || !strings.EqualFold(k.Kty, "rsa") {
			continue
		}
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		if k.Alg != "" && k.Alg != "RS256" {
			continue
		}
		pub, err := rsaPublicKey(k)
		if err != nil {
			return nil, fmt.Errorf("jwk %s: %w", k.Kid, err)
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("jwks has no usable rsa keys")
	}
	return keys, nil
}

func rsaPublicKey(k rsaJWK) (*rsa.PublicKey, error) {
	modulusBytes, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(strings.TrimSpace(k.N), "="))
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	exponentBytes, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(strings.TrimSpace(k.E), "="))
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	exponent := 0
	for _, b := range exponentBytes {
		exponent = (exponent << 8) | int(b)
	}
	if exponent <= 0 {
		return nil, fmt.Errorf("invalid exponent")
	}
	modulus := new(big.Int).SetBytes(modulusBytes)
	if modulus.Sign() <= 0 {
		return nil, fmt.Errorf("invalid modulus")
	}
	return &rsa.PublicKey{N: modulus, E: exponent}, nil
}

// maxAge extracts max-age from a Cache-Control header value.
func maxAge(header string, fallback time.Duration) time.Duration {
	for _, directive := range strings.Split(header, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(directive), "=")
		if !ok || !strings.EqualFold(name, "max-age") {
			continue
		}
		seconds, err := strconv.Atoi(strings.Trim(value, `"`))
		if err != nil || seconds <= 0 {
			return fallback
		}
		return time.Duration(seconds) * time.Second
	}
	return fallback
}
