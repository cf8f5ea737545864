// Package core implements the DAG ledger: transaction model, validation
// pipeline, contract VM, and the background ghost-transaction driver.
package core

import (
	"crypto"
	"crypto/rand"
	"encoding/base64"

	"github.com/cloudflare/circl/sign/dilithium/mode2"
	"github.com/sirupsen/logrus"
)

var cryptoLogger = logrus.New().WithField("component", "crypto")

// SetCryptoLogger overrides the logger used by this package.
func SetCryptoLogger(l *logrus.Logger) { cryptoLogger = l.WithField("component", "crypto") }

// Base64Encode is the canonical wire codec for all cryptographic material.
func Base64Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Base64Decode reverses Base64Encode.
func Base64Decode(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// GenerateWallet produces a fresh Dilithium2 signing keypair, Base64
// encoded. The public key string also serves as the account's address.
func GenerateWallet() (secretB64, publicB64 string, err error) {
	pk, sk, err := mode2.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", err
	}
	pkBytes, err := pk.MarshalBinary()
	if err != nil {
		return "", "", err
	}
	skBytes, err := sk.MarshalBinary()
	if err != nil {
		return "", "", err
	}
	return Base64Encode(skBytes), Base64Encode(pkBytes), nil
}

// Sign produces a Dilithium2 signature over preimage using the Base64
// encoded secret key. It fails only on malformed secret key material.
func Sign(preimage []byte, secretB64 string) (string, error) {
	raw, err := Base64Decode(secretB64)
	if err != nil {
		return "", err
	}
	var sk mode2.PrivateKey
	if err := sk.UnmarshalBinary(raw); err != nil {
		return "", err
	}
	sig, err := sk.Sign(rand.Reader, preimage, crypto.Hash(0))
	if err != nil {
		return "", err
	}
	return Base64Encode(sig), nil
}

// Verify checks a Dilithium2 signature over preimage under the Base64
// encoded sender public key. Any decode or algorithmic failure reduces to
// false — it never panics or returns an error to the caller.
func Verify(preimage []byte, signatureB64, senderB64 string) bool {
	pubRaw, err := Base64Decode(senderB64)
	if err != nil {
		cryptoLogger.Debugf("verify: bad sender encoding: %v", err)
		return false
	}
	sigRaw, err := Base64Decode(signatureB64)
	if err != nil {
		cryptoLogger.Debugf("verify: bad signature encoding: %v", err)
		return false
	}
	var pk mode2.PublicKey
	if err := pk.UnmarshalBinary(pubRaw); err != nil {
		cryptoLogger.Debugf("verify: bad public key: %v", err)
		return false
	}
	return mode2.Verify(&pk, preimage, sigRaw)
}
