// Package meshcrypto wraps the asymmetric primitives the mesh packet format
// builds on: anonymous authenticated public-key encryption (seal/open) and
// attached signing/verification.
//
// Encryption uses an ephemeral X25519 keypair per call over
// golang.org/x/crypto/nacl/box, the standard Go substitute for libsodium's
// crypto_box_seal (no ecosystem library exposes that exact primitive
// directly). Signing uses stdlib Ed25519, with the signature concatenated
// in front of the message to match the attached-signature shape the wire
// format requires.
package meshcrypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/nacl/box"
)

const (
	// KeySize is the length in bytes of an encryption PublicKey or SecretKey.
	KeySize = 32

	nonceSize   = 24
	overhead    = box.Overhead
	sealedExtra = KeySize + nonceSize + overhead
)

// PublicKey is a long-term X25519 encryption public key.
type PublicKey [KeySize]byte

// SecretKey is a long-term X25519 encryption secret key.
type SecretKey [KeySize]byte

// SignPublicKey is an Ed25519 signature verification key.
type SignPublicKey [ed25519.PublicKeySize]byte

// SignSecretKey is an Ed25519 signing key.
type SignSecretKey [ed25519.PrivateKeySize]byte

// ErrKeyGeneration is returned when the system CSPRNG fails during key
// generation; this should never happen in practice.
var ErrKeyGeneration = errors.New("meshcrypto: key generation failed")

// GenerateEncryptionKeypair produces a new long-term X25519 keypair.
func GenerateEncryptionKeypair() (PublicKey, SecretKey, error) {
	pub, sec, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return PublicKey{}, SecretKey{}, ErrKeyGeneration
	}
	return PublicKey(*pub), SecretKey(*sec), nil
}

// GenerateSigningKeypair produces a new Ed25519 signing keypair.
func GenerateSigningKeypair() (SignPublicKey, SignSecretKey, error) {
	pub, sec, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return SignPublicKey{}, SignSecretKey{}, ErrKeyGeneration
	}
	var pk SignPublicKey
	var sk SignSecretKey
	copy(pk[:], pub)
	copy(sk[:], sec)
	return pk, sk, nil
}

// Seal anonymously encrypts plaintext to target: a fresh ephemeral X25519
// keypair is generated for this call alone, so the ciphertext never reveals
// the sender's identity and no nonce state needs to persist across calls.
// The wire layout is ephemeral-public-key || nonce || box-ciphertext.
func Seal(plaintext []byte, target PublicKey) ([]byte, error) {
	ephPub, ephSec, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, ErrKeyGeneration
	}
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, ErrKeyGeneration
	}

	out := make([]byte, 0, KeySize+nonceSize+len(plaintext)+overhead)
	out = append(out, ephPub[:]...)
	out = append(out, nonce[:]...)
	targetArr := [KeySize]byte(target)
	out = box.Seal(out, plaintext, &nonce, &targetArr, ephSec)
	return out, nil
}

// Open attempts to decrypt ciphertext with secret. It never returns an
// error: per-chunk decryption failure is an expected, frequent outcome (the
// chunk simply wasn't sealed to this key) and must not be distinguishable
// from any other failure mode by the caller.
func Open(ciphertext []byte, secret SecretKey) ([]byte, bool) {
	if len(ciphertext) < sealedExtra {
		return nil, false
	}
	var ephPub [KeySize]byte
	copy(ephPub[:], ciphertext[:KeySize])
	var nonce [nonceSize]byte
	copy(nonce[:], ciphertext[KeySize:KeySize+nonceSize])
	boxed := ciphertext[KeySize+nonceSize:]

	secretArr := [KeySize]byte(secret)
	return box.Open(nil, boxed, &nonce, &ephPub, &secretArr)
}

// Sign produces an attached signature over message: signature || message.
func Sign(message []byte, secret SignSecretKey) []byte {
	sig := ed25519.Sign(ed25519.PrivateKey(secret[:]), message)
	out := make([]byte, 0, len(sig)+len(message))
	out = append(out, sig...)
	out = append(out, message...)
	return out
}

// Verify checks an attached signature produced by Sign and, on success,
// returns the original message. Like Open, failures never surface as
// errors: a mismatched signer is indistinguishable from a corrupt chunk.
func Verify(signed []byte, pub SignPublicKey) ([]byte, bool) {
	if len(signed) < ed25519.SignatureSize {
		return nil, false
	}
	sig := signed[:ed25519.SignatureSize]
	msg := signed[ed25519.SignatureSize:]
	if !ed25519.Verify(ed25519.PublicKey(pub[:]), msg, sig) {
		return nil, false
	}
	return msg, true
}
