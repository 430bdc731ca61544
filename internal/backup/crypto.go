package backup

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrInvalidFormat      = errors.New("backup is not a valid backup file")
	ErrIntegrity          = errors.New("backup integrity check failed: wrong passphrase or corrupted file")
	ErrInvalidPassphrase  = errors.New("passphrase must be six lowercase words separated by spaces")
	ErrUnsupportedVersion = errors.New("unsupported backup version")
	ErrEmptyBackup        = errors.New("backup contains no entities")
)

const (
	saltSize = 16
	ivSize   = 16
)

// Envelope is the on-disk form of an encrypted backup. Every field is hex.
type Envelope struct {
	Salt string `json:"salt"`
	IV   string `json:"iv"`
	Data string `json:"data"`
	HMAC string `json:"hmac"`
}

// deriveKey hashes the passphrase with the hex-encoded salt.
func deriveKey(passphrase string, salt []byte) []byte {
	sum := sha256.Sum256([]byte(passphrase + hex.EncodeToString(salt)))
	return sum[:]
}

// xorKeystream applies the key repeated over the input. The operation is its
// own inverse.
func xorKeystream(key, in []byte) []byte {
	out := make([]byte, len(in))
	for i := range in {
		out[i] = in[i] ^ key[i%len(key)]
	}
	return out
}

func tag(key, msg []byte) []byte {
	h := sha256.New()
	h.Write(key)
	h.Write(msg)
	return h.Sum(nil)
}

// Encrypt seals plaintext under passphrase and returns the JSON envelope.
//
// This is a keyed XOR with a hash tag, kept for compatibility with existing
// backup files. It hides data from casual inspection only.
func Encrypt(plaintext []byte, passphrase string) ([]byte, error) {
	if err := ValidatePassphrase(passphrase); err != nil {
		return nil, err
	}
	salt := make([]byte, saltSize)
	iv := make([]byte, ivSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}

	key := deriveKey(passphrase, salt)
	env := Envelope{
		Salt: hex.EncodeToString(salt),
		IV:   hex.EncodeToString(iv),
		Data: hex.EncodeToString(xorKeystream(key, plaintext)),
		HMAC: hex.EncodeToString(tag(key, plaintext)),
	}
	out, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return out, nil
}

// Decrypt opens an envelope produced by Encrypt. The tag is checked over
// the plaintext, then over the ciphertext as older files computed it.
// The result must be JSON.
func Decrypt(envelope []byte, passphrase string) ([]byte, error) {
	return decrypt(envelope, passphrase, true)
}

// DecryptUnverified opens an envelope without checking its tag, for
// recovering files whose tag is damaged. The result must still be JSON.
func DecryptUnverified(envelope []byte, passphrase string) ([]byte, error) {
	return decrypt(envelope, passphrase, false)
}

func decrypt(envelope []byte, passphrase string, verify bool) ([]byte, error) {
	if err := ValidatePassphrase(passphrase); err != nil {
		return nil, err
	}
	salt, data, mac, err := parseEnvelope(envelope)
	if err != nil {
		return nil, err
	}

	key := deriveKey(passphrase, salt)
	plaintext := xorKeystream(key, data)

	if verify {
		if subtle.ConstantTimeCompare(mac, tag(key, plaintext)) != 1 &&
			subtle.ConstantTimeCompare(mac, tag(key, data)) != 1 {
			return nil, ErrIntegrity
		}
	}
	if !json.Valid(bytes.TrimSpace(plaintext)) {
		return nil, fmt.Errorf("%w: decrypted payload is not JSON", ErrIntegrity)
	}
	return plaintext, nil
}

func parseEnvelope(b []byte) (salt, data, mac []byte, err error) {
	var env Envelope
	if err = json.Unmarshal(b, &env); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if env.Salt == "" || env.Data == "" || env.HMAC == "" {
		return nil, nil, nil, fmt.Errorf("%w: missing envelope fields", ErrInvalidFormat)
	}
	fields := []struct {
		name string
		in   string
		out  *[]byte
	}{
		{"salt", env.Salt, &salt},
		{"data", env.Data, &data},
		{"hmac", env.HMAC, &mac},
	}
	for _, f := range fields {
		v, derr := hex.DecodeString(f.in)
		if derr != nil {
			return nil, nil, nil, fmt.Errorf("%w: %s is not hex", ErrInvalidFormat, f.name)
		}
		*f.out = v
	}
	if env.IV != "" {
		if _, derr := hex.DecodeString(env.IV); derr != nil {
			return nil, nil, nil, fmt.Errorf("%w: iv is not hex", ErrInvalidFormat)
		}
	}
	return salt, data, mac, nil
}

// IsEnvelope reports whether b looks like an encrypted backup rather than a
// plain document.
func IsEnvelope(b []byte) bool {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return false
	}
	_, hasSalt := fields["salt"]
	_, hasData := fields["data"]
	_, hasVersion := fields["version"]
	return hasSalt && hasData && !hasVersion
}
