package store

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Codec transforms payload columns on their way to and from storage.
type Codec interface {
	Encode(plain []byte) ([]byte, error)
	Decode(stored []byte) ([]byte, error)
}

// PlainCodec stores payloads unchanged.
type PlainCodec struct{}

func (PlainCodec) Encode(plain []byte) ([]byte, error)  { return plain, nil }
func (PlainCodec) Decode(stored []byte) ([]byte, error) { return stored, nil }

// SealedCodec encrypts payloads with XChaCha20-Poly1305. Stored values are
// base64(nonce || ciphertext) so they fit TEXT columns.
type SealedCodec struct {
	aead cipher.AEAD
}

const (
	saltSize    = 16
	codecCheck  = "emotion-memory"
	saltKey     = "codec_salt"
	checkKey    = "codec_check"
	argonTime   = 1
	argonMemory = 64 * 1024
	argonLanes  = 4
)

// ErrWrongPassphrase is returned when stored data cannot be opened.
var ErrWrongPassphrase = errors.New("wrong passphrase or corrupted data")

// NewSealedCodec derives a key from passphrase and salt with Argon2id.
func NewSealedCodec(passphrase string, salt []byte) (*SealedCodec, error) {
	if passphrase == "" {
		return nil, errors.New("empty passphrase")
	}
	key := argon2.IDKey([]byte(passphrase), salt, argonTime, argonMemory, argonLanes, chacha20poly1305.KeySize)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	return &SealedCodec{aead: aead}, nil
}

func (c *SealedCodec) Encode(plain []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plain)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, plain, nil)
	out := make([]byte, base64.StdEncoding.EncodedLen(len(sealed)))
	base64.StdEncoding.Encode(out, sealed)
	return out, nil
}

func (c *SealedCodec) Decode(stored []byte) ([]byte, error) {
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(stored)))
	n, err := base64.StdEncoding.Decode(raw, stored)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	raw = raw[:n]
	ns := c.aead.NonceSize()
	if len(raw) < ns {
		return nil, ErrWrongPassphrase
	}
	plain, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return plain, nil
}

// settings is the key/value table a backend exposes for codec bootstrap.
type settings interface {
	getSetting(key string) (string, bool, error)
	setSetting(key, value string) error
}

// openCodec returns the codec for opts, creating and verifying the salt and
// check value kept in settings.
func openCodec(s settings, opts Options) (Codec, error) {
	if opts.Passphrase == "" {
		if _, ok, err := s.getSetting(checkKey); err != nil {
			return nil, err
		} else if ok {
			return nil, fmt.Errorf("store is encrypted: %w", ErrWrongPassphrase)
		}
		return PlainCodec{}, nil
	}

	saltB64, ok, err := s.getSetting(saltKey)
	if err != nil {
		return nil, err
	}
	var salt []byte
	if ok {
		salt, err = base64.StdEncoding.DecodeString(saltB64)
		if err != nil {
			return nil, fmt.Errorf("decode salt: %w", err)
		}
	} else {
		salt = make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			return nil, fmt.Errorf("salt: %w", err)
		}
		if err := s.setSetting(saltKey, base64.StdEncoding.EncodeToString(salt)); err != nil {
			return nil, err
		}
	}

	codec, err := NewSealedCodec(opts.Passphrase, salt)
	if err != nil {
		return nil, err
	}

	check, ok, err := s.getSetting(checkKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		enc, err := codec.Encode([]byte(codecCheck))
		if err != nil {
			return nil, err
		}
		return codec, s.setSetting(checkKey, string(enc))
	}
	plain, err := codec.Decode([]byte(check))
	if err != nil || string(plain) != codecCheck {
		return nil, ErrWrongPassphrase
	}
	return codec, nil
}

func encodeText(c Codec, s string) (string, error) {
	b, err := c.Encode([]byte(s))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeText(c Codec, s string) (string, error) {
	b, err := c.Decode([]byte(s))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func encodeJSON(c Codec, v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	enc, err := c.Encode(b)
	if err != nil {
		return "", err
	}
	return string(enc), nil
}

// decodeJSON decodes s into v. An empty column leaves v untouched.
func decodeJSON(c Codec, s string, v any) error {
	if s == "" {
		return nil
	}
	b, err := c.Decode([]byte(s))
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
