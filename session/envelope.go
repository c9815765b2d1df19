package session

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	envelopeVersion = 1
	envelopeMagic   = "RKSESS1\n"
	kdfArgon2id     = "argon2id"
	saltSize        = 16
	maxMemoryKB     = 1 << 20
)

var (
	// ErrAuthFailed is returned when a session file cannot be decrypted with
	// the configured passphrase.
	ErrAuthFailed = stderrors.New("session: authentication failed")
	// ErrInvalidFile is returned for files that are not session envelopes.
	ErrInvalidFile = stderrors.New("session: invalid session file")
)

// kdfParams are the argon2id cost parameters.
type kdfParams struct {
	Time     uint32
	MemoryKB uint32
	Threads  uint8
}

var defaultKDF = kdfParams{Time: 2, MemoryKB: 64 * 1024, Threads: 1}

type envelope struct {
	Version     uint32 `json:"version"`
	KDF         string `json:"kdf"`
	KDFTime     uint32 `json:"kdf_time"`
	KDFMemoryKB uint32 `json:"kdf_memory_kb"`
	KDFThreads  uint8  `json:"kdf_threads"`
	Salt        []byte `json:"salt"`
	Nonce       []byte `json:"nonce"`
	Ciphertext  []byte `json:"ciphertext"`
}

// seal encrypts plaintext under a key derived from passphrase.
func seal(passphrase string, params kdfParams, plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("session: generate salt: %w", err)
	}
	key := deriveKey(passphrase, salt, params)
	defer clear(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("session: create cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("session: generate nonce: %w", err)
	}

	raw, err := json.Marshal(envelope{
		Version:     envelopeVersion,
		KDF:         kdfArgon2id,
		KDFTime:     params.Time,
		KDFMemoryKB: params.MemoryKB,
		KDFThreads:  params.Threads,
		Salt:        salt,
		Nonce:       nonce,
		Ciphertext:  aead.Seal(nil, nonce, plaintext, []byte(envelopeMagic)),
	})
	if err != nil {
		return nil, fmt.Errorf("session: encode envelope: %w", err)
	}
	return append([]byte(envelopeMagic), raw...), nil
}

// open decrypts data produced by seal.
func open(passphrase string, data []byte) ([]byte, error) {
	raw, ok := bytes.CutPrefix(data, []byte(envelopeMagic))
	if !ok {
		return nil, ErrInvalidFile
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, ErrInvalidFile
	}
	if env.Version != envelopeVersion || env.KDF != kdfArgon2id {
		return nil, ErrInvalidFile
	}
	if env.KDFTime == 0 || env.KDFThreads == 0 || env.KDFMemoryKB == 0 || env.KDFMemoryKB > maxMemoryKB {
		return nil, ErrInvalidFile
	}

	key := deriveKey(passphrase, env.Salt, kdfParams{
		Time:     env.KDFTime,
		MemoryKB: env.KDFMemoryKB,
		Threads:  env.KDFThreads,
	})
	defer clear(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("session: create cipher: %w", err)
	}
	if len(env.Nonce) != aead.NonceSize() {
		return nil, ErrInvalidFile
	}
	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, []byte(envelopeMagic))
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

func deriveKey(passphrase string, salt []byte, p kdfParams) []byte {
	return argon2.IDKey([]byte(passphrase), salt, p.Time, p.MemoryKB, p.Threads, chacha20poly1305.KeySize)
}
