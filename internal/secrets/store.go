// Package secrets is a lightweight per-user key store: a 0600 JSON file
// with AES-GCM obfuscation. Not a replacement for an OS keychain, but it
// keeps API keys out of plain-text config files.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// ErrNotFound is returned when no key is stored for a provider.
var ErrNotFound = errors.New("secrets: key not found")

const fileName = "keys.json"

// Store reads and writes provider keys under a single directory.
type Store struct {
	dir string
}

// Open returns a store rooted at the user config dir.
func Open() (*Store, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil, err
	}
	return OpenAt(filepath.Join(dir, "ledgerlink")), nil
}

// OpenAt returns a store rooted at dir. Used by tests.
func OpenAt(dir string) *Store { return &Store{dir: dir} }

type keyFile struct {
	Keys map[string]string `json:"keys"` // provider -> base64(ciphertext)
}

// Put stores (or replaces) the key for a provider.
func (s *Store) Put(provider, key string) error {
	provider, err := normProvider(provider)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	kf, err := s.load()
	if err != nil {
		return err
	}
	if kf.Keys == nil {
		kf.Keys = map[string]string{}
	}
	ct, err := seal([]byte(key))
	if err != nil {
		return err
	}
	kf.Keys[provider] = base64.StdEncoding.EncodeToString(ct)
	return s.save(kf)
}

// Get returns the stored key for a provider, or ErrNotFound.
func (s *Store) Get(provider string) (string, error) {
	provider, err := normProvider(provider)
	if err != nil {
		return "", err
	}
	kf, err := s.load()
	if err != nil {
		return "", err
	}
	enc, ok := kf.Keys[provider]
	if !ok {
		return "", ErrNotFound
	}
	raw, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return "", err
	}
	pt, err := open(raw)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// Delete removes the stored key for a provider. Deleting a missing key
// is not an error.
func (s *Store) Delete(provider string) error {
	provider, err := normProvider(provider)
	if err != nil {
		return err
	}
	kf, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := kf.Keys[provider]; !ok {
		return nil
	}
	delete(kf.Keys, provider)
	return s.save(kf)
}

func (s *Store) path() string { return filepath.Join(s.dir, fileName) }

func (s *Store) load() (keyFile, error) {
	var kf keyFile
	data, err := os.ReadFile(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			return keyFile{}, nil
		}
		return kf, err
	}
	if err := json.Unmarshal(data, &kf); err != nil {
		return kf, err
	}
	return kf, nil
}

func (s *Store) save(kf keyFile) error {
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path())
}

func normProvider(s string) (string, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return "", fmt.Errorf("secrets: provider required")
	}
	return s, nil
}

// masterKey is derived from the machine and user, so the file is only
// readable by the same account that wrote it.
func masterKey() []byte {
	base := fmt.Sprintf("ledgerlink-%s-%s", runtime.GOOS, os.Getenv("USER"))
	hash := sha256.Sum256([]byte(base))
	return hash[:]
}

func seal(plain []byte) ([]byte, error) {
	gcm, err := newGCM()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plain, nil), nil
}

func open(ciphertext []byte) ([]byte, error) {
	gcm, err := newGCM()
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, fmt.Errorf("secrets: ciphertext too short")
	}
	nonce := ciphertext[:gcm.NonceSize()]
	body := ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, body, nil)
}

func newGCM() (cipher.AEAD, error) {
	block, err := aes.NewCipher(masterKey())
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
