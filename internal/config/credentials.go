package config

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/scrypt"

	"github.com/senses3/coolercontrol/internal/log"
)

const (
	scryptN       = 1 << 15
	scryptR       = 8
	scryptP       = 1
	scryptKeyLen  = 32
	saltLen       = 16
	sessionKeyLen = 32
)

// Credentials is the durable admin-auth material: a separate
// credentials file holds a salted password hash plus a random
// session-signing key, created on first run with mode 0600. The hash
// itself is scrypt-derived rather than bare salted SHA-256 - an
// intentional strengthening recorded in DESIGN.md - while the session
// key continues to sign cookies with plain HMAC-SHA256.
type Credentials struct {
	Salt         []byte `json:"salt"`
	PasswordHash []byte `json:"password_hash"`
	SessionKey   []byte `json:"session_key"`
}

// CredentialStore owns the credentials file at a fixed, separate path
// from the main config document: /etc/coolercontrol/passwd (0600).
type CredentialStore struct {
	path string
}

// NewCredentialStore creates a handle bound to the given file path.
func NewCredentialStore(path string) *CredentialStore {
	return &CredentialStore{path: path}
}

// LoadOrBootstrap reads the credentials file, creating one with a
// random password and session-signing key on first run. The plaintext
// bootstrap password is only ever returned the first time it is
// generated, so the caller can surface it once (log line) for an
// operator to change via POST /passwd.
func (s *CredentialStore) LoadOrBootstrap() (*Credentials, string, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return s.bootstrap()
	}
	if err != nil {
		return nil, "", fmt.Errorf("reading credentials %s: %w", s.path, err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, "", fmt.Errorf("parsing credentials %s: %w", s.path, err)
	}
	return &creds, "", nil
}

func (s *CredentialStore) bootstrap() (*Credentials, string, error) {
	password, err := randomToken(12)
	if err != nil {
		return nil, "", err
	}
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, "", err
	}
	hash, err := hashPassword(password, salt)
	if err != nil {
		return nil, "", err
	}
	sessionKey := make([]byte, sessionKeyLen)
	if _, err := rand.Read(sessionKey); err != nil {
		return nil, "", err
	}

	creds := &Credentials{Salt: salt, PasswordHash: hash, SessionKey: sessionKey}
	if err := s.save(creds); err != nil {
		return nil, "", err
	}
	log.Info("credentials: bootstrapped admin password at %s", s.path)
	return creds, password, nil
}

func (s *CredentialStore) save(creds *Credentials) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	data, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0600)
}

// SetPassword rehashes creds under a fresh salt for password and
// persists the result (`POST /passwd`). The session key is left
// untouched - a password change does not invalidate other open
// sessions the way a session-key rotation would.
func (s *CredentialStore) SetPassword(creds *Credentials, password string) error {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return err
	}
	hash, err := hashPassword(password, salt)
	if err != nil {
		return err
	}
	creds.Salt = salt
	creds.PasswordHash = hash
	return s.save(creds)
}

// Verify reports whether password matches creds, in constant time.
func Verify(creds *Credentials, password string) (bool, error) {
	hash, err := hashPassword(password, creds.Salt)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(hash, creds.PasswordHash) == 1, nil
}

func hashPassword(password string, salt []byte) ([]byte, error) {
	return scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, scryptKeyLen)
}

// SignSession HMAC-signs payload with creds' session key, for the
// signed HttpOnly session cookie. Never leaks which of
// (user, password, session) failed on verification failure -
// callers compare the returned MAC with constant-time equality.
func SignSession(creds *Credentials, payload []byte) []byte {
	mac := hmac.New(sha256.New, creds.SessionKey)
	mac.Write(payload)
	return mac.Sum(nil)
}

// VerifySession reports whether mac is a valid signature over payload.
func VerifySession(creds *Credentials, payload, mac []byte) bool {
	expected := SignSession(creds, payload)
	return hmac.Equal(expected, mac)
}

func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
