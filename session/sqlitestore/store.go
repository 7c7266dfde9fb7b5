// Package sqlitestore is a durable session.Store backed by SQLite. Values are
// sealed at rest with AES-256-GCM under a key derived from a per-install
// secret file, so a copied database file does not leak the session credential
// without the matching secret.
package sqlitestore

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/crypto/pbkdf2"
	_ "modernc.org/sqlite"
)

const (
	driverName = "sqlite"

	secretSize = 32
	saltSize   = 32
	keySize    = 32

	// OWASP-recommended floor for PBKDF2-SHA-256. Paid once, at open.
	pbkdf2Iterations = 600_000
)

var DecryptionFailedErr = errors.New("value decryption failed")

// Store persists session keys in a single kv table.
type Store struct {
	db   *sql.DB
	aead cipher.AEAD
}

// Open creates or opens the store at dbPath. The sealing secret lives next to
// the database in a 0600 file and is generated on first use.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, errors.Wrap(err, "[sqlitestore.Open] create data dir")
	}

	aead, err := loadSealer(dbPath + ".key")
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "[sqlitestore.Open] open database")
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (key TEXT PRIMARY KEY, value BLOB NOT NULL)`); err != nil {
		db.Close() //nolint:errcheck
		return nil, errors.Wrap(err, "[sqlitestore.Open] create schema")
	}

	return &Store{db: db, aead: aead}, nil
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var sealed []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "[Store.Get] %q", key)
	}

	value, err := s.unseal(sealed)
	if err != nil {
		return "", false, errors.Wrapf(err, "[Store.Get] %q", key)
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	sealed, err := s.seal(value)
	if err != nil {
		return errors.Wrapf(err, "[Store.Set] %q", key)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, sealed)
	if err != nil {
		return errors.Wrapf(err, "[Store.Set] %q", key)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return errors.Wrapf(err, "[Store.Remove] %q", key)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// seal produces nonce || ciphertext.
func (s *Store) seal(value string) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, errors.Wrap(err, "generate nonce")
	}
	return s.aead.Seal(nonce, nonce, []byte(value), nil), nil
}

func (s *Store) unseal(sealed []byte) (string, error) {
	nonceSize := s.aead.NonceSize()
	if len(sealed) < nonceSize {
		return "", DecryptionFailedErr
	}
	plain, err := s.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if err != nil {
		return "", DecryptionFailedErr
	}
	return string(plain), nil
}

// loadSealer reads (or creates) the secret file and derives the AES-GCM key.
// File layout: base64(salt || secret).
func loadSealer(keyPath string) (cipher.AEAD, error) {
	raw, err := os.ReadFile(keyPath)
	if errors.Is(err, os.ErrNotExist) {
		raw, err = createSecretFile(keyPath)
	}
	if err != nil {
		return nil, errors.Wrap(err, "[sqlitestore] load secret file")
	}

	material, err := base64.StdEncoding.DecodeString(string(raw))
	if err != nil || len(material) != saltSize+secretSize {
		return nil, errors.Errorf("[sqlitestore] corrupt secret file %q", keyPath)
	}
	salt, secret := material[:saltSize], material[saltSize:]

	key := pbkdf2.Key(secret, salt, pbkdf2Iterations, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "[sqlitestore] init cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "[sqlitestore] init AEAD")
	}
	return aead, nil
}

func createSecretFile(keyPath string) ([]byte, error) {
	material := make([]byte, saltSize+secretSize)
	if _, err := io.ReadFull(rand.Reader, material); err != nil {
		return nil, errors.Wrap(err, "generate secret")
	}
	encoded := []byte(base64.StdEncoding.EncodeToString(material))
	if err := os.WriteFile(keyPath, encoded, 0o600); err != nil {
		return nil, errors.Wrap(err, "write secret file")
	}
	return encoded, nil
}
