// Package crypto implements the per-user AEAD encryption layer (component B):
// a deterministic global key used to encrypt shard names (so prefix seeks
// over a shard's rows still work), and a random per-user key used to
// encrypt row values and primary-key suffixes.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"

	"k9db/internal/kv"
)

const keyFamily = "__crypto_keys__"

// Manager owns the global prefix key and the per-user key table, and
// persists both in the KV engine so they survive a restart.
type Manager struct {
	mu         sync.RWMutex
	db         *kv.DB
	prefixKey  []byte
	userKeys   map[string][]byte
}

// NewManager loads (or creates, on first run) the global prefix key and
// returns a Manager backed by db for persisting user keys.
func NewManager(db *kv.DB) (*Manager, error) {
	m := &Manager{db: db, userKeys: make(map[string][]byte)}
	var prefixKey []byte
	err := db.Update(func(txn *kv.Txn) error {
		existing, err := txn.Get(keyFamily, []byte("__prefix__"))
		if err == nil {
			prefixKey = existing
			return nil
		}
		if err != kv.ErrKeyNotFound {
			return err
		}
		prefixKey, err = randomKey()
		if err != nil {
			return err
		}
		return txn.Put(keyFamily, []byte("__prefix__"), prefixKey)
	})
	if err != nil {
		return nil, fmt.Errorf("crypto: loading prefix key: %w", err)
	}
	m.prefixKey = prefixKey
	if err := m.loadUserKeys(); err != nil {
		return nil, err
	}
	return m, nil
}

func randomKey() ([]byte, error) {
	k := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(k); err != nil {
		return nil, fmt.Errorf("crypto: generating key: %w", err)
	}
	return k, nil
}

func (m *Manager) loadUserKeys() error {
	return m.db.View(func(txn *kv.Txn) error {
		it := txn.Iterator(keyFamily, []byte("u:"))
		defer it.Close()
		for it.Valid() {
			userID := string(it.Key()[len("u:"):])
			m.userKeys[userID] = append([]byte(nil), it.Value()...)
			it.Next()
		}
		return it.Err()
	})
}

// UserKey returns the AEAD key for userID, generating and persisting a
// fresh one on first use — the "new users" case of the shard-assignment
// rules, where a shard's key is created lazily on first insert.
func (m *Manager) UserKey(userID string) ([]byte, error) {
	m.mu.RLock()
	k, ok := m.userKeys[userID]
	m.mu.RUnlock()
	if ok {
		return k, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if k, ok := m.userKeys[userID]; ok {
		return k, nil
	}
	k, err := randomKey()
	if err != nil {
		return nil, err
	}
	err = m.db.Update(func(txn *kv.Txn) error {
		return txn.Put(keyFamily, []byte("u:"+userID), k)
	})
	if err != nil {
		return nil, fmt.Errorf("crypto: persisting key for user %q: %w", userID, err)
	}
	m.userKeys[userID] = k
	return k, nil
}

// ForgetUser destroys all key material for userID, as required by a GDPR
// FORGET: once the key is gone, any row that somehow survives physical
// deletion is unrecoverable ciphertext.
func (m *Manager) ForgetUser(userID string) error {
	m.mu.Lock()
	delete(m.userKeys, userID)
	m.mu.Unlock()
	return m.db.Update(func(txn *kv.Txn) error {
		return txn.Delete(keyFamily, []byte("u:"+userID))
	})
}

func aead(key []byte) (chacha20poly1305.AEAD, error) {
	a, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: building AEAD: %w", err)
	}
	return a, nil
}

// deterministicNonce derives a synthetic nonce from key and plaintext (an
// AES-SIV-style construction) so repeated encryption of the same plaintext
// under the same key always yields the same ciphertext — required for
// shard-name prefixes and PK suffixes, which must be independently
// reproducible at lookup time without storing the nonce out of band.
func deterministicNonce(key, plaintext []byte) []byte {
	h := sha256.New()
	h.Write(key)
	h.Write(plaintext)
	sum := h.Sum(nil)
	return sum[:chacha20poly1305.NonceSizeX]
}

// EncryptDeterministic encrypts plaintext under key with a nonce derived
// from (key, plaintext), so the same input always maps to the same
// ciphertext. Used for shard-name prefixes (under the global prefix key)
// and PK suffixes (under a user's key), both of which need to be
// recomputed identically on lookup.
func EncryptDeterministic(key, plaintext []byte) ([]byte, error) {
	a, err := aead(key)
	if err != nil {
		return nil, err
	}
	nonce := deterministicNonce(key, plaintext)
	return a.Seal(nonce, nonce, plaintext, nil), nil
}

// DecryptDeterministic reverses EncryptDeterministic.
func DecryptDeterministic(key, ciphertext []byte) ([]byte, error) {
	return decrypt(key, ciphertext)
}

// EncryptRandom encrypts plaintext under key with a fresh random nonce,
// used for row values, which are never looked up by ciphertext.
func EncryptRandom(key, plaintext []byte) ([]byte, error) {
	a, err := aead(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: generating nonce: %w", err)
	}
	return a.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt reverses EncryptRandom or EncryptDeterministic.
func Decrypt(key, ciphertext []byte) ([]byte, error) {
	return decrypt(key, ciphertext)
}

func decrypt(key, ciphertext []byte) ([]byte, error) {
	a, err := aead(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("crypto: ciphertext too short")
	}
	nonce, ct := ciphertext[:chacha20poly1305.NonceSizeX], ciphertext[chacha20poly1305.NonceSizeX:]
	pt, err := a.Open(nil, nonce, ct, nil)
	if err != nil {
		// A MAC failure here means on-disk corruption or tampering, not a
		// user error: the original treats this as a fatal invariant.
		panic(fmt.Sprintf("crypto: authentication failed decrypting ciphertext: %v", err))
	}
	return pt, nil
}

// EncryptShardName encrypts a shard name under the global prefix key.
func (m *Manager) EncryptShardName(name string) ([]byte, error) {
	return EncryptDeterministic(m.prefixKey, []byte(name))
}

// DecryptShardName reverses EncryptShardName.
func (m *Manager) DecryptShardName(ciphertext []byte) (string, error) {
	pt, err := DecryptDeterministic(m.prefixKey, ciphertext)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}

// EncryptPK deterministically encrypts a row's encoded primary key under
// userID's key, for use as the row-key suffix.
func (m *Manager) EncryptPK(userID string, pk []byte) ([]byte, error) {
	key, err := m.UserKey(userID)
	if err != nil {
		return nil, err
	}
	return EncryptDeterministic(key, pk)
}

// EncryptValue randomly encrypts a row's serialized value under userID's
// key.
func (m *Manager) EncryptValue(userID string, value []byte) ([]byte, error) {
	key, err := m.UserKey(userID)
	if err != nil {
		return nil, err
	}
	return EncryptRandom(key, value)
}

// DecryptValue reverses EncryptValue.
func (m *Manager) DecryptValue(userID string, ciphertext []byte) ([]byte, error) {
	key, err := m.UserKey(userID)
	if err != nil {
		return nil, err
	}
	return Decrypt(key, ciphertext)
}
