package vault

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/vuhp/cloudthrift/pkg/waste"
)

var (
	// ErrNotFound means no credential exists under the requested id or provider.
	ErrNotFound = errors.New("vault: credential not found")

	// ErrIntegrity means the stored ciphertext failed authentication: the
	// bundle was tampered with on disk, or the master key changed.
	ErrIntegrity = errors.New("vault: credential integrity check failed")
)

var bucketCredentials = []byte("credentials")

// Metadata is the public face of a stored bundle. It never carries secrets.
type Metadata struct {
	ID        uint64         `json:"id"`
	Provider  waste.Provider `json:"provider"`
	Name      string         `json:"name"`
	CreatedAt time.Time      `json:"created_at"`
}

// Credential is a decrypted bundle. Secrets are excluded from any JSON
// rendering of the type.
type Credential struct {
	Metadata
	Secrets map[string]string `json:"-"`
}

// record is the on-disk row: clear metadata plus the sealed secrets.
type record struct {
	Metadata
	Blob []byte `json:"blob"` // nonce || AES-GCM ciphertext of the secrets JSON
}

// Vault stores provider credential bundles encrypted at rest. Secrets are
// sealed with AES-256-GCM under a machine-local master key; metadata stays in
// the clear so listing never touches ciphertext.
type Vault struct {
	db  *bbolt.DB
	key []byte
}

// Open prepares the vault under dir, creating the directory, the master key
// file (0600) and the database on first use. The key file is the single root
// of trust: losing it makes every stored bundle permanently undecryptable.
func Open(dir string) (*Vault, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating vault dir: %w", err)
	}
	key, err := loadOrCreateKey(filepath.Join(dir, "master.key"))
	if err != nil {
		return nil, err
	}
	db, err := bbolt.Open(filepath.Join(dir, "credentials.db"), 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening vault db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCredentials)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("preparing vault db: %w", err)
	}
	return &Vault{db: db, key: key}, nil
}

func (v *Vault) Close() error { return v.db.Close() }

// Save encrypts and stores a bundle, returning its assigned id.
func (v *Vault) Save(provider waste.Provider, name string, secrets map[string]string) (uint64, error) {
	plaintext, err := json.Marshal(secrets)
	if err != nil {
		return 0, fmt.Errorf("encoding secrets: %w", err)
	}
	blob, err := seal(v.key, plaintext)
	if err != nil {
		return 0, fmt.Errorf("sealing secrets: %w", err)
	}

	var id uint64
	err = v.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketCredentials)
		id, err = b.NextSequence()
		if err != nil {
			return err
		}
		raw, err := json.Marshal(record{
			Metadata: Metadata{ID: id, Provider: provider, Name: name, CreatedAt: time.Now().UTC()},
			Blob:     blob,
		})
		if err != nil {
			return err
		}
		return b.Put(itob(id), raw)
	})
	if err != nil {
		return 0, fmt.Errorf("storing credential: %w", err)
	}
	return id, nil
}

// Get decrypts one bundle. It distinguishes a missing id (ErrNotFound) from
// ciphertext that fails authentication (ErrIntegrity).
func (v *Vault) Get(id uint64) (*Credential, error) {
	var rec record
	err := v.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketCredentials).Get(itob(id))
		if raw == nil {
			return ErrNotFound
		}
		return json.Unmarshal(raw, &rec)
	})
	if err != nil {
		return nil, err
	}
	return v.decrypt(rec)
}

// GetLatestForProvider returns the most recently saved bundle for a provider.
func (v *Vault) GetLatestForProvider(p waste.Provider) (*Credential, error) {
	var best *record
	err := v.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCredentials).ForEach(func(_, raw []byte) error {
			var rec record
			if err := json.Unmarshal(raw, &rec); err != nil {
				return err
			}
			if rec.Provider != p {
				return nil
			}
			if best == nil || rec.CreatedAt.After(best.CreatedAt) ||
				(rec.CreatedAt.Equal(best.CreatedAt) && rec.ID > best.ID) {
				r := rec
				best = &r
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return v.decrypt(*best)
}

// List returns bundle metadata in id order. Secrets stay sealed.
func (v *Vault) List() ([]Metadata, error) {
	var out []Metadata
	err := v.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCredentials).ForEach(func(_, raw []byte) error {
			var rec record
			if err := json.Unmarshal(raw, &rec); err != nil {
				return err
			}
			out = append(out, rec.Metadata)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes a bundle. Deleting an id that does not exist is a no-op, so
// retried removals stay safe.
func (v *Vault) Delete(id uint64) error {
	return v.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCredentials).Delete(itob(id))
	})
}

func (v *Vault) decrypt(rec record) (*Credential, error) {
	plaintext, err := unseal(v.key, rec.Blob)
	if err != nil {
		return nil, fmt.Errorf("credential %d: %w", rec.ID, err)
	}
	var secrets map[string]string
	if err := json.Unmarshal(plaintext, &secrets); err != nil {
		return nil, fmt.Errorf("credential %d: decoding secrets: %w", rec.ID, err)
	}
	return &Credential{Metadata: rec.Metadata, Secrets: secrets}, nil
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
