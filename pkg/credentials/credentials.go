// Package credentials keeps secrets such as the agent's wallet key encrypted
// at rest in the node database.
package credentials

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/argon2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WalletKey is the credential name the node reads its wallet key from when
// the config leaves wallet_key empty.
const WalletKey = "wallet_key"

var ErrNotFound = errors.New("credentials: not found")

type Credential struct {
	Name       string    `gorm:"primaryKey;column:name"`
	Ciphertext []byte    `gorm:"column:ciphertext;not null"`
	UpdatedAt  time.Time `gorm:"column:updated_at;not null"`
}

func (Credential) TableName() string {
	return "credentials"
}

// Store seals values with AES-GCM under a key derived from the master key.
type Store struct {
	db  *gorm.DB
	gcm cipher.AEAD
	now func() time.Time
}

func New(db *gorm.DB, masterKey string) (*Store, error) {
	if masterKey == "" {
		return nil, fmt.Errorf("credentials: master key must not be empty")
	}

	block, err := aes.NewCipher(deriveKey(masterKey))
	if err != nil {
		return nil, fmt.Errorf("credentials: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("credentials: creating GCM: %w", err)
	}

	if err := db.AutoMigrate(&Credential{}); err != nil {
		return nil, fmt.Errorf("credentials: migrating: %w", err)
	}
	return &Store{db: db, gcm: gcm, now: time.Now}, nil
}

func (s *Store) Set(ctx context.Context, name, value string) error {
	sealed, err := s.seal([]byte(value))
	if err != nil {
		return fmt.Errorf("credentials: encrypting %q: %w", name, err)
	}
	c := Credential{Name: name, Ciphertext: sealed, UpdatedAt: s.now().UTC()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"ciphertext", "updated_at"}),
	}).Create(&c).Error
}

func (s *Store) Get(ctx context.Context, name string) (string, error) {
	var c Credential
	err := s.db.WithContext(ctx).Where("name = ?", name).Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if err != nil {
		return "", err
	}

	plaintext, err := s.open(c.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("credentials: decrypting %q: %w", name, err)
	}
	return string(plaintext), nil
}

func (s *Store) Delete(ctx context.Context, name string) error {
	res := s.db.WithContext(ctx).Where("name = ?", name).Delete(&Credential{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return nil
}

// List returns credential names, never values.
func (s *Store) List(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.WithContext(ctx).Model(&Credential{}).Order("name").Pluck("name", &names).Error
	return names, err
}

func (s *Store) seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return s.gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *Store) open(ciphertext []byte) ([]byte, error) {
	n := s.gcm.NonceSize()
	if len(ciphertext) < n {
		return nil, fmt.Errorf("ciphertext too short")
	}
	return s.gcm.Open(nil, ciphertext[:n], ciphertext[n:], nil)
}

func deriveKey(masterKey string) []byte {
	saltHash := sha256.Sum256([]byte("clawnet-credential-salt:" + masterKey))
	return argon2.IDKey([]byte(masterKey), saltHash[:16], 1, 64*1024, 4, 32)
}
