package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

const (
	AccountStatusActive   = "active"
	AccountStatusDisabled = "disabled"
)

// Account is the customer identity the entitlement checks are scoped to.
// Credentials and sessions live elsewhere; only the API key digest used by the
// public API is stored here.
type Account struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	Name             string         `gorm:"type:varchar(150)" json:"name" validate:"required,min=2,max=150"`
	Email            string         `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,max=200"`
	Status           string         `gorm:"type:varchar(20);default:'active'" json:"status" validate:"oneof=active disabled"`
	APIKeyHash       string         `gorm:"type:char(64);default:'';index" json:"-"`
	APIKeyPrefix     string         `gorm:"type:varchar(20);default:''" json:"api_key_prefix"`
	APIKeyCreatedAt  *time.Time     `json:"api_key_created_at"`
	APIKeyLastUsedAt *time.Time     `json:"api_key_last_used_at"`
	APIKeyRevokedAt  *time.Time     `json:"api_key_revoked_at"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

var apiKeyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

const apiKeyPrefix = "avk_"

func (a *Account) Validate() error {
	return validator.New().Struct(a)
}

// IsActive reports whether the account may use the API at all.
func (a *Account) IsActive() bool {
	return a != nil && a.Status == AccountStatusActive
}

// HasActiveAPIKey reports whether the account has a usable API key.
func (a *Account) HasActiveAPIKey() bool {
	return a != nil && a.APIKeyHash != "" && a.APIKeyRevokedAt == nil
}

// IssueAPIKey generates a new key, stores its digest on the struct and returns
// the raw secret. The raw value is never persisted.
func (a *Account) IssueAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	rawKey := apiKeyPrefix + strings.ToLower(apiKeyEncoding.EncodeToString(b))
	if len(rawKey) < 16 {
		return "", fmt.Errorf("api key generation failed: key too short")
	}

	now := time.Now()
	a.APIKeyHash = HashAPIKey(rawKey)
	a.APIKeyPrefix = rawKey[:16]
	a.APIKeyCreatedAt = &now
	a.APIKeyRevokedAt = nil
	a.APIKeyLastUsedAt = nil
	return rawKey, nil
}

// RevokeAPIKey clears the key digest without deleting the account.
func (a *Account) RevokeAPIKey() {
	now := time.Now()
	a.APIKeyHash = ""
	a.APIKeyPrefix = ""
	a.APIKeyRevokedAt = &now
	a.APIKeyLastUsedAt = nil
}

// HashAPIKey returns the SHA-256 hex digest for the provided API key.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}
