// Package delivery turns a granted download into a link the client can fetch.
package delivery

import (
	"context"
	"errors"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/ManuelReschke/AssetVault/app/models"
)

// ErrNoObject is returned for products without a stored file.
var ErrNoObject = errors.New("delivery: product has no object key")

// Link is what a granted download returns to the client.
type Link struct {
	URL       string    `json:"downloadUrl"`
	FileName  string    `json:"fileName"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// Signer produces download links for products.
type Signer interface {
	SignDownload(ctx context.Context, product *models.Product) (Link, error)
}

// NewSigner returns an S3 presigner when S3 downloads are enabled and a
// static URL signer otherwise.
func NewSigner(cfg *Config) (Signer, error) {
	if cfg.Enabled {
		return NewS3Signer(cfg)
	}
	return NewStaticSigner(cfg.PublicBaseURL), nil
}

// StaticSigner joins the object key onto a public base URL.
type StaticSigner struct {
	base string
}

func NewStaticSigner(baseURL string) *StaticSigner {
	return &StaticSigner{base: strings.TrimRight(baseURL, "/")}
}

func (s *StaticSigner) SignDownload(_ context.Context, product *models.Product) (Link, error) {
	key := strings.TrimLeft(product.ObjectKey, "/")
	if key == "" {
		return Link{}, ErrNoObject
	}
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return Link{URL: s.base + "/" + strings.Join(parts, "/"), FileName: fileName(product)}, nil
}

func fileName(product *models.Product) string {
	if name := strings.TrimSpace(product.FileName); name != "" {
		return name
	}
	return path.Base(product.ObjectKey)
}
