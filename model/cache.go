package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// DefaultCheckpointURL is the public GPT-2 checkpoint bucket.
const DefaultCheckpointURL = "https://openaipublic.blob.core.windows.net/gpt-2/models"

// CheckpointFiles are the files that make up one cached model.
var CheckpointFiles = []string{
	"checkpoint",
	"encoder.json",
	"hparams.json",
	"model.ckpt.data-00000-of-00001",
	"model.ckpt.index",
	"model.ckpt.meta",
	"vocab.bpe",
}

// Cache is the on-disk store of model weights, one directory per model.
type Cache struct {
	Dir     string
	BaseURL string
	Client  *http.Client
}

// NewCache returns a cache rooted at dir fetching from baseURL.
func NewCache(dir, baseURL string, client *http.Client) *Cache {
	if baseURL == "" {
		baseURL = DefaultCheckpointURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Cache{
		Dir:     dir,
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Client:  client,
	}
}

// Path returns the directory holding the weights of name.
func (c *Cache) Path(name string) string {
	return filepath.Join(c.Dir, name)
}

// Has reports whether every checkpoint file of name is present.
func (c *Cache) Has(name string) bool {
	if !IsValidName(name) {
		return false
	}
	for _, f := range CheckpointFiles {
		info, err := os.Stat(filepath.Join(c.Path(name), f))
		if err != nil || info.IsDir() {
			return false
		}
	}
	return true
}

// Fetch downloads every checkpoint file of name. Files already present are
// kept; a partially written file never replaces a complete one.
func (c *Cache) Fetch(ctx context.Context, name string) error {
	if !IsValidName(name) {
		return fmt.Errorf("%w: %s", ErrInvalidModelName, name)
	}

	dir := c.Path(name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrDownload, err)
	}

	for _, f := range CheckpointFiles {
		dst := filepath.Join(dir, f)
		if _, err := os.Stat(dst); err == nil {
			continue
		}

		url := fmt.Sprintf("%s/%s/%s", c.BaseURL, name, f)
		log.Printf("Fetching %s", url)
		if err := c.fetchFile(ctx, url, dst); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrDownload, f, err)
		}
	}
	return nil
}

func (c *Cache) fetchFile(ctx context.Context, url, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.part")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	_, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
