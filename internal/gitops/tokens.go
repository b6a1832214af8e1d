package gitops

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"pkt.systems/kryptograf"
	"pkt.systems/kryptograf/keymgmt"
	"pkt.systems/pslog"

	"github.com/inframind/inframind/schema"
)

const tokenDescriptor = "inframind:gitops:tokens"

// TokenStore keeps provider access tokens encrypted at rest. The keymgmt
// bundle lives at bundlePath and the ciphertext document next to it.
type TokenStore struct {
	bundlePath string
	dataPath   string
	log        pslog.Logger

	mu sync.Mutex
}

// NewTokenStore ensures the key bundle exists and returns the store.
func NewTokenStore(bundlePath string, logger pslog.Logger) (*TokenStore, error) {
	if strings.TrimSpace(bundlePath) == "" {
		return nil, fmt.Errorf("token store path is required")
	}
	if err := os.MkdirAll(filepath.Dir(bundlePath), 0o700); err != nil {
		return nil, err
	}
	store, err := keymgmt.LoadProto(bundlePath)
	if err != nil {
		return nil, err
	}
	if _, err := store.EnsureRootKey(); err != nil {
		return nil, err
	}
	if err := store.Commit(); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("token_store", bundlePath)
	}
	return &TokenStore{
		bundlePath: bundlePath,
		dataPath:   filepath.Join(filepath.Dir(bundlePath), "tokens.enc"),
		log:        logger,
	}, nil
}

// SetToken stores or replaces the access token for a provider.
func (s *TokenStore) SetToken(provider schema.GitProvider, token string) error {
	normalized, err := schema.NormalizeGitProvider(string(provider))
	if err != nil {
		return err
	}
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("token is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens, err := s.loadLocked()
	if err != nil {
		return err
	}
	tokens[string(normalized)] = strings.TrimSpace(token)
	if err := s.saveLocked(tokens); err != nil {
		if s.log != nil {
			s.log.Warn("gitops token save failed", "provider", normalized, "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Info("gitops token stored", "provider", normalized)
	}
	return nil
}

// Token returns the stored token for a provider, if any.
func (s *TokenStore) Token(provider schema.GitProvider) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens, err := s.loadLocked()
	if err != nil {
		return "", false, err
	}
	token, ok := tokens[string(provider)]
	return token, ok && token != "", nil
}

// Providers lists the providers with a stored token.
func (s *TokenStore) Providers() ([]schema.GitProvider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens, err := s.loadLocked()
	if err != nil {
		return nil, err
	}
	out := make([]schema.GitProvider, 0, len(tokens))
	for name, token := range tokens {
		if token != "" {
			out = append(out, schema.GitProvider(name))
		}
	}
	return out, nil
}

func (s *TokenStore) material() (keymgmt.Material, keymgmt.RootKey, error) {
	store, err := keymgmt.LoadProto(s.bundlePath)
	if err != nil {
		return keymgmt.Material{}, keymgmt.RootKey{}, err
	}
	root, err := store.EnsureRootKey()
	if err != nil {
		return keymgmt.Material{}, keymgmt.RootKey{}, err
	}
	material, err := store.EnsureDescriptor(tokenDescriptor, root, []byte(tokenDescriptor))
	if err != nil {
		return keymgmt.Material{}, keymgmt.RootKey{}, err
	}
	if err := store.Commit(); err != nil {
		return keymgmt.Material{}, keymgmt.RootKey{}, err
	}
	return material, root, nil
}

func (s *TokenStore) loadLocked() (map[string]string, error) {
	file, err := os.Open(s.dataPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer func() { _ = file.Close() }()

	material, root, err := s.material()
	if err != nil {
		return nil, err
	}
	reader, err := kryptograf.New(root).DecryptReader(file, material)
	if err != nil {
		return nil, fmt.Errorf("decrypt token store: %w", err)
	}
	defer func() { _ = reader.Close() }()
	plain, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	tokens := make(map[string]string)
	if err := json.Unmarshal(plain, &tokens); err != nil {
		return nil, fmt.Errorf("parse token store: %w", err)
	}
	return tokens, nil
}

func (s *TokenStore) saveLocked(tokens map[string]string) error {
	plain, err := json.Marshal(tokens)
	if err != nil {
		return err
	}
	material, root, err := s.material()
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.dataPath), "tokens-*.enc")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	writer, err := kryptograf.New(root).EncryptWriter(tmp, material)
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if _, err := io.Copy(writer, bytes.NewReader(plain)); err != nil {
		_ = writer.Close()
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := writer.Close(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	_ = tmp.Close()
	if err := os.Rename(tmpPath, s.dataPath); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
