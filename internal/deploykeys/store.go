// Package deploykeys manages per-repository deploy keys. Private keys are
// encrypted at rest and never leave the store; only the public half is
// handed out for provider installation.
package deploykeys

import (
	"bytes"
	"context"
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"

	"pkt.systems/kryptograf"
	"pkt.systems/kryptograf/keymgmt"
	"pkt.systems/pslog"

	"github.com/inframind/inframind/core"
	"github.com/inframind/inframind/schema"
)

const (
	keyFile          = "key.enc"
	pubFile          = "key.pub"
	descriptorPrefix = "inframind:deploykey:"
)

// Store keeps one ed25519 deploy key per repository under keyDir, with the
// key-encryption material in a keymgmt bundle at storePath.
type Store struct {
	storePath string
	keyDir    string
	log       pslog.Logger
}

var _ core.DeployKeys = (*Store)(nil)

// NewStore initializes the key store and ensures the root key exists.
func NewStore(storePath, keyDir string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(storePath) == "" {
		return nil, fmt.Errorf("deploy key store path is required")
	}
	if strings.TrimSpace(keyDir) == "" {
		return nil, fmt.Errorf("deploy key directory is required")
	}
	if err := os.MkdirAll(filepath.Dir(storePath), 0o700); err != nil {
		return nil, err
	}
	store, err := keymgmt.LoadProto(storePath)
	if err != nil {
		return nil, err
	}
	if _, err := store.EnsureRootKey(); err != nil {
		return nil, err
	}
	if err := store.Commit(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(keyDir, 0o700); err != nil {
		return nil, err
	}
	if logger != nil {
		logger = logger.With("deploy_key_store", storePath, "deploy_key_dir", keyDir)
	}
	return &Store{storePath: storePath, keyDir: keyDir, log: logger}, nil
}

// Mint generates a fresh deploy key for the repository, replacing any
// existing one, and returns the public key in authorized_keys form.
func (s *Store) Mint(_ context.Context, id schema.RepositoryID) (string, error) {
	if strings.TrimSpace(string(id)) == "" {
		return "", errors.New("repository id is required")
	}
	if s.log != nil {
		s.log.Info("deploy key mint start", "repository", id)
	}
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		if s.log != nil {
			s.log.Warn("deploy key mint failed", "repository", id, "err", err)
		}
		return "", err
	}
	block, err := ssh.MarshalPrivateKey(crypto.PrivateKey(priv), string(id))
	if err != nil {
		if s.log != nil {
			s.log.Warn("deploy key mint failed", "repository", id, "err", err)
		}
		return "", err
	}
	plain := pem.EncodeToMemory(block)
	material, root, err := s.materialForRepo(id, true)
	if err != nil {
		return "", err
	}
	kg := kryptograf.New(root)

	dir := s.repoDir(id)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		if s.log != nil {
			s.log.Warn("deploy key write failed", "repository", id, "err", err)
		}
		return "", err
	}
	tmp, err := os.CreateTemp(dir, "key-*.enc")
	if err != nil {
		if s.log != nil {
			s.log.Warn("deploy key write failed", "repository", id, "err", err)
		}
		return "", err
	}
	tmpPath := tmp.Name()
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", err
	}
	writer, err := kg.EncryptWriter(tmp, material)
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", err
	}
	if _, err := io.Copy(writer, bytes.NewReader(plain)); err != nil {
		_ = writer.Close()
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", err
	}
	if err := writer.Close(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", err
	}
	_ = tmp.Close()
	if err := os.Rename(tmpPath, s.privateKeyPath(id)); err != nil {
		_ = os.Remove(tmpPath)
		if s.log != nil {
			s.log.Warn("deploy key write failed", "repository", id, "err", err)
		}
		return "", err
	}

	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return "", err
	}
	pub := ssh.MarshalAuthorizedKey(signer.PublicKey())
	if err := os.WriteFile(s.publicKeyPath(id), pub, 0o644); err != nil {
		if s.log != nil {
			s.log.Warn("deploy key write failed", "repository", id, "err", err)
		}
		return "", err
	}
	if s.log != nil {
		s.log.Info("deploy key mint ok", "repository", id)
	}
	return strings.TrimSpace(string(pub)), nil
}

// PublicKey returns the repository's public deploy key. If the .pub file is
// missing it is re-derived from the encrypted private key.
func (s *Store) PublicKey(_ context.Context, id schema.RepositoryID) (string, error) {
	data, err := os.ReadFile(s.publicKeyPath(id))
	if err == nil {
		return strings.TrimSpace(string(data)), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		if s.log != nil {
			s.log.Warn("deploy key public load failed", "repository", id, "err", err)
		}
		return "", err
	}
	priv, err := s.loadPrivateKey(id)
	if err != nil {
		return "", err
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(ssh.MarshalAuthorizedKey(signer.PublicKey()))), nil
}

// Remove deletes stored key material for the repository. Removing an absent
// key is fine.
func (s *Store) Remove(_ context.Context, id schema.RepositoryID) error {
	dir := s.repoDir(id)
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		if s.log != nil {
			s.log.Warn("deploy key remove failed", "repository", id, "err", err)
		}
		return err
	}
	if s.log != nil {
		s.log.Info("deploy key removed", "repository", id)
	}
	return nil
}

func (s *Store) loadPrivateKey(id schema.RepositoryID) (crypto.PrivateKey, error) {
	path := s.privateKeyPath(id)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, os.ErrNotExist
		}
		return nil, err
	}
	material, root, err := s.materialForRepo(id, false)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()
	reader, err := kryptograf.New(root).DecryptReader(file, material)
	if err != nil {
		if s.log != nil {
			s.log.Warn("deploy key load failed", "repository", id, "err", err)
		}
		return nil, err
	}
	defer func() { _ = reader.Close() }()
	plain, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	priv, err := ssh.ParseRawPrivateKey(plain)
	if err != nil {
		if s.log != nil {
			s.log.Warn("deploy key load failed", "repository", id, "err", err)
		}
		return nil, err
	}
	return priv, nil
}

// materialForRepo resolves the repository's encryption material. rotate
// mints a fresh DEK so old ciphertext is unreadable after a re-mint.
func (s *Store) materialForRepo(id schema.RepositoryID, rotate bool) (keymgmt.Material, keymgmt.RootKey, error) {
	store, err := keymgmt.LoadProto(s.storePath)
	if err != nil {
		return keymgmt.Material{}, keymgmt.RootKey{}, err
	}
	root, err := store.EnsureRootKey()
	if err != nil {
		return keymgmt.Material{}, keymgmt.RootKey{}, err
	}
	descName := descriptorPrefix + string(id)
	contextBytes := []byte(descName)
	var material keymgmt.Material
	if rotate {
		material, err = keymgmt.MintDEK(root, contextBytes)
		if err != nil {
			return keymgmt.Material{}, keymgmt.RootKey{}, err
		}
		if err := store.SetDescriptor(descName, material.Descriptor); err != nil {
			return keymgmt.Material{}, keymgmt.RootKey{}, err
		}
	} else {
		material, err = store.EnsureDescriptor(descName, root, contextBytes)
		if err != nil {
			return keymgmt.Material{}, keymgmt.RootKey{}, err
		}
	}
	if err := store.Commit(); err != nil {
		return keymgmt.Material{}, keymgmt.RootKey{}, err
	}
	return material, root, nil
}

func (s *Store) repoDir(id schema.RepositoryID) string {
	return filepath.Join(s.keyDir, string(id))
}

func (s *Store) privateKeyPath(id schema.RepositoryID) string {
	return filepath.Join(s.repoDir(id), keyFile)
}

func (s *Store) publicKeyPath(id schema.RepositoryID) string {
	return filepath.Join(s.repoDir(id), pubFile)
}
