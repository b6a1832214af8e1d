package gitops

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"pkt.systems/pslog"

	"github.com/inframind/inframind/core"
	"github.com/inframind/inframind/internal/git"
	"github.com/inframind/inframind/schema"
)

// MirrorSyncer keeps a bare mirror per connected repository under one local
// directory, named by repository ID so renames on the provider side do not
// orphan the clone.
type MirrorSyncer struct {
	dir     string
	timeout time.Duration
	log     pslog.Logger
}

var _ core.RepoSyncer = (*MirrorSyncer)(nil)

// NewMirrorSyncer returns a syncer writing mirrors under dir. A zero timeout
// means the caller's context governs.
func NewMirrorSyncer(dir string, timeout time.Duration, logger pslog.Logger) *MirrorSyncer {
	return &MirrorSyncer{dir: dir, timeout: timeout, log: logger}
}

// Sync clones the mirror on first use and fetches all refs afterwards.
func (m *MirrorSyncer) Sync(ctx context.Context, repo schema.GitRepository) error {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	path := m.mirrorPath(repo)
	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		if err := os.MkdirAll(m.dir, 0o755); err != nil {
			return err
		}
		if m.log != nil {
			m.log.Info("mirror clone start", "repo", repo.Name, "path", path)
		}
		return git.CloneMirror(ctx, m.dir, repo.CloneURL, path)
	}
	if m.log != nil {
		m.log.Debug("mirror update start", "repo", repo.Name, "path", path)
	}
	return git.UpdateMirror(ctx, path)
}

// Drop removes the mirror for a disconnected repository.
func (m *MirrorSyncer) Drop(repo schema.GitRepository) error {
	return os.RemoveAll(m.mirrorPath(repo))
}

func (m *MirrorSyncer) mirrorPath(repo schema.GitRepository) string {
	return filepath.Join(m.dir, string(repo.ID)+".git")
}
