// Package runner executes the plan and apply stages of deployment plans.
// The local mode simulates runs so the product works end to end without a
// container runtime; the containerd mode runs the configured toolchain
// image against the rendered workspace.
package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/inframind/inframind/core"
	"pkt.systems/pslog"
)

// Runner modes.
const (
	ModeLocal      = "local"
	ModeContainerd = "containerd"
)

// Config configures the deployment plan runner.
type Config struct {
	Mode        string
	Image       string
	Address     string
	Namespace   string
	HealthAddr  string
	WorkDir     string
	RunTimeout  time.Duration
	PullTimeout time.Duration
	LinePause   time.Duration
}

// New constructs the runner for the configured mode.
func New(ctx context.Context, cfg Config, logger pslog.Logger) (core.PlanRunner, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case "", ModeLocal:
		return NewLocal(cfg.LinePause, logger), nil
	case ModeContainerd:
		return NewContainerd(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("runner.mode must be %q or %q; got %q", ModeLocal, ModeContainerd, cfg.Mode)
	}
}
