package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/inframind/inframind/core"
	"pkt.systems/pslog"
)

// Local simulates plan and apply runs without a container runtime. Output
// follows the terraform shape so log tails and the live stream look the
// same in demo deployments as against a real toolchain.
type Local struct {
	pause  time.Duration
	logger pslog.Logger
}

// NewLocal constructs a simulated runner. pause spaces out streamed
// output lines; zero emits them immediately.
func NewLocal(pause time.Duration, logger pslog.Logger) *Local {
	return &Local{pause: pause, logger: logger}
}

// Plan simulates the plan stage and prices the change set.
func (l *Local) Plan(ctx context.Context, req core.RunRequest) (core.RunResult, error) {
	units := changeUnits(req.Files)
	lines := []string{
		"Initializing the backend...",
		"Initializing provider plugins...",
		"Terraform has been successfully initialized!",
		"",
		"Terraform will perform the following actions:",
		"",
	}
	for _, unit := range units {
		lines = append(lines, "  # "+unit+" will be created")
	}
	summary := fmt.Sprintf("Plan: %d to add, 0 to change, 0 to destroy.", len(units))
	lines = append(lines, "", summary)
	if err := l.stream(ctx, req, lines); err != nil {
		return core.RunResult{}, err
	}
	cost := estimateMonthlyCost(req.Plan, len(units))
	if l.logger != nil {
		l.logger.Info("runner plan simulated", "plan", req.Plan.ID, "units", len(units), "monthly_cost_usd", cost)
	}
	return core.RunResult{MonthlyCostUSD: cost, Summary: summary}, nil
}

// Apply simulates the apply stage.
func (l *Local) Apply(ctx context.Context, req core.RunRequest) (core.RunResult, error) {
	units := changeUnits(req.Files)
	var lines []string
	for i, unit := range units {
		lines = append(lines,
			unit+": Creating...",
			fmt.Sprintf("%s: Creation complete after %ds", unit, i%5+1),
		)
	}
	summary := fmt.Sprintf("Apply complete! Resources: %d added, 0 changed, 0 destroyed.", len(units))
	lines = append(lines, "", summary)
	if err := l.stream(ctx, req, lines); err != nil {
		return core.RunResult{}, err
	}
	cost := estimateMonthlyCost(req.Plan, len(units))
	if l.logger != nil {
		l.logger.Info("runner apply simulated", "plan", req.Plan.ID, "units", len(units))
	}
	return core.RunResult{MonthlyCostUSD: cost, Summary: summary}, nil
}

func (l *Local) stream(ctx context.Context, req core.RunRequest, lines []string) error {
	for _, line := range lines {
		if l.pause > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(l.pause):
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		if req.OnLine != nil {
			req.OnLine(line)
		}
	}
	return nil
}
