package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/pkg/cio"
	"github.com/containerd/containerd/v2/pkg/namespaces"
	"github.com/containerd/containerd/v2/pkg/oci"
	"github.com/containerd/errdefs"
	"github.com/opencontainers/runtime-spec/specs-go"

	"github.com/inframind/inframind/core"
	"github.com/inframind/inframind/schema"
	"pkt.systems/pslog"
)

const (
	containerWorkspace = "/workspace"
	labelPlan          = "inframind.plan"
)

type stage string

const (
	stagePlan  stage = "plan"
	stageApply stage = "apply"
)

// script returns the shell command a stage runs inside the toolchain
// image. The image must ship a POSIX shell and the terraform binary.
func (s stage) script() string {
	if s == stageApply {
		return "terraform init -input=false -no-color && terraform apply -auto-approve -input=false -no-color"
	}
	return "terraform init -input=false -no-color && terraform plan -input=false -no-color"
}

// Containerd runs plan stages as one-shot tasks in the configured
// toolchain image, with the rendered workspace bind-mounted.
type Containerd struct {
	client      *containerd.Client
	namespace   string
	image       string
	workDir     string
	runTimeout  time.Duration
	pullTimeout time.Duration
	health      *HealthProbe
	logger      pslog.Logger
}

// NewContainerd connects to containerd, trying fallback socket paths if
// needed.
func NewContainerd(ctx context.Context, cfg Config, logger pslog.Logger) (*Containerd, error) {
	if strings.TrimSpace(cfg.Image) == "" {
		return nil, errors.New("runner image is required")
	}
	if strings.TrimSpace(cfg.WorkDir) == "" {
		return nil, errors.New("runner work directory is required")
	}
	if logger == nil {
		logger = pslog.Ctx(ctx)
	}
	log := logger.With("runtime", "containerd")

	var client *containerd.Client
	var lastErr error
	for _, addr := range candidateAddresses(cfg.Address, "containerd") {
		log.Debug("containerd connect attempt", "address", addr)
		client, lastErr = containerd.New(addr)
		if lastErr == nil {
			log.Info("containerd runtime ready", "address", addr)
			break
		}
		log.Warn("containerd connect failed", "address", addr, "err", lastErr)
		client = nil
	}
	if client == nil {
		if lastErr == nil {
			lastErr = errors.New("containerd address not configured")
		}
		return nil, lastErr
	}

	namespace := strings.TrimSpace(cfg.Namespace)
	if namespace == "" {
		namespace = "inframind"
	}
	runTimeout := cfg.RunTimeout
	if runTimeout <= 0 {
		runTimeout = 30 * time.Minute
	}
	pullTimeout := cfg.PullTimeout
	if pullTimeout <= 0 {
		pullTimeout = 5 * time.Minute
	}

	var health *HealthProbe
	if strings.TrimSpace(cfg.HealthAddr) != "" {
		probe, err := NewHealthProbe(cfg.HealthAddr)
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("runner health probe: %w", err)
		}
		health = probe
	}

	return &Containerd{
		client:      client,
		namespace:   namespace,
		image:       cfg.Image,
		workDir:     cfg.WorkDir,
		runTimeout:  runTimeout,
		pullTimeout: pullTimeout,
		health:      health,
		logger:      log,
	}, nil
}

// Close releases the containerd client and the health probe connection.
func (c *Containerd) Close() error {
	if c.health != nil {
		_ = c.health.Close()
	}
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Plan runs the plan stage in a container.
func (c *Containerd) Plan(ctx context.Context, req core.RunRequest) (core.RunResult, error) {
	return c.run(ctx, stagePlan, req)
}

// Apply runs the apply stage in a container.
func (c *Containerd) Apply(ctx context.Context, req core.RunRequest) (core.RunResult, error) {
	return c.run(ctx, stageApply, req)
}

func (c *Containerd) run(ctx context.Context, s stage, req core.RunRequest) (core.RunResult, error) {
	log := c.logger.With("plan", req.Plan.ID, "stage", string(s))
	log.Info("runner container stage start", "image", c.image)
	if c.health != nil {
		if err := c.health.Check(ctx); err != nil {
			log.Warn("runner health probe failed", "err", err)
			return core.RunResult{}, fmt.Errorf("runner health probe: %w", err)
		}
	}

	dir, err := c.materialize(req)
	if err != nil {
		log.Warn("runner workspace failed", "err", err)
		return core.RunResult{}, err
	}
	defer func() { _ = os.RemoveAll(dir) }()

	runCtx, cancel := context.WithTimeout(ctx, c.runTimeout)
	defer cancel()
	nsCtx := namespaces.WithNamespace(runCtx, c.namespace)
	cleanupCtx := namespaces.WithNamespace(context.Background(), c.namespace)

	image, err := c.ensureImage(nsCtx)
	if err != nil {
		return core.RunResult{}, err
	}

	name := runName(req.Plan.ID, s)
	specOpts := []oci.SpecOpts{
		oci.WithImageConfig(image),
		oci.WithProcessArgs("sh", "-lc", s.script()),
		oci.WithProcessCwd(containerWorkspace),
		oci.WithEnv([]string{"TF_IN_AUTOMATION=true", "TF_INPUT=0"}),
		oci.WithMounts([]specs.Mount{{
			Type:        "bind",
			Source:      dir,
			Destination: containerWorkspace,
			Options:     []string{"rbind", "rw"},
		}}),
		oci.WithHostNamespace(specs.NetworkNamespace),
	}
	container, err := c.client.NewContainer(nsCtx, name,
		containerd.WithImage(image),
		containerd.WithContainerLabels(map[string]string{labelPlan: string(req.Plan.ID)}),
		containerd.WithNewSnapshot(name+"-snapshot", image),
		containerd.WithNewSpec(specOpts...),
	)
	if err != nil {
		log.Warn("runner container create failed", "err", err)
		return core.RunResult{}, err
	}
	defer func() { _ = container.Delete(cleanupCtx, containerd.WithSnapshotCleanup) }()

	out := newLineWriter(req.OnLine)
	task, err := container.NewTask(nsCtx, cio.NewCreator(cio.WithStreams(nil, out, out)))
	if err != nil {
		log.Warn("runner task create failed", "err", err)
		return core.RunResult{}, err
	}
	defer func() { _, _ = task.Delete(cleanupCtx, containerd.WithProcessKill) }()

	waitCh, err := task.Wait(nsCtx)
	if err != nil {
		log.Warn("runner task wait failed", "err", err)
		return core.RunResult{}, err
	}
	if err := task.Start(nsCtx); err != nil {
		log.Warn("runner task start failed", "err", err)
		return core.RunResult{}, err
	}

	var code uint32
	select {
	case status := <-waitCh:
		exit, _, err := status.Result()
		if err != nil {
			log.Warn("runner task failed", "err", err)
			return core.RunResult{}, err
		}
		code = exit
	case <-nsCtx.Done():
		_ = task.Kill(cleanupCtx, syscall.SIGTERM)
		log.Warn("runner stage timeout", "err", nsCtx.Err())
		return core.RunResult{}, nsCtx.Err()
	}
	out.Flush()
	if code != 0 {
		log.Warn("runner stage failed", "exit_code", int(code))
		return core.RunResult{}, fmt.Errorf("%s exited with status %d", s, code)
	}

	summary := summaryLine(out.Tail())
	if summary == "" {
		summary = fmt.Sprintf("%s finished", s)
	}
	cost := estimateMonthlyCost(req.Plan, len(changeUnits(req.Files)))
	log.Info("runner container stage ok", "monthly_cost_usd", cost)
	return core.RunResult{MonthlyCostUSD: cost, Summary: summary}, nil
}

// materialize writes the rendered change set into a fresh workspace
// directory under the runner work dir.
func (c *Containerd) materialize(req core.RunRequest) (string, error) {
	if err := os.MkdirAll(c.workDir, 0o755); err != nil {
		return "", err
	}
	dir, err := os.MkdirTemp(c.workDir, shortPlanID(req.Plan.ID)+"-")
	if err != nil {
		return "", err
	}
	for name, content := range req.Files {
		rel := filepath.FromSlash(name)
		if !filepath.IsLocal(rel) {
			_ = os.RemoveAll(dir)
			return "", fmt.Errorf("file path %q escapes the workspace", name)
		}
		target := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			_ = os.RemoveAll(dir)
			return "", err
		}
		if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
			_ = os.RemoveAll(dir)
			return "", err
		}
	}
	return dir, nil
}

func (c *Containerd) ensureImage(ctx context.Context) (containerd.Image, error) {
	img, err := c.client.GetImage(ctx, c.image)
	if err == nil {
		return img, nil
	}
	if !errdefs.IsNotFound(err) {
		c.logger.Warn("runner image lookup failed", "image", c.image, "err", err)
		return nil, err
	}
	pullCtx, cancel := context.WithTimeout(ctx, c.pullTimeout)
	defer cancel()
	c.logger.Info("runner image pull start", "image", c.image)
	img, err = c.client.Pull(pullCtx, c.image, containerd.WithPullUnpack)
	if err != nil {
		c.logger.Warn("runner image pull failed", "image", c.image, "err", err)
		return nil, err
	}
	c.logger.Info("runner image pull ok", "image", c.image)
	return img, nil
}

func runName(id schema.PlanID, s stage) string {
	return fmt.Sprintf("inframind-run-%s-%s-%d", shortPlanID(id), s, time.Now().Unix())
}

func shortPlanID(id schema.PlanID) string {
	short := string(id)
	if len(short) > 8 {
		short = short[:8]
	}
	return short
}

func candidateAddresses(primary string, name string) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(addr string) {
		addr = normalizeAddress(addr)
		if addr == "" {
			return
		}
		if _, ok := seen[addr]; ok {
			return
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	add(primary)

	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir != "" {
		add(filepath.Join(runtimeDir, name, name+".sock"))
	}
	userRunDir := filepath.Join("/run", "user", fmt.Sprintf("%d", os.Getuid()))
	if userRunDir != runtimeDir {
		add(filepath.Join(userRunDir, name, name+".sock"))
	}
	add(filepath.Join("/run", name, name+".sock"))
	return out
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ""
	}
	if strings.HasPrefix(addr, "unix://") {
		addr = strings.TrimPrefix(addr, "unix://")
	}
	if strings.HasPrefix(addr, "unix:") {
		addr = strings.TrimPrefix(addr, "unix:")
	}
	return addr
}
