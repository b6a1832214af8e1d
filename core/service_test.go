package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/inframind/inframind/schema"
)

// testEnv bundles in-memory stores and fake integrations for service tests.
type testEnv struct {
	assessments *memAssessments
	experiments *memExperiments
	repos       *memRepositories
	plans       *memPlans
	feedback    *memFeedback
	prefs       *memPreferences
	stats       *memStats
	provider    *fakeProvider
	keys        *fakeKeys
	syncer      *fakeSyncer
	catalog     *fakeCatalog
	publisher   *fakePublisher
	runner      *fakeRunner
	renderer    *fakeRenderer
	sink        *recordSink
	now         time.Time
}

func newTestEnv() *testEnv {
	return &testEnv{
		assessments: newMemAssessments(),
		experiments: newMemExperiments(),
		repos:       newMemRepositories(),
		plans:       newMemPlans(),
		feedback:    newMemFeedback(),
		prefs:       newMemPreferences(),
		stats:       newMemStats(),
		provider:    &fakeProvider{},
		keys:        &fakeKeys{},
		syncer:      &fakeSyncer{},
		catalog:     newFakeCatalog(),
		publisher:   &fakePublisher{},
		runner:      &fakeRunner{},
		renderer:    &fakeRenderer{pdf: []byte("%PDF-1.4 fake")},
		sink:        &recordSink{},
		now:         time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC),
	}
}

func (e *testEnv) deps() ServiceDeps {
	// Optional integrations are assigned one by one so a nil fake pointer
	// stays a nil interface.
	deps := ServiceDeps{
		Assessments:  e.assessments,
		Experiments:  e.experiments,
		Repositories: e.repos,
		Plans:        e.plans,
		Feedback:     e.feedback,
		Preferences:  e.prefs,
		Stats:        e.stats,
	}
	if e.provider != nil {
		deps.Provider = e.provider
	}
	if e.keys != nil {
		deps.Keys = e.keys
	}
	if e.syncer != nil {
		deps.Syncer = e.syncer
	}
	if e.catalog != nil {
		deps.Templates = e.catalog
	}
	if e.publisher != nil {
		deps.Publisher = e.publisher
	}
	if e.runner != nil {
		deps.Runner = e.runner
	}
	if e.renderer != nil {
		deps.Reporter = e.renderer
	}
	if e.sink != nil {
		deps.EventSink = e.sink
	}
	return deps
}

// service builds the service under test with a pinned clock.
func (e *testEnv) service(t *testing.T) Service {
	t.Helper()
	svc, err := NewService(schema.ServiceConfig{StateDir: t.TempDir()}, e.deps())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	svc.(*service).now = func() time.Time { return e.now }
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

// waitForPlanStatus polls until the stored plan reaches the wanted status.
func waitForPlanStatus(t *testing.T, svc Service, user schema.UserID, id schema.PlanID, want schema.PlanStatus) schema.DeploymentPlan {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := svc.GetPlan(context.Background(), schema.GetPlanRequest{UserID: user, PlanID: id})
		if err != nil {
			t.Fatalf("get plan: %v", err)
		}
		if resp.Plan.Status == want {
			return resp.Plan
		}
		if time.Now().After(deadline) {
			t.Fatalf("plan never reached %s, stuck at %s", want, resp.Plan.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// waitForSyncStatus polls until the stored repository leaves syncing states.
func waitForSyncStatus(t *testing.T, svc Service, user schema.UserID, id schema.RepositoryID, want schema.RepoSyncStatus) schema.GitRepository {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := svc.GetRepository(context.Background(), schema.GetRepositoryRequest{UserID: user, RepositoryID: id})
		if err != nil {
			t.Fatalf("get repository: %v", err)
		}
		if resp.Repository.SyncStatus == want {
			return resp.Repository
		}
		if time.Now().After(deadline) {
			t.Fatalf("repository never reached %s, stuck at %s", want, resp.Repository.SyncStatus)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Memory stores.

type memAssessments struct {
	mu      sync.Mutex
	rows    map[schema.AssessmentID]schema.Assessment
	reports map[schema.AssessmentID]schema.Report
}

func newMemAssessments() *memAssessments {
	return &memAssessments{
		rows:    make(map[schema.AssessmentID]schema.Assessment),
		reports: make(map[schema.AssessmentID]schema.Report),
	}
}

func (m *memAssessments) Create(_ context.Context, a schema.Assessment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[a.ID] = a
	return nil
}

func (m *memAssessments) Get(_ context.Context, id schema.AssessmentID) (schema.Assessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return schema.Assessment{}, schema.ErrAssessmentNotFound
	}
	return a, nil
}

func (m *memAssessments) ListByOwner(_ context.Context, owner schema.UserID, status schema.AssessmentStatus, offset, limit int) ([]schema.Assessment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched := make([]schema.Assessment, 0, len(m.rows))
	for _, a := range m.rows {
		if a.OwnerID != owner {
			continue
		}
		if status == "" {
			if a.Status == schema.AssessmentArchived {
				continue
			}
		} else if a.Status != status {
			continue
		}
		matched = append(matched, a)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (m *memAssessments) Update(_ context.Context, a schema.Assessment, expected int64) (schema.Assessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.rows[a.ID]
	if !ok {
		return schema.Assessment{}, schema.ErrAssessmentNotFound
	}
	if stored.Revision != expected {
		return schema.Assessment{}, schema.ErrRevisionConflict
	}
	a.Revision = expected + 1
	m.rows[a.ID] = a
	return a, nil
}

func (m *memAssessments) SaveReport(_ context.Context, r schema.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[r.AssessmentID] = r
	return nil
}

func (m *memAssessments) GetReport(_ context.Context, id schema.AssessmentID) (schema.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return schema.Report{}, schema.ErrReportNotFound
	}
	return r, nil
}

func (m *memAssessments) Recent(_ context.Context, limit int) ([]schema.Assessment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]schema.Assessment, 0, len(m.rows))
	for _, a := range m.rows {
		all = append(all, a)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UpdatedAt.After(all[j].UpdatedAt) })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

type experimentEvent struct {
	variant schema.VariantID
	kind    schema.ExperimentEventKind
}

type memExperiments struct {
	mu          sync.Mutex
	rows        map[schema.ExperimentID]schema.Experiment
	assignments map[schema.ExperimentID]map[string]schema.VariantID
	events      map[schema.ExperimentID][]experimentEvent
}

func newMemExperiments() *memExperiments {
	return &memExperiments{
		rows:        make(map[schema.ExperimentID]schema.Experiment),
		assignments: make(map[schema.ExperimentID]map[string]schema.VariantID),
		events:      make(map[schema.ExperimentID][]experimentEvent),
	}
}

func (m *memExperiments) Create(_ context.Context, e schema.Experiment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[e.ID] = e
	return nil
}

func (m *memExperiments) Get(_ context.Context, id schema.ExperimentID) (schema.Experiment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.rows[id]
	if !ok {
		return schema.Experiment{}, schema.ErrExperimentNotFound
	}
	return e, nil
}

func (m *memExperiments) List(_ context.Context, status schema.ExperimentStatus) ([]schema.Experiment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]schema.Experiment, 0, len(m.rows))
	for _, e := range m.rows {
		if status != "" && e.Status != status {
			continue
		}
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	return all, nil
}

func (m *memExperiments) Update(_ context.Context, e schema.Experiment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[e.ID]; !ok {
		return schema.ErrExperimentNotFound
	}
	m.rows[e.ID] = e
	return nil
}

func (m *memExperiments) Delete(_ context.Context, id schema.ExperimentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return schema.ErrExperimentNotFound
	}
	delete(m.rows, id)
	delete(m.assignments, id)
	delete(m.events, id)
	return nil
}

func (m *memExperiments) SaveAssignment(_ context.Context, id schema.ExperimentID, subject string, variant schema.VariantID) (schema.VariantID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.assignments[id][subject]; ok {
		return existing, nil
	}
	if m.assignments[id] == nil {
		m.assignments[id] = make(map[string]schema.VariantID)
	}
	m.assignments[id][subject] = variant
	return variant, nil
}

func (m *memExperiments) GetAssignment(_ context.Context, id schema.ExperimentID, subject string) (schema.VariantID, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	variant, ok := m.assignments[id][subject]
	return variant, ok, nil
}

func (m *memExperiments) RecordEvent(_ context.Context, id schema.ExperimentID, _ string, variant schema.VariantID, kind schema.ExperimentEventKind, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[id] = append(m.events[id], experimentEvent{variant: variant, kind: kind})
	return nil
}

func (m *memExperiments) Counts(_ context.Context, id schema.ExperimentID) ([]VariantCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tally := make(map[schema.VariantID]*VariantCount)
	order := make([]schema.VariantID, 0)
	for _, ev := range m.events[id] {
		c := tally[ev.variant]
		if c == nil {
			c = &VariantCount{VariantID: ev.variant}
			tally[ev.variant] = c
			order = append(order, ev.variant)
		}
		switch ev.kind {
		case schema.EventExposure:
			c.Exposures++
		case schema.EventConversion:
			c.Conversions++
		}
	}
	counts := make([]VariantCount, 0, len(order))
	for _, id := range order {
		counts = append(counts, *tally[id])
	}
	return counts, nil
}

type memRepositories struct {
	mu   sync.Mutex
	rows map[schema.RepositoryID]schema.GitRepository
}

func newMemRepositories() *memRepositories {
	return &memRepositories{rows: make(map[schema.RepositoryID]schema.GitRepository)}
}

func (m *memRepositories) Create(_ context.Context, r schema.GitRepository) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[r.ID] = r
	return nil
}

func (m *memRepositories) Get(_ context.Context, id schema.RepositoryID) (schema.GitRepository, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return schema.GitRepository{}, schema.ErrRepositoryNotFound
	}
	return r, nil
}

func (m *memRepositories) GetByCloneURL(_ context.Context, cloneURL string) (schema.GitRepository, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.CloneURL == cloneURL {
			return r, nil
		}
	}
	return schema.GitRepository{}, schema.ErrRepositoryNotFound
}

func (m *memRepositories) List(_ context.Context) ([]schema.GitRepository, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]schema.GitRepository, 0, len(m.rows))
	for _, r := range m.rows {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ConnectedAt.After(all[j].ConnectedAt) })
	return all, nil
}

func (m *memRepositories) Update(_ context.Context, r schema.GitRepository) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[r.ID]; !ok {
		return schema.ErrRepositoryNotFound
	}
	m.rows[r.ID] = r
	return nil
}

func (m *memRepositories) Delete(_ context.Context, id schema.RepositoryID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return schema.ErrRepositoryNotFound
	}
	delete(m.rows, id)
	return nil
}

type memPlans struct {
	mu   sync.Mutex
	rows map[schema.PlanID]schema.DeploymentPlan
}

func newMemPlans() *memPlans {
	return &memPlans{rows: make(map[schema.PlanID]schema.DeploymentPlan)}
}

func (m *memPlans) Create(_ context.Context, p schema.DeploymentPlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[p.ID] = p
	return nil
}

func (m *memPlans) Get(_ context.Context, id schema.PlanID) (schema.DeploymentPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok {
		return schema.DeploymentPlan{}, schema.ErrPlanNotFound
	}
	return p, nil
}

func (m *memPlans) List(_ context.Context, status schema.PlanStatus, offset, limit int) ([]schema.DeploymentPlan, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched := make([]schema.DeploymentPlan, 0, len(m.rows))
	for _, p := range m.rows {
		if status != "" && p.Status != status {
			continue
		}
		matched = append(matched, p)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (m *memPlans) Update(_ context.Context, p schema.DeploymentPlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[p.ID]; !ok {
		return schema.ErrPlanNotFound
	}
	m.rows[p.ID] = p
	return nil
}

func (m *memPlans) Recent(_ context.Context, limit int) ([]schema.DeploymentPlan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]schema.DeploymentPlan, 0, len(m.rows))
	for _, p := range m.rows {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UpdatedAt.After(all[j].UpdatedAt) })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

type memFeedback struct {
	mu   sync.Mutex
	rows []schema.FeedbackRecord
}

func newMemFeedback() *memFeedback {
	return &memFeedback{}
}

func (m *memFeedback) Create(_ context.Context, f schema.FeedbackRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, f)
	return nil
}

func (m *memFeedback) List(_ context.Context, category schema.FeedbackCategory, minRating, offset, limit int) ([]schema.FeedbackRecord, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matched := make([]schema.FeedbackRecord, 0, len(m.rows))
	for _, f := range m.rows {
		if category != "" && f.Category != category {
			continue
		}
		if f.Rating < minRating {
			continue
		}
		matched = append(matched, f)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (m *memFeedback) Stats(_ context.Context) (schema.FeedbackStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := schema.FeedbackStats{
		ByCategory: make(map[schema.FeedbackCategory]int),
		ByRating:   make(map[int]int),
	}
	sum := 0
	for _, f := range m.rows {
		stats.Total++
		sum += f.Rating
		stats.ByCategory[f.Category]++
		stats.ByRating[f.Rating]++
	}
	if stats.Total > 0 {
		stats.AverageRating = float64(sum) / float64(stats.Total)
	}
	return stats, nil
}

func (m *memFeedback) Recent(_ context.Context, limit int) ([]schema.FeedbackRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := append([]schema.FeedbackRecord(nil), m.rows...)
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

type memPreferences struct {
	mu     sync.Mutex
	prefs  map[schema.UserID]schema.Preferences
	active map[schema.UserID]schema.AssessmentID
}

func newMemPreferences() *memPreferences {
	return &memPreferences{
		prefs:  make(map[schema.UserID]schema.Preferences),
		active: make(map[schema.UserID]schema.AssessmentID),
	}
}

func (m *memPreferences) Get(_ context.Context, user schema.UserID) (schema.Preferences, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prefs[user]
	return p, ok, nil
}

func (m *memPreferences) Set(_ context.Context, user schema.UserID, p schema.Preferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs[user] = p
	return nil
}

func (m *memPreferences) ActiveAssessment(_ context.Context, user schema.UserID) (schema.AssessmentID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[user], nil
}

func (m *memPreferences) SetActiveAssessment(_ context.Context, user schema.UserID, id schema.AssessmentID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active[user] = id
	return nil
}

// memStats records raw observations and answers aggregate queries over them.
type memStats struct {
	mu          sync.Mutex
	completions []time.Time
	scores      []struct {
		at    time.Time
		score float64
	}
	planRuns []struct {
		at time.Time
		ok bool
	}
	pageViews []struct {
		at   time.Time
		user schema.UserID
	}
	ratings []struct {
		at     time.Time
		rating int
	}
	costTotal float64
}

func newMemStats() *memStats {
	return &memStats{}
}

func (m *memStats) addCompletion(at time.Time, score float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completions = append(m.completions, at)
	m.scores = append(m.scores, struct {
		at    time.Time
		score float64
	}{at, score})
}

func (m *memStats) addPlanRun(at time.Time, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.planRuns = append(m.planRuns, struct {
		at time.Time
		ok bool
	}{at, ok})
}

func (m *memStats) addRating(at time.Time, rating int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ratings = append(m.ratings, struct {
		at     time.Time
		rating int
	}{at, rating})
}

func (m *memStats) RecordPageView(_ context.Context, user schema.UserID, _ string, _ int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pageViews = append(m.pageViews, struct {
		at   time.Time
		user schema.UserID
	}{at, user})
	return nil
}

func inRange(at, from, to time.Time) bool {
	return !at.Before(from) && at.Before(to)
}

func (m *memStats) AssessmentsCompleted(_ context.Context, from, to time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, at := range m.completions {
		if inRange(at, from, to) {
			n++
		}
	}
	return n, nil
}

func (m *memStats) AssessmentsCompletedDaily(_ context.Context, from, to time.Time) ([]DayCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buckets := make(map[time.Time]int)
	for _, at := range m.completions {
		if inRange(at, from, to) {
			buckets[at.UTC().Truncate(24*time.Hour)]++
		}
	}
	return dayCounts(buckets), nil
}

func (m *memStats) AverageReadinessScore(_ context.Context, from, to time.Time) (float64, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum, n := 0.0, 0
	for _, s := range m.scores {
		if inRange(s.at, from, to) {
			sum += s.score
			n++
		}
	}
	if n == 0 {
		return 0, 0, nil
	}
	return sum / float64(n), n, nil
}

func (m *memStats) PlansApplied(_ context.Context, from, to time.Time) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	succeeded, failed := 0, 0
	for _, r := range m.planRuns {
		if !inRange(r.at, from, to) {
			continue
		}
		if r.ok {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed, nil
}

func (m *memStats) PlansDaily(_ context.Context, from, to time.Time) ([]PlanDayCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	type tally struct{ ok, bad int }
	buckets := make(map[time.Time]*tally)
	for _, r := range m.planRuns {
		if !inRange(r.at, from, to) {
			continue
		}
		day := r.at.UTC().Truncate(24 * time.Hour)
		b := buckets[day]
		if b == nil {
			b = &tally{}
			buckets[day] = b
		}
		if r.ok {
			b.ok++
		} else {
			b.bad++
		}
	}
	days := make([]time.Time, 0, len(buckets))
	for day := range buckets {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	out := make([]PlanDayCount, 0, len(days))
	for _, day := range days {
		out = append(out, PlanDayCount{Day: day, Succeeded: buckets[day].ok, Failed: buckets[day].bad})
	}
	return out, nil
}

func (m *memStats) ActiveUsers(_ context.Context, from, to time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[schema.UserID]struct{})
	for _, v := range m.pageViews {
		if inRange(v.at, from, to) {
			seen[v.user] = struct{}{}
		}
	}
	return len(seen), nil
}

func (m *memStats) AverageFeedbackRating(_ context.Context, from, to time.Time) (float64, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum, n := 0, 0
	for _, r := range m.ratings {
		if inRange(r.at, from, to) {
			sum += r.rating
			n++
		}
	}
	if n == 0 {
		return 0, 0, nil
	}
	return float64(sum) / float64(n), n, nil
}

func (m *memStats) FeedbackRatingDaily(_ context.Context, from, to time.Time) ([]DayCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	type tally struct {
		sum, n int
	}
	buckets := make(map[time.Time]*tally)
	for _, r := range m.ratings {
		if !inRange(r.at, from, to) {
			continue
		}
		day := r.at.UTC().Truncate(24 * time.Hour)
		b := buckets[day]
		if b == nil {
			b = &tally{}
			buckets[day] = b
		}
		b.sum += r.rating
		b.n++
	}
	days := make([]time.Time, 0, len(buckets))
	for day := range buckets {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	out := make([]DayCount, 0, len(days))
	for _, day := range days {
		b := buckets[day]
		out = append(out, DayCount{Day: day, Count: b.n, Value: float64(b.sum) / float64(b.n)})
	}
	return out, nil
}

func (m *memStats) PageViewsDaily(_ context.Context, from, to time.Time) ([]DayCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buckets := make(map[time.Time]int)
	for _, v := range m.pageViews {
		if inRange(v.at, from, to) {
			buckets[v.at.UTC().Truncate(24*time.Hour)]++
		}
	}
	return dayCounts(buckets), nil
}

func (m *memStats) MonthlyCostTotal(_ context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.costTotal, nil
}

func dayCounts(buckets map[time.Time]int) []DayCount {
	days := make([]time.Time, 0, len(buckets))
	for day := range buckets {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	out := make([]DayCount, 0, len(days))
	for _, day := range days {
		out = append(out, DayCount{Day: day, Count: buckets[day], Value: float64(buckets[day])})
	}
	return out
}

// Fake integrations.

type fakeProvider struct {
	mu      sync.Mutex
	prs     []schema.PullRequest
	err     error
	created []CreatePullRequestInput
}

func (f *fakeProvider) ListPullRequests(_ context.Context, _ schema.GitRepository) ([]schema.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]schema.PullRequest(nil), f.prs...), nil
}

func (f *fakeProvider) CreatePullRequest(_ context.Context, repo schema.GitRepository, input CreatePullRequestInput) (schema.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return schema.PullRequest{}, f.err
	}
	f.created = append(f.created, input)
	return schema.PullRequest{
		ID:           schema.PullRequestID(fmt.Sprintf("pr-%d", len(f.created))),
		RepositoryID: repo.ID,
		Number:       len(f.created),
		Title:        input.Title,
		Branch:       input.Branch,
		Status:       schema.PullRequestOpen,
	}, nil
}

type fakeKeys struct {
	mu      sync.Mutex
	minted  int
	keys    map[schema.RepositoryID]string
	removed []schema.RepositoryID
	err     error
}

func (f *fakeKeys) Mint(_ context.Context, id schema.RepositoryID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.minted++
	if f.keys == nil {
		f.keys = make(map[schema.RepositoryID]string)
	}
	key := fmt.Sprintf("ssh-ed25519 AAAAC3Nza-test-%d", f.minted)
	f.keys[id] = key
	return key, nil
}

func (f *fakeKeys) PublicKey(_ context.Context, id schema.RepositoryID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, ok := f.keys[id]
	if !ok {
		return "", fmt.Errorf("no key for %s", id)
	}
	return key, nil
}

func (f *fakeKeys) Remove(_ context.Context, id schema.RepositoryID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.keys, id)
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeKeys) removedIDs() []schema.RepositoryID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]schema.RepositoryID(nil), f.removed...)
}

type fakeSyncer struct {
	mu      sync.Mutex
	err     error
	synced  []schema.RepositoryID
	dropped []schema.RepositoryID
}

func (f *fakeSyncer) Sync(_ context.Context, repo schema.GitRepository) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synced = append(f.synced, repo.ID)
	return f.err
}

func (f *fakeSyncer) Drop(repo schema.GitRepository) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropped = append(f.dropped, repo.ID)
	return nil
}

func (f *fakeSyncer) droppedIDs() []schema.RepositoryID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]schema.RepositoryID(nil), f.dropped...)
}

type fakeCatalog struct {
	templates []schema.IaCTemplate
	files     map[string]string
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		templates: []schema.IaCTemplate{
			{
				ID:       "tmpl-gpu-cluster",
				Name:     "GPU training cluster",
				Kind:     schema.TemplateTerraform,
				Provider: schema.CloudAWS,
				Version:  "1.2.0",
				Parameters: []schema.TemplateParameter{
					{Name: "cluster_name", Type: "string", Required: true},
					{Name: "node_count", Type: "number", Default: "3"},
				},
			},
			{
				ID:       "tmpl-vector-db",
				Name:     "Vector database",
				Kind:     schema.TemplatePulumi,
				Provider: schema.CloudGCP,
				Version:  "0.9.1",
			},
		},
		files: map[string]string{"main.tf": "resource \"aws_eks_cluster\" \"this\" {}"},
	}
}

func (f *fakeCatalog) List(kind schema.TemplateKind, provider schema.CloudProvider) []schema.IaCTemplate {
	out := make([]schema.IaCTemplate, 0, len(f.templates))
	for _, t := range f.templates {
		if kind != "" && t.Kind != kind {
			continue
		}
		if provider != "" && t.Provider != provider {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (f *fakeCatalog) Get(id schema.TemplateID) (schema.IaCTemplate, error) {
	for _, t := range f.templates {
		if t.ID == id {
			return t, nil
		}
	}
	return schema.IaCTemplate{}, schema.ErrTemplateNotFound
}

func (f *fakeCatalog) Render(id schema.TemplateID, params map[string]string) (map[string]string, error) {
	template, err := f.Get(id)
	if err != nil {
		return nil, err
	}
	for _, p := range template.Parameters {
		if !p.Required {
			continue
		}
		if strings.TrimSpace(params[p.Name]) == "" {
			return nil, fmt.Errorf("%w: %s", schema.ErrMissingParameter, p.Name)
		}
	}
	out := make(map[string]string, len(f.files))
	for name, body := range f.files {
		out[name] = body
	}
	return out, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	err       error
	published []PublishRequest
}

func (f *fakePublisher) Publish(_ context.Context, req PublishRequest) (schema.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return schema.PullRequest{}, f.err
	}
	f.published = append(f.published, req)
	return schema.PullRequest{
		ID:           schema.PullRequestID(fmt.Sprintf("pr-%d", len(f.published))),
		RepositoryID: req.Repo.ID,
		Number:       len(f.published),
		Title:        req.Title,
		Branch:       req.Branch,
		Status:       schema.PullRequestOpen,
	}, nil
}

func (f *fakePublisher) last() (PublishRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.published) == 0 {
		return PublishRequest{}, false
	}
	return f.published[len(f.published)-1], true
}

type fakeRunner struct {
	mu         sync.Mutex
	planLines  []string
	planResult RunResult
	planErr    error
	applyLines []string
	applyRes   RunResult
	applyErr   error
	planned    int
	applied    int
}

func (f *fakeRunner) Plan(_ context.Context, req RunRequest) (RunResult, error) {
	f.mu.Lock()
	lines := append([]string(nil), f.planLines...)
	result, err := f.planResult, f.planErr
	f.planned++
	f.mu.Unlock()
	for _, line := range lines {
		if req.OnLine != nil {
			req.OnLine(line)
		}
	}
	return result, err
}

func (f *fakeRunner) Apply(_ context.Context, req RunRequest) (RunResult, error) {
	f.mu.Lock()
	lines := append([]string(nil), f.applyLines...)
	result, err := f.applyRes, f.applyErr
	f.applied++
	f.mu.Unlock()
	for _, line := range lines {
		if req.OnLine != nil {
			req.OnLine(line)
		}
	}
	return result, err
}

type fakeRenderer struct {
	pdf []byte
	err error
}

func (f *fakeRenderer) RenderPDF(_ context.Context, _ schema.Assessment, _ schema.Report) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.pdf, nil
}

// recordSink captures emitted events for assertions.
type recordSink struct {
	mu          sync.Mutex
	plans       []schema.PlanEvent
	assessments []schema.AssessmentEvent
	feedback    []schema.FeedbackEvent
	kpis        []schema.KPIEvent
}

func (r *recordSink) OnPlanEvent(e schema.PlanEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plans = append(r.plans, e)
}

func (r *recordSink) OnAssessmentEvent(e schema.AssessmentEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assessments = append(r.assessments, e)
}

func (r *recordSink) OnFeedbackEvent(e schema.FeedbackEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.feedback = append(r.feedback, e)
}

func (r *recordSink) OnKPIEvent(e schema.KPIEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kpis = append(r.kpis, e)
}

func (r *recordSink) planEvents() []schema.PlanEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]schema.PlanEvent(nil), r.plans...)
}

func (r *recordSink) feedbackEvents() []schema.FeedbackEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]schema.FeedbackEvent(nil), r.feedback...)
}

func (r *recordSink) kpiEvents() []schema.KPIEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]schema.KPIEvent(nil), r.kpis...)
}

func TestNewServiceRequiresStores(t *testing.T) {
	env := newTestEnv()
	deps := env.deps()
	deps.Plans = nil
	if _, err := NewService(schema.ServiceConfig{StateDir: t.TempDir()}, deps); err == nil {
		t.Fatalf("expected missing plan store to fail")
	}
}

func TestServiceRejectsMissingUser(t *testing.T) {
	env := newTestEnv()
	svc := env.service(t)
	if _, err := svc.GetDashboard(context.Background(), schema.GetDashboardRequest{}); err == nil {
		t.Fatalf("expected missing user to fail")
	}
	if _, err := svc.ListAssessments(context.Background(), schema.ListAssessmentsRequest{UserID: " padded "}); err == nil {
		t.Fatalf("expected padded user id to fail")
	}
}
