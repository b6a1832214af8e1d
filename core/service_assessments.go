package core

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/inframind/inframind/internal/logx"
	"github.com/inframind/inframind/schema"
)

func (s *service) CreateAssessment(ctx context.Context, req schema.CreateAssessmentRequest) (schema.CreateAssessmentResponse, error) {
	if ctx == nil {
		return schema.CreateAssessmentResponse{}, errMissingContext
	}
	userID, err := normalizeUserID(req.UserID)
	if err != nil {
		return schema.CreateAssessmentResponse{}, err
	}
	log := logx.WithUser(ctx, userID)
	if strings.TrimSpace(req.Title) == "" {
		return schema.CreateAssessmentResponse{}, fmt.Errorf("%w: title is required", schema.ErrInvalidRequest)
	}
	provider, err := schema.NormalizeCloudProvider(string(req.Provider))
	if err != nil {
		return schema.CreateAssessmentResponse{}, err
	}
	now := s.now().UTC()
	assessment := schema.Assessment{
		ID:          schema.AssessmentID(newID()),
		OwnerID:     userID,
		Title:       strings.TrimSpace(req.Title),
		OrgName:     strings.TrimSpace(req.OrgName),
		Provider:    provider,
		Status:      schema.AssessmentDraft,
		CurrentStep: 0,
		TotalSteps:  s.cfg.AssessmentSteps,
		Responses:   map[int]json.RawMessage{},
		Revision:    1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.assessments.Create(ctx, assessment); err != nil {
		log.Warn("service assessment create failed", "err", err)
		return schema.CreateAssessmentResponse{}, err
	}
	s.emitAssessment(schema.AssessmentEvent{Assessment: assessment})
	log.Info("service assessment created", "assessment", assessment.ID, "provider", assessment.Provider, "steps", assessment.TotalSteps)
	return schema.CreateAssessmentResponse{Assessment: assessment}, nil
}

func (s *service) GetAssessment(ctx context.Context, req schema.GetAssessmentRequest) (schema.GetAssessmentResponse, error) {
	if ctx == nil {
		return schema.GetAssessmentResponse{}, errMissingContext
	}
	userID, err := normalizeUserID(req.UserID)
	if err != nil {
		return schema.GetAssessmentResponse{}, err
	}
	assessment, err := s.ownedAssessment(ctx, userID, req.AssessmentID)
	if err != nil {
		return schema.GetAssessmentResponse{}, err
	}
	return schema.GetAssessmentResponse{Assessment: assessment}, nil
}

func (s *service) ListAssessments(ctx context.Context, req schema.ListAssessmentsRequest) (schema.ListAssessmentsResponse, error) {
	if ctx == nil {
		return schema.ListAssessmentsResponse{}, errMissingContext
	}
	userID, err := normalizeUserID(req.UserID)
	if err != nil {
		return schema.ListAssessmentsResponse{}, err
	}
	offset, limit := s.clampPage(req.Offset, req.Limit)
	assessments, total, err := s.assessments.ListByOwner(ctx, userID, req.Status, offset, limit)
	if err != nil {
		logx.WithUser(ctx, userID).Warn("service assessment list failed", "err", err)
		return schema.ListAssessmentsResponse{}, err
	}
	return schema.ListAssessmentsResponse{Assessments: assessments, Total: total}, nil
}

func (s *service) SaveAssessmentDraft(ctx context.Context, req schema.SaveAssessmentDraftRequest) (schema.SaveAssessmentDraftResponse, error) {
	if ctx == nil {
		return schema.SaveAssessmentDraftResponse{}, errMissingContext
	}
	userID, err := normalizeUserID(req.UserID)
	if err != nil {
		return schema.SaveAssessmentDraftResponse{}, err
	}
	log := logx.WithAssessment(ctx, userID, req.AssessmentID)
	if len(req.Responses) == 0 {
		return schema.SaveAssessmentDraftResponse{}, fmt.Errorf("%w: responses are required", schema.ErrInvalidRequest)
	}
	if len(req.Responses) > s.cfg.DraftMaxBytes {
		return schema.SaveAssessmentDraftResponse{}, fmt.Errorf("%w: step payload exceeds %d bytes", schema.ErrInvalidRequest, s.cfg.DraftMaxBytes)
	}
	if !json.Valid(req.Responses) {
		return schema.SaveAssessmentDraftResponse{}, fmt.Errorf("%w: responses must be valid JSON", schema.ErrInvalidRequest)
	}
	assessment, err := s.ownedAssessment(ctx, userID, req.AssessmentID)
	if err != nil {
		return schema.SaveAssessmentDraftResponse{}, err
	}
	if req.Step < 1 || req.Step > assessment.TotalSteps {
		return schema.SaveAssessmentDraftResponse{}, fmt.Errorf("%w: step %d outside 1..%d", schema.ErrInvalidRequest, req.Step, assessment.TotalSteps)
	}
	switch assessment.Status {
	case schema.AssessmentDraft, schema.AssessmentInProgress:
	default:
		return schema.SaveAssessmentDraftResponse{}, fmt.Errorf("%w: cannot edit a %s assessment", schema.ErrInvalidTransition, assessment.Status)
	}

	if assessment.Responses == nil {
		assessment.Responses = map[int]json.RawMessage{}
	}
	assessment.Responses[req.Step] = append(json.RawMessage(nil), req.Responses...)
	if req.Step > assessment.CurrentStep {
		assessment.CurrentStep = req.Step
	}
	assessment.CompletionPct = completionPct(len(assessment.Responses), assessment.TotalSteps)
	assessment.Status = schema.AssessmentInProgress
	assessment.UpdatedAt = s.now().UTC()

	updated, err := s.assessments.Update(ctx, assessment, req.Revision)
	if err != nil {
		log.Warn("service assessment draft save failed", "step", req.Step, "revision", req.Revision, "err", err)
		return schema.SaveAssessmentDraftResponse{}, err
	}
	s.emitAssessment(schema.AssessmentEvent{Assessment: updated})
	log.Debug("service assessment draft saved", "step", req.Step, "completion_pct", updated.CompletionPct, "revision", updated.Revision)
	return schema.SaveAssessmentDraftResponse{Assessment: updated}, nil
}

func (s *service) SubmitAssessment(ctx context.Context, req schema.SubmitAssessmentRequest) (schema.SubmitAssessmentResponse, error) {
	if ctx == nil {
		return schema.SubmitAssessmentResponse{}, errMissingContext
	}
	userID, err := normalizeUserID(req.UserID)
	if err != nil {
		return schema.SubmitAssessmentResponse{}, err
	}
	log := logx.WithAssessment(ctx, userID, req.AssessmentID)
	assessment, err := s.ownedAssessment(ctx, userID, req.AssessmentID)
	if err != nil {
		return schema.SubmitAssessmentResponse{}, err
	}
	if assessment.Status != schema.AssessmentInProgress {
		return schema.SubmitAssessmentResponse{}, fmt.Errorf("%w: cannot submit a %s assessment", schema.ErrInvalidTransition, assessment.Status)
	}
	if len(assessment.Responses) < assessment.TotalSteps {
		return schema.SubmitAssessmentResponse{}, fmt.Errorf("%w: %d of %d steps saved", schema.ErrInvalidRequest, len(assessment.Responses), assessment.TotalSteps)
	}
	assessment.Status = schema.AssessmentReview
	assessment.UpdatedAt = s.now().UTC()
	updated, err := s.assessments.Update(ctx, assessment, assessment.Revision)
	if err != nil {
		log.Warn("service assessment submit failed", "err", err)
		return schema.SubmitAssessmentResponse{}, err
	}
	s.emitAssessment(schema.AssessmentEvent{Assessment: updated})
	log.Info("service assessment submitted")
	return schema.SubmitAssessmentResponse{Assessment: updated}, nil
}

func (s *service) CompleteAssessment(ctx context.Context, req schema.CompleteAssessmentRequest) (schema.CompleteAssessmentResponse, error) {
	if ctx == nil {
		return schema.CompleteAssessmentResponse{}, errMissingContext
	}
	userID, err := normalizeUserID(req.UserID)
	if err != nil {
		return schema.CompleteAssessmentResponse{}, err
	}
	log := logx.WithAssessment(ctx, userID, req.AssessmentID)
	assessment, err := s.ownedAssessment(ctx, userID, req.AssessmentID)
	if err != nil {
		return schema.CompleteAssessmentResponse{}, err
	}
	if assessment.Status != schema.AssessmentReview {
		return schema.CompleteAssessmentResponse{}, fmt.Errorf("%w: cannot complete a %s assessment", schema.ErrInvalidTransition, assessment.Status)
	}

	report := buildReport(assessment, s.now().UTC())
	assessment.Scores = categoryScores(assessment)
	assessment.Status = schema.AssessmentCompleted
	assessment.UpdatedAt = s.now().UTC()

	updated, err := s.assessments.Update(ctx, assessment, assessment.Revision)
	if err != nil {
		log.Warn("service assessment complete failed", "err", err)
		return schema.CompleteAssessmentResponse{}, err
	}
	if err := s.assessments.SaveReport(ctx, report); err != nil {
		log.Warn("service assessment report save failed", "err", err)
		return schema.CompleteAssessmentResponse{}, err
	}
	s.emitAssessment(schema.AssessmentEvent{Assessment: updated})
	s.emitKPIs(ctx)
	log.Info("service assessment completed", "overall_score", report.OverallScore)
	return schema.CompleteAssessmentResponse{Assessment: updated, Report: report}, nil
}

func (s *service) ArchiveAssessment(ctx context.Context, req schema.ArchiveAssessmentRequest) (schema.ArchiveAssessmentResponse, error) {
	if ctx == nil {
		return schema.ArchiveAssessmentResponse{}, errMissingContext
	}
	userID, err := normalizeUserID(req.UserID)
	if err != nil {
		return schema.ArchiveAssessmentResponse{}, err
	}
	log := logx.WithAssessment(ctx, userID, req.AssessmentID)
	assessment, err := s.ownedAssessment(ctx, userID, req.AssessmentID)
	if err != nil {
		return schema.ArchiveAssessmentResponse{}, err
	}
	if assessment.Status == schema.AssessmentArchived {
		return schema.ArchiveAssessmentResponse{}, fmt.Errorf("%w: assessment is already archived", schema.ErrInvalidTransition)
	}
	assessment.Status = schema.AssessmentArchived
	assessment.UpdatedAt = s.now().UTC()
	updated, err := s.assessments.Update(ctx, assessment, assessment.Revision)
	if err != nil {
		log.Warn("service assessment archive failed", "err", err)
		return schema.ArchiveAssessmentResponse{}, err
	}
	// Drop a stale active selection pointing at the archived assessment.
	if active, err := s.preferences.ActiveAssessment(ctx, userID); err == nil && active == updated.ID {
		if err := s.preferences.SetActiveAssessment(ctx, userID, ""); err != nil {
			log.Warn("service assessment archive selection clear failed", "err", err)
		}
	}
	s.emitAssessment(schema.AssessmentEvent{Assessment: updated})
	log.Info("service assessment archived")
	return schema.ArchiveAssessmentResponse{Assessment: updated}, nil
}

func (s *service) SelectAssessment(ctx context.Context, req schema.SelectAssessmentRequest) (schema.SelectAssessmentResponse, error) {
	if ctx == nil {
		return schema.SelectAssessmentResponse{}, errMissingContext
	}
	userID, err := normalizeUserID(req.UserID)
	if err != nil {
		return schema.SelectAssessmentResponse{}, err
	}
	log := logx.WithUser(ctx, userID)
	if req.AssessmentID != "" {
		if _, err := s.ownedAssessment(ctx, userID, req.AssessmentID); err != nil {
			return schema.SelectAssessmentResponse{}, err
		}
	}
	if err := s.preferences.SetActiveAssessment(ctx, userID, req.AssessmentID); err != nil {
		log.Warn("service assessment select failed", "assessment", req.AssessmentID, "err", err)
		return schema.SelectAssessmentResponse{}, err
	}
	log.Info("service assessment selected", "assessment", req.AssessmentID)
	return schema.SelectAssessmentResponse{AssessmentID: req.AssessmentID}, nil
}

func (s *service) GetReport(ctx context.Context, req schema.GetReportRequest) (schema.GetReportResponse, error) {
	if ctx == nil {
		return schema.GetReportResponse{}, errMissingContext
	}
	userID, err := normalizeUserID(req.UserID)
	if err != nil {
		return schema.GetReportResponse{}, err
	}
	if _, err := s.ownedAssessment(ctx, userID, req.AssessmentID); err != nil {
		return schema.GetReportResponse{}, err
	}
	report, err := s.assessments.GetReport(ctx, req.AssessmentID)
	if err != nil {
		return schema.GetReportResponse{}, err
	}
	return schema.GetReportResponse{Report: report}, nil
}

func (s *service) ExportReportPDF(ctx context.Context, req schema.ExportReportPDFRequest) (schema.ExportReportPDFResponse, error) {
	if ctx == nil {
		return schema.ExportReportPDFResponse{}, errMissingContext
	}
	userID, err := normalizeUserID(req.UserID)
	if err != nil {
		return schema.ExportReportPDFResponse{}, err
	}
	log := logx.WithAssessment(ctx, userID, req.AssessmentID)
	if s.reporter == nil {
		return schema.ExportReportPDFResponse{}, schema.ErrExportUnavailable
	}
	assessment, err := s.ownedAssessment(ctx, userID, req.AssessmentID)
	if err != nil {
		return schema.ExportReportPDFResponse{}, err
	}
	report, err := s.assessments.GetReport(ctx, req.AssessmentID)
	if err != nil {
		return schema.ExportReportPDFResponse{}, err
	}
	pdf, err := s.reporter.RenderPDF(ctx, assessment, report)
	if err != nil {
		log.Warn("service report pdf export failed", "err", err)
		return schema.ExportReportPDFResponse{}, err
	}
	log.Info("service report pdf exported", "bytes", len(pdf))
	return schema.ExportReportPDFResponse{
		Filename: reportFilename(assessment),
		PDF:      pdf,
	}, nil
}

// ownedAssessment fetches an assessment and hides other users' rows
// behind not-found.
func (s *service) ownedAssessment(ctx context.Context, userID schema.UserID, id schema.AssessmentID) (schema.Assessment, error) {
	if id == "" {
		return schema.Assessment{}, fmt.Errorf("%w: assessment id is required", schema.ErrInvalidRequest)
	}
	assessment, err := s.assessments.Get(ctx, id)
	if err != nil {
		return schema.Assessment{}, err
	}
	if assessment.OwnerID != userID {
		return schema.Assessment{}, schema.ErrAssessmentNotFound
	}
	return assessment, nil
}

func completionPct(saved, total int) float64 {
	if total <= 0 {
		return 0
	}
	if saved > total {
		saved = total
	}
	return float64(saved) / float64(total) * 100
}

// assessmentCategories maps wizard steps to scored categories. Steps
// beyond the table wrap around.
var assessmentCategories = []string{
	"Compute & Scaling",
	"Networking",
	"Storage & Data",
	"Security & IAM",
	"Observability",
	"Cost Management",
	"CI/CD & Automation",
	"Governance",
}

var categoryRecommendations = map[string]schema.Recommendation{
	"Compute & Scaling": {
		Title:             "Right-size GPU and inference node pools",
		Impact:            "high",
		Effort:            "medium",
		MonthlySavingsUSD: 1800,
	},
	"Networking": {
		Title:             "Add private service connectivity for model endpoints",
		Impact:            "medium",
		Effort:            "medium",
		MonthlySavingsUSD: 0,
	},
	"Storage & Data": {
		Title:             "Tier cold training data to archive storage",
		Impact:            "medium",
		Effort:            "low",
		MonthlySavingsUSD: 950,
	},
	"Security & IAM": {
		Title:             "Scope workload identities to least privilege",
		Impact:            "high",
		Effort:            "medium",
		MonthlySavingsUSD: 0,
	},
	"Observability": {
		Title:             "Instrument inference latency and token throughput",
		Impact:            "high",
		Effort:            "low",
		MonthlySavingsUSD: 0,
	},
	"Cost Management": {
		Title:             "Adopt committed use discounts for steady inference load",
		Impact:            "high",
		Effort:            "low",
		MonthlySavingsUSD: 2400,
	},
	"CI/CD & Automation": {
		Title:             "Promote models through environments with GitOps",
		Impact:            "medium",
		Effort:            "medium",
		MonthlySavingsUSD: 0,
	},
	"Governance": {
		Title:             "Tag AI workloads for chargeback and audit",
		Impact:            "low",
		Effort:            "low",
		MonthlySavingsUSD: 300,
	},
}

// categoryScores scores each saved step's responses in step order.
func categoryScores(a schema.Assessment) []schema.ScoreEntry {
	steps := make([]int, 0, len(a.Responses))
	for step := range a.Responses {
		steps = append(steps, step)
	}
	sort.Ints(steps)
	entries := make([]schema.ScoreEntry, 0, len(steps))
	for _, step := range steps {
		entries = append(entries, schema.ScoreEntry{
			Category: assessmentCategories[(step-1)%len(assessmentCategories)],
			Score:    stepScore(a.Responses[step]),
		})
	}
	return entries
}

// buildReport scores each step's responses and assembles the report.
// Responses are scanned for numeric answers on the wizard's 0..4 scale;
// a step without numeric answers scores neutral.
func buildReport(a schema.Assessment, generatedAt time.Time) schema.Report {
	entries := categoryScores(a)

	sections := make([]schema.ReportSection, 0, len(entries))
	total := 0.0
	for _, entry := range entries {
		total += entry.Score
		sections = append(sections, schema.ReportSection{
			Title:    entry.Category,
			Body:     sectionBody(entry.Category, entry.Score),
			Severity: severityFor(entry.Score),
		})
	}
	overall := 0.0
	if len(entries) > 0 {
		overall = total / float64(len(entries))
	}

	// Recommend against the two weakest categories.
	ranked := append([]schema.ScoreEntry(nil), entries...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score < ranked[j].Score })
	recommendations := make([]schema.Recommendation, 0, 2)
	for _, entry := range ranked {
		if len(recommendations) == 2 {
			break
		}
		if rec, ok := categoryRecommendations[entry.Category]; ok {
			recommendations = append(recommendations, rec)
		}
	}

	return schema.Report{
		AssessmentID:    a.ID,
		OverallScore:    round1(overall),
		Sections:        sections,
		Recommendations: recommendations,
		GeneratedAt:     generatedAt,
	}
}

// stepScore averages the numeric answers of one step and maps the 0..4
// wizard scale onto 0..100. Steps without numeric answers score 50.
func stepScore(raw json.RawMessage) float64 {
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return 50
	}
	sum, n := 0.0, 0
	collectAnswers(payload, &sum, &n)
	if n == 0 {
		return 50
	}
	return round1(sum / float64(n) * 25)
}

func collectAnswers(v any, sum *float64, n *int) {
	switch val := v.(type) {
	case float64:
		if val >= 0 && val <= 4 {
			*sum += val
			*n++
		}
	case map[string]any:
		for _, item := range val {
			collectAnswers(item, sum, n)
		}
	case []any:
		for _, item := range val {
			collectAnswers(item, sum, n)
		}
	}
}

func severityFor(score float64) schema.ReportSeverity {
	switch {
	case score < 40:
		return schema.SeverityCritical
	case score < 70:
		return schema.SeverityWarning
	default:
		return schema.SeverityInfo
	}
}

func sectionBody(category string, score float64) string {
	switch severityFor(score) {
	case schema.SeverityCritical:
		return fmt.Sprintf("%s scored %.1f of 100. Gaps here block reliable AI workloads and need attention before deploying.", category, score)
	case schema.SeverityWarning:
		return fmt.Sprintf("%s scored %.1f of 100. Workloads will run, but reliability or cost will suffer under load.", category, score)
	default:
		return fmt.Sprintf("%s scored %.1f of 100. This area is ready for production AI workloads.", category, score)
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func reportFilename(a schema.Assessment) string {
	return fmt.Sprintf("inframind-report-%s.pdf", shortID(string(a.ID)))
}
