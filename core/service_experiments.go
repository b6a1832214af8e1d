package core

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/inframind/inframind/internal/logx"
	"github.com/inframind/inframind/schema"
)

// maxVariants bounds an experiment to one control plus nine arms.
const maxVariants = 10

func (s *service) CreateExperiment(ctx context.Context, req schema.CreateExperimentRequest) (schema.CreateExperimentResponse, error) {
	if ctx == nil {
		return schema.CreateExperimentResponse{}, errMissingContext
	}
	userID, err := normalizeUserID(req.UserID)
	if err != nil {
		return schema.CreateExperimentResponse{}, err
	}
	log := logx.WithUser(ctx, userID)
	if strings.TrimSpace(req.Name) == "" {
		return schema.CreateExperimentResponse{}, fmt.Errorf("%w: name is required", schema.ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Metric) == "" {
		return schema.CreateExperimentResponse{}, fmt.Errorf("%w: metric is required", schema.ErrInvalidRequest)
	}
	variants, err := buildVariants(req.Variants)
	if err != nil {
		return schema.CreateExperimentResponse{}, err
	}
	now := s.now().UTC()
	experiment := schema.Experiment{
		ID:          schema.ExperimentID(newID()),
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Hypothesis:  strings.TrimSpace(req.Hypothesis),
		Metric:      strings.TrimSpace(req.Metric),
		Status:      schema.ExperimentDraft,
		Variants:    variants,
		CreatedAt:   now,
	}
	if err := s.experiments.Create(ctx, experiment); err != nil {
		log.Warn("service experiment create failed", "err", err)
		return schema.CreateExperimentResponse{}, err
	}
	logx.WithExperiment(log, experiment.ID).Info("service experiment created", "variants", len(variants), "metric", experiment.Metric)
	return schema.CreateExperimentResponse{Experiment: experiment}, nil
}

func (s *service) GetExperiment(ctx context.Context, req schema.GetExperimentRequest) (schema.GetExperimentResponse, error) {
	if ctx == nil {
		return schema.GetExperimentResponse{}, errMissingContext
	}
	if _, err := normalizeUserID(req.UserID); err != nil {
		return schema.GetExperimentResponse{}, err
	}
	experiment, err := s.experiments.Get(ctx, req.ExperimentID)
	if err != nil {
		return schema.GetExperimentResponse{}, err
	}
	return schema.GetExperimentResponse{Experiment: experiment}, nil
}

func (s *service) ListExperiments(ctx context.Context, req schema.ListExperimentsRequest) (schema.ListExperimentsResponse, error) {
	if ctx == nil {
		return schema.ListExperimentsResponse{}, errMissingContext
	}
	if _, err := normalizeUserID(req.UserID); err != nil {
		return schema.ListExperimentsResponse{}, err
	}
	experiments, err := s.experiments.List(ctx, req.Status)
	if err != nil {
		return schema.ListExperimentsResponse{}, err
	}
	return schema.ListExperimentsResponse{Experiments: experiments}, nil
}

func (s *service) DeleteExperiment(ctx context.Context, req schema.DeleteExperimentRequest) (schema.DeleteExperimentResponse, error) {
	if ctx == nil {
		return schema.DeleteExperimentResponse{}, errMissingContext
	}
	userID, err := normalizeUserID(req.UserID)
	if err != nil {
		return schema.DeleteExperimentResponse{}, err
	}
	log := logx.WithExperiment(logx.WithUser(ctx, userID), req.ExperimentID)
	experiment, err := s.experiments.Get(ctx, req.ExperimentID)
	if err != nil {
		return schema.DeleteExperimentResponse{}, err
	}
	if experiment.Status != schema.ExperimentDraft {
		return schema.DeleteExperimentResponse{}, fmt.Errorf("%w: only draft experiments can be deleted", schema.ErrInvalidTransition)
	}
	if err := s.experiments.Delete(ctx, req.ExperimentID); err != nil {
		log.Warn("service experiment delete failed", "err", err)
		return schema.DeleteExperimentResponse{}, err
	}
	log.Info("service experiment deleted")
	return schema.DeleteExperimentResponse{}, nil
}

func (s *service) StartExperiment(ctx context.Context, req schema.StartExperimentRequest) (schema.StartExperimentResponse, error) {
	experiment, err := s.transitionExperiment(ctx, req.UserID, req.ExperimentID, "start",
		func(e *schema.Experiment) error {
			switch e.Status {
			case schema.ExperimentDraft, schema.ExperimentPaused:
			default:
				return fmt.Errorf("%w: cannot start a %s experiment", schema.ErrInvalidTransition, e.Status)
			}
			if e.StartedAt == nil {
				now := s.now().UTC()
				e.StartedAt = &now
			}
			e.Status = schema.ExperimentRunning
			return nil
		})
	if err != nil {
		return schema.StartExperimentResponse{}, err
	}
	return schema.StartExperimentResponse{Experiment: experiment}, nil
}

func (s *service) PauseExperiment(ctx context.Context, req schema.PauseExperimentRequest) (schema.PauseExperimentResponse, error) {
	experiment, err := s.transitionExperiment(ctx, req.UserID, req.ExperimentID, "pause",
		func(e *schema.Experiment) error {
			if e.Status != schema.ExperimentRunning {
				return fmt.Errorf("%w: cannot pause a %s experiment", schema.ErrInvalidTransition, e.Status)
			}
			e.Status = schema.ExperimentPaused
			return nil
		})
	if err != nil {
		return schema.PauseExperimentResponse{}, err
	}
	return schema.PauseExperimentResponse{Experiment: experiment}, nil
}

func (s *service) EndExperiment(ctx context.Context, req schema.EndExperimentRequest) (schema.EndExperimentResponse, error) {
	experiment, err := s.transitionExperiment(ctx, req.UserID, req.ExperimentID, "end",
		func(e *schema.Experiment) error {
			switch e.Status {
			case schema.ExperimentRunning, schema.ExperimentPaused:
			default:
				return fmt.Errorf("%w: cannot end a %s experiment", schema.ErrInvalidTransition, e.Status)
			}
			now := s.now().UTC()
			e.EndedAt = &now
			e.Status = schema.ExperimentCompleted
			return nil
		})
	if err != nil {
		return schema.EndExperimentResponse{}, err
	}
	return schema.EndExperimentResponse{Experiment: experiment}, nil
}

func (s *service) transitionExperiment(ctx context.Context, userID schema.UserID, id schema.ExperimentID, verb string, apply func(*schema.Experiment) error) (schema.Experiment, error) {
	if ctx == nil {
		return schema.Experiment{}, errMissingContext
	}
	uid, err := normalizeUserID(userID)
	if err != nil {
		return schema.Experiment{}, err
	}
	log := logx.WithExperiment(logx.WithUser(ctx, uid), id)
	experiment, err := s.experiments.Get(ctx, id)
	if err != nil {
		return schema.Experiment{}, err
	}
	if err := apply(&experiment); err != nil {
		return schema.Experiment{}, err
	}
	if err := s.experiments.Update(ctx, experiment); err != nil {
		log.Warn("service experiment "+verb+" failed", "err", err)
		return schema.Experiment{}, err
	}
	log.Info("service experiment "+verb+" done", "status", experiment.Status)
	return experiment, nil
}

func (s *service) AssignVariant(ctx context.Context, req schema.AssignVariantRequest) (schema.AssignVariantResponse, error) {
	if ctx == nil {
		return schema.AssignVariantResponse{}, errMissingContext
	}
	userID, err := normalizeUserID(req.UserID)
	if err != nil {
		return schema.AssignVariantResponse{}, err
	}
	log := logx.WithExperiment(logx.WithUser(ctx, userID), req.ExperimentID)
	subject := strings.TrimSpace(req.SubjectID)
	if subject == "" {
		return schema.AssignVariantResponse{}, fmt.Errorf("%w: subject id is required", schema.ErrInvalidRequest)
	}
	experiment, err := s.experiments.Get(ctx, req.ExperimentID)
	if err != nil {
		return schema.AssignVariantResponse{}, err
	}
	if experiment.Status != schema.ExperimentRunning {
		return schema.AssignVariantResponse{}, schema.ErrExperimentNotRunning
	}

	if existing, ok, err := s.experiments.GetAssignment(ctx, experiment.ID, subject); err != nil {
		return schema.AssignVariantResponse{}, err
	} else if ok {
		variant, err := variantByID(experiment, existing)
		if err != nil {
			return schema.AssignVariantResponse{}, err
		}
		return schema.AssignVariantResponse{Variant: variant, Reused: true}, nil
	}

	chosen := pickVariant(experiment, subject)
	winner, err := s.experiments.SaveAssignment(ctx, experiment.ID, subject, chosen.ID)
	if err != nil {
		log.Warn("service variant assign failed", "subject", subject, "err", err)
		return schema.AssignVariantResponse{}, err
	}
	reused := winner != chosen.ID
	variant := chosen
	if reused {
		// A concurrent assignment won; serve the persisted one.
		variant, err = variantByID(experiment, winner)
		if err != nil {
			return schema.AssignVariantResponse{}, err
		}
	}
	log.Debug("service variant assigned", "subject", subject, "variant", variant.ID, "reused", reused)
	return schema.AssignVariantResponse{Variant: variant, Reused: reused}, nil
}

func (s *service) RecordExperimentEvent(ctx context.Context, req schema.RecordExperimentEventRequest) (schema.RecordExperimentEventResponse, error) {
	if ctx == nil {
		return schema.RecordExperimentEventResponse{}, errMissingContext
	}
	userID, err := normalizeUserID(req.UserID)
	if err != nil {
		return schema.RecordExperimentEventResponse{}, err
	}
	log := logx.WithExperiment(logx.WithUser(ctx, userID), req.ExperimentID)
	subject := strings.TrimSpace(req.SubjectID)
	if subject == "" {
		return schema.RecordExperimentEventResponse{}, fmt.Errorf("%w: subject id is required", schema.ErrInvalidRequest)
	}
	switch req.Kind {
	case schema.EventExposure, schema.EventConversion:
	default:
		return schema.RecordExperimentEventResponse{}, fmt.Errorf("%w: unknown event kind %q", schema.ErrInvalidRequest, req.Kind)
	}
	experiment, err := s.experiments.Get(ctx, req.ExperimentID)
	if err != nil {
		return schema.RecordExperimentEventResponse{}, err
	}
	if experiment.Status != schema.ExperimentRunning {
		return schema.RecordExperimentEventResponse{}, schema.ErrExperimentNotRunning
	}
	variantID, ok, err := s.experiments.GetAssignment(ctx, experiment.ID, subject)
	if err != nil {
		return schema.RecordExperimentEventResponse{}, err
	}
	if !ok {
		return schema.RecordExperimentEventResponse{}, fmt.Errorf("%w: subject %q has no assignment", schema.ErrInvalidRequest, subject)
	}
	if err := s.experiments.RecordEvent(ctx, experiment.ID, subject, variantID, req.Kind, s.now().UTC()); err != nil {
		log.Warn("service experiment event failed", "subject", subject, "kind", req.Kind, "err", err)
		return schema.RecordExperimentEventResponse{}, err
	}
	return schema.RecordExperimentEventResponse{}, nil
}

func (s *service) ExperimentResults(ctx context.Context, req schema.ExperimentResultsRequest) (schema.ExperimentResultsResponse, error) {
	if ctx == nil {
		return schema.ExperimentResultsResponse{}, errMissingContext
	}
	if _, err := normalizeUserID(req.UserID); err != nil {
		return schema.ExperimentResultsResponse{}, err
	}
	experiment, err := s.experiments.Get(ctx, req.ExperimentID)
	if err != nil {
		return schema.ExperimentResultsResponse{}, err
	}
	counts, err := s.experiments.Counts(ctx, experiment.ID)
	if err != nil {
		return schema.ExperimentResultsResponse{}, err
	}
	byVariant := make(map[schema.VariantID]VariantCount, len(counts))
	for _, c := range counts {
		byVariant[c.VariantID] = c
	}

	var controlRate float64
	var controlHasExposures bool
	for _, v := range experiment.Variants {
		if !v.Control {
			continue
		}
		c := byVariant[v.ID]
		if c.Exposures > 0 {
			controlHasExposures = true
			controlRate = float64(c.Conversions) / float64(c.Exposures)
		}
	}

	results := schema.ExperimentResults{ExperimentID: experiment.ID}
	for _, v := range experiment.Variants {
		c := byVariant[v.ID]
		rate := 0.0
		if c.Exposures > 0 {
			rate = float64(c.Conversions) / float64(c.Exposures)
		}
		result := schema.VariantResult{
			VariantID:      v.ID,
			Name:           v.Name,
			Control:        v.Control,
			Exposures:      c.Exposures,
			Conversions:    c.Conversions,
			ConversionRate: rate,
		}
		if !v.Control && controlHasExposures && controlRate > 0 {
			lift := (rate - controlRate) / controlRate * 100
			result.LiftPct = &lift
		}
		results.Variants = append(results.Variants, result)
	}
	return schema.ExperimentResultsResponse{Results: results}, nil
}

func buildVariants(specs []schema.VariantSpec) ([]schema.Variant, error) {
	if len(specs) < 2 {
		return nil, fmt.Errorf("%w: at least two variants are required", schema.ErrInvalidRequest)
	}
	if len(specs) > maxVariants {
		return nil, fmt.Errorf("%w: at most %d variants are allowed", schema.ErrInvalidRequest, maxVariants)
	}
	controls := 0
	sum := 0
	names := make(map[string]struct{}, len(specs))
	variants := make([]schema.Variant, 0, len(specs))
	for _, spec := range specs {
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: variant name is required", schema.ErrInvalidRequest)
		}
		if _, dup := names[name]; dup {
			return nil, fmt.Errorf("%w: duplicate variant name %q", schema.ErrInvalidRequest, name)
		}
		names[name] = struct{}{}
		if spec.Weight <= 0 {
			return nil, fmt.Errorf("%w: variant %q weight must be positive", schema.ErrInvalidRequest, name)
		}
		if spec.Control {
			controls++
		}
		sum += spec.Weight
		variants = append(variants, schema.Variant{
			ID:      schema.VariantID(newID()),
			Name:    name,
			Weight:  spec.Weight,
			Control: spec.Control,
		})
	}
	if controls != 1 {
		return nil, fmt.Errorf("%w: exactly one control variant is required", schema.ErrInvalidRequest)
	}
	if sum != 100 {
		return nil, schema.ErrVariantWeights
	}
	return variants, nil
}

// pickVariant buckets a subject deterministically: FNV-1a over
// "experimentID:subjectID" mod 100 walked through cumulative weights.
func pickVariant(e schema.Experiment, subject string) schema.Variant {
	h := fnv.New32a()
	_, _ = h.Write([]byte(string(e.ID) + ":" + subject))
	bucket := int(h.Sum32() % 100)
	cumulative := 0
	for _, v := range e.Variants {
		cumulative += v.Weight
		if bucket < cumulative {
			return v
		}
	}
	return e.Variants[len(e.Variants)-1]
}

func variantByID(e schema.Experiment, id schema.VariantID) (schema.Variant, error) {
	for _, v := range e.Variants {
		if v.ID == id {
			return v, nil
		}
	}
	return schema.Variant{}, fmt.Errorf("%w: variant %s not on experiment %s", schema.ErrInvalidRequest, id, e.ID)
}
