package httpapi

import (
	"net/http"

	"github.com/inframind/inframind/schema"
)

type variantSpec struct {
	Name    string `json:"name"`
	Weight  int    `json:"weight"`
	Control bool   `json:"control"`
}

type createExperimentRequest struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Hypothesis  string        `json:"hypothesis"`
	Metric      string        `json:"metric"`
	Variants    []variantSpec `json:"variants"`
}

func (s *Server) handleCreateExperiment(w http.ResponseWriter, r *http.Request, p principal) {
	var body createExperimentRequest
	if err := decodeJSON(r.Body, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	variants := make([]schema.VariantSpec, 0, len(body.Variants))
	for _, v := range body.Variants {
		variants = append(variants, schema.VariantSpec{Name: v.Name, Weight: v.Weight, Control: v.Control})
	}
	resp, err := s.service.CreateExperiment(r.Context(), schema.CreateExperimentRequest{
		UserID:      p.UserID,
		Name:        body.Name,
		Description: body.Description,
		Hypothesis:  body.Hypothesis,
		Metric:      body.Metric,
		Variants:    variants,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"experiment": resp.Experiment})
}

func (s *Server) handleListExperiments(w http.ResponseWriter, r *http.Request, p principal) {
	resp, err := s.service.ListExperiments(r.Context(), schema.ListExperimentsRequest{
		UserID: p.UserID,
		Status: schema.ExperimentStatus(r.URL.Query().Get("status")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"experiments": resp.Experiments})
}

func (s *Server) handleGetExperiment(w http.ResponseWriter, r *http.Request, p principal) {
	resp, err := s.service.GetExperiment(r.Context(), schema.GetExperimentRequest{
		UserID:       p.UserID,
		ExperimentID: schema.ExperimentID(r.PathValue("id")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"experiment": resp.Experiment})
}

func (s *Server) handleDeleteExperiment(w http.ResponseWriter, r *http.Request, p principal) {
	_, err := s.service.DeleteExperiment(r.Context(), schema.DeleteExperimentRequest{
		UserID:       p.UserID,
		ExperimentID: schema.ExperimentID(r.PathValue("id")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleStartExperiment(w http.ResponseWriter, r *http.Request, p principal) {
	resp, err := s.service.StartExperiment(r.Context(), schema.StartExperimentRequest{
		UserID:       p.UserID,
		ExperimentID: schema.ExperimentID(r.PathValue("id")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"experiment": resp.Experiment})
}

func (s *Server) handlePauseExperiment(w http.ResponseWriter, r *http.Request, p principal) {
	resp, err := s.service.PauseExperiment(r.Context(), schema.PauseExperimentRequest{
		UserID:       p.UserID,
		ExperimentID: schema.ExperimentID(r.PathValue("id")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"experiment": resp.Experiment})
}

func (s *Server) handleEndExperiment(w http.ResponseWriter, r *http.Request, p principal) {
	resp, err := s.service.EndExperiment(r.Context(), schema.EndExperimentRequest{
		UserID:       p.UserID,
		ExperimentID: schema.ExperimentID(r.PathValue("id")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"experiment": resp.Experiment})
}

type assignVariantRequest struct {
	SubjectID string `json:"subject_id"`
}

// handleAssignVariant deals a subject into a variant. The subject
// defaults to the caller so frontends can omit it.
func (s *Server) handleAssignVariant(w http.ResponseWriter, r *http.Request, p principal) {
	var body assignVariantRequest
	if err := decodeJSON(r.Body, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	if body.SubjectID == "" {
		body.SubjectID = string(p.UserID)
	}
	resp, err := s.service.AssignVariant(r.Context(), schema.AssignVariantRequest{
		UserID:       p.UserID,
		ExperimentID: schema.ExperimentID(r.PathValue("id")),
		SubjectID:    body.SubjectID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"variant": resp.Variant,
		"reused":  resp.Reused,
	})
}

type experimentEventRequest struct {
	SubjectID string `json:"subject_id"`
	Kind      string `json:"kind"`
}

func (s *Server) handleRecordExperimentEvent(w http.ResponseWriter, r *http.Request, p principal) {
	var body experimentEventRequest
	if err := decodeJSON(r.Body, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	if body.SubjectID == "" {
		body.SubjectID = string(p.UserID)
	}
	_, err := s.service.RecordExperimentEvent(r.Context(), schema.RecordExperimentEventRequest{
		UserID:       p.UserID,
		ExperimentID: schema.ExperimentID(r.PathValue("id")),
		SubjectID:    body.SubjectID,
		Kind:         schema.ExperimentEventKind(body.Kind),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleExperimentResults(w http.ResponseWriter, r *http.Request, p principal) {
	resp, err := s.service.ExperimentResults(r.Context(), schema.ExperimentResultsRequest{
		UserID:       p.UserID,
		ExperimentID: schema.ExperimentID(r.PathValue("id")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": resp.Results})
}
