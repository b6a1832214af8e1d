package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/inframind/inframind/schema"
)

// queryInt reads a non-negative integer query parameter, zero when
// absent or malformed.
func queryInt(r *http.Request, key string) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

type createAssessmentRequest struct {
	Title    string `json:"title"`
	OrgName  string `json:"org_name"`
	Provider string `json:"provider"`
}

func (s *Server) handleCreateAssessment(w http.ResponseWriter, r *http.Request, p principal) {
	var body createAssessmentRequest
	if err := decodeJSON(r.Body, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	resp, err := s.service.CreateAssessment(r.Context(), schema.CreateAssessmentRequest{
		UserID:   p.UserID,
		Title:    body.Title,
		OrgName:  body.OrgName,
		Provider: schema.CloudProvider(body.Provider),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"assessment": resp.Assessment})
}

func (s *Server) handleListAssessments(w http.ResponseWriter, r *http.Request, p principal) {
	resp, err := s.service.ListAssessments(r.Context(), schema.ListAssessmentsRequest{
		UserID: p.UserID,
		Status: schema.AssessmentStatus(r.URL.Query().Get("status")),
		Offset: queryInt(r, "offset"),
		Limit:  queryInt(r, "limit"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"assessments": resp.Assessments,
		"total":       resp.Total,
	})
}

func (s *Server) handleGetAssessment(w http.ResponseWriter, r *http.Request, p principal) {
	resp, err := s.service.GetAssessment(r.Context(), schema.GetAssessmentRequest{
		UserID:       p.UserID,
		AssessmentID: schema.AssessmentID(r.PathValue("id")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assessment": resp.Assessment})
}

type saveDraftRequest struct {
	Step      int             `json:"step"`
	Responses json.RawMessage `json:"responses"`
	Revision  int64           `json:"revision"`
}

func (s *Server) handleSaveAssessmentDraft(w http.ResponseWriter, r *http.Request, p principal) {
	var body saveDraftRequest
	if err := decodeJSON(r.Body, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	resp, err := s.service.SaveAssessmentDraft(r.Context(), schema.SaveAssessmentDraftRequest{
		UserID:       p.UserID,
		AssessmentID: schema.AssessmentID(r.PathValue("id")),
		Step:         body.Step,
		Responses:    body.Responses,
		Revision:     body.Revision,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assessment": resp.Assessment})
}

func (s *Server) handleSubmitAssessment(w http.ResponseWriter, r *http.Request, p principal) {
	resp, err := s.service.SubmitAssessment(r.Context(), schema.SubmitAssessmentRequest{
		UserID:       p.UserID,
		AssessmentID: schema.AssessmentID(r.PathValue("id")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assessment": resp.Assessment})
}

func (s *Server) handleCompleteAssessment(w http.ResponseWriter, r *http.Request, p principal) {
	resp, err := s.service.CompleteAssessment(r.Context(), schema.CompleteAssessmentRequest{
		UserID:       p.UserID,
		AssessmentID: schema.AssessmentID(r.PathValue("id")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"assessment": resp.Assessment,
		"report":     resp.Report,
	})
}

func (s *Server) handleArchiveAssessment(w http.ResponseWriter, r *http.Request, p principal) {
	resp, err := s.service.ArchiveAssessment(r.Context(), schema.ArchiveAssessmentRequest{
		UserID:       p.UserID,
		AssessmentID: schema.AssessmentID(r.PathValue("id")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assessment": resp.Assessment})
}

func (s *Server) handleSelectAssessment(w http.ResponseWriter, r *http.Request, p principal) {
	resp, err := s.service.SelectAssessment(r.Context(), schema.SelectAssessmentRequest{
		UserID:       p.UserID,
		AssessmentID: schema.AssessmentID(r.PathValue("id")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"active_assessment": resp.AssessmentID})
}

func (s *Server) handleClearSelection(w http.ResponseWriter, r *http.Request, p principal) {
	resp, err := s.service.SelectAssessment(r.Context(), schema.SelectAssessmentRequest{
		UserID: p.UserID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"active_assessment": resp.AssessmentID})
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request, p principal) {
	resp, err := s.service.GetReport(r.Context(), schema.GetReportRequest{
		UserID:       p.UserID,
		AssessmentID: schema.AssessmentID(r.PathValue("id")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"report": resp.Report})
}

func (s *Server) handleExportReportPDF(w http.ResponseWriter, r *http.Request, p principal) {
	resp, err := s.service.ExportReportPDF(r.Context(), schema.ExportReportPDFRequest{
		UserID:       p.UserID,
		AssessmentID: schema.AssessmentID(r.PathValue("id")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", resp.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp.PDF)
}
