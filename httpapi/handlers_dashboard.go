package httpapi

import (
	"net/http"

	"github.com/inframind/inframind/schema"
)

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, p principal) {
	resp, err := s.service.GetDashboard(r.Context(), schema.GetDashboardRequest{UserID: p.UserID})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"kpis":               resp.KPIs,
		"recent_assessments": resp.RecentAssessments,
		"recent_plans":       resp.RecentPlans,
		"recent_feedback":    resp.RecentFeedback,
		"active_assessment":  resp.ActiveAssessment,
	})
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request, p principal) {
	resp, err := s.service.GetChart(r.Context(), schema.GetChartRequest{
		UserID: p.UserID,
		Chart:  schema.ChartKey(r.PathValue("chart")),
		Period: schema.ChartPeriod(r.URL.Query().Get("period")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chart": resp.Chart})
}

type submitFeedbackRequest struct {
	Category string `json:"category"`
	Rating   int    `json:"rating"`
	Comment  string `json:"comment"`
	Page     string `json:"page"`
}

func (s *Server) handleSubmitFeedback(w http.ResponseWriter, r *http.Request, p principal) {
	var body submitFeedbackRequest
	if err := decodeJSON(r.Body, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	resp, err := s.service.SubmitFeedback(r.Context(), schema.SubmitFeedbackRequest{
		UserID:   p.UserID,
		Category: schema.FeedbackCategory(body.Category),
		Rating:   body.Rating,
		Comment:  body.Comment,
		Page:     body.Page,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"feedback": resp.Feedback})
}

func (s *Server) handleListFeedback(w http.ResponseWriter, r *http.Request, p principal) {
	resp, err := s.service.ListFeedback(r.Context(), schema.ListFeedbackRequest{
		UserID:    p.UserID,
		Category:  schema.FeedbackCategory(r.URL.Query().Get("category")),
		MinRating: queryInt(r, "min_rating"),
		Offset:    queryInt(r, "offset"),
		Limit:     queryInt(r, "limit"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"feedback": resp.Records,
		"total":    resp.Total,
	})
}

func (s *Server) handleFeedbackStats(w http.ResponseWriter, r *http.Request, p principal) {
	resp, err := s.service.FeedbackStats(r.Context(), schema.FeedbackStatsRequest{UserID: p.UserID})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": resp.Stats})
}

type pageViewRequest struct {
	Page       string `json:"page"`
	DurationMS int    `json:"duration_ms"`
}

func (s *Server) handleRecordPageView(w http.ResponseWriter, r *http.Request, p principal) {
	var body pageViewRequest
	if err := decodeJSON(r.Body, &body); err != nil {
		writeBadRequest(w, err)
		return
	}
	_, err := s.service.RecordPageView(r.Context(), schema.RecordPageViewRequest{
		UserID:     p.UserID,
		Page:       body.Page,
		DurationMS: body.DurationMS,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request, p principal) {
	resp, err := s.service.GetPreferences(r.Context(), schema.GetPreferencesRequest{UserID: p.UserID})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"preferences":       resp.Preferences,
		"active_assessment": resp.ActiveAssessment,
	})
}

func (s *Server) handleUpdatePreferences(w http.ResponseWriter, r *http.Request, p principal) {
	var prefs schema.Preferences
	if err := decodeJSON(r.Body, &prefs); err != nil {
		writeBadRequest(w, err)
		return
	}
	resp, err := s.service.UpdatePreferences(r.Context(), schema.UpdatePreferencesRequest{
		UserID:      p.UserID,
		Preferences: prefs,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"preferences": resp.Preferences})
}
