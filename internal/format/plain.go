// Package format renders dashboard entities as plain text for the SSH
// console and CLI listings.
package format

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/inframind/inframind/schema"
)

const commentWidth = 48

// PlainRenderer formats entities as aligned plain-text lines.
type PlainRenderer struct{}

// NewPlainRenderer returns a default plain-text renderer.
func NewPlainRenderer() *PlainRenderer {
	return &PlainRenderer{}
}

// KPIs renders one line per dashboard KPI card.
func (p *PlainRenderer) KPIs(kpis []schema.KPI) []string {
	if len(kpis) == 0 {
		return []string{"no kpis"}
	}
	rows := [][]string{{"KPI", "VALUE", "TREND", "WINDOW"}}
	for _, kpi := range kpis {
		rows = append(rows, []string{kpi.Label, kpiValue(kpi), kpiTrend(kpi), kpi.Window})
	}
	return columns(rows)
}

// Assessments renders one line per assessment.
func (p *PlainRenderer) Assessments(assessments []schema.Assessment) []string {
	if len(assessments) == 0 {
		return []string{"no assessments"}
	}
	rows := [][]string{{"ID", "TITLE", "ORG", "PROVIDER", "STATUS", "PROGRESS", "UPDATED"}}
	for _, a := range assessments {
		rows = append(rows, []string{
			shortID(string(a.ID)),
			truncate(a.Title, 32),
			truncate(a.OrgName, 24),
			string(a.Provider),
			string(a.Status),
			fmt.Sprintf("%d%%", int(a.CompletionPct+0.5)),
			when(a.UpdatedAt),
		})
	}
	return columns(rows)
}

// Plans renders one line per deployment plan.
func (p *PlainRenderer) Plans(plans []schema.DeploymentPlan) []string {
	if len(plans) == 0 {
		return []string{"no plans"}
	}
	rows := [][]string{{"ID", "TEMPLATE", "STATUS", "PR", "COST/MO", "UPDATED"}}
	for _, plan := range plans {
		pr := "-"
		if plan.PullRequestID != "" {
			pr = string(plan.PullRequestID)
		}
		cost := "-"
		if plan.MonthlyCostUSD != nil {
			cost = fmt.Sprintf("$%.2f", *plan.MonthlyCostUSD)
		}
		rows = append(rows, []string{
			shortID(string(plan.ID)),
			string(plan.TemplateID),
			string(plan.Status),
			pr,
			cost,
			when(plan.UpdatedAt),
		})
	}
	return columns(rows)
}

// Feedback renders one line per feedback record.
func (p *PlainRenderer) Feedback(records []schema.FeedbackRecord) []string {
	if len(records) == 0 {
		return []string{"no feedback"}
	}
	rows := [][]string{{"WHEN", "RATING", "CATEGORY", "COMMENT"}}
	for _, rec := range records {
		rows = append(rows, []string{
			when(rec.CreatedAt),
			fmt.Sprintf("%d/5", rec.Rating),
			string(rec.Category),
			truncate(rec.Comment, commentWidth),
		})
	}
	return columns(rows)
}

// FeedbackStats renders the aggregate feedback summary.
func (p *PlainRenderer) FeedbackStats(stats schema.FeedbackStats) []string {
	lines := []string{
		fmt.Sprintf("total: %d", stats.Total),
		fmt.Sprintf("average rating: %.2f", stats.AverageRating),
	}
	for _, category := range []schema.FeedbackCategory{
		schema.FeedbackAssessment,
		schema.FeedbackReport,
		schema.FeedbackExperiment,
		schema.FeedbackGitOps,
		schema.FeedbackDashboard,
		schema.FeedbackOther,
	} {
		if n, ok := stats.ByCategory[category]; ok && n > 0 {
			lines = append(lines, fmt.Sprintf("  %s: %d", category, n))
		}
	}
	return lines
}

// Users renders one line per account for CLI listings.
func (p *PlainRenderer) Users(users []schema.User) []string {
	if len(users) == 0 {
		return []string{"no users"}
	}
	rows := [][]string{{"EMAIL", "NAME", "ROLE", "MFA", "LAST LOGIN"}}
	for _, user := range users {
		mfa := "-"
		if user.MFAEnabled {
			mfa = "totp"
		}
		last := "never"
		if user.LastLoginAt != nil {
			last = when(*user.LastLoginAt)
		}
		rows = append(rows, []string{user.Email, truncate(user.Name, 24), string(user.Role), mfa, last})
	}
	return columns(rows)
}

func kpiValue(kpi schema.KPI) string {
	value := strconv.FormatFloat(kpi.Value, 'f', -1, 64)
	switch kpi.Unit {
	case "":
		return value
	case "%":
		return value + "%"
	default:
		return value + " " + kpi.Unit
	}
}

func kpiTrend(kpi schema.KPI) string {
	switch kpi.Trend {
	case schema.TrendUp:
		return fmt.Sprintf("up +%.1f%%", kpi.DeltaPct)
	case schema.TrendDown:
		return fmt.Sprintf("down %.1f%%", kpi.DeltaPct)
	default:
		return "flat"
	}
}

// columns pads every cell to its column width so rows line up. The
// first row is the header.
func columns(rows [][]string) []string {
	widths := []int{}
	for _, row := range rows {
		for i, cell := range row {
			if i == len(widths) {
				widths = append(widths, 0)
			}
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		var b strings.Builder
		for i, cell := range row {
			if i > 0 {
				b.WriteString("  ")
			}
			if i == len(row)-1 {
				b.WriteString(cell)
				continue
			}
			b.WriteString(fmt.Sprintf("%-*s", widths[i], cell))
		}
		lines = append(lines, strings.TrimRight(b.String(), " "))
	}
	return lines
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	if limit <= 3 {
		return s[:limit]
	}
	return s[:limit-3] + "..."
}

func when(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04")
}
