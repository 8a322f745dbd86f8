package http

import (
	"net/http"

	"khata/internal/core"
)

// dashboardResponse adds the requested range to the summary body.
type dashboardResponse struct {
	core.DashboardSummary
	StartDate *core.Date `json:"start_date,omitempty"`
	EndDate   *core.Date `json:"end_date,omitempty"`
}

func (s *Server) handleDashboardSummary(w http.ResponseWriter, r *http.Request) {
	rng, err := ParseDateRange(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	summary, err := s.svc.Analytics.Dashboard(r.Context(), rng)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboardResponse{DashboardSummary: summary, StartDate: rng.Start, EndDate: rng.End})
}

func (s *Server) handleMonthlyStats(w http.ResponseWriter, r *http.Request) {
	months, err := ParseIntParam(r.URL.Query(), "months", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	stats, err := s.svc.Analytics.MonthlyStats(r.Context(), months)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(stats))
}

func (s *Server) handleProductSales(w http.ResponseWriter, r *http.Request) {
	rng, err := ParseDateRange(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	products, err := s.svc.Analytics.ProductSales(r.Context(), rng)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(products))
}

func (s *Server) handleTopBuyers(w http.ResponseWriter, r *http.Request) {
	limit, err := ParseIntParam(r.URL.Query(), "limit", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	buyers, err := s.svc.Analytics.TopBuyers(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(buyers))
}

func (s *Server) handleFullReport(w http.ResponseWriter, r *http.Request) {
	months, err := ParseIntParam(r.URL.Query(), "months", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	report, err := s.svc.Analytics.FullReport(r.Context(), months)
	if err != nil {
		writeError(w, r, err)
		return
	}
	report.MonthlyStats = nonNil(report.MonthlyStats)
	report.ProductSales = nonNil(report.ProductSales)
	report.TopBuyers = nonNil(report.TopBuyers)
	writeJSON(w, http.StatusOK, report)
}
