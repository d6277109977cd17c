package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/reserve-snapshot/internal/logging"
	"github.com/reserve-snapshot/internal/report"
)

const (
	defaultHistoryLimit = 30
	maxHistoryLimit     = 366
)

// ReportListResponse is the body of GET /api/reports
type ReportListResponse struct {
	Reports []report.Info `json:"reports"`
	Count   int           `json:"count"`
}

// VerifyResponse is the body of GET /api/reports/{date}/verify
type VerifyResponse struct {
	ReportDate     string `json:"report_date"`
	ReportID       string `json:"report_id"`
	Valid          bool   `json:"valid"`
	RecordedDigest string `json:"recorded_digest"`
	ComputedDigest string `json:"computed_digest"`
}

// HistoryEntry is one row of GET /api/history
type HistoryEntry struct {
	ReportID            string          `json:"report_id"`
	ReportDate          string          `json:"report_date"`
	GeneratedAt         time.Time       `json:"generated_at"`
	TotalAssetsUSD      decimal.Decimal `json:"total_assets_usd"`
	TotalCommitmentsUSD decimal.Decimal `json:"total_commitments_usd"`
	ReserveRatio        decimal.Decimal `json:"reserve_ratio"`
	ReserveAdequacy     string          `json:"reserve_adequacy"`
	RiskScore           float64         `json:"risk_score"`
	AssetCount          uint32          `json:"asset_count"`
	ContractTokens      uint32          `json:"contract_tokens"`
	VerifiedTokens      uint32          `json:"verified_tokens"`
	ContentDigest       string          `json:"content_digest"`
}

// handleListReports handles GET /api/reports
func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.reports.List()
	if err != nil {
		s.respondReportError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ReportListResponse{Reports: reports, Count: len(reports)})
}

// handleLatestReport handles GET /api/reports/latest
func (s *Server) handleLatestReport(w http.ResponseWriter, r *http.Request) {
	info, err := s.reports.Latest()
	if err != nil {
		s.respondReportError(w, r, err)
		return
	}
	s.serveReport(w, r, info.ReportDate)
}

// handleGetReport handles GET /api/reports/{date}
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	date, err := reportDateParam(r)
	if err != nil {
		s.respondReportError(w, r, err)
		return
	}
	s.serveReport(w, r, date)
}

// serveReport answers with the stored document unchanged so its digest
// can be checked by the caller
func (s *Server) serveReport(w http.ResponseWriter, r *http.Request, date string) {
	data, err := s.reports.ReadRaw(date)
	if err != nil {
		s.respondReportError(w, r, err)
		return
	}
	respondRaw(w, data)
}

// handleVerifyReport handles GET /api/reports/{date}/verify
func (s *Server) handleVerifyReport(w http.ResponseWriter, r *http.Request) {
	date, err := reportDateParam(r)
	if err != nil {
		s.respondReportError(w, r, err)
		return
	}

	snapshot, err := s.reports.Read(date)
	if err != nil {
		s.respondReportError(w, r, err)
		return
	}

	valid, computed, err := report.VerifyDigest(snapshot)
	if err != nil {
		s.respondReportError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, VerifyResponse{
		ReportDate:     date,
		ReportID:       snapshot.ReportMetadata.ReportID,
		Valid:          valid,
		RecordedDigest: snapshot.AuditInformation.ContentDigest,
		ComputedDigest: computed,
	})
}

// handleHistory handles GET /api/history?limit=N
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Reserve history is not configured", nil)
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxHistoryLimit {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "limit must be between 1 and 366", map[string]interface{}{
				"limit": raw,
			})
			return
		}
		limit = n
	}

	entries, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.respondReportError(w, r, err)
		return
	}

	body := make([]HistoryEntry, 0, len(entries))
	for _, e := range entries {
		body = append(body, HistoryEntry{
			ReportID:            e.ReportID,
			ReportDate:          e.ReportDate.UTC().Format("2006-01-02"),
			GeneratedAt:         e.GeneratedAt.UTC(),
			TotalAssetsUSD:      e.TotalAssetsUSD,
			TotalCommitmentsUSD: e.TotalCommitmentsUSD,
			ReserveRatio:        e.ReserveRatio,
			ReserveAdequacy:     e.ReserveAdequacy,
			RiskScore:           e.RiskScore,
			AssetCount:          e.AssetCount,
			ContractTokens:      e.ContractTokens,
			VerifiedTokens:      e.VerifiedTokens,
			ContentDigest:       e.ContentDigest,
		})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"entries": body,
		"count":   len(body),
	})
}

func (s *Server) respondReportError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := mapReportError(err)
	if status == http.StatusInternalServerError {
		logging.FromContext(r.Context()).WithError(err).WithField("path", r.URL.Path).Error("Report request failed")
	}
	respondError(w, status, code, message, nil)
}

func reportDateParam(r *http.Request) (string, error) {
	date := mux.Vars(r)["date"]
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return "", &invalidDateError{date: date}
	}
	return date, nil
}
