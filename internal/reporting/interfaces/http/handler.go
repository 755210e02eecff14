package http

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"panel-energy/internal/audit"
	"panel-energy/internal/live"
	"panel-energy/internal/reporting/application"
	"panel-energy/internal/reporting/domain/statistic"
	"panel-energy/internal/reporting/domain/window"
	telemetry "panel-energy/internal/telemetry/domain"
)

const maxBodyBytes = 1 << 16

// Reports is the report service surface served over HTTP.
type Reports interface {
	SourceIDs() []string
	GenerateHourly(ctx context.Context, date string, hour *int) ([]statistic.HourlyAggregate, error)
	GenerateShift(ctx context.Context, date string, shift int) ([]statistic.ShiftAggregate, error)
	GenerateDaily(ctx context.Context, date string) ([]statistic.DailyReport, error)
	HourlyReport(ctx context.Context, sourceID, date string) ([]statistic.HourlyAggregate, error)
	HourlyRange(ctx context.Context, sourceID, from, to string) ([]statistic.HourlyAggregate, error)
	DailyReport(ctx context.Context, sourceID, date string) (*statistic.DailyReport, error)
	DailyReports(ctx context.Context, sourceID string) ([]statistic.DailyReport, error)
	DailyReportsRange(ctx context.Context, sourceID, from, to string) ([]statistic.DailyReport, error)
	MonthlyReports(ctx context.Context, sourceID, month string) ([]statistic.DailyReport, error)
	PeriodSummary(ctx context.Context, period, date string) (statistic.PeriodSummary, error)
	ShiftReport(ctx context.Context, sourceID, date string, shift int) (*application.ShiftView, error)
	Backfill(ctx context.Context, req application.BackfillRequest) (application.BackfillResult, error)
}

// LiveRegistry starts and stops per-source live broadcasts.
type LiveRegistry interface {
	Start(sourceID string, fetch live.FetchLatest, interval time.Duration) bool
	Stop(sourceID string) bool
	IsRunning(sourceID string) bool
}

// Handler serves report and live-control endpoints.
type Handler struct {
	reports  Reports
	registry LiveRegistry
	latest   telemetry.LatestSource
	interval time.Duration
	audit    audit.Logger
	logger   *zap.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithLive enables the live start/stop endpoints.
func WithLive(registry LiveRegistry, latest telemetry.LatestSource, interval time.Duration) Option {
	return func(h *Handler) {
		h.registry = registry
		h.latest = latest
		h.interval = interval
	}
}

// WithAudit records operator requests.
func WithAudit(logger audit.Logger) Option {
	return func(h *Handler) {
		h.audit = logger
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandler constructs a report handler.
func NewHandler(reports Reports, opts ...Option) (*Handler, error) {
	if reports == nil {
		return nil, errors.New("report handler: nil reports")
	}
	h := &Handler{reports: reports, logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// APIPrefix is the path prefix of every report route.
const APIPrefix = "/api/v1"

// Register mounts the report routes on r. Routes are registered with their
// full path so a method mismatch answers 405 rather than 404.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc(APIPrefix+"/reports/hourly/generate", h.generateHourly).Methods(http.MethodPost)
	r.HandleFunc(APIPrefix+"/reports/shift/generate", h.generateShift).Methods(http.MethodPost)
	r.HandleFunc(APIPrefix+"/reports/daily/generate", h.generateDaily).Methods(http.MethodPost)
	r.HandleFunc(APIPrefix+"/reports/backfill", h.backfill).Methods(http.MethodPost)
	r.HandleFunc(APIPrefix+"/reports/period", h.period).Methods(http.MethodGet)
	r.HandleFunc(APIPrefix+"/sources", h.sources).Methods(http.MethodGet)
	r.HandleFunc(APIPrefix+"/sources/{source}/hourly", h.hourly).Methods(http.MethodGet)
	r.HandleFunc(APIPrefix+"/sources/{source}/shift", h.shift).Methods(http.MethodGet)
	r.HandleFunc(APIPrefix+"/sources/{source}/daily", h.daily).Methods(http.MethodGet)
	r.HandleFunc(APIPrefix+"/sources/{source}/live", h.startLive).Methods(http.MethodPost)
	r.HandleFunc(APIPrefix+"/sources/{source}/live", h.stopLive).Methods(http.MethodDelete)
}

type generateResponse struct {
	Date     string   `json:"date"`
	Rows     any      `json:"rows"`
	Failures []string `json:"failures,omitempty"`
}

func (h *Handler) generateHourly(w http.ResponseWriter, r *http.Request) {
	date, ok := requireQuery(w, r, "date")
	if !ok {
		return
	}
	hour, err := optionalInt(r, "hour")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	rows, err := h.reports.GenerateHourly(r.Context(), date, hour)
	h.record(r, audit.ActionGenerateHourly, "", date, err, map[string]any{"hour": hour, "rows": len(rows)})
	h.writeGenerated(w, r, date, rows, err)
}

func (h *Handler) generateShift(w http.ResponseWriter, r *http.Request) {
	date, ok := requireQuery(w, r, "date")
	if !ok {
		return
	}
	shift, err := requiredInt(r, "shift")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	rows, err := h.reports.GenerateShift(r.Context(), date, shift)
	h.record(r, audit.ActionGenerateShift, "", date, err, map[string]any{"shift": shift, "rows": len(rows)})
	h.writeGenerated(w, r, date, rows, err)
}

func (h *Handler) generateDaily(w http.ResponseWriter, r *http.Request) {
	date, ok := requireQuery(w, r, "date")
	if !ok {
		return
	}
	rows, err := h.reports.GenerateDaily(r.Context(), date)
	h.record(r, audit.ActionGenerateDaily, "", date, err, map[string]any{"rows": len(rows)})
	h.writeGenerated(w, r, date, rows, err)
}

func (h *Handler) backfill(w http.ResponseWriter, r *http.Request) {
	var req application.BackfillRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	result, err := h.reports.Backfill(r.Context(), req)
	auditErr := err
	if auditErr == nil && len(result.Failures) > 0 {
		auditErr = errors.New(strings.Join(result.Failures, "; "))
	}
	h.record(r, audit.ActionBackfill, "", req.From, auditErr, req)
	if err != nil && (window.IsValidation(err) || len(result.Dates) == 0) {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) sources(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"sources": h.reports.SourceIDs()})
}

func (h *Handler) hourly(w http.ResponseWriter, r *http.Request) {
	source := mux.Vars(r)["source"]
	query := r.URL.Query()
	var (
		rows []statistic.HourlyAggregate
		err  error
	)
	switch date, from, to := query.Get("date"), query.Get("from"), query.Get("to"); {
	case date != "":
		rows, err = h.reports.HourlyReport(r.Context(), source, date)
	case from != "" && to != "":
		rows, err = h.reports.HourlyRange(r.Context(), source, from, to)
	default:
		http.Error(w, "date or from/to is required", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *Handler) shift(w http.ResponseWriter, r *http.Request) {
	date, ok := requireQuery(w, r, "date")
	if !ok {
		return
	}
	shift, err := requiredInt(r, "shift")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	view, err := h.reports.ShiftReport(r.Context(), mux.Vars(r)["source"], date, shift)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) daily(w http.ResponseWriter, r *http.Request) {
	source := mux.Vars(r)["source"]
	query := r.URL.Query()
	if date := strings.TrimSpace(query.Get("date")); date != "" {
		report, err := h.reports.DailyReport(r.Context(), source, date)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
		return
	}

	var (
		reports []statistic.DailyReport
		err     error
	)
	switch month, from, to := query.Get("month"), query.Get("from"), query.Get("to"); {
	case month != "":
		reports, err = h.reports.MonthlyReports(r.Context(), source, month)
	case from != "" || to != "":
		if from == "" || to == "" {
			http.Error(w, "from and to are both required", http.StatusBadRequest)
			return
		}
		reports, err = h.reports.DailyReportsRange(r.Context(), source, from, to)
	default:
		reports, err = h.reports.DailyReports(r.Context(), source)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

func (h *Handler) period(w http.ResponseWriter, r *http.Request) {
	date, ok := requireQuery(w, r, "date")
	if !ok {
		return
	}
	period := strings.TrimSpace(r.URL.Query().Get("period"))
	if period == "" {
		period = window.PeriodDay
	}
	summary, err := h.reports.PeriodSummary(r.Context(), period, date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type liveResponse struct {
	Source  string `json:"source"`
	Running bool   `json:"running"`
	Changed bool   `json:"changed"`
}

func (h *Handler) startLive(w http.ResponseWriter, r *http.Request) {
	source, ok := h.liveSource(w, r)
	if !ok {
		return
	}
	changed := h.registry.Start(source, live.FromLatestSource(h.latest, source), h.interval)
	h.record(r, audit.ActionLiveStart, source, "", nil, map[string]any{"changed": changed})
	writeJSON(w, http.StatusOK, liveResponse{Source: source, Running: h.registry.IsRunning(source), Changed: changed})
}

func (h *Handler) stopLive(w http.ResponseWriter, r *http.Request) {
	source, ok := h.liveSource(w, r)
	if !ok {
		return
	}
	changed := h.registry.Stop(source)
	h.record(r, audit.ActionLiveStop, source, "", nil, map[string]any{"changed": changed})
	writeJSON(w, http.StatusOK, liveResponse{Source: source, Running: h.registry.IsRunning(source), Changed: changed})
}

func (h *Handler) liveSource(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.registry == nil || h.latest == nil {
		http.Error(w, "live broadcast not configured", http.StatusServiceUnavailable)
		return "", false
	}
	source := mux.Vars(r)["source"]
	for _, id := range h.reports.SourceIDs() {
		if id == source {
			return source, true
		}
	}
	http.Error(w, "unknown source", http.StatusNotFound)
	return "", false
}

// record writes a best-effort audit entry; failures are only logged.
func (h *Handler) record(r *http.Request, action, sourceID, date string, err error, meta any) {
	if h.audit == nil {
		return
	}
	outcome := "ok"
	switch {
	case err == nil:
	case window.IsValidation(err):
		outcome = "rejected"
	default:
		outcome = "failed"
	}
	metadata, _ := json.Marshal(meta)
	entry := audit.Entry{
		Action:       action,
		SourceID:     sourceID,
		BusinessDate: date,
		Outcome:      outcome,
		Metadata:     metadata,
		IP:           clientIP(r),
		UserAgent:    r.UserAgent(),
	}
	if logErr := h.audit.Log(r.Context(), entry); logErr != nil {
		h.logger.Warn("audit log failed", zap.String("action", action), zap.Error(logErr))
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *Handler) writeGenerated(w http.ResponseWriter, r *http.Request, date string, rows any, err error) {
	if err != nil && window.IsValidation(err) {
		h.writeError(w, r, err)
		return
	}
	resp := generateResponse{Date: date, Rows: rows}
	if err != nil {
		h.logger.Warn("report generation partially failed", zap.String("path", r.URL.Path), zap.String("date", date), zap.Error(err))
		resp.Failures = failureMessages(err)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case window.IsValidation(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, statistic.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, context.Canceled):
		http.Error(w, "request cancelled", http.StatusServiceUnavailable)
	default:
		h.logger.Error("report request failed", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func failureMessages(err error) []string {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		out := make([]string, 0, len(joined.Unwrap()))
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}

func requireQuery(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	value := strings.TrimSpace(r.URL.Query().Get(key))
	if value == "" {
		http.Error(w, key+" is required", http.StatusBadRequest)
		return "", false
	}
	return value, true
}

func optionalInt(r *http.Request, key string) (*int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, &window.ValidationError{Field: key, Value: raw, Reason: "must be an integer"}
	}
	return &v, nil
}

func requiredInt(r *http.Request, key string) (int, error) {
	v, err := optionalInt(r, key)
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, &window.ValidationError{Field: key, Reason: "is required"}
	}
	return *v, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
