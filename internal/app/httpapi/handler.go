// Package httpapi exposes the lottery engine over REST.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	app "github.com/nightmarket/lottery-engine/internal/app"
	"github.com/nightmarket/lottery-engine/internal/app/domain/lottery"
	"github.com/nightmarket/lottery-engine/internal/app/metrics"
	drawsvc "github.com/nightmarket/lottery-engine/internal/app/services/draw"
	ledgersvc "github.com/nightmarket/lottery-engine/internal/app/services/ledger"
	"github.com/nightmarket/lottery-engine/internal/app/services/schedule"
	ticketsvc "github.com/nightmarket/lottery-engine/internal/app/services/tickets"
	tiebreaksvc "github.com/nightmarket/lottery-engine/internal/app/services/tiebreak"
	"github.com/nightmarket/lottery-engine/internal/app/storage"
	"github.com/nightmarket/lottery-engine/pkg/logger"
)

// handler bundles HTTP endpoints for the lottery services.
type handler struct {
	app   *app.Application
	audit *auditLog
	log   *logger.Logger
	now   func() time.Time
}

// NewHandler returns the REST API handler: lottery endpoints, admin
// endpoints guarded by the configured token, health and metrics. Rate
// limiting and HTTP instrumentation are applied as middleware.
func NewHandler(application *app.Application, log *logger.Logger) (http.Handler, error) {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}

	sink, err := newFileAuditSink(application.Config.Server.AuditFile)
	if err != nil {
		return nil, fmt.Errorf("open audit file: %w", err)
	}
	h := &handler{
		app:   application,
		audit: newAuditLog(200, sink),
		log:   log,
		now:   time.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.healthz)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/lottery/info", h.lotteryInfo)
	mux.HandleFunc("/lottery/tickets", h.lotteryTickets)
	mux.HandleFunc("/lottery/history", h.lotteryHistory)
	mux.HandleFunc("/lottery/balance", h.lotteryBalance)
	mux.HandleFunc("/lottery/transactions", h.lotteryTransactions)
	mux.HandleFunc("/lottery/coinflip/", h.coinflip)
	mux.HandleFunc("/admin/lottery/draw", h.requireAdmin(h.adminDraw))
	mux.HandleFunc("/admin/lottery/jackpot", h.requireAdmin(h.adminJackpot))
	mux.HandleFunc("/admin/lottery/audit", h.requireAdmin(h.adminAudit))

	var wrapped http.Handler = mux
	if rl := application.Config.Server.RateLimit; rl > 0 {
		limiter := newRateLimiter(rl, application.Config.Server.RateBurst, log)
		wrapped = limiter.middleware(wrapped)
	}
	return metrics.InstrumentHandler(wrapped), nil
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) lotteryInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	cfg := h.app.Config.Lottery
	pool, err := h.app.Jackpot.GetJackpot(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	drawID, err := schedule.CurrentDrawID(h.now(), cfg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	nextDraw, err := schedule.NextDrawDate(h.now(), cfg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Enabled           bool           `json:"enabled"`
		TicketPrice       float64        `json:"ticket_price"`
		MaxTicketsPerUser int            `json:"max_tickets_per_user"`
		NumbersToPick     int            `json:"numbers_to_pick"`
		NumberRangeMax    int            `json:"number_range_max"`
		Jackpot           float64        `json:"jackpot"`
		NoWinnerStreak    int            `json:"no_winner_streak"`
		DrawID            string         `json:"draw_id"`
		NextDraw          time.Time      `json:"next_draw"`
		PrizeTiers        map[int]string `json:"prize_tiers"`
	}{
		Enabled:           cfg.Enabled,
		TicketPrice:       cfg.TicketPrice,
		MaxTicketsPerUser: cfg.MaxTicketsPerUser,
		NumbersToPick:     cfg.NumbersToPick,
		NumberRangeMax:    cfg.NumberRangeMax,
		Jackpot:           pool.Amount,
		NoWinnerStreak:    pool.NoWinnerStreak,
		DrawID:            drawID,
		NextDraw:          nextDraw,
		PrizeTiers:        cfg.PrizeTiers,
	})
}

func (h *handler) lotteryTickets(w http.ResponseWriter, r *http.Request) {
	owner, ok := callerID(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodPost:
		var payload struct {
			Numbers []int `json:"numbers"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		ticket, err := h.app.Tickets.Buy(r.Context(), owner, payload.Numbers)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, ticket)

	case http.MethodGet:
		tickets, err := h.app.Tickets.TicketsFor(r.Context(), owner)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, tickets)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) lotteryHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	limit := queryLimit(r, 12)
	draws, err := h.app.Draws.ListCompletedDraws(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, draws)
}

func (h *handler) lotteryBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	owner, ok := callerID(w, r)
	if !ok {
		return
	}

	bal, err := h.app.Ledger.Balance(r.Context(), owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, bal)
}

func (h *handler) lotteryTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	owner, ok := callerID(w, r)
	if !ok {
		return
	}

	entries, err := h.app.Ledger.Transactions(r.Context(), owner, queryLimit(r, 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// coinflip handles /lottery/coinflip/{id}/respond.
func (h *handler) coinflip(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/lottery/coinflip"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "respond" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	owner, ok := callerID(w, r)
	if !ok {
		return
	}

	var payload struct {
		Agreed bool `json:"agreed"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	request, err := h.app.TieBreak.Respond(r.Context(), parts[0], owner, payload.Agreed)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

func (h *handler) adminDraw(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload struct {
		DrawID string `json:"draw_id"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	drawID := payload.DrawID
	if drawID == "" {
		var err error
		drawID, err = schedule.CurrentDrawID(h.now(), h.app.Config.Lottery)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}

	if err := h.ensureDraw(r.Context(), drawID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	result, err := h.app.Draw.Perform(r.Context(), drawID)
	if errors.Is(err, drawsvc.ErrTooManyJackpotWinners) {
		// The draw is recorded; the pool needs an operator decision.
		writeJSON(w, http.StatusOK, struct {
			Result  interface{} `json:"result"`
			Warning string      `json:"warning"`
		}{result, err.Error()})
		return
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ensureDraw creates the pending draw record when forcing a draw nobody
// bought into.
func (h *handler) ensureDraw(ctx context.Context, drawID string) error {
	_, err := h.app.Draws.GetDraw(ctx, drawID)
	if !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	scheduled, err := schedule.NextDrawDate(h.now(), h.app.Config.Lottery)
	if err != nil {
		return err
	}
	_, err = h.app.Draws.CreateDraw(ctx, lottery.Draw{DrawID: drawID, ScheduledFor: scheduled})
	if errors.Is(err, storage.ErrConflict) {
		return nil
	}
	return err
}

func (h *handler) adminJackpot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload struct {
		Amount float64 `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if payload.Amount < 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("amount must not be negative"))
		return
	}

	pool, err := h.app.Jackpot.SetJackpot(r.Context(), payload.Amount)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	metrics.SetJackpotAmount(pool.Amount)
	h.log.WithField("amount", pool.Amount).Warn("jackpot pool overwritten by admin")
	writeJSON(w, http.StatusOK, pool)
}

func (h *handler) adminAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.audit.listLimit(queryLimit(r, 0)))
}

// requireAdmin checks the admin token and records the call in the audit
// trail. A server with no token configured refuses all admin calls.
func (h *handler) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := h.app.Config.AdminToken
		if token == "" || adminToken(r) != token {
			h.audit.add(h.auditEntryFor(r, http.StatusUnauthorized))
			writeError(w, http.StatusUnauthorized, fmt.Errorf("admin token required"))
			return
		}

		rec := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		h.audit.add(h.auditEntryFor(r, rec.status))
	}
}

func (h *handler) auditEntryFor(r *http.Request, status int) auditEntry {
	return auditEntry{
		Time:       h.now().UTC(),
		Actor:      r.Header.Get("X-Owner-ID"),
		Path:       r.URL.Path,
		Method:     r.Method,
		Status:     status,
		RemoteAddr: r.RemoteAddr,
	}
}

func adminToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.Header.Get("X-Admin-Token")
}

// callerID resolves the acting player from the X-Owner-ID header. This is
// an auth stub: a fronting gateway is expected to authenticate the player
// and set the header.
func callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner := strings.TrimSpace(r.Header.Get("X-Owner-ID"))
	if owner == "" {
		writeError(w, http.StatusUnauthorized, fmt.Errorf("X-Owner-ID header required"))
		return "", false
	}
	return owner, true
}

func queryLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}

// statusFor maps service sentinels onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, drawsvc.ErrDrawNotFound),
		errors.Is(err, tiebreaksvc.ErrRequestNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledgersvc.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, ticketsvc.ErrQuotaExceeded),
		errors.Is(err, ticketsvc.ErrDrawClosed),
		errors.Is(err, tiebreaksvc.ErrAlreadyResolved),
		errors.Is(err, tiebreaksvc.ErrRequestExpired),
		errors.Is(err, storage.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, tiebreaksvc.ErrNotAParty):
		return http.StatusForbidden
	case errors.Is(err, ticketsvc.ErrDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
