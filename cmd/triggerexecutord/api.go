package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"marginrisk/pkg/eventlog"
	"marginrisk/pkg/identity"
	"marginrisk/pkg/trigger"
)

// adminAPI is the control surface of §6.2: scheduler status and
// pause/resume, per-account error-window introspection, and read access to
// the liquidation event log. It is deliberately thin — the scheduler, error
// tracker, and event log already hold all the state a caller would want to
// read.
type adminAPI struct {
	scheduler *trigger.Scheduler
	tracker   *trigger.ErrorTracker
	logger    *slog.Logger
	eventDB   *gorm.DB
}

func newAdminRouter(api *adminAPI) http.Handler {
	r := chi.NewRouter()
	r.Get("/v1/scheduler/status", api.status)
	r.Post("/v1/scheduler/pause", api.pause)
	r.Post("/v1/scheduler/resume", api.resume)
	r.Get("/v1/accounts/{address}/errors", api.accountErrors)
	r.Get("/v1/events/bankruptcies", api.recentBankruptcies)
	return r
}

func (a *adminAPI) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.scheduler.Status())
}

func (a *adminAPI) pause(w http.ResponseWriter, r *http.Request) {
	a.scheduler.Pause()
	a.logger.Info("scheduler paused via admin API")
	writeJSON(w, http.StatusOK, a.scheduler.Status())
}

func (a *adminAPI) resume(w http.ResponseWriter, r *http.Request) {
	a.scheduler.Resume()
	a.logger.Info("scheduler resumed via admin API")
	writeJSON(w, http.StatusOK, a.scheduler.Status())
}

type accountErrorsResponse struct {
	Address   string      `json:"address"`
	Throttled bool        `json:"throttled"`
	Failures  []time.Time `json:"failures"`
}

func (a *adminAPI) accountErrors(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "address")
	addr, err := identity.ParseAddress(raw)
	if err != nil {
		http.Error(w, "invalid address: "+err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, accountErrorsResponse{
		Address:   addr.String(),
		Throttled: a.tracker.Throttled(addr),
		Failures:  a.tracker.Snapshot(addr),
	})
}

// recentBankruptcies lists the most recent bankruptcy liquidations the event
// log has recorded, newest first. Returns an empty list when persistence is
// disabled rather than erroring, since the admin API should stay usable
// without a configured event-log DSN.
func (a *adminAPI) recentBankruptcies(w http.ResponseWriter, r *http.Request) {
	if a.eventDB == nil {
		writeJSON(w, http.StatusOK, []eventlog.PerpLiqBankruptcyLog{})
		return
	}
	var logs []eventlog.PerpLiqBankruptcyLog
	if err := a.eventDB.WithContext(r.Context()).Order("created_at desc").Limit(50).Find(&logs).Error; err != nil {
		http.Error(w, "query event log: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
