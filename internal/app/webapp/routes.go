package webapp

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	tginfra "github.com/ivankudzin/groupguard/internal/infra/telegram"
	schedsvc "github.com/ivankudzin/groupguard/internal/services/scheduler"
)

type Dependencies struct {
	Bot       *tginfra.Bot
	Handlers  tginfra.Handlers
	Scheduler *schedsvc.Service
	Logger    *zap.Logger
}

func newHTTPRouter(log *zap.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(requestLogger(log))
	return r
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	r.Get("/healthz", handleHealth)
	r.Post("/telegram/webhook", handleWebhook(deps))
	r.Post("/sweep", handleSweep(deps))
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleWebhook accepts one pushed Telegram update. It always answers 200:
// Telegram retries non-2xx responses, and a permanently failing update would
// otherwise wedge the whole webhook queue.
func handleWebhook(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			if deps.Logger != nil {
				deps.Logger.Warn("failed to decode webhook update", zap.Error(err))
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}

		updateID := uuid.NewString()
		if err := deps.Bot.HandleUpdate(r.Context(), update, deps.Handlers); err != nil {
			if deps.Logger != nil {
				deps.Logger.Warn("webhook update handling failed",
					zap.Error(err),
					zap.String("correlation_id", updateID),
					zap.Int("update_id", update.UpdateID),
				)
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// handleSweep runs one pass of the deferred deletion scheduler. An external
// cron is expected to call it on a fixed cadence.
func handleSweep(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		completed, err := deps.Scheduler.Sweep(r.Context(), time.Now())
		if err != nil {
			if deps.Logger != nil {
				deps.Logger.Error("deletion sweep failed", zap.Error(err))
			}
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "sweep failed"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"deleted": completed})
	}
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			if log != nil {
				log.Info("http_request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Duration("duration", time.Since(start)),
				)
			}
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
