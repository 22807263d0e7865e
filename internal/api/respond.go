package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/soaringjerry/Previsit/internal/middleware"
	"github.com/soaringjerry/Previsit/internal/services"
	"github.com/soaringjerry/Previsit/internal/utils"
)

const maxJSONBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

func statusFor(code services.ErrorCode) int {
	switch code {
	case services.ErrorInvalid:
		return http.StatusBadRequest
	case services.ErrorNotFound:
		return http.StatusNotFound
	case services.ErrorUnauthorized:
		return http.StatusUnauthorized
	case services.ErrorBadGateway:
		return http.StatusBadGateway
	case services.ErrorUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// localizedMessage picks a guardian-facing sentence for well-known errors.
func localizedMessage(locale string, err error) string {
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		return utils.T(locale, "error.session")
	case errors.Is(err, services.ErrNameRequired):
		return utils.T(locale, "error.name_required")
	case errors.Is(err, services.ErrNoSubmission):
		return utils.T(locale, "report.not_submitted")
	case errors.Is(err, services.ErrAdvisorDisabled):
		return utils.T(locale, "error.assistant_off")
	}
	return ""
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	locale := middleware.LocaleFromContext(r.Context())
	se, ok := services.AsServiceError(err)
	if !ok {
		se = &services.ServiceError{Code: services.ErrorInternal, Message: "internal error", Err: err}
	}
	status := statusFor(se.Code)
	msg := localizedMessage(locale, err)
	switch se.Code {
	case services.ErrorInternal:
		rt.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		if msg == "" {
			msg = utils.T(locale, "error.internal")
		}
	case services.ErrorUnauthorized:
		if msg == "" {
			msg = utils.T(locale, "error.unauthorized")
		}
	}
	writeJSON(w, status, errorBody{Error: se.Message, Code: string(se.Code), Message: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return services.NewInvalidError("invalid JSON body")
	}
	return nil
}
