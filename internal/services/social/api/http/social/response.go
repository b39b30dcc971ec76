package social

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	apperrors "github.com/louisbranch/townsquare/internal/platform/errors"
	"github.com/louisbranch/townsquare/internal/platform/errors/i18n"
	"github.com/louisbranch/townsquare/internal/platform/logging"
	"github.com/louisbranch/townsquare/internal/services/social/identity"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err with a message localized from Accept-Language.
func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.CodeOf(err)
	status := code.HTTPStatus()
	if status >= http.StatusInternalServerError {
		code = apperrors.CodeInternal
		logging.WithTrace(r.Context(), h.logger).Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	catalog := i18n.GetCatalogForAcceptLanguage(r.Header.Get("Accept-Language"))
	writeJSON(w, status, errorBody{Error: errorDetail{
		Code:    string(code),
		Message: catalog.Format(string(code), apperrors.MetadataOf(err)),
	}})
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidArgument, "decode request body", err)
	}
	if decoder.More() {
		return apperrors.New(apperrors.CodeInvalidArgument, "request body has trailing data")
	}
	return nil
}

func identityParam(r *http.Request, name string) identity.Identity {
	raw := chi.URLParam(r, name)
	if unescaped, err := url.PathUnescape(raw); err == nil {
		raw = unescaped
	}
	return identity.Parse(raw)
}

func postIDParam(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, apperrors.WithMetadata(apperrors.CodeNotFound, "post id is not numeric", map[string]string{"Resource": "post"})
	}
	return id, nil
}

// intQuery reads an optional integer query parameter; absent yields fallback.
func intQuery(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeInvalidArgument, "query parameter "+name+" is not an integer", err)
	}
	return value, nil
}
