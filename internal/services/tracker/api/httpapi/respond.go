package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"unicode"

	"golang.org/x/text/language"

	apperrors "github.com/louisbranch/applytrack/internal/platform/errors"
	"github.com/louisbranch/applytrack/internal/platform/i18n/catalog"
	"github.com/louisbranch/applytrack/internal/platform/requestctx"
	"github.com/louisbranch/applytrack/internal/services/tracker/dispatch/inbox"
	"github.com/louisbranch/applytrack/internal/services/tracker/domain"
)

const maxBodyBytes = 1 << 20

var errBadRequestBody = errors.New("invalid request body")

type errorBody struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("http api: encode response: %v", err)
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.Join(errBadRequestBody, err)
	}
	return nil
}

// writeError maps service errors onto HTTP statuses with a localized message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if appErr, ok := apperrors.As(err); ok {
		writeJSON(w, appErr.Code.HTTPStatus(), errorEnvelope{Error: errorBody{
			Code:     string(appErr.Code),
			Message:  appErr.LocalizedMessage(responseLocale(r)),
			Metadata: snakeKeys(appErr.Metadata),
		}})
		return
	}

	status := http.StatusInternalServerError
	code := string(apperrors.CodeUnknown)
	switch {
	case errors.Is(err, errBadRequestBody),
		errors.Is(err, inbox.ErrRecipientUserIDRequired),
		errors.Is(err, inbox.ErrNotificationIDRequired):
		status = http.StatusBadRequest
		code = "INVALID_REQUEST"
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
		code = string(apperrors.CodeNotFound)
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
		code = "CONFLICT"
	}
	message := http.StatusText(status)
	if status == http.StatusBadRequest {
		message = err.Error()
	}
	if status == http.StatusInternalServerError {
		log.Printf("http api: %s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSON(w, status, errorEnvelope{Error: errorBody{Code: code, Message: message}})
}

func responseLocale(r *http.Request) string {
	if locale := requestctx.LocaleFromContext(r.Context()); locale != "" {
		return locale
	}
	return requestLocale(r)
}

// requestLocale prefers the lang query parameter, then Accept-Language.
func requestLocale(r *http.Request) string {
	bundle := catalog.Default()
	if lang := strings.TrimSpace(r.URL.Query().Get("lang")); lang != "" {
		return bundle.ResolveLocale(lang)
	}
	tags, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	if err != nil {
		return catalog.BaseLocale
	}
	baseLanguage, _ := language.MustParse(catalog.BaseLocale).Base()
	for _, tag := range tags {
		resolved := bundle.ResolveLocale(tag.String())
		if resolved != catalog.BaseLocale {
			return resolved
		}
		if lang, _ := tag.Base(); lang == baseLanguage {
			return catalog.BaseLocale
		}
	}
	return catalog.BaseLocale
}

func snakeKeys(metadata map[string]string) map[string]string {
	if len(metadata) == 0 {
		return nil
	}
	out := make(map[string]string, len(metadata))
	for key, value := range metadata {
		out[toSnake(key)] = value
	}
	return out
}

func toSnake(key string) string {
	runes := []rune(key)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			prevLower := i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]))
			acronymEnd := i > 0 && unicode.IsUpper(runes[i-1]) && i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || acronymEnd {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
