// Package render turns tracker dispatch payloads into localized notification
// copy using the embedded message catalogs.
package render

import (
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/louisbranch/applytrack/internal/platform/i18n/catalog"
	"github.com/louisbranch/applytrack/internal/services/tracker/domain"
)

const (
	defaultGenericTitle = "Notification"
	defaultGenericBody  = "You have a new notification."
	defaultProgramLabel = "your program"
)

// Input is one render request for a dispatched payload.
type Input struct {
	Kind    domain.DispatchKind
	Payload map[string]string
}

// Output is localized copy derived from one dispatch.
type Output struct {
	Title string
	Body  string
}

// Localizer is the minimal message-printer contract required by the renderer.
type Localizer interface {
	Sprintf(key message.Reference, args ...any) string
}

// PrinterFor returns a message printer for the closest catalog locale.
func PrinterFor(locale string) *message.Printer {
	resolved := catalog.Default().ResolveLocale(locale)
	tag, err := language.Parse(resolved)
	if err != nil {
		tag = language.MustParse(catalog.BaseLocale)
	}
	return message.NewPrinter(tag)
}

// Render returns localized copy for one dispatch.
func Render(loc Localizer, input Input) Output {
	switch input.Kind {
	case domain.DispatchDeadlineReminder:
		return renderDeadlineReminder(loc, input.Payload)
	case domain.DispatchStatusChanged:
		return renderStatusChanged(loc, input.Payload)
	case domain.DispatchCustom:
		return renderCustom(loc, input.Payload)
	default:
		return genericOutput(loc)
	}
}

func renderDeadlineReminder(loc Localizer, payload map[string]string) Output {
	days, err := strconv.Atoi(strings.TrimSpace(payload[domain.PayloadThreshold]))
	if err != nil || days < 0 {
		return genericOutput(loc)
	}
	program := programLabel(loc, payload)
	deadline := strings.TrimSpace(payload[domain.PayloadDeadline])

	title := localize(loc, "notification.deadline_reminder.title", program)
	var body string
	switch days {
	case 0:
		body = localize(loc, "notification.deadline_reminder.body_today", program, deadline)
	case 1:
		body = localize(loc, "notification.deadline_reminder.body_one", program, deadline)
	default:
		body = localize(loc, "notification.deadline_reminder.body_many", program, days, deadline)
	}
	if strings.HasPrefix(title, "notification.") || strings.HasPrefix(body, "notification.") {
		return genericOutput(loc)
	}
	return Output{Title: title, Body: body}
}

func renderStatusChanged(loc Localizer, payload map[string]string) Output {
	oldStatus, okOld := domain.ParseStatus(payload[domain.PayloadOldStatus])
	newStatus, okNew := domain.ParseStatus(payload[domain.PayloadNewStatus])
	if !okOld || !okNew {
		return genericOutput(loc)
	}
	title := localize(loc, "notification.status_changed.title")
	body := localize(loc, "notification.status_changed.body",
		programLabel(loc, payload),
		statusLabel(loc, oldStatus),
		statusLabel(loc, newStatus),
	)
	if strings.HasPrefix(title, "notification.") || strings.HasPrefix(body, "notification.") {
		return genericOutput(loc)
	}
	return Output{Title: title, Body: body}
}

func renderCustom(loc Localizer, payload map[string]string) Output {
	generic := genericOutput(loc)
	title := strings.TrimSpace(payload[domain.PayloadTitle])
	if title == "" {
		title = localizeWithFallback(loc, "notification.custom.title", generic.Title)
	}
	body := strings.TrimSpace(payload[domain.PayloadBody])
	if body == "" {
		body = generic.Body
	}
	return Output{Title: title, Body: body}
}

func genericOutput(loc Localizer) Output {
	return Output{
		Title: localizeWithFallback(loc, "notification.generic.title", defaultGenericTitle),
		Body:  localizeWithFallback(loc, "notification.generic.body", defaultGenericBody),
	}
}

func programLabel(loc Localizer, payload map[string]string) string {
	if label := strings.TrimSpace(payload[domain.PayloadProgramLabel]); label != "" {
		return label
	}
	return localizeWithFallback(loc, "notification.program.unknown", defaultProgramLabel)
}

// statusLabel falls back to the raw status value when the catalog has no label.
func statusLabel(loc Localizer, status domain.Status) string {
	fallback := string(status)
	if rule, ok := status.Rule(); ok && rule.Label != "" {
		fallback = rule.Label
	}
	return localizeWithFallback(loc, "status."+string(status), fallback)
}

func localize(loc Localizer, key string, args ...any) string {
	if loc == nil {
		return key
	}
	return loc.Sprintf(key, args...)
}

func localizeWithFallback(loc Localizer, key string, fallback string) string {
	value := strings.TrimSpace(localize(loc, key))
	if value == "" || value == key {
		return fallback
	}
	return value
}
