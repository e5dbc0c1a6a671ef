package domain

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"strings"

	apperrors "github.com/louisbranch/applytrack/internal/platform/errors"
	"gopkg.in/yaml.v3"
)

const (
	defaultRuleLabel = "Deadline reminders"
	maxThresholdDays = 365
)

//go:embed defaults.yaml
var defaultRulesYAML []byte

// RuleTemplate describes one rule seeded for new users.
type RuleTemplate struct {
	Label      string   `yaml:"label"`
	Thresholds []int    `yaml:"thresholds"`
	Channels   []string `yaml:"channels"`
}

type ruleTemplateFile struct {
	Rules []RuleTemplate `yaml:"rules"`
}

// ParseRuleTemplates decodes a rule defaults document and validates every
// template.
func ParseRuleTemplates(data []byte) ([]RuleTemplate, error) {
	var file ruleTemplateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse rule defaults: %w", err)
	}
	for i, template := range file.Rules {
		if _, err := normalizeThresholds(template.Thresholds); err != nil {
			return nil, fmt.Errorf("rule default %d: %w", i, err)
		}
		if _, err := parseChannels(template.Channels); err != nil {
			return nil, fmt.Errorf("rule default %d: %w", i, err)
		}
	}
	return file.Rules, nil
}

// DefaultRuleTemplates returns the embedded rule defaults.
func DefaultRuleTemplates() []RuleTemplate {
	templates, err := ParseRuleTemplates(defaultRulesYAML)
	if err != nil {
		panic(err)
	}
	return templates
}

// PutRuleInput creates or replaces one rule. An empty RuleID creates a rule.
type PutRuleInput struct {
	UserID     string
	RuleID     string
	Label      string
	Thresholds []int
	Channels   []string
	Active     bool
}

// RuleService manages user reminder rules.
type RuleService struct {
	store     RuleStore
	templates []RuleTemplate
	opts      ServiceOptions
}

// NewRuleService constructs rule use-cases. Nil templates use the embedded
// defaults.
func NewRuleService(store RuleStore, templates []RuleTemplate, opts ServiceOptions) *RuleService {
	if templates == nil {
		templates = DefaultRuleTemplates()
	}
	return &RuleService{
		store:     store,
		templates: templates,
		opts:      opts.withDefaults(),
	}
}

// PutRule validates and stores a rule.
func (s *RuleService) PutRule(ctx context.Context, input PutRuleInput) (ReminderRule, error) {
	if s == nil || s.store == nil {
		return ReminderRule{}, ErrStoreNotConfigured
	}
	userID := strings.TrimSpace(input.UserID)
	if userID == "" {
		return ReminderRule{}, apperrors.New(apperrors.CodeRuleInvalid, "user id is required")
	}
	thresholds, err := normalizeThresholds(input.Thresholds)
	if err != nil {
		return ReminderRule{}, apperrors.Wrap(apperrors.CodeRuleInvalid, err.Error(), err)
	}
	channels, err := parseChannels(input.Channels)
	if err != nil {
		return ReminderRule{}, apperrors.Wrap(apperrors.CodeRuleInvalid, err.Error(), err)
	}
	label := strings.TrimSpace(input.Label)
	if label == "" {
		label = defaultRuleLabel
	}

	now := s.opts.Clock().UTC()
	rule := ReminderRule{
		ID:         strings.TrimSpace(input.RuleID),
		UserID:     userID,
		Label:      label,
		Thresholds: thresholds,
		Channels:   channels,
		Active:     input.Active,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if rule.ID == "" {
		if rule.ID, err = s.opts.NewID(); err != nil {
			return ReminderRule{}, fmt.Errorf("generate rule id: %w", err)
		}
	} else {
		existing, err := s.store.GetReminderRule(ctx, rule.ID)
		switch {
		case err == nil && existing.UserID != userID:
			return ReminderRule{}, errRuleNotFound()
		case err == nil:
			rule.CreatedAt = existing.CreatedAt
		case !errors.Is(err, ErrNotFound):
			return ReminderRule{}, fmt.Errorf("get reminder rule: %w", err)
		}
	}

	if err := s.store.PutReminderRule(ctx, rule); err != nil {
		return ReminderRule{}, errStoreWrite("put reminder rule", err)
	}
	return rule, nil
}

// DisableRule soft-disables one of the user's rules.
func (s *RuleService) DisableRule(ctx context.Context, userID string, ruleID string) (ReminderRule, error) {
	if s == nil || s.store == nil {
		return ReminderRule{}, ErrStoreNotConfigured
	}
	rule, err := s.ownedRule(ctx, strings.TrimSpace(userID), strings.TrimSpace(ruleID))
	if err != nil {
		return ReminderRule{}, err
	}
	if !rule.Active {
		return rule, nil
	}
	rule.Active = false
	rule.UpdatedAt = s.opts.Clock().UTC()
	if err := s.store.PutReminderRule(ctx, rule); err != nil {
		return ReminderRule{}, errStoreWrite("disable reminder rule", err)
	}
	return rule, nil
}

// ListRules returns every rule the user owns, active or not.
func (s *RuleService) ListRules(ctx context.Context, userID string) ([]ReminderRule, error) {
	if s == nil || s.store == nil {
		return nil, ErrStoreNotConfigured
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperrors.New(apperrors.CodeRuleInvalid, "user id is required")
	}
	return s.store.ListReminderRules(ctx, userID)
}

// EnsureDefaultRules seeds the default rules when the user has none and
// returns the user's rules.
func (s *RuleService) EnsureDefaultRules(ctx context.Context, userID string) ([]ReminderRule, error) {
	existing, err := s.ListRules(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}
	rules := make([]ReminderRule, 0, len(s.templates))
	for _, template := range s.templates {
		rule, err := s.PutRule(ctx, PutRuleInput{
			UserID:     userID,
			Label:      template.Label,
			Thresholds: template.Thresholds,
			Channels:   template.Channels,
			Active:     true,
		})
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	s.opts.Logf("seeded %d default reminder rules for user %s", len(rules), strings.TrimSpace(userID))
	return rules, nil
}

func (s *RuleService) ownedRule(ctx context.Context, userID string, ruleID string) (ReminderRule, error) {
	rule, err := s.store.GetReminderRule(ctx, ruleID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ReminderRule{}, errRuleNotFound()
		}
		return ReminderRule{}, fmt.Errorf("get reminder rule: %w", err)
	}
	if rule.UserID != userID {
		return ReminderRule{}, errRuleNotFound()
	}
	return rule, nil
}

func normalizeThresholds(values []int) ([]int, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("at least one threshold is required")
	}
	out := make([]int, 0, len(values))
	for _, value := range values {
		if value < 0 || value > maxThresholdDays {
			return nil, fmt.Errorf("threshold %d must be between 0 and %d days", value, maxThresholdDays)
		}
		if !slices.Contains(out, value) {
			out = append(out, value)
		}
	}
	return out, nil
}

func parseChannels(values []string) ([]Channel, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("at least one channel is required")
	}
	out := make([]Channel, 0, len(values))
	for _, value := range values {
		channel, ok := ParseChannel(value)
		if !ok {
			return nil, fmt.Errorf("unknown channel %q", value)
		}
		if !slices.Contains(out, channel) {
			out = append(out, channel)
		}
	}
	return out, nil
}

func errRuleNotFound() error {
	return apperrors.Wrap(apperrors.CodeNotFound, "reminder rule not found", ErrNotFound)
}
