package domain

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	apperrors "github.com/louisbranch/applytrack/internal/platform/errors"
)

var rulesNow = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

func TestDefaultRuleTemplatesParse(t *testing.T) {
	templates := DefaultRuleTemplates()
	if len(templates) == 0 {
		t.Fatal("expected embedded default rules")
	}
	for _, template := range templates {
		if len(template.Thresholds) == 0 || len(template.Channels) == 0 {
			t.Fatalf("template = %+v", template)
		}
	}
}

func TestParseRuleTemplatesRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad yaml":      "rules: [",
		"no thresholds": "rules:\n  - label: x\n    channels: [email]\n",
		"bad channel":   "rules:\n  - label: x\n    thresholds: [1]\n    channels: [fax]\n",
		"negative":      "rules:\n  - label: x\n    thresholds: [-3]\n    channels: [email]\n",
	}
	for name, doc := range cases {
		if _, err := ParseRuleTemplates([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestPutRuleNormalizes(t *testing.T) {
	store := newMemStore()
	svc := NewRuleService(store, nil, testOptions(rulesNow))

	rule, err := svc.PutRule(context.Background(), PutRuleInput{
		UserID:     "user-1",
		Thresholds: []int{7, 3, 7},
		Channels:   []string{"Email", "in-app", "email"},
		Active:     true,
	})
	if err != nil {
		t.Fatalf("put rule: %v", err)
	}
	if !slices.Equal(rule.Thresholds, []int{7, 3}) {
		t.Fatalf("thresholds = %v", rule.Thresholds)
	}
	if !slices.Equal(rule.Channels, []Channel{ChannelEmail, ChannelInApp}) {
		t.Fatalf("channels = %v", rule.Channels)
	}
	if rule.Label != defaultRuleLabel || rule.ID == "" {
		t.Fatalf("rule = %+v", rule)
	}
}

func TestPutRuleValidation(t *testing.T) {
	svc := NewRuleService(newMemStore(), nil, testOptions(rulesNow))
	cases := []PutRuleInput{
		{Thresholds: []int{1}, Channels: []string{"email"}},
		{UserID: "user-1", Channels: []string{"email"}},
		{UserID: "user-1", Thresholds: []int{400}, Channels: []string{"email"}},
		{UserID: "user-1", Thresholds: []int{1}},
		{UserID: "user-1", Thresholds: []int{1}, Channels: []string{"fax"}},
	}
	for i, input := range cases {
		_, err := svc.PutRule(context.Background(), input)
		if apperrors.CodeOf(err) != apperrors.CodeRuleInvalid {
			t.Fatalf("case %d: code = %s, want %s", i, apperrors.CodeOf(err), apperrors.CodeRuleInvalid)
		}
	}
}

func TestPutRuleRejectsForeignRuleID(t *testing.T) {
	store := newMemStore()
	seedRule(store, "rule-1", "user-2", []int{1}, ChannelEmail)
	svc := NewRuleService(store, nil, testOptions(rulesNow))

	_, err := svc.PutRule(context.Background(), PutRuleInput{
		UserID:     "user-1",
		RuleID:     "rule-1",
		Thresholds: []int{3},
		Channels:   []string{"push"},
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
	if store.rules[0].UserID != "user-2" {
		t.Fatal("foreign rule was overwritten")
	}
}

func TestPutRuleUpdatePreservesCreatedAt(t *testing.T) {
	store := newMemStore()
	created := rulesNow.Add(-48 * time.Hour)
	store.rules = []ReminderRule{{ID: "rule-1", UserID: "user-1", Thresholds: []int{1}, Channels: []Channel{ChannelEmail}, Active: true, CreatedAt: created}}
	svc := NewRuleService(store, nil, testOptions(rulesNow))

	rule, err := svc.PutRule(context.Background(), PutRuleInput{UserID: "user-1", RuleID: "rule-1", Thresholds: []int{2}, Channels: []string{"push"}, Active: true})
	if err != nil {
		t.Fatalf("put rule: %v", err)
	}
	if !rule.CreatedAt.Equal(created) || !rule.UpdatedAt.Equal(rulesNow) {
		t.Fatalf("timestamps = %v / %v", rule.CreatedAt, rule.UpdatedAt)
	}
	if len(store.rules) != 1 || store.rules[0].Thresholds[0] != 2 {
		t.Fatalf("rules = %+v", store.rules)
	}
}

func TestDisableRule(t *testing.T) {
	store := newMemStore()
	seedRule(store, "rule-1", "user-1", []int{1}, ChannelEmail)
	svc := NewRuleService(store, nil, testOptions(rulesNow))

	rule, err := svc.DisableRule(context.Background(), "user-1", "rule-1")
	if err != nil {
		t.Fatalf("disable rule: %v", err)
	}
	if rule.Active || store.rules[0].Active {
		t.Fatal("expected rule to be inactive")
	}
	active, _ := store.GetActiveReminderRules(context.Background(), "user-1")
	if len(active) != 0 {
		t.Fatalf("active rules = %d, want 0", len(active))
	}
	if _, err := svc.DisableRule(context.Background(), "user-2", "rule-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign disable err = %v, want not found", err)
	}
	if _, err := svc.DisableRule(context.Background(), "user-1", "missing"); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("missing rule code = %s", apperrors.CodeOf(err))
	}
}

func TestEnsureDefaultRules(t *testing.T) {
	store := newMemStore()
	templates := []RuleTemplate{{Label: "Soon", Thresholds: []int{3, 1}, Channels: []string{"email"}}}
	svc := NewRuleService(store, templates, testOptions(rulesNow))

	rules, err := svc.EnsureDefaultRules(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ensure defaults: %v", err)
	}
	if len(rules) != 1 || rules[0].Label != "Soon" || !rules[0].Active {
		t.Fatalf("rules = %+v", rules)
	}

	again, err := svc.EnsureDefaultRules(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ensure defaults again: %v", err)
	}
	if len(again) != 1 || len(store.rules) != 1 {
		t.Fatalf("defaults seeded twice: %d rules stored", len(store.rules))
	}
}
