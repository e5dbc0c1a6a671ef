package domain

import (
	"slices"
	"strings"
)

// Status is the lifecycle state of an application.
type Status string

const (
	StatusPlanning    Status = "planning"
	StatusDraft       Status = "draft"
	StatusSubmitted   Status = "submitted"
	StatusUnderReview Status = "under_review"
	StatusAccepted    Status = "accepted"
	StatusRejected    Status = "rejected"
	StatusWaitlisted  Status = "waitlisted"
	StatusDeferred    Status = "deferred"
	StatusWithdrawn   Status = "withdrawn"
	StatusCancelled   Status = "cancelled"
)

// StatusRule is the static record for one status: presentation hints plus the
// statuses it may move to.
type StatusRule struct {
	Label       string
	Description string
	Color       string
	Allowed     []Status
}

// statusOrder lists statuses in lifecycle order for stable iteration.
var statusOrder = []Status{
	StatusPlanning,
	StatusDraft,
	StatusSubmitted,
	StatusUnderReview,
	StatusAccepted,
	StatusRejected,
	StatusWaitlisted,
	StatusDeferred,
	StatusWithdrawn,
	StatusCancelled,
}

// statusTable is the only source of transition legality.
var statusTable = map[Status]StatusRule{
	StatusPlanning: {
		Label:       "Planning",
		Description: "Researching the program and gathering requirements.",
		Color:       "gray",
		Allowed:     []Status{StatusDraft, StatusSubmitted, StatusWithdrawn, StatusCancelled},
	},
	StatusDraft: {
		Label:       "Draft",
		Description: "Application materials are being prepared.",
		Color:       "blue",
		Allowed:     []Status{StatusPlanning, StatusSubmitted, StatusWithdrawn, StatusCancelled},
	},
	StatusSubmitted: {
		Label:       "Submitted",
		Description: "Application was sent to the program.",
		Color:       "indigo",
		Allowed:     []Status{StatusUnderReview, StatusAccepted, StatusRejected, StatusWaitlisted, StatusDeferred, StatusWithdrawn},
	},
	StatusUnderReview: {
		Label:       "Under review",
		Description: "The program is evaluating the application.",
		Color:       "yellow",
		Allowed:     []Status{StatusAccepted, StatusRejected, StatusWaitlisted, StatusDeferred, StatusWithdrawn},
	},
	StatusAccepted: {
		Label:       "Accepted",
		Description: "An offer was made.",
		Color:       "green",
		Allowed:     []Status{StatusWithdrawn},
	},
	StatusRejected: {
		Label:       "Rejected",
		Description: "The program declined the application.",
		Color:       "red",
	},
	StatusWaitlisted: {
		Label:       "Waitlisted",
		Description: "Held on the waitlist pending a final decision.",
		Color:       "orange",
		Allowed:     []Status{StatusAccepted, StatusRejected, StatusWithdrawn},
	},
	StatusDeferred: {
		Label:       "Deferred",
		Description: "Decision postponed to a later review round.",
		Color:       "purple",
		Allowed:     []Status{StatusUnderReview, StatusAccepted, StatusRejected, StatusWithdrawn},
	},
	StatusWithdrawn: {
		Label:       "Withdrawn",
		Description: "The applicant withdrew.",
		Color:       "slate",
	},
	StatusCancelled: {
		Label:       "Cancelled",
		Description: "Abandoned before submission.",
		Color:       "zinc",
	},
}

var openStatuses = []Status{StatusPlanning, StatusDraft, StatusSubmitted, StatusUnderReview}

// AllStatuses returns every status in lifecycle order.
func AllStatuses() []Status {
	return slices.Clone(statusOrder)
}

// OpenStatuses returns the statuses still eligible for deadline reminders.
func OpenStatuses() []Status {
	return slices.Clone(openStatuses)
}

// ParseStatus normalizes raw input ("Under Review", "under-review") to a Status.
func ParseStatus(raw string) (Status, bool) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)
	status := Status(normalized)
	if !status.Valid() {
		return "", false
	}
	return status, true
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	_, ok := statusTable[s]
	return ok
}

// Rule returns the static record for s. The Allowed slice is a copy.
func (s Status) Rule() (StatusRule, bool) {
	rule, ok := statusTable[s]
	if !ok {
		return StatusRule{}, false
	}
	rule.Allowed = slices.Clone(rule.Allowed)
	return rule, true
}

// IsTerminal reports whether s has no outgoing transitions.
func (s Status) IsTerminal() bool {
	rule, ok := statusTable[s]
	return ok && len(rule.Allowed) == 0
}

// IsOpen reports whether s is in the open set.
func (s Status) IsOpen() bool {
	return slices.Contains(openStatuses, s)
}

// CanTransition reports whether moving from one status to another is legal.
// Self transitions are never legal.
func CanTransition(from, to Status) bool {
	if from == to {
		return false
	}
	rule, ok := statusTable[from]
	if !ok {
		return false
	}
	return slices.Contains(rule.Allowed, to)
}

// ActorKind identifies who caused a status transition.
type ActorKind string

const (
	ActorUser              ActorKind = "user"
	ActorSystem            ActorKind = "system"
	ActorExternalAuthority ActorKind = "external_authority"
)

// ParseActorKind normalizes raw input to an ActorKind.
func ParseActorKind(raw string) (ActorKind, bool) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)
	switch actor := ActorKind(normalized); actor {
	case ActorUser, ActorSystem, ActorExternalAuthority:
		return actor, true
	default:
		return "", false
	}
}

// Channel is a notification delivery channel preference.
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
)

// ParseChannel normalizes raw input to a Channel.
func ParseChannel(raw string) (Channel, bool) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)
	switch channel := Channel(normalized); channel {
	case ChannelInApp, ChannelEmail, ChannelPush:
		return channel, true
	default:
		return "", false
	}
}
