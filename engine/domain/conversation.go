package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// Merge applies update onto p, last write wins per field. Fields that update
// leaves unset keep their prior value; nothing already set is ever cleared.
func (p Preference) Merge(update Preference) Preference {
	out := p
	if update.BudgetMin > 0 {
		out.BudgetMin = update.BudgetMin
	}
	if update.BudgetMax > 0 {
		out.BudgetMax = update.BudgetMax
	}
	if update.MileageMax > 0 {
		out.MileageMax = update.MileageMax
	}
	if update.YearMin > 0 {
		out.YearMin = update.YearMin
	}
	if update.Make != "" {
		out.Make = update.Make
		// A model only makes sense under its make.
		if update.Model == "" && p.Make != update.Make {
			out.Model = ""
		}
	}
	if update.Model != "" {
		out.Model = update.Model
	}
	if update.FuelType != "" {
		out.FuelType = update.FuelType
	}
	if update.BodyClass != "" {
		out.BodyClass = update.BodyClass
	}
	if update.Location != "" {
		out.Location = update.Location
	}
	if len(update.Features) > 0 {
		out.Features = slices.Clone(update.Features)
	}
	if update.Description != "" {
		out.Description = update.Description
	}
	if len(update.Priorities) > 0 {
		out.Priorities = slices.Clone(update.Priorities)
	}
	if !update.Weights.IsZero() {
		out.Weights = update.Weights
	}
	return out
}

// Role identifies the speaker of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation.
type Turn struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Phase tracks how far the conversation has progressed.
type Phase string

const (
	PhaseInitial   Phase = "initial"
	PhaseGathering Phase = "gathering"
	PhaseReady     Phase = "ready"
	PhaseResults   Phase = "results"
)

// ConversationState is owned by one session and passed explicitly per request.
type ConversationState struct {
	ID         string     `json:"id"`
	Turns      []Turn     `json:"turns"`
	Preference Preference `json:"preference"`
	Phase      Phase      `json:"phase"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// NewConversation starts an empty session.
func NewConversation() *ConversationState {
	return &ConversationState{
		ID:        uuid.NewString(),
		Phase:     PhaseInitial,
		UpdatedAt: time.Now().UTC(),
	}
}

// AddTurn appends a message to the history.
func (s *ConversationState) AddTurn(role Role, text string) {
	now := time.Now().UTC()
	s.Turns = append(s.Turns, Turn{Role: role, Text: text, At: now})
	s.UpdatedAt = now
}

// Recent returns at most n of the latest turns.
func (s *ConversationState) Recent(n int) []Turn {
	if len(s.Turns) <= n {
		return s.Turns
	}
	return s.Turns[len(s.Turns)-n:]
}

// Apply merges update into the accumulated preference and advances the phase.
func (s *ConversationState) Apply(update Preference) {
	s.Preference = s.Preference.Merge(update)
	if s.Phase == PhaseResults {
		return
	}
	switch {
	case s.Preference.IsReady():
		s.Phase = PhaseReady
	case !s.Preference.IsEmpty():
		s.Phase = PhaseGathering
	}
}

// MarkSearched records that results were shown.
func (s *ConversationState) MarkSearched() {
	s.Phase = PhaseResults
	s.UpdatedAt = time.Now().UTC()
}

// IsReady reports whether p has enough to run a useful search: a budget and
// at least one categorical signal.
func (p Preference) IsReady() bool {
	hasBudget := p.BudgetMax > 0 || p.BudgetMin > 0
	hasKind := p.Make != "" || p.Model != "" || p.BodyClass != "" || p.FuelType != ""
	return hasBudget && hasKind
}
