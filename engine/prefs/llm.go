package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/WessleyAI/carfinder/engine/domain"
	"github.com/WessleyAI/carfinder/pkg/ollama"
)

// Generator produces a completion. *ollama.Client satisfies it.
type Generator interface {
	Generate(ctx context.Context, req ollama.GenerateRequest) (string, error)
}

const systemPrompt = `You are a friendly car shopping assistant. Read the user's message and the
conversation so far, and return ONLY a JSON object of this shape:

{"preferences": {"budget_min": 0, "budget_max": 0, "mileage_max": 0, "year_min": 0,
  "make": "", "model": "", "fuel_type": "", "body_class": "", "location": "",
  "features": [], "description": "", "priorities": []},
 "reply": "", "search": false}

Rules:
- Fill only fields the user mentioned in the CURRENT message; leave the rest empty or 0.
- Amounts are US dollars as plain numbers ("$40k" is 40000).
- fuel_type is one of Gasoline, Hybrid, Electric, Diesel, CNG, Ethanol.
- body_class is one of Sedan, SUV, Truck, Coupe, Hatchback, Wagon, Van, Minivan, Convertible.
- priorities lists objectives from: price, reliability, efficiency, safety, features, most important first.
- description is a short free-text summary of intended use or style, if any.
- reply is one or two conversational sentences that acknowledge what you understood and ask
  about the most important missing detail (budget, vehicle type, must-have features).
- search is true only when the user asks to see or search for cars.`

var phaseHints = map[domain.Phase]string{
	domain.PhaseInitial:   "The user is just starting; help them think through what kind of car would suit them.",
	domain.PhaseGathering: "You have some preferences; dig into their specific needs and priorities.",
	domain.PhaseReady:     "You understand their needs; suggest it is time to search.",
	domain.PhaseResults:   "Results were shown; help them refine or understand the recommendations.",
}

type modelOutput struct {
	Preferences domain.Preference `json:"preferences"`
	Reply       string            `json:"reply"`
	Search      bool              `json:"search"`
}

// fromModel asks the language model for a preference update and a reply.
func (e *Extractor) fromModel(ctx context.Context, st *domain.ConversationState, text string) (modelOutput, error) {
	raw, err := e.gen.Generate(ctx, ollama.GenerateRequest{
		Model:   e.model,
		System:  systemPrompt + "\n\n" + phaseHints[st.Phase],
		Prompt:  buildPrompt(st, text, e.history),
		Format:  "json",
		Options: map[string]any{"temperature": 0.2},
	})
	if err != nil {
		return modelOutput{}, err
	}
	return parseModelOutput(raw)
}

func buildPrompt(st *domain.ConversationState, text string, history int) string {
	var b strings.Builder
	if turns := st.Recent(history); len(turns) > 0 {
		b.WriteString("Previous conversation:\n")
		for _, t := range turns {
			speaker := "User"
			if t.Role == domain.RoleAssistant {
				speaker = "Assistant"
			}
			fmt.Fprintf(&b, "%s: %s\n", speaker, t.Text)
		}
		b.WriteString("\n")
	}
	if !st.Preference.IsEmpty() {
		current, _ := json.Marshal(st.Preference)
		fmt.Fprintf(&b, "Current preferences: %s\n\n", current)
	}
	fmt.Fprintf(&b, "User's current message: %s\n", text)
	return b.String()
}

// parseModelOutput decodes the model's JSON, tolerating prose around it.
func parseModelOutput(raw string) (modelOutput, error) {
	raw = strings.TrimSpace(raw)
	start, end := strings.IndexByte(raw, '{'), strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return modelOutput{}, errors.New("prefs: model output has no JSON object")
	}
	var out modelOutput
	if err := json.Unmarshal([]byte(raw[start:end+1]), &out); err != nil {
		return modelOutput{}, fmt.Errorf("prefs: decode model output: %w", err)
	}
	out.Reply = domain.SanitizeText(out.Reply)
	return out, nil
}
