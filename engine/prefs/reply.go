package prefs

import (
	"regexp"
	"strings"

	"github.com/WessleyAI/carfinder/engine/domain"
)

var topicReplies = []struct {
	re    *regexp.Regexp
	reply string
}{
	{regexp.MustCompile(`(?i)\b(?:budget|price|cost|afford)`),
		"Understanding your budget is important. What's the most you'd like to spend?"},
	{regexp.MustCompile(`(?i)\b(?:gas|fuel|mpg|economy|efficient)`),
		"How important is good gas mileage to you? Are you open to hybrid or electric options?"},
	{regexp.MustCompile(`(?i)\b(?:features?|options|tech|safety)\b`),
		"Which features matter most to you? Things like a backup camera, heated seats, navigation or advanced safety features?"},
}

const (
	greeting = "Hi! I'm here to help you find the right car. What's your budget, and what kind of vehicle do you have in mind?"
	askFirst = "I'd love to help you search! First, what's your budget range and what type of vehicle interests you most?"
)

// ruleReply builds the assistant's answer without a language model.
func ruleReply(st *domain.ConversationState, update domain.Preference, wantsSearch, trigger bool, text string) string {
	p := st.Preference
	if trigger {
		if s := p.Summary(); s != "" {
			return "Let me search for vehicles matching " + s + "."
		}
		return "Let me search for vehicles that match what you've told me."
	}

	if update.IsEmpty() {
		switch {
		case wantsSearch:
			return askFirst
		case p.IsEmpty():
			return greeting
		}
		for _, t := range topicReplies {
			if t.re.MatchString(text) {
				return t.reply
			}
		}
		return "Is there anything else important to you that we haven't discussed yet?"
	}

	return acknowledge(update) + " " + nextQuestion(p, st.Phase)
}

func acknowledge(u domain.Preference) string {
	var parts []string
	if s := u.Summary(); s != "" {
		parts = append(parts, s)
	}
	if len(u.Features) > 0 {
		parts = append(parts, "with "+strings.Join(u.Features, ", "))
	}
	if len(u.Priorities) > 0 {
		names := make([]string, len(u.Priorities))
		for i, o := range u.Priorities {
			names[i] = string(o)
		}
		parts = append(parts, "prioritizing "+strings.Join(names, " then "))
	}
	if len(parts) == 0 {
		return "Got it."
	}
	return "Got it: " + strings.Join(parts, ", ") + "."
}

func nextQuestion(p domain.Preference, phase domain.Phase) string {
	switch {
	case phase == domain.PhaseResults:
		return "Want me to update the results?"
	case p.BudgetMax <= 0 && p.BudgetMin <= 0:
		return "What's the most you'd like to spend?"
	case p.Make == "" && p.Model == "" && p.BodyClass == "" && p.FuelType == "":
		return "What type of vehicle are you after, for example a sedan, SUV or truck?"
	case len(p.Features) == 0:
		return "Any must-have features? Say \"search\" whenever you're ready."
	default:
		return "Say \"search\" whenever you're ready, or tell me more."
	}
}
