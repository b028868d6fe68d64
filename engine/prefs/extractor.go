// Package prefs turns conversational text into structured preferences and
// decides what the assistant says back.
//
// A rule-based extractor always runs. When a language model is configured its
// output takes precedence field by field, with the rule result filling the
// blanks; any model failure falls back to the rules alone.
package prefs

import (
	"context"
	"log/slog"

	"github.com/WessleyAI/carfinder/engine/domain"
)

// DefaultHistory is the number of prior turns sent to the model.
const DefaultHistory = 6

// Result is the outcome of one conversational turn.
type Result struct {
	// Preference is the accumulated preference after the turn.
	Preference domain.Preference `json:"preferences"`
	// Update holds only what this turn contributed.
	Update        domain.Preference `json:"update"`
	Reply         string            `json:"reply"`
	TriggerSearch bool              `json:"trigger_search"`
	Phase         domain.Phase      `json:"phase"`
	UsedModel     bool              `json:"used_model"`
	// Err is the validation error when the turn was rejected.
	Err error `json:"-"`
}

// Extractor processes conversation turns.
type Extractor struct {
	gen     Generator
	model   string
	history int
	logger  *slog.Logger
}

// New creates an Extractor. A nil gen disables the model path.
func New(gen Generator, model string, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		gen:     gen,
		model:   model,
		history: DefaultHistory,
		logger:  logger.With("component", "prefs"),
	}
}

// Process handles one user message against st. Both the message and the reply
// are appended to the history. If the resulting preference is invalid, the
// whole update is discarded, st.Preference is left as it was, and Result.Err
// carries the validation error.
func (e *Extractor) Process(ctx context.Context, st *domain.ConversationState, text string) Result {
	text = domain.SanitizeText(text)
	if text == "" {
		err := domain.NewValidationError("text", "", domain.ErrEmptyText)
		return Result{Preference: st.Preference, Phase: st.Phase, Reply: domain.UserMessage(err), Err: err}
	}

	update := domain.NormalizePreference(Rules(text))
	wantsSearch := WantsSearch(text)
	var modelReply string
	usedModel := false

	if e.gen != nil {
		out, err := e.fromModel(ctx, st, text)
		switch {
		case err != nil:
			e.logger.WarnContext(ctx, "model extraction failed, using rules", "err", err)
		default:
			candidate := domain.NormalizePreference(update.Merge(out.Preferences))
			if verr := domain.ValidatePreference(st.Preference.Merge(candidate)); verr != nil {
				e.logger.WarnContext(ctx, "model preferences rejected, using rules", "err", verr)
				break
			}
			update, modelReply, usedModel = candidate, out.Reply, true
			wantsSearch = wantsSearch || out.Search
		}
	}

	st.AddTurn(domain.RoleUser, text)

	if err := domain.ValidatePreference(st.Preference.Merge(update)); err != nil {
		e.logger.InfoContext(ctx, "preference update rejected", "session", st.ID, "err", err)
		reply := domain.UserMessage(err)
		st.AddTurn(domain.RoleAssistant, reply)
		return Result{Preference: st.Preference, Phase: st.Phase, Reply: reply, Err: err}
	}

	prev := st.Phase
	st.Apply(update)
	learned := !update.IsEmpty()
	trigger := (wantsSearch && !st.Preference.IsEmpty()) ||
		(prev != domain.PhaseReady && st.Phase == domain.PhaseReady) ||
		(prev == domain.PhaseResults && learned && st.Preference.HasHardFilters())

	reply := modelReply
	if reply == "" {
		reply = ruleReply(st, update, wantsSearch, trigger, text)
	}
	st.AddTurn(domain.RoleAssistant, reply)

	return Result{
		Preference:    st.Preference,
		Update:        update,
		Reply:         reply,
		TriggerSearch: trigger,
		Phase:         st.Phase,
		UsedModel:     usedModel,
	}
}
