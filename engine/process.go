package engine

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/budget"
	"github.com/becomeliminal/nim-memory/memory/classify"
	"github.com/becomeliminal/nim-memory/memory/episodic"
	"github.com/becomeliminal/nim-memory/memory/longterm"
	"github.com/becomeliminal/nim-memory/memory/narrative"
	"github.com/becomeliminal/nim-memory/memory/rules"
	"github.com/becomeliminal/nim-memory/memory/textnorm"
)

var tracer = otel.Tracer("nim-memory")

// Working memory keys written by the engine.
const (
	KeyActiveCategories = "categorias_ativas"
	KeyLastMessage      = "ultima_mensagem"
	KeyLastIntent       = "ultima_intencao"
	keyValuePrefix      = "valor_"
)

const (
	maxActiveCategories = 5
	lastMessageWords    = 40
	// recurrenceSimilarity marks an earlier user message as a repeat mention.
	recurrenceSimilarity = 0.5
)

// Outcome is the result of processing one interaction.
type Outcome struct {
	TaskID     string
	Categories []core.CategoryScore
	// Refined is set when the text service changed the classification.
	Refined  bool
	Event    narrative.Event
	Episodic *episodic.Record
	LongTerm *longterm.Result
	// Rejection is why the long-term proposal was declined, if it was.
	Rejection *memory.RejectionError
	Errors    []*TaskError
}

// Process runs the write pipeline synchronously: classify, extract the
// event, then write the three tiers concurrently. A failing tier never
// blocks or rolls back the others; its error is in Outcome.Errors.
func (e *MemoryEngine) Process(ctx context.Context, in core.Interaction) (*Outcome, error) {
	if err := validate(in); err != nil {
		return nil, err
	}
	return e.process(ctx, "", in), nil
}

func (e *MemoryEngine) process(ctx context.Context, taskID string, in core.Interaction) *Outcome {
	ctx, span := tracer.Start(ctx, "engine.processInteraction")
	defer span.End()
	span.SetAttributes(
		attribute.String("user_id", in.UserID),
		attribute.String("chat_id", in.ChatID),
	)

	ts := in.Timestamp
	if ts.IsZero() {
		ts = e.now()
	}

	out := &Outcome{TaskID: taskID}
	active := e.activeCategories(ctx, in.SessionID)
	out.Categories, out.Refined = e.classify(ctx, in.UserMessage, active)

	var top core.Category
	if len(out.Categories) > 0 {
		top = out.Categories[0].Category
		span.SetAttributes(attribute.String("category", string(top)))
	}
	out.Event = e.extractor.Extract(in.UserMessage, ts, top)
	if rules.ContainsForbiddenContent(in.UserMessage).Found {
		// Keep the turn in the narrative without its text.
		out.Event.UserAction = ""
		out.Event.MentionedValues = nil
		out.Event.Decision = ""
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	fail := func(tier core.Tier, err error) {
		mu.Lock()
		defer mu.Unlock()
		out.Errors = append(out.Errors, &TaskError{
			TaskID: taskID, Tier: tier,
			SessionID: in.SessionID, ChatID: in.ChatID, UserID: in.UserID,
			Err: err,
		})
	}

	if in.SessionID != "" {
		g.Go(func() error {
			if err := e.writeWorking(ctx, in, out.Categories, active, out.Event); err != nil {
				fail(core.TierWorking, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		rec, err := e.writeEpisodic(ctx, in, out.Categories, out.Event)
		if err != nil {
			fail(core.TierEpisodic, err)
			return nil
		}
		out.Episodic = rec
		return nil
	})
	if top.Valid() {
		g.Go(func() error {
			res, err := e.longterm.Propose(ctx, longterm.Proposal{
				UserID:       in.UserID,
				Content:      in.UserMessage,
				Category:     top,
				SourceChats:  []string{in.ChatID},
				EventDate:    ts,
				MentionCount: mentions(in),
			})
			var rej *memory.RejectionError
			switch {
			case errors.As(err, &rej):
				out.Rejection = rej
			case err != nil:
				fail(core.TierLongTerm, err)
			default:
				out.LongTerm = res
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range out.Errors {
		span.RecordError(err)
		if errors.Is(err, memory.ErrBudgetExceeded) {
			e.logger.Warnf(ctx, "[ENGINE] %v", err)
		} else {
			e.logger.Errorf(ctx, "[ENGINE] %v", err)
		}
	}
	e.logger.Debugf(ctx, "[ENGINE] Processed chat %s: categories=%d stored=%t errors=%d",
		in.ChatID, len(out.Categories), out.LongTerm != nil, len(out.Errors))
	return out
}

// classify runs the rule-based classifier and asks the text service when
// the best score is below Config.RefineBelowScore.
func (e *MemoryEngine) classify(ctx context.Context, text string, active []core.Category) ([]core.CategoryScore, bool) {
	scores := e.classifier.DetectCategories(text, classify.Context{ActiveCategories: active})
	if len(scores) > 0 && scores[0].Score >= e.cfg.RefineBelowScore {
		return scores, false
	}

	refined, err := e.text.Classify(ctx, text, core.AllCategories)
	if err != nil {
		e.logger.Warnf(ctx, "[ENGINE] Classification refinement failed: %v", err)
		return scores, false
	}
	var kept []core.CategoryScore
	for _, s := range refined {
		if !s.Category.Valid() || s.Score < e.cfg.ClassifierFloor {
			continue
		}
		kept = append(kept, s)
		if len(kept) == e.cfg.ClassifierTopN {
			break
		}
	}
	if len(kept) == 0 || (len(scores) > 0 && kept[0].Score <= scores[0].Score) {
		return scores, false
	}
	return kept, true
}

func (e *MemoryEngine) activeCategories(ctx context.Context, sessionID string) []core.Category {
	if sessionID == "" {
		return nil
	}
	v, ok, err := e.working.Get(ctx, sessionID, KeyActiveCategories)
	if err != nil || !ok {
		return nil
	}
	var out []core.Category
	switch list := v.(type) {
	case []string:
		for _, s := range list {
			out = append(out, core.Category(s))
		}
	case []any:
		for _, s := range list {
			if str, ok := s.(string); ok {
				out = append(out, core.Category(str))
			}
		}
	}
	return out
}

func (e *MemoryEngine) writeWorking(ctx context.Context, in core.Interaction, scores []core.CategoryScore, active []core.Category, ev narrative.Event) error {
	set := func(key string, value any) error {
		res, err := e.working.Set(ctx, in.SessionID, key, value)
		if err != nil {
			return err
		}
		if res.Rejection != nil {
			e.logger.Debugf(ctx, "[ENGINE] Working write %s declined: %v", key, res.Rejection)
		}
		return nil
	}

	if err := set(KeyLastMessage, budget.Truncate(in.UserMessage, lastMessageWords)); err != nil {
		return err
	}
	if err := set(KeyLastIntent, ev.Intent); err != nil {
		return err
	}
	for label, v := range ev.MentionedValues {
		if err := set(keyValuePrefix+label, v); err != nil {
			return err
		}
	}
	if len(scores) > 0 {
		if err := set(KeyActiveCategories, mergeActive(active, scores)); err != nil {
			return err
		}
	}
	return nil
}

// mergeActive puts the newly detected categories first and keeps at most
// maxActiveCategories.
func mergeActive(active []core.Category, scores []core.CategoryScore) []string {
	var out []string
	seen := make(map[core.Category]bool)
	add := func(c core.Category) {
		if !seen[c] && len(out) < maxActiveCategories {
			seen[c] = true
			out = append(out, string(c))
		}
	}
	for _, s := range scores {
		add(s.Category)
	}
	for _, c := range active {
		add(c)
	}
	return out
}

func (e *MemoryEngine) writeEpisodic(ctx context.Context, in core.Interaction, scores []core.CategoryScore, ev narrative.Event) (*episodic.Record, error) {
	patch := episodic.Content{
		Values: ev.MentionedValues,
		Events: []narrative.Event{ev},
	}
	for _, s := range scores {
		patch.Topics = append(patch.Topics, s.Category.Label())
	}
	if ev.Decision != "" {
		patch.Decisions = []string{ev.Decision}
	}
	return e.episodic.Upsert(ctx, in.ChatID, in.UserID, patch, episodic.WithNarrative())
}

// mentions counts the current message plus earlier user turns that say
// nearly the same thing.
func mentions(in core.Interaction) int {
	n := 1
	for _, h := range in.History {
		if h.Role == "user" && textnorm.Jaccard(h.Content, in.UserMessage) >= recurrenceSimilarity {
			n++
		}
	}
	return n
}
