// SPDX-License-Identifier: MIT

package scenario

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/Amore-GG/BE/internal/llm"
	"github.com/Amore-GG/BE/internal/log"
)

const (
	generateTemperature = 0.7
	shotTemperature     = 0.5

	// eventBuffer bounds the producer so a slow SSE consumer applies
	// backpressure instead of unbounded queueing.
	eventBuffer = 8
)

// Engine is the scenario→timetable service. Created once at startup and
// injected into the handlers.
type Engine struct {
	LLM        llm.Completer
	Policy     RetryPolicy
	ShotLength int // target shot length in seconds, default 5
}

// NewEngine returns an engine with default policy and shot length.
func NewEngine(completer llm.Completer) *Engine {
	return &Engine{
		LLM:        completer,
		Policy:     DefaultRetryPolicy(),
		ShotLength: 5,
	}
}

// contextEntry is one prior shot carried into the prompt-synthesis
// context window.
type contextEntry struct {
	Scene    string
	Dialogue string
}

// shotPrompts is the JSON shape the per-shot synthesis call returns.
type shotPrompts struct {
	Dialogue         string          `json:"dialogue"`
	T2IPrompt        T2IPrompt       `json:"t2i_prompt"`
	ImageEditPrompt  ImageEditPrompt `json:"image_edit_prompt"`
	BackgroundSounds string          `json:"background_sounds_prompt"`
}

// GenerateScenario produces the 6-7 sentence Korean narrative, re-running
// through the grammar validator until it passes or attempts run out. A
// validator-corrected text is preferred over the raw generation. Returns
// the text and the attempt count.
func (e *Engine) GenerateScenario(ctx context.Context, brand, userQuery string) (string, int, error) {
	logger := log.WithComponent("scenario.engine")

	var best string
	bestScore := -1.0

	for attempt := 1; attempt <= e.Policy.attempts(); attempt++ {
		text, err := e.LLM.Complete(ctx, llm.Request{
			Prompt:      scenarioPrompt(brand, userQuery),
			Temperature: generateTemperature,
			MaxTokens:   512,
		})
		if err != nil {
			if ctx.Err() != nil {
				return "", attempt, ctx.Err()
			}
			logger.Warn().Err(err).Int("attempt", attempt).Msg("scenario generation failed")
			continue
		}
		text = cleanScenario(text)
		if text == "" {
			continue
		}

		verdict := e.ValidateScenario(ctx, text)
		if verdict.CorrectedText != "" {
			text = verdict.CorrectedText
		}

		logger.Debug().
			Int("attempt", attempt).
			Float64("score", verdict.Score).
			Bool("pass", verdict.Pass).
			Msg("scenario validated")

		if verdict.Score > bestScore {
			bestScore = verdict.Score
			best = text
		}
		if verdict.Pass {
			return text, attempt, nil
		}
	}

	if best == "" {
		return "", e.Policy.attempts(), ErrGenerationFailed
	}
	logger.Warn().Float64("best_score", bestScore).Msg("scenario retries exhausted, using best attempt")
	return best, e.Policy.attempts(), nil
}

// ErrGenerationFailed reports that every generation attempt failed.
var ErrGenerationFailed = &generationError{}

type generationError struct{}

func (*generationError) Error() string { return "scenario generation failed on all attempts" }

// cleanScenario strips model wrapping from a scenario response.
func cleanScenario(s string) string {
	if i := strings.LastIndex(s, "</think>"); i >= 0 {
		s = s[i+len("</think>"):]
	}
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), `"`))
}

// StreamTimetable runs the shot-list pipeline and pushes events to the
// returned channel: one metadata, scenes in index order, one complete.
// A fatal failure emits a terminal error event. The channel is closed
// when the stream ends; the producer stops early if ctx is cancelled.
func (e *Engine) StreamTimetable(ctx context.Context, scenarioText string, duration int, brand string) <-chan Event {
	events := make(chan Event, eventBuffer)

	go func() {
		defer close(events)
		logger := log.WithComponent("scenario.engine")

		segments := Segment(scenarioText, duration, e.ShotLength)
		if len(segments) == 0 {
			emit(ctx, events, ErrorEvent{Message: "scenario could not be segmented"})
			return
		}

		if !emit(ctx, events, MetadataEvent{
			TotalDuration: duration,
			SceneCount:    len(segments),
			Status:        "started",
		}) {
			return
		}

		var history []contextEntry
		for i, seg := range segments {
			if ctx.Err() != nil {
				return
			}

			prompts := e.synthesizeShot(ctx, seg.Description, brand, history)

			shot := Shot{
				Index:            i,
				TimeStart:        seg.TimeStart,
				TimeEnd:          seg.TimeEnd,
				SceneDescription: seg.Description,
				Dialogue:         prompts.Dialogue,
				T2IPrompt:        prompts.T2IPrompt,
				ImageEditPrompt:  prompts.ImageEditPrompt,
				BackgroundSounds: prompts.BackgroundSounds,
			}
			if !emit(ctx, events, SceneEvent{Shot: shot}) {
				return
			}
			logger.Debug().Int("index", i).Msg("scene emitted")

			history = append(history, contextEntry{Scene: seg.Description, Dialogue: prompts.Dialogue})
		}

		emit(ctx, events, CompleteEvent{Status: "completed", TotalScenes: len(segments)})
	}()

	return events
}

// synthesizeShot generates prompts + dialogue for one shot inside the
// bounded retry loop. LLM failure or unparseable JSON never aborts the
// stream: the shot falls back to defaults, or to the best-scoring
// attempt when the validator stays unsatisfied.
func (e *Engine) synthesizeShot(ctx context.Context, scene, brand string, history []contextEntry) shotPrompts {
	logger := log.WithComponent("scenario.engine")

	previousDialogues := make([]string, 0, len(history))
	for _, h := range history {
		previousDialogues = append(previousDialogues, h.Dialogue)
	}

	best := defaultShotPrompts()
	bestScore := -1.0

	for attempt := 1; attempt <= e.Policy.attempts(); attempt++ {
		raw, err := e.LLM.Complete(ctx, llm.Request{
			Prompt:      shotPrompt(scene, brand, history),
			Temperature: shotTemperature,
			MaxTokens:   768,
		})
		if err != nil {
			if ctx.Err() != nil {
				return best
			}
			logger.Warn().Err(err).Int("attempt", attempt).Msg("shot synthesis failed")
			continue
		}

		prompts, ok := parseShotPrompts(raw)
		if !ok {
			logger.Warn().Int("attempt", attempt).Msg("shot synthesis returned no JSON")
			continue
		}

		verdict := e.ValidateDialogue(ctx, prompts.Dialogue, scene, previousDialogues)
		logger.Debug().
			Int("attempt", attempt).
			Float64("score", verdict.Score).
			Bool("pass", verdict.Pass).
			Msg("dialogue validated")

		if verdict.Score > bestScore {
			bestScore = verdict.Score
			best = prompts
		}
		if verdict.Pass {
			return prompts
		}
	}
	return best
}

func parseShotPrompts(raw string) (shotPrompts, bool) {
	extracted := llm.ExtractJSON(raw)
	if extracted == "" {
		return shotPrompts{}, false
	}
	var p shotPrompts
	if err := json.Unmarshal([]byte(extracted), &p); err != nil {
		return shotPrompts{}, false
	}
	if p.T2IPrompt == (T2IPrompt{}) {
		// schema drift: keep the dialogue if present, default the prompts
		def := defaultShotPrompts()
		def.Dialogue = p.Dialogue
		def.BackgroundSounds = p.BackgroundSounds
		return def, true
	}
	return p, true
}

// GenerateDialogue regenerates the dialogue of one scene, validator
// gated, without touching its prompts.
func (e *Engine) GenerateDialogue(ctx context.Context, scene string, previousDialogues []string) (string, error) {
	best := ""
	bestScore := -1.0

	for attempt := 1; attempt <= e.Policy.attempts(); attempt++ {
		raw, err := e.LLM.Complete(ctx, llm.Request{
			Prompt:      dialoguePrompt(scene, previousDialogues),
			Temperature: generateTemperature,
			MaxTokens:   128,
		})
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			continue
		}
		dialogue := cleanDialogue(raw)

		verdict := e.ValidateDialogue(ctx, dialogue, scene, previousDialogues)
		if verdict.Score > bestScore {
			bestScore = verdict.Score
			best = dialogue
		}
		if verdict.Pass {
			return dialogue, nil
		}
	}

	if bestScore < 0 {
		return "", ErrGenerationFailed
	}
	return best, nil
}

// cleanDialogue unwraps a raw dialogue response: quotes, reasoning tags
// and the occasional JSON envelope the model insists on.
func cleanDialogue(s string) string {
	if i := strings.LastIndex(s, "</think>"); i >= 0 {
		s = s[i+len("</think>"):]
	}
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "{") {
		var obj struct {
			Dialogue string `json:"dialogue"`
		}
		if err := json.Unmarshal([]byte(s), &obj); err == nil && obj.Dialogue != "" {
			return obj.Dialogue
		}
	}
	return s
}

// emit pushes an event unless the context is cancelled. It reports
// whether the stream should continue.
func emit(ctx context.Context, ch chan<- Event, ev Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
