// SPDX-License-Identifier: MIT

package scenario

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/Amore-GG/BE/internal/llm"
	"github.com/Amore-GG/BE/internal/log"
)

// Verdict is the fixed return shape of both validators.
type Verdict struct {
	Score         float64  `json:"score"`
	Pass          bool     `json:"pass"`
	Issues        []string `json:"issues,omitempty"`
	Reason        string   `json:"reason,omitempty"`
	CorrectedText string   `json:"corrected_text,omitempty"`
}

// RetryPolicy bounds a generate-validate loop: up to MaxAttempts tries,
// done on the first score >= Threshold, best-so-far on exhaustion.
type RetryPolicy struct {
	MaxAttempts int
	Threshold   float64
}

// DefaultRetryPolicy matches the generation loop defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Threshold: 7.0}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 3
	}
	return p.MaxAttempts
}

func (p RetryPolicy) threshold() float64 {
	if p.Threshold <= 0 {
		return 7.0
	}
	return p.Threshold
}

// defaultVerdict is the liveness fallback: an unparseable validator
// response passes with a neutral score instead of deadlocking the loop.
func defaultVerdict(reason string) Verdict {
	return Verdict{
		Score:  7.0,
		Pass:   true,
		Issues: []string{reason},
		Reason: "validation unparseable, defaulting to pass",
	}
}

const validatorTemperature = 0.3

// nearDuplicateThreshold is the Jaro-Winkler similarity above which a
// candidate is rejected locally, without an LLM round trip.
const nearDuplicateThreshold = 0.93

// forbiddenPrefixes open vlog-style narration and always fail.
var forbiddenPrefixes = []string{"오늘은", "먼저", "이제"}

const scenarioValidatorPrompt = `You are a Korean grammar and spacing validator for advertising scenario text.

**Your Task**: Check the Korean scenario text for grammar errors and spacing (띄어쓰기) issues.

**Quality Criteria**:
1. **띄어쓰기 (Spacing)**: Proper spacing between words according to Korean grammar rules
2. **문법 (Grammar)**: Correct Korean sentence structure and grammar
3. **완결성 (Completeness)**: Complete sentences without fragments
4. **일관성 (Consistency)**: Consistent verb tense and style

**Scoring** (0-10):
- 10: Perfect - no spacing or grammar issues
- 7-9: Good - minor issues that don't affect understanding
- 4-6: Mediocre - noticeable errors, should fix
- 0-3: Poor - significant errors, must fix

**Output Format** (JSON):
{
  "score": 8,
  "pass": true,
  "issues": ["list of problems found"],
  "corrected_text": "corrected version of the text (if needed)",
  "reason": "brief explanation of score"
}

Now validate this Korean scenario text:`

const dialogueValidatorPrompt = `You are a dialogue quality validator for Korean influencer content.

**Your Task**: Evaluate the generated dialogue against strict quality criteria.

**Quality Criteria**:
1. **Length**: Must be 1-2 sentences maximum (10-50 characters in Korean)
2. **Uniqueness**: Must NOT repeat or closely resemble previous dialogue
3. **Word Variety**: Must avoid repeating same words/expressions from previous dialogues
   - Previous: "향이 좋네요" → Current: "색감이 좋네요" (repeating "좋네요" - reduce 2-3 points)
4. **Scene Relevance (CRITICAL)**: Dialogue MUST directly relate to what's happening in the scene
   - Scene: "제품을 바름" → Dialogue: "비 오는 숲 사진이 좋아요" (0-3점)
5. **Naturalness**: Must sound like SPONTANEOUS speech, NOT narration or vlog commentary
6. **Tone**: Use friendly 해요체, NOT formal 합니다체, and NOT overly casual 반말
7. Penalize elongated hesitations: "으...", "음...", "아..." (6-7점)
8. Penalize vlog/teaching patterns: "오늘은 ~를 보여드릴게요", "먼저 ~해요", "~하면 좋아요"

**Scoring** (0-10):
- 10: Perfect - spontaneous speech, casual tone, specific reaction
- 7-9: Good - natural but could be more spontaneous
- 4-6: Mediocre - too vlog-like, formal, or word repetition, should regenerate
- 0-3: Poor - scene mismatch or narration style, must regenerate

**Output Format** (JSON):
{
  "score": 8,
  "pass": true,
  "issues": ["optional list of specific issues found"],
  "reason": "brief explanation of score"
}

Now evaluate this dialogue:`

// ValidateScenario scores a generated scenario's grammar and spacing.
func (e *Engine) ValidateScenario(ctx context.Context, scenarioText string) Verdict {
	prompt := fmt.Sprintf("%s\n\nScenario Text: %q\n\nEvaluate and respond in JSON format:",
		scenarioValidatorPrompt, scenarioText)

	raw, err := e.LLM.Complete(ctx, llm.Request{
		Prompt:      prompt,
		Temperature: validatorTemperature,
		MaxTokens:   512,
	})
	if err != nil {
		return defaultVerdict("validator call failed: " + err.Error())
	}
	return parseVerdict(raw, e.Policy.threshold())
}

// ValidateDialogue scores a dialogue candidate. Cheap local rules run
// before the LLM: empty dialogue passes outright, forbidden narration
// prefixes and near-duplicates of recent dialogues fail without a model
// round trip.
func (e *Engine) ValidateDialogue(ctx context.Context, dialogue, scene string, previous []string) Verdict {
	if strings.TrimSpace(dialogue) == "" {
		return Verdict{Score: 10.0, Pass: true, Reason: "no dialogue needed for this visual scene"}
	}

	for _, p := range forbiddenPrefixes {
		if strings.HasPrefix(dialogue, p) {
			return Verdict{
				Score:  3.0,
				Pass:   false,
				Issues: []string{"forbidden narration opening: " + p},
				Reason: "vlog-style opening",
			}
		}
	}

	recent := previous
	if len(recent) > 3 {
		recent = recent[len(recent)-3:]
	}
	for _, prev := range recent {
		if prev == "" {
			continue
		}
		if sim := matchr.JaroWinkler(dialogue, prev, false); sim >= nearDuplicateThreshold {
			return Verdict{
				Score:  5.0,
				Pass:   false,
				Issues: []string{fmt.Sprintf("near-duplicate of %q (similarity %.2f)", prev, sim)},
				Reason: "lexical repetition",
			}
		}
	}

	var b strings.Builder
	b.WriteString(dialogueValidatorPrompt)
	fmt.Fprintf(&b, "\n\nScene: %q\nGenerated Dialogue: %q", scene, dialogue)
	if len(recent) > 0 {
		b.WriteString("\n\nPrevious Dialogues:")
		for _, d := range recent {
			fmt.Fprintf(&b, "\n- %q", d)
		}
	}
	b.WriteString("\n\nEvaluate and respond in JSON format:")

	raw, err := e.LLM.Complete(ctx, llm.Request{
		Prompt:      b.String(),
		Temperature: validatorTemperature,
		MaxTokens:   256,
	})
	if err != nil {
		return defaultVerdict("validator call failed: " + err.Error())
	}
	return parseVerdict(raw, e.Policy.threshold())
}

// parseVerdict decodes a validator response. Pass is recomputed from the
// score so the model cannot contradict its own number.
func parseVerdict(raw string, threshold float64) Verdict {
	extracted := llm.ExtractJSON(raw)
	if extracted == "" {
		return defaultVerdict("no JSON in validator response")
	}
	var v Verdict
	if err := json.Unmarshal([]byte(extracted), &v); err != nil {
		lg := log.WithComponent("scenario.validate")
		lg.Debug().Err(err).Msg("verdict parse failed")
		return defaultVerdict("malformed validator JSON")
	}
	if v.Score == 0 && !v.Pass {
		// a zero score with explicit issues is a real fail; a fully zero
		// verdict means the model ignored the schema
		if len(v.Issues) == 0 && v.Reason == "" {
			return defaultVerdict("empty verdict")
		}
	}
	v.Pass = v.Score >= threshold
	return v
}
