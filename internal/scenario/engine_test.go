// SPDX-License-Identifier: MIT

package scenario

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Amore-GG/BE/internal/llm"
)

const shotJSON = `{
	"dialogue": "%s",
	"t2i_prompt": {
		"background": "bright bedroom with morning light",
		"character_pose_and_gaze": "Gigi sitting on bed, looking at product",
		"product": "green tea essence bottle",
		"camera_angle": "medium shot"
	},
	"image_edit_prompt": {
		"pose_change": "reach toward nightstand",
		"gaze_change": "look at bottle",
		"expression": "soft smile",
		"additional_edits": "warm tones"
	},
	"background_sounds_prompt": "soft morning ambience"
}`

// scriptedLLM answers generation, synthesis and validation prompts by
// recognizing their instruction headers.
func scriptedLLM(t *testing.T, dialogues []string, verdicts []string) *fakeLLM {
	t.Helper()
	var synthCalls, verdictCalls int
	return &fakeLLM{fn: func(req llm.Request) (string, error) {
		switch {
		case strings.Contains(req.Prompt, "dialogue quality validator"),
			strings.Contains(req.Prompt, "grammar and spacing validator"):
			if verdictCalls < len(verdicts) {
				v := verdicts[verdictCalls]
				verdictCalls++
				return v, nil
			}
			return `{"score": 9, "pass": true}`, nil
		case strings.Contains(req.Prompt, "convert the following Korean scene"):
			d := "장면이 마음에 들어요"
			if synthCalls < len(dialogues) {
				d = dialogues[synthCalls]
			}
			synthCalls++
			return fmt.Sprintf(shotJSON, d), nil
		default:
			return "관엽식물이 있는 집에서 지지가 에센스를 바르는 광고 시나리오입니다.", nil
		}
	}}
}

func collectEvents(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var events []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("stream did not close")
		}
	}
}

func TestStreamTimetableHappyPath(t *testing.T) {
	dialogues := []string{
		"안녕하세요! 아침 햇살 좋네요", "이거 완전 제 스타일이에요", "",
		"피부가 촉촉해진 느낌이에요", "분위기 괜찮은데요",
	}
	e := NewEngine(scriptedLLM(t, dialogues, nil))

	events := collectEvents(t, e.StreamTimetable(context.Background(), fiveShotScenario, 25, "이니스프리"))
	require.Len(t, events, 7)

	meta, ok := events[0].(MetadataEvent)
	require.True(t, ok)
	assert.Equal(t, 25, meta.TotalDuration)
	assert.Equal(t, 5, meta.SceneCount)
	assert.Equal(t, "started", meta.Status)

	for i := 0; i < 5; i++ {
		scene, ok := events[i+1].(SceneEvent)
		require.True(t, ok, "event %d", i+1)
		assert.Equal(t, i, scene.Index)
		assert.Equal(t, dialogues[i], scene.Dialogue)
		assert.NotEmpty(t, scene.T2IPrompt.Background)
	}

	done, ok := events[6].(CompleteEvent)
	require.True(t, ok)
	assert.Equal(t, "completed", done.Status)
	assert.Equal(t, 5, done.TotalScenes)
}

func TestStreamTimetableLLMDownFallsBackToDefaults(t *testing.T) {
	fake := &fakeLLM{fn: func(llm.Request) (string, error) {
		return "", fmt.Errorf("connection refused")
	}}
	e := NewEngine(fake)

	events := collectEvents(t, e.StreamTimetable(context.Background(), fiveShotScenario, 25, ""))
	require.Len(t, events, 7)

	scene := events[1].(SceneEvent)
	assert.Empty(t, scene.Dialogue)
	assert.Equal(t, defaultShotPrompts().T2IPrompt, scene.T2IPrompt)

	_, ok := events[6].(CompleteEvent)
	assert.True(t, ok)
}

func TestStreamTimetableRepetitionTriggersRegeneration(t *testing.T) {
	// one shot; the first two candidates fail the validator, the third
	// passes and is the one emitted
	var synthCalls int
	candidates := []string{"기분이 좋네요", "색감이 좋네요", "분위기 괜찮은데요"}
	verdicts := []string{
		`{"score": 5, "pass": false, "reason": "word repetition"}`,
		`{"score": 6, "pass": false, "reason": "word repetition"}`,
		`{"score": 8, "pass": true}`,
	}
	var verdictCalls int

	fake := &fakeLLM{fn: func(req llm.Request) (string, error) {
		switch {
		case strings.Contains(req.Prompt, "dialogue quality validator"):
			v := verdicts[verdictCalls]
			verdictCalls++
			return v, nil
		case strings.Contains(req.Prompt, "convert the following Korean scene"):
			d := candidates[synthCalls]
			synthCalls++
			return fmt.Sprintf(shotJSON, d), nil
		default:
			return "", fmt.Errorf("unexpected prompt")
		}
	}}
	e := NewEngine(fake)

	prompts := e.synthesizeShot(context.Background(), "지지가 거울을 보며 미소 지음", "", nil)
	assert.Equal(t, "분위기 괜찮은데요", prompts.Dialogue)
	assert.Equal(t, 3, synthCalls)
}

func TestStreamTimetableBestSoFarOnExhaustion(t *testing.T) {
	candidates := []string{"기분이 좋네요", "색감이 좋네요", "느낌이 좋네요"}
	verdicts := []string{
		`{"score": 4, "pass": false}`,
		`{"score": 6, "pass": false}`,
		`{"score": 5, "pass": false}`,
	}
	var synthCalls, verdictCalls int

	fake := &fakeLLM{fn: func(req llm.Request) (string, error) {
		if strings.Contains(req.Prompt, "dialogue quality validator") {
			v := verdicts[verdictCalls]
			verdictCalls++
			return v, nil
		}
		d := candidates[synthCalls]
		synthCalls++
		return fmt.Sprintf(shotJSON, d), nil
	}}
	e := NewEngine(fake)

	prompts := e.synthesizeShot(context.Background(), "지지가 제품을 바름", "", nil)
	assert.Equal(t, "색감이 좋네요", prompts.Dialogue)
}

func TestStreamTimetableContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	blocked := make(chan struct{})
	fake := &fakeLLM{fn: func(llm.Request) (string, error) {
		close(blocked)
		<-ctx.Done()
		return "", ctx.Err()
	}}
	e := NewEngine(fake)

	ch := e.StreamTimetable(ctx, fiveShotScenario, 25, "")
	<-blocked
	cancel()

	events := collectEvents(t, ch)
	// metadata may have been buffered before cancellation; no complete
	for _, ev := range events {
		_, isComplete := ev.(CompleteEvent)
		assert.False(t, isComplete)
	}
}

func TestGenerateScenarioPrefersCorrectedText(t *testing.T) {
	fake := &fakeLLM{fn: func(req llm.Request) (string, error) {
		if strings.Contains(req.Prompt, "grammar and spacing validator") {
			return `{"score": 8, "pass": true, "corrected_text": "지지가 침대에 앉아 에센스를 바름."}`, nil
		}
		return "지지가침대에앉아에센스를바름.", nil
	}}
	e := NewEngine(fake)

	text, attempts, err := e.GenerateScenario(context.Background(), "이니스프리", "")
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, "지지가 침대에 앉아 에센스를 바름.", text)
}

func TestGenerateScenarioRetriesThenBest(t *testing.T) {
	scores := []string{
		`{"score": 4, "pass": false}`,
		`{"score": 6, "pass": false}`,
		`{"score": 5, "pass": false}`,
	}
	var gen, val int
	fake := &fakeLLM{fn: func(req llm.Request) (string, error) {
		if strings.Contains(req.Prompt, "grammar and spacing validator") {
			v := scores[val]
			val++
			return v, nil
		}
		gen++
		return fmt.Sprintf("시나리오 후보 %d번: 지지가 제품을 사용하는 장면.", gen), nil
	}}
	e := NewEngine(fake)

	text, attempts, err := e.GenerateScenario(context.Background(), "라네즈", "")
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Contains(t, text, "후보 2번")
}

func TestGenerateDialogue(t *testing.T) {
	fake := &fakeLLM{fn: func(req llm.Request) (string, error) {
		if strings.Contains(req.Prompt, "dialogue quality validator") {
			return `{"score": 9, "pass": true}`, nil
		}
		return `"물이 차갑네요"`, nil
	}}
	e := NewEngine(fake)

	d, err := e.GenerateDialogue(context.Background(), "지지가 세안을 함", []string{"안녕하세요!"})
	require.NoError(t, err)
	assert.Equal(t, "물이 차갑네요", d)
}

func TestEventEnvelopes(t *testing.T) {
	raw, err := json.Marshal(MetadataEvent{TotalDuration: 25, SceneCount: 5, Status: "started"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"metadata","data":{"total_duration":25,"scene_count":5,"status":"started"}}`, string(raw))

	raw, err = json.Marshal(CompleteEvent{Status: "completed", TotalScenes: 5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"complete","data":{"status":"completed","total_scenes":5}}`, string(raw))

	raw, err = json.Marshal(ErrorEvent{Message: "boom"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","data":{"message":"boom"}}`, string(raw))

	raw, err = json.Marshal(SceneEvent{Shot: Shot{Index: 2, TimeStart: 10, TimeEnd: 15}})
	require.NoError(t, err)
	var env struct {
		Type string `json:"type"`
		Data Shot   `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, "scene", env.Type)
	assert.Equal(t, 2, env.Data.Index)
}
