// SPDX-License-Identifier: MIT

package tts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvert(t *testing.T) {
	var got convertBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/text-to-speech/voice-123", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("xi-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3fake-mp3"))
	}))
	defer srv.Close()

	c, err := New("secret", "voice-123", WithBaseURL(srv.URL))
	require.NoError(t, err)

	audio, err := c.Convert(context.Background(), Request{Text: "물이 차갑네요"})
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3fake-mp3"), audio)

	assert.Equal(t, "물이 차갑네요", got.Text)
	assert.Equal(t, "eleven_multilingual_v2", got.ModelID)
	assert.Equal(t, 0.51, got.VoiceSettings.Stability)
	assert.Equal(t, 0.78, got.VoiceSettings.SimilarityBoost)
	assert.Equal(t, 0.38, got.VoiceSettings.Style)
	assert.True(t, got.VoiceSettings.UseSpeakerBoost)
}

func TestConvertOverrides(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/text-to-speech/other-voice", r.URL.Path)
		var body convertBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "eleven_turbo_v2", body.ModelID)
		assert.Equal(t, 0.9, body.VoiceSettings.Stability)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c, err := New("secret", "voice-123", WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = c.Convert(context.Background(), Request{
		Text:          "안녕하세요",
		VoiceID:       "other-voice",
		ModelID:       "eleven_turbo_v2",
		VoiceSettings: &VoiceSettings{Stability: 0.9, SimilarityBoost: 0.8, Style: 0.1},
	})
	require.NoError(t, err)
}

func TestConvertUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"detail":"invalid api key"}`))
	}))
	defer srv.Close()

	c, err := New("wrong", "voice-123", WithBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = c.Convert(context.Background(), Request{Text: "테스트"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
	assert.Contains(t, err.Error(), "invalid api key")
}

func TestConvertValidation(t *testing.T) {
	_, err := New("", "voice")
	assert.Error(t, err)

	_, err = New("key", "")
	assert.Error(t, err)

	c, err := New("key", "voice")
	require.NoError(t, err)
	_, err = c.Convert(context.Background(), Request{})
	assert.Error(t, err)
}
