// SPDX-License-Identifier: MIT

// Package tts synthesizes Korean dialogue audio through the ElevenLabs
// REST convert endpoint.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Amore-GG/BE/internal/log"
)

const (
	defaultBaseURL = "https://api.elevenlabs.io"
	defaultModelID = "eleven_multilingual_v2"
	defaultTimeout = 60 * time.Second
)

// VoiceSettings mirrors the ElevenLabs voice_settings object. The zero
// value is replaced with DefaultVoiceSettings.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// DefaultVoiceSettings is tuned for the Gigi persona voice.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Stability:       0.51,
		SimilarityBoost: 0.78,
		Style:           0.38,
		UseSpeakerBoost: true,
	}
}

// Option is a functional option for configuring the Client.
type Option func(*Client)

// WithBaseURL overrides the API host, mainly for tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithModelID sets the ElevenLabs model ID.
func WithModelID(id string) Option {
	return func(c *Client) { c.modelID = id }
}

// WithTimeout bounds a single convert call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// Client calls the ElevenLabs text-to-speech convert endpoint.
type Client struct {
	apiKey     string
	voiceID    string
	modelID    string
	baseURL    string
	httpClient *http.Client
}

// New creates a Client. apiKey and voiceID must be non-empty.
func New(apiKey, voiceID string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("tts: api key must not be empty")
	}
	if voiceID == "" {
		return nil, errors.New("tts: voice id must not be empty")
	}
	c := &Client{
		apiKey:     apiKey,
		voiceID:    voiceID,
		modelID:    defaultModelID,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Request is one synthesis call. Empty fields fall back to the client
// defaults.
type Request struct {
	Text          string
	VoiceID       string
	ModelID       string
	VoiceSettings *VoiceSettings
}

type convertBody struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

// Convert synthesizes req.Text and returns the MP3 bytes.
func (c *Client) Convert(ctx context.Context, req Request) ([]byte, error) {
	if req.Text == "" {
		return nil, errors.New("tts: text must not be empty")
	}

	voice := req.VoiceID
	if voice == "" {
		voice = c.voiceID
	}
	model := req.ModelID
	if model == "" {
		model = c.modelID
	}
	settings := DefaultVoiceSettings()
	if req.VoiceSettings != nil {
		settings = *req.VoiceSettings
	}

	body, err := json.Marshal(convertBody{
		Text:          req.Text,
		ModelID:       model,
		VoiceSettings: settings,
	})
	if err != nil {
		return nil, fmt.Errorf("tts: encode request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s", c.baseURL, voice)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tts: build request: %w", err)
	}
	httpReq.Header.Set("xi-api-key", c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("tts: convert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("tts: convert returned status %d: %s", resp.StatusCode, string(detail))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tts: read audio: %w", err)
	}
	lg := log.WithComponent("tts")
	lg.Debug().
		Str("voice_id", voice).
		Int("bytes", len(audio)).
		Msg("speech synthesized")
	return audio, nil
}
