// Package google provides a Google Cloud Text-to-Speech client that
// authenticates with an API key, so no application default credentials
// are needed. The REST API returns raw LINEAR16 PCM; Synthesize wraps it
// in a WAV container and hands back base64 suitable for an <audio> tag.
package google

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://texttospeech.googleapis.com/v1"

// Synthesis defaults. The Chirp 3 HD voices only support LINEAR16 output.
const (
	DefaultVoice   = "en-US-Chirp3-HD-Enceladus"
	voiceLanguage  = "en-US"
	speakingRate   = 1.0
	volumeGainDB   = 0.0
	sampleRateHz   = 44100
	audioEncoding  = "LINEAR16"
	requestTimeout = 30 * time.Second
)

// TTSClient performs text-to-speech synthesis.
type TTSClient interface {
	Synthesize(ctx context.Context, text string) (*SynthesisResult, error)
}

// SynthesisResult holds the synthesized audio as base64-encoded WAV.
type SynthesisResult struct {
	AudioBase64 string `json:"audioBase64"`
	Format      string `json:"format"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithVoice overrides the default voice name.
func WithVoice(name string) Option {
	return func(c *httpClient) {
		if name != "" {
			c.voice = name
		}
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	voice   string
	http    *http.Client
}

// NewTTSClient creates a Google Cloud TTS client.
func NewTTSClient(apiKey string, opts ...Option) TTSClient {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		voice:   DefaultVoice,
		http: &http.Client{
			Timeout: requestTimeout,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type synthesizeRequest struct {
	Input struct {
		Text string `json:"text"`
	} `json:"input"`
	Voice struct {
		LanguageCode string `json:"languageCode"`
		Name         string `json:"name"`
	} `json:"voice"`
	AudioConfig struct {
		AudioEncoding   string  `json:"audioEncoding"`
		SpeakingRate    float64 `json:"speakingRate"`
		VolumeGainDB    float64 `json:"volumeGainDb"`
		SampleRateHertz int     `json:"sampleRateHertz"`
	} `json:"audioConfig"`
}

type synthesizeResponse struct {
	AudioContent string `json:"audioContent"`
}

type apiErrorBody struct {
	Error struct {
		Message string           `json:"message"`
		Details []map[string]any `json:"details"`
	} `json:"error"`
}

func (c *httpClient) Synthesize(ctx context.Context, text string) (*SynthesisResult, error) {
	if c.apiKey == "" {
		return nil, eris.New("google tts: missing API key")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, eris.New("google tts: text is required")
	}

	var payload synthesizeRequest
	payload.Input.Text = text
	payload.Voice.LanguageCode = voiceLanguage
	payload.Voice.Name = c.voice
	payload.AudioConfig.AudioEncoding = audioEncoding
	payload.AudioConfig.SpeakingRate = speakingRate
	payload.AudioConfig.VolumeGainDB = volumeGainDB
	payload.AudioConfig.SampleRateHertz = sampleRateHz

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, eris.Wrap(err, "google tts: marshal request")
	}

	url := fmt.Sprintf("%s/text:synthesize?key=%s", c.baseURL, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "google tts: create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "google tts: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "google tts: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("google tts: status %d: %s", resp.StatusCode, apiErrorMessage(respBody))
	}

	var result synthesizeResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "google tts: unmarshal response")
	}
	if result.AudioContent == "" {
		return nil, eris.New("google tts: no audioContent in response")
	}

	pcm, err := base64.StdEncoding.DecodeString(result.AudioContent)
	if err != nil {
		return nil, eris.Wrap(err, "google tts: decode audio content")
	}

	wav := wavFromPCM(pcm, sampleRateHz, 1)
	return &SynthesisResult{
		AudioBase64: base64.StdEncoding.EncodeToString(wav),
		Format:      "wav",
	}, nil
}

// apiErrorMessage pulls the human-readable message out of a Google API
// error body, appending the service activation URL when present (the
// common failure for fresh projects). Falls back to the raw body.
func apiErrorMessage(body []byte) string {
	var parsed apiErrorBody
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.Error.Message == "" {
		return string(body)
	}
	msg := parsed.Error.Message
	for _, detail := range parsed.Error.Details {
		if url, ok := detail["activationUrl"].(string); ok && url != "" {
			msg = strings.TrimRight(msg, " \n") + "\n" + url
			break
		}
	}
	return msg
}
