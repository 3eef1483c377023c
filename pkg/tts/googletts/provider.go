// Package googletts implements tts.Provider on the Google Cloud
// Text-to-Speech REST API.
package googletts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"walktale/pkg/config"
	"walktale/pkg/tracker"
	"walktale/pkg/tts"
)

const apiURL = "https://texttospeech.googleapis.com/v1/text:synthesize"

// voiceLocales maps app languages to TTS voice locales.
var voiceLocales = map[string]string{
	"en": "en-US",
	"ko": "ko-KR",
	"ja": "ja-JP",
	"es": "es-ES",
	"fr": "fr-FR",
	"de": "de-DE",
	"it": "it-IT",
	"pt": "pt-BR",
	"zh": "cmn-CN",
}

// Provider implements tts.Provider for Google Cloud TTS.
type Provider struct {
	apiKey   string
	language string
	neural   bool
	client   *http.Client
	tracker  *tracker.Tracker
	charFn   func(int64)
	Endpoint string // Optional override for testing
}

// NewProvider creates a Google TTS provider. language is the app language
// ("en", "ko", ...); mode "neural" selects the premium voice tier.
func NewProvider(cfg config.TTSConfig, language string, t *tracker.Tracker) *Provider {
	return &Provider{
		apiKey:   cfg.Key,
		language: language,
		neural:   cfg.Mode == "neural",
		client:   &http.Client{Timeout: time.Duration(cfg.Timeout)},
		tracker:  t,
	}
}

// SetCharFunc registers a callback receiving synthesized character counts.
// The session manager uses it for cost accounting.
func (p *Provider) SetCharFunc(fn func(int64)) {
	p.charFn = fn
}

// VoiceName returns the selected voice for the configured language and tier.
func (p *Provider) VoiceName() string {
	locale, ok := voiceLocales[p.language]
	if !ok {
		locale = "en-US"
	}
	if p.neural {
		return locale + "-Neural2-A"
	}
	return locale + "-Standard-A"
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
		AudioEncoding string `json:"audioEncoding"`
	} `json:"audioConfig"`
}

// Synthesize generates speech and writes an MP3 to outputPath.
func (p *Provider) Synthesize(ctx context.Context, text, outputPath string) (string, error) {
	if p.apiKey == "" {
		return "", tts.NewFatalError(0, "no TTS API key configured")
	}

	voice := p.VoiceName()
	var reqData synthesizeRequest
	reqData.Input.Text = text
	reqData.Voice.LanguageCode = localeOf(voice)
	reqData.Voice.Name = voice
	reqData.AudioConfig.AudioEncoding = "MP3"

	jsonData, err := json.Marshal(reqData)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := p.Endpoint
	if endpoint == "" {
		endpoint = apiURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"?key="+p.apiKey, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		p.tracker.Failure("tts")
		return "", fmt.Errorf("tts request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		p.tracker.Failure("tts")
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return "", tts.NewFatalError(resp.StatusCode, fmt.Sprintf("TTS auth failed: %s", string(body)))
		}
		return "", fmt.Errorf("tts api error (status %d): %s", resp.StatusCode, string(body))
	}

	var apiResp struct {
		AudioContent string `json:"audioContent"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		p.tracker.Failure("tts")
		return "", fmt.Errorf("failed to decode tts response: %w", err)
	}

	audio, err := base64.StdEncoding.DecodeString(apiResp.AudioContent)
	if err != nil {
		p.tracker.Failure("tts")
		return "", fmt.Errorf("failed to decode audio content: %w", err)
	}
	if len(audio) == 0 {
		p.tracker.Failure("tts")
		return "", fmt.Errorf("received empty audio")
	}

	filename := outputPath
	if filepath.Ext(filename) != ".mp3" {
		filename += ".mp3"
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return "", fmt.Errorf("failed to create audio dir: %w", err)
	}
	if err := os.WriteFile(filename, audio, 0o644); err != nil {
		return "", fmt.Errorf("failed to write audio file: %w", err)
	}

	p.tracker.Request("tts")
	if p.charFn != nil {
		p.charFn(int64(len([]rune(text))))
	}
	return "mp3", nil
}

// localeOf strips the voice tier suffix, e.g. "en-US-Standard-A" -> "en-US".
func localeOf(voice string) string {
	for _, tier := range []string{"-Standard-A", "-Neural2-A"} {
		if strings.HasSuffix(voice, tier) {
			return strings.TrimSuffix(voice, tier)
		}
	}
	return voice
}
