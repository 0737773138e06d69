package ai

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/openai/openai-go"
)

// AudioStore is where synthesized voice notes land.
type AudioStore interface {
	UploadAudio(ctx context.Context, reader io.Reader, size int64, contentType string) (string, error)
}

// Voice synthesizes assistant replies into stored voice notes.
type Voice struct {
	client   *Client
	store    AudioStore
	voice    string
	maxChars int
}

func NewVoice(client *Client, store AudioStore, voice string, maxChars int) *Voice {
	if voice == "" {
		voice = "nova"
	}
	if maxChars <= 0 {
		maxChars = 500
	}
	return &Voice{client: client, store: store, voice: voice, maxChars: maxChars}
}

var (
	markdownChars = strings.NewReplacer("**", "", "*", "", "_", "", "~", "", "`", "")
	keycapEmoji   = regexp.MustCompile("[1-9]️⃣")
	pictographs   = regexp.MustCompile(`[\x{1F300}-\x{1F9FF}]`)
)

// cleanForSpeech strips markdown markers and emoji, which TTS models read
// out loud, and bounds the input length.
func (v *Voice) cleanForSpeech(text string) string {
	text = markdownChars.Replace(text)
	text = keycapEmoji.ReplaceAllString(text, "")
	text = pictographs.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)

	runes := []rune(text)
	if len(runes) > v.maxChars {
		text = string(runes[:v.maxChars]) + "..."
	}
	return text
}

// Synthesize converts reply text into a stored voice note and returns its
// object key. Empty text after cleanup returns an empty key without error.
func (v *Voice) Synthesize(ctx context.Context, text string) (string, error) {
	clean := v.cleanForSpeech(text)
	if clean == "" {
		return "", nil
	}

	var audio []byte
	err := WithRetry(ctx, v.client.log, v.client.opts.Retry, func(ctx context.Context) error {
		resp, err := v.client.api.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
			Model:          openai.SpeechModelTTS1,
			Voice:          openai.AudioSpeechNewParamsVoice(v.voice),
			Input:          clean,
			ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
		})
		if err != nil {
			return classifyAPIError(err)
		}
		defer resp.Body.Close()

		audio, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("speech synthesis: %w", err)
	}

	key, err := v.store.UploadAudio(ctx, bytes.NewReader(audio), int64(len(audio)), "audio/mpeg")
	if err != nil {
		return "", fmt.Errorf("store voice note: %w", err)
	}
	return key, nil
}
