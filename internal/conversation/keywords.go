package conversation

import "strings"

// AudioToggle is the outcome of scanning an inbound text for an audio
// preference request.
type AudioToggle int

const (
	AudioToggleNone AudioToggle = iota
	AudioToggleEnable
	AudioToggleDisable
)

var handoffKeywords = []string{
	"falar com humano", "falar com pessoa", "atendente", "advogado",
	"especialista", "responsável", "humano", "pessoa real", "quero falar",
	"me transfere", "transferir", "atendimento humano",
}

var audioDisableKeywords = []string{
	"sem áudio", "sem audio", "só texto", "so texto",
	"não quero áudio", "desativa áudio",
}

var audioEnableKeywords = []string{
	"manda áudio", "manda audio", "ativa áudio", "com áudio",
}

// DetectsHandoffRequest reports whether the user is explicitly asking for a
// human operator.
func DetectsHandoffRequest(text string) bool {
	lower := strings.ToLower(text)
	for _, keyword := range handoffKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}

// DetectAudioToggle scans the inbound text for an audio enable/disable
// request. Disable phrases win over enable phrases.
func DetectAudioToggle(text string) AudioToggle {
	lower := strings.ToLower(text)
	for _, keyword := range audioDisableKeywords {
		if strings.Contains(lower, keyword) {
			return AudioToggleDisable
		}
	}
	for _, keyword := range audioEnableKeywords {
		if strings.Contains(lower, keyword) {
			return AudioToggleEnable
		}
	}
	return AudioToggleNone
}
