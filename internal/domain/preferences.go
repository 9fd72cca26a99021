package domain

// VoicePreferences control how voice answers are spoken.
type VoicePreferences struct {
	SelectedVoice string  `json:"selectedVoice"`
	Rate          float64 `json:"rate"`
	Pitch         float64 `json:"pitch"`
	Volume        float64 `json:"volume"`
	Lang          string  `json:"lang"`
}

// DefaultVoicePreferences returns the voice settings used before the user changes anything.
func DefaultVoicePreferences() VoicePreferences {
	return VoicePreferences{Rate: 0.9, Pitch: 1.0, Volume: 1.0, Lang: "ko-KR"}
}

// TTSPreferences control read-aloud of chat answers.
type TTSPreferences struct {
	Enabled  bool    `json:"enabled"`
	AutoPlay bool    `json:"autoPlay"`
	Rate     float64 `json:"rate"`
	Pitch    float64 `json:"pitch"`
	Volume   float64 `json:"volume"`
	Voice    string  `json:"voice"`
}

// DefaultTTSPreferences returns the read-aloud settings used before the user changes anything.
func DefaultTTSPreferences() TTSPreferences {
	return TTSPreferences{Enabled: true, AutoPlay: true, Rate: 0.9, Pitch: 1.0, Volume: 0.8}
}

// Medicine is one medicine identified in an analyzed image.
type Medicine struct {
	Name    string `json:"medicine"`
	Effects string `json:"effects"`
	Usage   string `json:"usage"`
	Caution string `json:"caution"`
}

// Disease is one condition the analyzed medicines relate to.
type Disease struct {
	Name       string `json:"disease"`
	Definition string `json:"definition"`
	Cause      string `json:"cause"`
	Symptom    string `json:"symptom"`
}

// MedicationAnalysis is the structured result of a medication image analysis.
type MedicationAnalysis struct {
	Medicines []Medicine `json:"medicine"`
	Diseases  []Disease  `json:"disease"`
}
