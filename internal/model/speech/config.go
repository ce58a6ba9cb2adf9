package speech

// VoiceSettings configures how replies are spoken and how speech is gathered.
type VoiceSettings struct {
	Voice        string `json:"voice"`
	Language     string `json:"language"`
	SpeechModel  string `json:"speechModel"`
	Enhanced     bool   `json:"enhanced"`
	RespondPath  string `json:"respondPath"`
	IncomingPath string `json:"incomingPath"`
	// BaseURL, when set, makes action and redirect URLs absolute.
	BaseURL string `json:"baseUrl,omitempty"`
}

// DefaultVoiceSettings mirrors the stock Twilio setup used by the service.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Voice:        "Polly.Joanna",
		Language:     "en-US",
		SpeechModel:  "experimental_conversations",
		Enhanced:     true,
		RespondPath:  "/respond",
		IncomingPath: "/incoming-call",
	}
}
