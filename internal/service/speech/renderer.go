// Package speech renders assistant replies as TwiML voice documents.
package speech

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/twilio/twilio-go/twiml"

	speechmodel "github.com/zhouzirui/voice-agent/backend/internal/model/speech"
)

// ContentType is the media type of rendered documents.
const ContentType = "text/xml; charset=utf-8"

// Renderer turns reply text into a document that speaks it and re-arms
// speech gathering for the same session.
type Renderer struct {
	settings speechmodel.VoiceSettings
}

// NewRenderer fills unset settings from speechmodel.DefaultVoiceSettings.
func NewRenderer(settings speechmodel.VoiceSettings) *Renderer {
	def := speechmodel.DefaultVoiceSettings()
	if settings.Voice == "" {
		settings.Voice = def.Voice
	}
	if settings.Language == "" {
		settings.Language = def.Language
	}
	if settings.SpeechModel == "" {
		settings.SpeechModel = def.SpeechModel
	}
	if settings.RespondPath == "" {
		settings.RespondPath = def.RespondPath
	}
	if settings.IncomingPath == "" {
		settings.IncomingPath = def.IncomingPath
	}
	settings.BaseURL = strings.TrimRight(settings.BaseURL, "/")
	return &Renderer{settings: settings}
}

// Verbs builds the TwiML verbs: Say (omitted for empty text), a speech
// Gather posting back to the respond webhook and a Redirect that restarts the
// turn when the caller stays silent.
func (r *Renderer) Verbs(text, sessionKey string) []twiml.Element {
	verbs := make([]twiml.Element, 0, 3)

	if spoken := Speakable(text); spoken != "" {
		verbs = append(verbs, &twiml.VoiceSay{
			Message:  spoken,
			Voice:    r.settings.Voice,
			Language: r.settings.Language,
		})
	}

	gather := &twiml.VoiceGather{
		Input:         "speech",
		Action:        r.url(r.settings.RespondPath, sessionKey),
		Method:        "POST",
		SpeechTimeout: "auto",
		SpeechModel:   r.settings.SpeechModel,
		Language:      r.settings.Language,
	}
	if r.settings.Enhanced {
		gather.Enhanced = "true"
	}

	return append(verbs, gather, &twiml.VoiceRedirect{
		Method: "POST",
		Url:    r.url(r.settings.IncomingPath, sessionKey),
	})
}

// Render serialises the verbs into a Response document. Text is escaped.
func (r *Renderer) Render(text, sessionKey string) ([]byte, error) {
	doc, err := twiml.Voice(r.Verbs(text, sessionKey))
	if err != nil {
		return nil, fmt.Errorf("render twiml: %w", err)
	}
	return []byte(doc), nil
}

func (r *Renderer) url(path, sessionKey string) string {
	u := r.settings.BaseURL + path
	if sessionKey == "" {
		return u
	}
	return u + "?" + url.Values{"session": {sessionKey}}.Encode()
}

var markdownReplacer = strings.NewReplacer("**", "", "__", "", "`", "", "#", "")

// Speakable strips markdown emphasis the model sometimes emits and trims
// surrounding whitespace.
func Speakable(text string) string {
	return strings.TrimSpace(markdownReplacer.Replace(text))
}
