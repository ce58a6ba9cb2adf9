package speech

import (
	"encoding/xml"
	"fmt"
)

// Response is the decoded form of a TwiML voice document. Documents are
// produced with twilio-go; these types exist for the clients that read them.
type Response struct {
	XMLName  xml.Name  `xml:"Response"`
	Say      *Say      `xml:"Say,omitempty"`
	Gather   *Gather   `xml:"Gather,omitempty"`
	Redirect *Redirect `xml:"Redirect,omitempty"`
}

// Say speaks text with a synthetic voice.
type Say struct {
	Voice    string `xml:"voice,attr,omitempty"`
	Language string `xml:"language,attr,omitempty"`
	Text     string `xml:",chardata"`
}

// Gather collects the caller's speech and posts the transcript to Action.
type Gather struct {
	Input         string `xml:"input,attr"`
	Action        string `xml:"action,attr"`
	Method        string `xml:"method,attr"`
	SpeechTimeout string `xml:"speechTimeout,attr,omitempty"`
	SpeechModel   string `xml:"speechModel,attr,omitempty"`
	Language      string `xml:"language,attr,omitempty"`
	Enhanced      bool   `xml:"enhanced,attr,omitempty"`
}

// Redirect hands call control to another webhook.
type Redirect struct {
	Method string `xml:"method,attr,omitempty"`
	URL    string `xml:",chardata"`
}

// ParseResponse decodes a TwiML voice document.
func ParseResponse(data []byte) (*Response, error) {
	var doc Response
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode twiml: %w", err)
	}
	return &doc, nil
}
