package speech

import (
	"strings"
	"testing"

	speechmodel "github.com/zhouzirui/voice-agent/backend/internal/model/speech"
)

func TestRenderEscapesAndLinksSession(t *testing.T) {
	r := NewRenderer(speechmodel.DefaultVoiceSettings())

	out, err := r.Render(`Order <O-1> & "more"`, "CA1&x")
	if err != nil {
		t.Fatalf("Render err: %v", err)
	}
	doc := string(out)

	if !strings.HasPrefix(doc, "<?xml") {
		t.Fatalf("missing xml declaration: %s", doc)
	}
	if strings.Contains(doc, "<O-1>") {
		t.Fatalf("reply text was not escaped: %s", doc)
	}

	parsed, err := speechmodel.ParseResponse(out)
	if err != nil {
		t.Fatalf("rendered document is not valid xml: %v", err)
	}
	if parsed.Say == nil || parsed.Say.Text != `Order <O-1> & "more"` {
		t.Fatalf("unexpected say: %+v", parsed.Say)
	}
	if parsed.Say.Voice != "Polly.Joanna" || parsed.Say.Language != "en-US" {
		t.Fatalf("unexpected say voice: %+v", parsed.Say)
	}

	g := parsed.Gather
	if g == nil {
		t.Fatalf("missing gather: %s", doc)
	}
	if g.Input != "speech" || g.Method != "POST" || g.SpeechTimeout != "auto" {
		t.Fatalf("unexpected gather: %+v", g)
	}
	if g.Action != "/respond?session=CA1%26x" {
		t.Fatalf("unexpected gather action: %q", g.Action)
	}
	if g.SpeechModel != "experimental_conversations" || !g.Enhanced {
		t.Fatalf("unexpected speech settings: %+v", g)
	}

	if parsed.Redirect == nil || parsed.Redirect.Method != "POST" || parsed.Redirect.URL != "/incoming-call?session=CA1%26x" {
		t.Fatalf("unexpected redirect: %+v", parsed.Redirect)
	}
}

func TestRenderVerbOrder(t *testing.T) {
	r := NewRenderer(speechmodel.DefaultVoiceSettings())

	verbs := r.Verbs("hello", "CA1")
	var names []string
	for _, v := range verbs {
		names = append(names, v.GetName())
	}
	if strings.Join(names, ",") != "Say,Gather,Redirect" {
		t.Fatalf("unexpected verb order: %v", names)
	}
}

func TestRenderWithoutTextOnlyGathers(t *testing.T) {
	r := NewRenderer(speechmodel.VoiceSettings{BaseURL: "https://voice.example.com/"})

	out, err := r.Render("   ", "CA1")
	if err != nil {
		t.Fatalf("Render err: %v", err)
	}
	doc := string(out)
	if strings.Contains(doc, "<Say") {
		t.Fatalf("expected no Say verb: %s", doc)
	}
	if strings.Contains(doc, "enhanced") {
		t.Fatalf("enhanced should be omitted when disabled: %s", doc)
	}

	parsed, err := speechmodel.ParseResponse(out)
	if err != nil {
		t.Fatalf("ParseResponse err: %v", err)
	}
	if parsed.Gather == nil || parsed.Gather.Action != "https://voice.example.com/respond?session=CA1" {
		t.Fatalf("expected absolute action url: %s", doc)
	}
}

func TestSpeakable(t *testing.T) {
	if got := Speakable("  **Your order** is `shipped`  "); got != "Your order is shipped" {
		t.Fatalf("Speakable = %q", got)
	}
}
