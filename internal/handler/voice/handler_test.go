package voice

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	speechmodel "github.com/zhouzirui/voice-agent/backend/internal/model/speech"
	"github.com/zhouzirui/voice-agent/backend/internal/service/call"
	"github.com/zhouzirui/voice-agent/backend/internal/service/speech"
)

type fakeTurns struct {
	greeted   []speechmodel.WebhookRequest
	responded []speechmodel.WebhookRequest
	err       error
}

func (f *fakeTurns) Greet(_ context.Context, req speechmodel.WebhookRequest) (*call.Reply, error) {
	f.greeted = append(f.greeted, req)
	if f.err != nil {
		return nil, f.err
	}
	return &call.Reply{Text: "Hi there", SessionKey: req.SessionKey()}, nil
}

func (f *fakeTurns) Respond(_ context.Context, req speechmodel.WebhookRequest) (*call.Reply, error) {
	f.responded = append(f.responded, req)
	if f.err != nil {
		return nil, f.err
	}
	return &call.Reply{Text: "You said " + req.SpeechResult, SessionKey: req.SessionKey()}, nil
}

func setupRouter(turns Turns) *chi.Mux {
	h := New(turns, speech.NewRenderer(speechmodel.DefaultVoiceSettings()), slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func postForm(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestIncomingCall(t *testing.T) {
	turns := &fakeTurns{}
	r := setupRouter(turns)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, postForm("/incoming-call", url.Values{"From": {"+1555"}, "CallSid": {"CA9"}}))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/xml") {
		t.Fatalf("unexpected content type %q", ct)
	}
	body := resp.Body.String()
	if !strings.Contains(body, ">Hi there</Say>") || !strings.Contains(body, `action="/respond?session=CA9"`) {
		t.Fatalf("unexpected body: %s", body)
	}
	if len(turns.greeted) != 1 || turns.greeted[0].From != "+1555" {
		t.Fatalf("unexpected greet calls: %+v", turns.greeted)
	}
}

func TestRespondUsesSessionToken(t *testing.T) {
	turns := &fakeTurns{}
	r := setupRouter(turns)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, postForm("/respond?session=tok-1", url.Values{"CallSid": {"CA9"}, "SpeechResult": {"where is my order"}}))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if got := turns.responded[0].SessionKey(); got != "tok-1" {
		t.Fatalf("expected session token to be used, got %s", got)
	}
	if !strings.Contains(resp.Body.String(), "You said where is my order") {
		t.Fatalf("unexpected body: %s", resp.Body.String())
	}
}

func TestRespondErrorStillReturnsTwiML(t *testing.T) {
	r := setupRouter(&fakeTurns{err: errors.New("store down")})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, postForm("/respond", url.Values{"CallSid": {"CA9"}, "SpeechResult": {"hi"}}))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	doc, err := speechmodel.ParseResponse(resp.Body.Bytes())
	if err != nil {
		t.Fatalf("ParseResponse err: %v", err)
	}
	if doc.Say == nil || doc.Say.Text != call.FallbackMessage {
		t.Fatalf("expected fallback message, got %s", resp.Body.String())
	}
}

func TestWebhooksRejectGet(t *testing.T) {
	r := setupRouter(&fakeTurns{})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/respond", nil))
	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.Code)
	}
}
