package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/zhouzirui/voice-agent/backend/internal/config"
	"github.com/zhouzirui/voice-agent/backend/internal/middleware"
	speechmodel "github.com/zhouzirui/voice-agent/backend/internal/model/speech"
)

// utterances collects repeated -say flags.
type utterances []string

func (u *utterances) String() string { return strings.Join(*u, " | ") }

func (u *utterances) Set(v string) error {
	*u = append(*u, v)
	return nil
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] no .env loaded, using system environment: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	var says utterances
	host := cfg.Server.Addr
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	baseURL := flag.String("url", "http://"+host, "base URL of the running service")
	from := flag.String("from", "+15550001111", "caller phone number")
	callSid := flag.String("callsid", "", "CallSid to use, generated when empty")
	timeout := flag.Duration("timeout", 30*time.Second, "per-request timeout")
	flag.Var(&says, "say", "utterance to send after the greeting (repeatable)")
	flag.Parse()

	sid := *callSid
	if sid == "" {
		sid = "CA" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}

	sim := &simulator{
		client:    &http.Client{Timeout: *timeout},
		baseURL:   strings.TrimRight(*baseURL, "/"),
		signURL:   strings.TrimRight(firstNonEmpty(cfg.Server.PublicBaseURL, *baseURL), "/"),
		authToken: cfg.Server.TwilioAuthToken,
		from:      *from,
		callSid:   sid,
	}

	ctx := context.Background()
	doc, err := sim.post(ctx, "/incoming-call", "")
	if err != nil {
		log.Fatalf("incoming-call: %v", err)
	}
	printSay("assistant", doc)

	for _, utterance := range says {
		fmt.Printf("caller    > %s\n", utterance)
		action := "/respond"
		if doc.Gather != nil && doc.Gather.Action != "" {
			action = doc.Gather.Action
		}
		doc, err = sim.post(ctx, action, utterance)
		if err != nil {
			log.Fatalf("respond: %v", err)
		}
		printSay("assistant", doc)
	}
}

type simulator struct {
	client    *http.Client
	baseURL   string
	signURL   string
	authToken string
	from      string
	callSid   string
}

// post sends one webhook request. target may be a path or an absolute URL
// taken from a Gather action.
func (s *simulator) post(ctx context.Context, target, speech string) (*speechmodel.Response, error) {
	path := target
	if u, err := url.Parse(target); err == nil && u.IsAbs() {
		path = u.RequestURI()
	}

	form := url.Values{"From": {s.from}, "CallSid": {s.callSid}}
	if speech != "" {
		form.Set("SpeechResult", speech)
		form.Set("Confidence", "0.95")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if s.authToken != "" {
		req.Header.Set(middleware.SignatureHeader, middleware.ComputeSignature(s.authToken, s.signURL+path, form))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return speechmodel.ParseResponse(body)
}

func printSay(who string, doc *speechmodel.Response) {
	if doc.Say == nil {
		fmt.Printf("%-9s > (listening)\n", who)
		return
	}
	fmt.Printf("%-9s > %s\n", who, doc.Say.Text)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
