package speech

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	speechmodel "github.com/zhouzirui/critter-studio/backend/internal/model/speech"
	"github.com/zhouzirui/critter-studio/backend/internal/model/voice"
	speechsvc "github.com/zhouzirui/critter-studio/backend/internal/service/speech"
)

type fakeSpeechService struct {
	err         error
	lastText    string
	lastProfile voice.Profile
	lastRequest *speechmodel.TTSRequest
}

func (f *fakeSpeechService) Synthesize(_ context.Context, req *speechmodel.TTSRequest) (*speechmodel.TTSResponse, error) {
	f.lastRequest = req
	if f.err != nil {
		return nil, f.err
	}
	return &speechmodel.TTSResponse{AudioData: []byte("audio"), MIMEType: "audio/mpeg"}, nil
}

func (f *fakeSpeechService) SynthesizeWithProfile(_ context.Context, _ string, text string, profile voice.Profile) (*speechmodel.TTSResponse, error) {
	f.lastText = text
	f.lastProfile = profile
	if f.err != nil {
		return nil, f.err
	}
	return &speechmodel.TTSResponse{AudioData: []byte("audio:" + text), MIMEType: "audio/mpeg"}, nil
}

func setupRouter(svc SpeechService) *chi.Mux {
	r := chi.NewRouter()
	New(svc).RegisterRoutes(r)
	return r
}

func serve(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestListVoices(t *testing.T) {
	rr := serve(setupRouter(nil), http.MethodGet, "/voices", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var payload struct {
		Default string        `json:"default"`
		Voices  []voice.Entry `json:"voices"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if payload.Default != string(voice.Default) {
		t.Fatalf("unexpected default %q", payload.Default)
	}
	if len(payload.Voices) != len(voice.Profiles()) {
		t.Fatalf("expected %d voices, got %d", len(voice.Profiles()), len(payload.Voices))
	}
}

func TestPreview(t *testing.T) {
	fake := &fakeSpeechService{}
	r := setupRouter(fake)

	rr := serve(r, http.MethodPost, "/voices/en-US-ChristopherNeural/preview", `{"text":"Grr!"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("Content-Type") != "audio/mpeg" || rr.Body.String() != "audio:Grr!" {
		t.Fatalf("unexpected audio response %s %q", rr.Header().Get("Content-Type"), rr.Body.String())
	}
	if fake.lastProfile != voice.Christopher {
		t.Fatalf("unexpected profile %s", fake.lastProfile)
	}

	rr = serve(r, http.MethodPost, "/voices/en-US-AriaNeural/preview", "")
	if rr.Code != http.StatusOK || fake.lastText != previewText {
		t.Fatalf("empty body should use the sample text, got %d %q", rr.Code, fake.lastText)
	}
}

func TestPreviewErrors(t *testing.T) {
	tests := []struct {
		name   string
		svc    SpeechService
		path   string
		status int
	}{
		{name: "unknown voice", svc: &fakeSpeechService{}, path: "/voices/en-GB-RyanNeural/preview", status: http.StatusNotFound},
		{name: "speech disabled", svc: nil, path: "/voices/en-US-AnaNeural/preview", status: http.StatusServiceUnavailable},
		{name: "synthesis failure", svc: &fakeSpeechService{err: errors.New("boom")}, path: "/voices/en-US-AnaNeural/preview", status: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(setupRouter(tt.svc), http.MethodPost, tt.path, `{}`)
			if rr.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rr.Code)
			}
		})
	}
}

func TestSynthesizeAppliesProfileProsody(t *testing.T) {
	fake := &fakeSpeechService{}
	r := setupRouter(fake)

	rr := serve(r, http.MethodPost, "/speech/synthesize", `{"text":"Hello","voice":"en-US-ChristopherNeural"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if fake.lastRequest.Rate != "-10%" || fake.lastRequest.Pitch != "-10Hz" {
		t.Fatalf("unexpected prosody %+v", fake.lastRequest)
	}

	rr = serve(r, http.MethodPost, "/speech/synthesize", `{"text":"Hello"}`)
	if rr.Code != http.StatusOK || fake.lastRequest.Voice != string(voice.Default) {
		t.Fatalf("blank voice should use the default, got %d %+v", rr.Code, fake.lastRequest)
	}

	if rr := serve(r, http.MethodPost, "/speech/synthesize", `{"text":"  "}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("blank text: expected 400, got %d", rr.Code)
	}
	if rr := serve(r, http.MethodPost, "/speech/synthesize", `{"text":"Hi","voice":"nope"}`); rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown voice: expected 400, got %d", rr.Code)
	}

	rejected := []struct {
		name string
		body string
	}{
		{name: "markup in rate", body: `{"text":"Hi","rate":"+0%'><voice name='en-US-GuyNeural'>pwned</voice><prosody rate='+0%"}`},
		{name: "pitch without sign", body: `{"text":"Hi","pitch":"10Hz"}`},
		{name: "volume with quote", body: `{"text":"Hi","volume":"+0%'"}`},
		{name: "unknown format", body: `{"text":"Hi","format":"mp3\"}}"}`},
	}
	for _, tc := range rejected {
		t.Run(tc.name, func(t *testing.T) {
			fake.lastRequest = nil
			if rr := serve(r, http.MethodPost, "/speech/synthesize", tc.body); rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rr.Code)
			}
			if fake.lastRequest != nil {
				t.Fatalf("rejected request reached the synthesizer: %+v", fake.lastRequest)
			}
		})
	}

	rr = serve(r, http.MethodPost, "/speech/synthesize", `{"text":"Hi","rate":"+20%","format":"webm-24khz-16bit-mono-opus"}`)
	if rr.Code != http.StatusOK || fake.lastRequest.Rate != "+20%" {
		t.Fatalf("valid overrides should pass through, got %d %+v", rr.Code, fake.lastRequest)
	}
}

func TestSynthesizeMapsInvalidRequestTo400(t *testing.T) {
	fake := &fakeSpeechService{err: fmt.Errorf("%w: voice", speechsvc.ErrInvalidRequest)}
	rr := serve(setupRouter(fake), http.MethodPost, "/speech/synthesize", `{"text":"Hi"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestHealth(t *testing.T) {
	rr := serve(setupRouter(nil), http.MethodGet, "/speech/health", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "disabled") {
		t.Fatalf("unexpected health response %d %s", rr.Code, rr.Body.String())
	}
}
