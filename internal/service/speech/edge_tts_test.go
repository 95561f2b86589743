package speech

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	speechmodel "github.com/zhouzirui/critter-studio/backend/internal/model/speech"
)

// fakeReadAloud plays the server side of one synthesis turn per connection.
type fakeReadAloud struct {
	mu       sync.Mutex
	queries  []string
	origins  []string
	frames   []string
	audio    [][]byte
	rejectN  int
	noAudio  bool
	upgrader websocket.Upgrader
}

func (f *fakeReadAloud) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.queries = append(f.queries, r.URL.RawQuery)
	f.origins = append(f.origins, r.Header.Get("Origin"))
	reject := f.rejectN > 0
	if reject {
		f.rejectN--
	}
	f.mu.Unlock()

	if reject {
		w.Header().Set("Date", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for i := 0; i < 2; i++ {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		f.mu.Lock()
		f.frames = append(f.frames, string(data))
		f.mu.Unlock()
	}

	_ = conn.WriteMessage(websocket.TextMessage, []byte("X-RequestId:r\r\nPath:turn.start\r\n\r\n{}"))
	if !f.noAudio {
		for _, chunk := range f.audio {
			frame := encodeBinaryMessage([]header{{"X-RequestId", "r"}, {"Content-Type", "audio/mpeg"}, {"Path", PathAudio}}, chunk)
			_ = conn.WriteMessage(websocket.BinaryMessage, frame)
		}
	}
	_ = conn.WriteMessage(websocket.TextMessage, []byte("X-RequestId:r\r\nPath:turn.end\r\n\r\n{}"))
}

func newTestClient(t *testing.T, fake *fakeReadAloud) *EdgeTTSClient {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	cfg := &speechmodel.SpeechConfig{
		Endpoint:     "ws" + strings.TrimPrefix(server.URL, "http"),
		ClientToken:  "test-token",
		OutputFormat: "audio-24khz-48kbitrate-mono-mp3",
		Volume:       "+0%",
		Timeout:      5 * time.Second,
	}
	client, err := NewEdgeTTSClient(cfg, &ConnectionOptions{
		HandshakeTimeout: time.Second,
		MaxRetries:       2,
		RetryDelay:       10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewEdgeTTSClient err: %v", err)
	}
	return client
}

func TestSynthesizeBuffersAudio(t *testing.T) {
	fake := &fakeReadAloud{audio: [][]byte{[]byte("ID3"), []byte("-frame")}}
	client := newTestClient(t, fake)

	resp, err := client.SynthesizeSpeechWS(context.Background(), &speechmodel.TTSRequest{
		SessionID: "s1",
		Text:      "Grr & growl",
		Voice:     "en-US-ChristopherNeural",
		Rate:      "-10%",
		Pitch:     "-10Hz",
	})
	if err != nil {
		t.Fatalf("SynthesizeSpeechWS err: %v", err)
	}

	if string(resp.AudioData) != "ID3-frame" {
		t.Fatalf("unexpected audio %q", resp.AudioData)
	}
	if resp.MIMEType != "audio/mpeg" || resp.SessionID != "s1" {
		t.Fatalf("unexpected response %+v", resp)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()

	if !strings.Contains(fake.queries[0], "TrustedClientToken=test-token") || !strings.Contains(fake.queries[0], "Sec-MS-GEC=") {
		t.Fatalf("unexpected query %s", fake.queries[0])
	}
	if fake.origins[0] != edgeOrigin {
		t.Fatalf("unexpected origin %s", fake.origins[0])
	}
	if !strings.Contains(fake.frames[0], "Path:speech.config") {
		t.Fatalf("first frame must be speech.config: %s", fake.frames[0])
	}
	ssml := fake.frames[1]
	for _, want := range []string{
		"Path:ssml",
		"(en-US, ChristopherNeural)",
		"pitch='-10Hz' rate='-10%'",
		"Grr &amp; growl",
	} {
		if !strings.Contains(ssml, want) {
			t.Errorf("ssml frame missing %q:\n%s", want, ssml)
		}
	}
}

func TestSynthesizeWithoutAudioFails(t *testing.T) {
	client := newTestClient(t, &fakeReadAloud{noAudio: true})

	if _, err := client.SynthesizeSpeechWS(context.Background(), &speechmodel.TTSRequest{Text: "hello"}); err == nil {
		t.Fatal("expected error when no audio arrives before turn.end")
	}
}

func TestSynthesizeRejectsEmptyText(t *testing.T) {
	client := newTestClient(t, &fakeReadAloud{})

	if _, err := client.SynthesizeSpeechWS(context.Background(), &speechmodel.TTSRequest{Text: "  \n "}); err == nil {
		t.Fatal("expected error for empty text")
	}
}

func TestSynthesizeRejectsInvalidParameters(t *testing.T) {
	fake := &fakeReadAloud{audio: [][]byte{[]byte("mp3")}}
	client := newTestClient(t, fake)

	cases := []struct {
		name string
		req  speechmodel.TTSRequest
	}{
		{name: "markup in rate", req: speechmodel.TTSRequest{Rate: "+0%'><voice name='x'>pwned</voice><prosody rate='+0%"}},
		{name: "pitch without unit", req: speechmodel.TTSRequest{Pitch: "10"}},
		{name: "volume with quote", req: speechmodel.TTSRequest{Volume: "+0%'"}},
		{name: "unknown format", req: speechmodel.TTSRequest{Format: `mp3"},"x":{"`}},
		{name: "voice name with quote", req: speechmodel.TTSRequest{Voice: "Microsoft Server Speech Text to Speech Voice (en-US, AriaNeural)'"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := tc.req
			req.Text = "hello"
			_, err := client.SynthesizeSpeechWS(context.Background(), &req)
			if !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("expected ErrInvalidRequest, got %v", err)
			}
		})
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.queries) != 0 {
		t.Fatalf("invalid requests must not reach the server, got %d connections", len(fake.queries))
	}
}

func TestNewEdgeTTSClientRejectsUnsupportedFormat(t *testing.T) {
	cfg := &speechmodel.SpeechConfig{ClientToken: "t", OutputFormat: "audio-x"}
	if _, err := NewEdgeTTSClient(cfg, nil); err == nil {
		t.Fatal("expected error for unsupported output format")
	}
}

func TestSynthesizeRetriesAfterForbidden(t *testing.T) {
	fake := &fakeReadAloud{audio: [][]byte{[]byte("mp3")}, rejectN: 1}
	client := newTestClient(t, fake)

	resp, err := client.SynthesizeSpeechWS(context.Background(), &speechmodel.TTSRequest{Text: "hello"})
	if err != nil {
		t.Fatalf("SynthesizeSpeechWS err: %v", err)
	}
	if string(resp.AudioData) != "mp3" {
		t.Fatalf("unexpected audio %q", resp.AudioData)
	}

	client.connector.mu.Lock()
	skew := client.connector.clockSkew
	client.connector.mu.Unlock()
	if skew < 50*time.Minute {
		t.Fatalf("clock skew not adjusted from Date header: %s", skew)
	}
}

func TestServiceSynthesizeWithProfile(t *testing.T) {
	fake := &fakeReadAloud{audio: [][]byte{[]byte("mp3")}}
	client := newTestClient(t, fake)
	svc := &Service{config: client.config, ttsClient: client}

	if _, err := svc.SynthesizeWithProfile(context.Background(), "s", "hi", "en-US-NotAVoice"); err == nil {
		t.Fatal("expected error for unknown profile")
	}

	resp, err := svc.SynthesizeWithProfile(context.Background(), "s", "hi", "en-US-ChristopherNeural")
	if err != nil {
		t.Fatalf("SynthesizeWithProfile err: %v", err)
	}
	if len(resp.AudioData) == 0 {
		t.Fatal("expected audio")
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if !strings.Contains(fake.frames[1], "pitch='-10Hz' rate='-10%'") {
		t.Fatalf("deep profile prosody not applied: %s", fake.frames[1])
	}
}
