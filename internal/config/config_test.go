package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(testEnv(nil))
	if err != nil {
		t.Fatalf("LoadFrom err: %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Fatalf("unexpected addr %s", cfg.Server.Addr)
	}
	if cfg.ChatProvider != ProviderGemini {
		t.Fatalf("unexpected provider %s", cfg.ChatProvider)
	}
	if cfg.Gemini.ImageModel != "gemini-2.5-flash-image" {
		t.Fatalf("unexpected image model %s", cfg.Gemini.ImageModel)
	}
	if cfg.Gemini.Enabled() {
		t.Fatal("gemini should be disabled without a key")
	}
	if !cfg.Speech.Enabled || cfg.Speech.Timeout != 30*time.Second {
		t.Fatalf("unexpected speech config %+v", cfg.Speech)
	}
	if cfg.Session.IdleTTL != 2*time.Hour {
		t.Fatalf("unexpected session ttl %s", cfg.Session.IdleTTL)
	}
}

func TestLoadRejectsNonPositiveDurations(t *testing.T) {
	for _, vars := range []map[string]string{
		{"SPEECH_TIMEOUT": "0s"},
		{"SESSION_IDLE_TTL": "-1m"},
		{"SESSION_PRUNE_INTERVAL": "0s"},
	} {
		if _, err := LoadFrom(testEnv(vars)); err == nil {
			t.Errorf("%v: expected error", vars)
		}
	}
}

func TestLoadServerAddr(t *testing.T) {
	cases := []struct {
		port    string
		want    string
		wantErr bool
	}{
		{port: "9090", want: ":9090"},
		{port: ":7000", want: ":7000"},
		{port: "127.0.0.1:7000", want: "127.0.0.1:7000"},
		{port: "80 80", wantErr: true},
	}

	for _, tc := range cases {
		cfg, err := LoadFrom(testEnv(map[string]string{"PORT": tc.port}))
		if tc.wantErr {
			if err == nil {
				t.Errorf("PORT=%q: expected error", tc.port)
			}
			continue
		}
		if err != nil {
			t.Errorf("PORT=%q: unexpected err %v", tc.port, err)
			continue
		}
		if cfg.Server.Addr != tc.want {
			t.Errorf("PORT=%q: addr %s, want %s", tc.port, cfg.Server.Addr, tc.want)
		}
	}
}

func TestLoadGoogleAPIKeyFallback(t *testing.T) {
	cfg, err := LoadFrom(testEnv(map[string]string{"GOOGLE_API_KEY": " key-from-google "}))
	if err != nil {
		t.Fatalf("LoadFrom err: %v", err)
	}
	if cfg.Gemini.APIKey != "key-from-google" || !cfg.Gemini.Enabled() {
		t.Fatalf("expected fallback key, got %q", cfg.Gemini.APIKey)
	}

	cfg, err = LoadFrom(testEnv(map[string]string{"GOOGLE_API_KEY": "google", "GEMINI_API_KEY": "gemini"}))
	if err != nil {
		t.Fatalf("LoadFrom err: %v", err)
	}
	if cfg.Gemini.APIKey != "gemini" {
		t.Fatalf("GEMINI_API_KEY should win, got %q", cfg.Gemini.APIKey)
	}
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	if _, err := LoadFrom(testEnv(map[string]string{"CHAT_PROVIDER": "parrot"})); err == nil {
		t.Fatal("expected error for unknown provider")
	}

	cfg, err := LoadFrom(testEnv(map[string]string{"CHAT_PROVIDER": " ARK "}))
	if err != nil {
		t.Fatalf("LoadFrom err: %v", err)
	}
	if cfg.ChatProvider != ProviderArk {
		t.Fatalf("unexpected provider %s", cfg.ChatProvider)
	}
}

func TestArkNewChatModelRequiresCredentials(t *testing.T) {
	_, err := ArkConfig{}.NewChatModel(t.Context())
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
}

// testEnv keeps the process environment out of the parsed values.
func testEnv(vars map[string]string) map[string]string {
	out := map[string]string{"CRITTER_STUDIO_TEST": "1"}
	for k, v := range vars {
		out[k] = v
	}
	return out
}
