package service

import (
	"os"
	"strings"
	"testing"
)

func TestWritePlist(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path, err := WritePlist(LaunchdParams{
		Binary: "/usr/local/bin/flowstate",
		Config: home + "/.config/flowstate/config.toml",
		Log:    home + "/flowstate.log",
		Env:    map[string]string{"GROQ_API_KEY": "gsk_x"},
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if path != LaunchdPath(DefaultLabel) {
		t.Fatalf("path %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	body := string(data)
	for _, want := range []string{
		"<string>com.flowstate.agent</string>",
		"<string>/usr/local/bin/flowstate</string>",
		"<string>--foreground</string>",
		"<key>WorkingDirectory</key><string>" + home + "/.config/flowstate</string>",
		"<key>ProcessType</key><string>Interactive</string>",
		"<key>GROQ_API_KEY</key><string>gsk_x</string>",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("plist missing %q:\n%s", want, body)
		}
	}
	if p, ok := Status(DefaultLabel); !ok || p != path {
		t.Fatalf("status %s %v", p, ok)
	}
	if _, ok := Status("com.flowstate.other"); ok {
		t.Fatalf("unexpected plist")
	}
}
