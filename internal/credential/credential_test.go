package credential

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
)

func TestCookiesPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session")

	got, err := LoadCookies(path)
	if err != nil || got != nil {
		t.Fatalf("LoadCookies(missing) = %v, %v", got, err)
	}

	if err := SaveCookies(path, []*http.Cookie{{Name: "session", Value: "abc.def=="}}); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("session file mode = %o, want 600", perm)
	}

	got, err = LoadCookies(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Name != "session" || got[0].Value != "abc.def==" {
		t.Errorf("LoadCookies() = %v", got)
	}

	if err := SaveCookies(path, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("session file still present after clearing: %v", err)
	}
}

func TestLoadMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credential")
	os.WriteFile(path, []byte("# longbridge\napi_key = k\nsecret = s\n"), 0600)
	if _, err := Load(path); err == nil {
		t.Error("Load() without access_token error = nil")
	}
}
