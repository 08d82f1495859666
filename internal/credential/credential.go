package credential

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/longbridge/openapi-go/config"
)

// Load reads a key=value credential file and returns a Longbridge config.
func Load(path string) (*config.Config, error) {
	kv, err := readKV(path)
	if err != nil {
		return nil, fmt.Errorf("read credential file: %w", err)
	}

	appKey := kv["api_key"]
	appSecret := kv["secret"]
	accessToken := kv["access_token"]

	if appKey == "" || appSecret == "" || accessToken == "" {
		return nil, fmt.Errorf("credential file missing required fields (api_key, secret, access_token)")
	}

	cfg, err := config.New(
		config.WithConfigKey(appKey, appSecret, accessToken),
	)
	if err != nil {
		return nil, fmt.Errorf("create config: %w", err)
	}

	return cfg, nil
}

// LoadCookies reads the session cookies saved by a previous run. A missing
// file means no session and is not an error.
func LoadCookies(path string) ([]*http.Cookie, error) {
	kv, err := readKV(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	names := make([]string, 0, len(kv))
	for k := range kv {
		names = append(names, k)
	}
	sort.Strings(names)
	cookies := make([]*http.Cookie, 0, len(names))
	for _, name := range names {
		cookies = append(cookies, &http.Cookie{Name: name, Value: kv[name]})
	}
	return cookies, nil
}

// SaveCookies stores session cookies as name=value lines readable only by
// the current user. An empty list removes the file.
func SaveCookies(path string, cookies []*http.Cookie) error {
	if len(cookies) == 0 {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	}
	var sb strings.Builder
	sb.WriteString("# apex-trader session cookies\n")
	for _, c := range cookies {
		sb.WriteString(fmt.Sprintf("%s=%s\n", c.Name, c.Value))
	}
	return os.WriteFile(path, []byte(sb.String()), 0600)
}

// readKV parses "key=value" lines, skipping blanks and # comments.
func readKV(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	kv := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) == 2 {
			kv[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return kv, nil
}
