// Package api is the HTTP gateway to the Apex trading API.
//
// It implements session.Authenticator, order.Placer and portfolio.Fetcher:
//
//	GET  /session    {success, data:{logged_in, user?}}
//	POST /login      form username,password -> {data:{user}} | {message}
//	POST /logout     response ignored
//	POST /signup     form profile fields -> 2xx | {message}
//	POST /trade      JSON order -> {success, message?, data?}
//	GET  /portfolio  {data:{holdings}} or {holdings}
//
// The server keeps the session in a cookie. The cookie jar is persisted to
// a session file so consecutive runs share one login.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"apex-trader/internal/credential"
	"apex-trader/internal/model"

	"github.com/PaesslerAG/jsonpath"
	"github.com/google/uuid"
)

const maxBody = 1 << 20

// Client talks to one API base URL, e.g. http://localhost:5000/api.
type Client struct {
	base          string
	baseURL       *url.URL
	hc            *http.Client
	sessionFile   string
	portfolioPath string
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the transport timeout. Calls that exceed it fail as
// transport errors.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.hc.Timeout = d }
}

// WithSessionFile persists session cookies at path.
func WithSessionFile(path string) Option {
	return func(c *Client) { c.sessionFile = path }
}

// WithPortfolioPath overrides the holdings endpoint (default /portfolio).
func WithPortfolioPath(p string) Option {
	return func(c *Client) { c.portfolioPath = "/" + strings.TrimLeft(p, "/") }
}

// New returns a client for base. Saved cookies are loaded immediately.
func New(base string, opts ...Option) (*Client, error) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid api url %q", base)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	c := &Client{
		base:          base,
		baseURL:       u,
		hc:            &http.Client{Timeout: 15 * time.Second, Jar: jar},
		portfolioPath: "/portfolio",
	}
	for _, o := range opts {
		o(c)
	}
	if c.sessionFile != "" {
		cookies, err := credential.LoadCookies(c.sessionFile)
		if err != nil {
			return nil, err
		}
		jar.SetCookies(c.baseURL, cookies)
	}
	return c, nil
}

// response is a decoded reply. body is nil when the payload was not JSON.
type response struct {
	status int
	body   any
}

func (r *response) ok() bool { return r.status >= 200 && r.status < 300 }

// get evaluates a JSONPath expression against the body.
func (r *response) get(path string) (any, bool) {
	if r.body == nil {
		return nil, false
	}
	v, err := jsonpath.Get(path, r.body)
	if err != nil || v == nil {
		return nil, false
	}
	return v, true
}

func (r *response) str(path string) string {
	v, ok := r.get(path)
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	}
	return ""
}

func (r *response) boolean(path string) bool {
	v, ok := r.get(path)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// decode re-encodes the value at path into out.
func (r *response) decode(path string, out any) error {
	v, ok := r.get(path)
	if !ok {
		return fmt.Errorf("missing %s", path)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (c *Client) call(ctx context.Context, op, method, path, contentType string, body []byte) (*response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return nil, &model.TransportError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "apex-trader")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	res, err := c.hc.Do(req)
	if err != nil {
		return nil, &model.TransportError{Op: op, Err: err}
	}
	defer res.Body.Close()
	c.saveCookies()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxBody))
	if err != nil {
		return nil, &model.TransportError{Op: op, Err: err}
	}
	r := &response{status: res.StatusCode}
	if len(bytes.TrimSpace(data)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		var v any
		if dec.Decode(&v) == nil {
			r.body = v
		}
	}
	return r, nil
}

func (c *Client) form(ctx context.Context, op, path string, values url.Values) (*response, error) {
	return c.call(ctx, op, http.MethodPost, path, "application/x-www-form-urlencoded", []byte(values.Encode()))
}

func malformed(op string, status int) error {
	return &model.TransportError{Op: op, Err: fmt.Errorf("unexpected response (status %d)", status)}
}

func (c *Client) saveCookies() {
	if c.sessionFile == "" {
		return
	}
	if err := credential.SaveCookies(c.sessionFile, c.hc.Jar.Cookies(c.baseURL)); err != nil {
		log.Printf("session file write failed: %v", err)
	}
}

// dropCookies forgets the local session regardless of what the server said.
func (c *Client) dropCookies() {
	if jar, err := cookiejar.New(nil); err == nil {
		c.hc.Jar = jar
	}
	c.saveCookies()
}
