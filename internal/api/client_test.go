package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"apex-trader/internal/model"

	"github.com/shopspring/decimal"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func newServer(t *testing.T, mux *http.ServeMux) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL+"/api", WithTimeout(2*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	return srv, c
}

func TestNewRejectsBadURL(t *testing.T) {
	for _, u := range []string{"", "localhost:5000", "not a url"} {
		if _, err := New(u); err == nil {
			t.Errorf("New(%q) accepted", u)
		}
	}
}

func TestSessionCheck(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantUser string
		wantErr  bool
	}{
		{"logged in", 200, `{"success":true,"data":{"logged_in":true,"user":{"id":7,"username":"alice","name":"Alice","is_admin":true}}}`, "alice", false},
		{"logged out", 200, `{"success":true,"data":{"logged_in":false}}`, "", false},
		{"unauthorized", 401, `{"success":false,"message":"Not logged in"}`, "", false},
		{"unauthorized without body", 401, ``, "", false},
		{"forbidden", 403, `{"success":false,"message":"Forbidden"}`, "", true},
		{"server error", 500, `{"success":false,"message":"boom"}`, "", true},
		{"html", 200, `<html>oops</html>`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("GET /api/session", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})
			_, c := newServer(t, mux)
			u, err := c.SessionCheck(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				var te *model.TransportError
				if !errors.As(err, &te) {
					t.Errorf("err = %T, want *model.TransportError", err)
				}
				return
			}
			got := ""
			if u != nil {
				got = u.Username
				if !u.IsAdmin || u.ID != 7 {
					t.Errorf("user = %+v", *u)
				}
			}
			if got != tt.wantUser {
				t.Errorf("user = %q, want %q", got, tt.wantUser)
			}
		})
	}
}

func TestLogin(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/login", func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("content type = %q", ct)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("missing request id")
		}
		switch r.FormValue("username") {
		case "alice":
			if r.FormValue("password") != "secret" {
				writeJSON(w, 401, map[string]any{"success": false, "message": "Invalid username or password"})
				return
			}
			writeJSON(w, 200, map[string]any{"success": true, "data": map[string]any{
				"user": map[string]any{"id": 1, "username": "alice", "name": "Alice", "is_admin": false},
			}})
		case "quiet":
			writeJSON(w, 401, map[string]any{"success": false})
		default:
			w.WriteHeader(502)
			io.WriteString(w, "bad gateway")
		}
	})
	_, c := newServer(t, mux)
	ctx := context.Background()

	u, err := c.Login(ctx, model.Credentials{Username: "alice", Password: "secret"})
	if err != nil || u.Name != "Alice" {
		t.Fatalf("login = %+v, %v", u, err)
	}

	_, err = c.Login(ctx, model.Credentials{Username: "alice", Password: "nope"})
	var ae *model.AuthError
	if !errors.As(err, &ae) || ae.Message != "Invalid username or password" {
		t.Errorf("wrong password err = %v", err)
	}

	_, err = c.Login(ctx, model.Credentials{Username: "quiet"})
	if !errors.As(err, &ae) || ae.Error() != model.MsgLoginFailed {
		t.Errorf("silent rejection err = %v", err)
	}

	_, err = c.Login(ctx, model.Credentials{Username: "proxy"})
	var te *model.TransportError
	if !errors.As(err, &te) {
		t.Errorf("non-JSON reply err = %T, want *model.TransportError", err)
	}
}

func TestSessionCookiePersists(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc.def", Path: "/", HttpOnly: true})
		writeJSON(w, 200, map[string]any{"success": true, "data": map[string]any{
			"user": map[string]any{"id": 1, "username": "alice"},
		}})
	})
	mux.HandleFunc("GET /api/session", func(w http.ResponseWriter, r *http.Request) {
		ck, err := r.Cookie("session")
		if err != nil || ck.Value != "abc.def" {
			writeJSON(w, 200, map[string]any{"success": true, "data": map[string]any{"logged_in": false}})
			return
		}
		writeJSON(w, 200, map[string]any{"success": true, "data": map[string]any{
			"logged_in": true,
			"user":      map[string]any{"id": 1, "username": "alice"},
		}})
	})
	mux.HandleFunc("POST /api/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	file := filepath.Join(t.TempDir(), "session")
	ctx := context.Background()
	c1, err := New(srv.URL+"/api", WithSessionFile(file))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c1.Login(ctx, model.Credentials{Username: "alice", Password: "x"}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(file); err != nil {
		t.Fatalf("session file not written: %v", err)
	}

	c2, err := New(srv.URL+"/api", WithSessionFile(file))
	if err != nil {
		t.Fatal(err)
	}
	u, err := c2.SessionCheck(ctx)
	if err != nil || u == nil || u.Username != "alice" {
		t.Fatalf("restored session = %v, %v", u, err)
	}

	// The server failing logout still drops the local session.
	if err := c2.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := os.Stat(file); !os.IsNotExist(err) {
		t.Errorf("session file still present: %v", err)
	}
	if u, _ := c2.SessionCheck(ctx); u != nil {
		t.Errorf("session survived logout: %+v", u)
	}
}

func TestSignup(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/signup", func(w http.ResponseWriter, r *http.Request) {
		if r.FormValue("confirmPassword") == "" || r.FormValue("firstname") == "" {
			t.Errorf("form = %v", r.Form)
		}
		switch r.FormValue("username") {
		case "taken":
			writeJSON(w, 409, map[string]any{"success": false, "message": "Username already exists"})
		case "odd":
			writeJSON(w, 400, map[string]any{"success": false})
		default:
			writeJSON(w, 201, map[string]any{"success": true})
		}
	})
	_, c := newServer(t, mux)
	form := model.SignupForm{FirstName: "A", LastName: "B", Email: "a@b.c", Password: "pw", ConfirmPassword: "pw"}

	form.Username = "new"
	if err := c.Signup(context.Background(), form); err != nil {
		t.Fatalf("signup: %v", err)
	}
	form.Username = "taken"
	if err := c.Signup(context.Background(), form); err == nil || err.Error() != "Username already exists" {
		t.Errorf("taken err = %v", err)
	}
	form.Username = "odd"
	if err := c.Signup(context.Background(), form); err == nil || err.Error() != model.MsgSignupFailed {
		t.Errorf("fallback err = %v", err)
	}
}

func TestPlaceOrder(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantID     string
		wantReason string
		wantUnauth bool
		transport  bool
	}{
		{"accepted", 200, `{"success":true,"data":{"order_id":"42","message":"Bought 3 AAPL"}}`, "42", "", false, false},
		{"rejected with reason", 400, `{"success":false,"message":"Insufficient funds"}`, "", "Insufficient funds", false, false},
		{"rejected without reason", 200, `{"success":false}`, "", model.MsgTradeFailed, false, false},
		{"session expired", 401, `{"success":false,"message":"Not logged in"}`, "", "Not logged in", true, false},
		{"garbage", 200, `not json`, "", "", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("POST /api/trade", func(w http.ResponseWriter, r *http.Request) {
				var got map[string]any
				dec := json.NewDecoder(r.Body)
				dec.UseNumber()
				if err := dec.Decode(&got); err != nil {
					t.Errorf("decode body: %v", err)
				}
				if p, ok := got["price"].(json.Number); !ok || p.String() != "150.25" {
					t.Errorf("price = %#v, want number 150.25", got["price"])
				}
				if got["actionType"] != "buy" || got["orderType"] != "limit" {
					t.Errorf("body = %v", got)
				}
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})
			_, c := newServer(t, mux)
			ack, err := c.PlaceOrder(context.Background(), model.OrderRequest{
				Symbol:     "AAPL",
				ActionType: model.SideBuy,
				Quantity:   3,
				OrderType:  model.KindLimit,
				Price:      decimal.RequireFromString("150.25"),
			})
			switch {
			case tt.transport:
				var te *model.TransportError
				if !errors.As(err, &te) {
					t.Fatalf("err = %v, want transport error", err)
				}
			case tt.wantReason != "":
				var re *model.RejectedError
				if !errors.As(err, &re) || re.Error() != tt.wantReason {
					t.Fatalf("err = %v, want rejection %q", err, tt.wantReason)
				}
				if errors.Is(err, model.ErrUnauthorized) != tt.wantUnauth {
					t.Errorf("unauthorized = %v, want %v", !tt.wantUnauth, tt.wantUnauth)
				}
			default:
				if err != nil {
					t.Fatal(err)
				}
				if ack.ConfirmationID != tt.wantID || ack.Message != "Bought 3 AAPL" {
					t.Errorf("ack = %+v", ack)
				}
			}
		})
	}
}

func TestPlaceOrderUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL + "/api"
	srv.Close()
	c, err := New(base)
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.PlaceOrder(context.Background(), model.OrderRequest{Symbol: "AAPL", ActionType: model.SideBuy, Quantity: 1})
	var te *model.TransportError
	if !errors.As(err, &te) || te.Op != "place order" {
		t.Fatalf("err = %v, want transport error", err)
	}
}

func TestPortfolio(t *testing.T) {
	nested := `{"success":true,"data":{"holdings":[{"symbol":"AAPL","shares":10,"avg_cost":"100.50","current_price":110,"market_value":1100,"gain_loss":95}]}}`
	flat := `{"holdings":[{"symbol":"MSFT","shares":2.0,"avg_cost":300,"current_price":310,"market_value":620,"gain_loss":20}]}`
	tests := []struct {
		name   string
		status int
		body   string
		want   string
		shares int64
	}{
		{"nested", 200, nested, "AAPL", 10},
		{"flat", 200, flat, "MSFT", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("GET /api/portfolio", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})
			_, c := newServer(t, mux)
			hs, err := c.Portfolio(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			if len(hs) != 1 || hs[0].Symbol != tt.want || hs[0].Shares != tt.shares {
				t.Fatalf("holdings = %+v", hs)
			}
		})
	}

	t.Run("unauthorized", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /api/portfolio", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, 401, map[string]any{"success": false, "message": "Not logged in"})
		})
		_, c := newServer(t, mux)
		_, err := c.Portfolio(context.Background())
		if !errors.Is(err, model.ErrUnauthorized) {
			t.Fatalf("err = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("custom path", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /api/portfolio_data", func(w http.ResponseWriter, r *http.Request) {
			io.WriteString(w, `{"holdings":[]}`)
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()
		c, err := New(srv.URL+"/api/", WithPortfolioPath("portfolio_data"))
		if err != nil {
			t.Fatal(err)
		}
		hs, err := c.Portfolio(context.Background())
		if err != nil || len(hs) != 0 {
			t.Fatalf("holdings = %v, %v", hs, err)
		}
	})
}

func TestRequestIDsAreUnique(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]bool{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/session", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen[strings.TrimSpace(r.Header.Get("X-Request-ID"))] = true
		mu.Unlock()
		io.WriteString(w, `{"success":true,"data":{"logged_in":false}}`)
	})
	_, c := newServer(t, mux)
	for i := 0; i < 3; i++ {
		if _, err := c.SessionCheck(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 || seen[""] {
		t.Errorf("request ids = %v", seen)
	}
}
