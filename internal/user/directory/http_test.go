package directory

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"auth-session/backend/internal/user/domain"
)

func newTestServer(t *testing.T, h http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL+"/", time.Second)
}

func TestHTTPClient_CreateUser(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/users" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var in domain.CreateUserInput
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in.Email == "taken@b.com" {
			w.WriteHeader(http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(domain.User{ID: "u1", Email: in.Email, IsActive: true})
	})

	u, err := c.CreateUser(context.Background(), domain.CreateUserInput{Email: "a@b.com", Password: "Secret123!"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.ID != "u1" || u.Email != "a@b.com" || !u.IsActive {
		t.Errorf("user = %+v", u)
	}
	if _, err := c.CreateUser(context.Background(), domain.CreateUserInput{Email: "taken@b.com", Password: "x"}); !errors.Is(err, ErrConflict) {
		t.Errorf("want ErrConflict, got %v", err)
	}
}

func TestHTTPClient_FindByEmail(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/email/a@b.com":
			_ = json.NewEncoder(w).Encode(domain.User{ID: "u1", Email: "a@b.com"})
		case "/users/email/boom@b.com":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	u, err := c.FindByEmail(ctx, "a@b.com")
	if err != nil || u == nil || u.ID != "u1" {
		t.Fatalf("FindByEmail = %+v, %v", u, err)
	}
	u, err = c.FindByEmail(ctx, "missing@b.com")
	if err != nil || u != nil {
		t.Errorf("FindByEmail missing = %+v, %v; want nil, nil", u, err)
	}
	_, err = c.FindByEmail(ctx, "boom@b.com")
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadGateway {
		t.Errorf("want StatusError 502, got %v", err)
	}
	if !errors.Is(err, ErrUpstream) {
		t.Error("status error should match ErrUpstream")
	}
}

func TestHTTPClient_FindByIDEscapesPath(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.EscapedPath() != "/users/a%2Fb" {
			t.Errorf("path = %q", r.URL.EscapedPath())
		}
		w.WriteHeader(http.StatusNotFound)
	})
	if u, err := c.FindByID(context.Background(), "a/b"); err != nil || u != nil {
		t.Errorf("FindByID = %+v, %v", u, err)
	}
}

func TestHTTPClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()
	c := NewHTTPClient(srv.URL, 20*time.Millisecond)

	_, err := c.FindByID(context.Background(), "u1")
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("want ErrUpstream, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("deadline not preserved in %v", err)
	}
}

func TestHTTPClient_ValidateCredentials(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   bool
		err    bool
	}{
		{"bool true", 200, "true", true, false},
		{"bool false", 200, "false", false, false},
		{"object", 201, `{"valid":true}`, true, false},
		{"user id", 200, `"u1"`, true, false},
		{"empty", 200, "", false, false},
		{"unauthorized", 401, `{"message":"Invalid credentials"}`, false, false},
		{"server error", 500, "", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/users/validate-credentials" {
					t.Errorf("path = %q", r.URL.Path)
				}
				var body map[string]string
				_ = json.NewDecoder(r.Body).Decode(&body)
				if body["email"] != "a@b.com" || body["password"] != "pw" {
					t.Errorf("body = %v", body)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			got, err := c.ValidateCredentials(context.Background(), "a@b.com", "pw")
			if (err != nil) != tt.err {
				t.Fatalf("err = %v, want err %v", err, tt.err)
			}
			if got != tt.want {
				t.Errorf("valid = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHTTPClient_BadJSON(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	})
	_, err := c.FindByID(context.Background(), "u1")
	if !errors.Is(err, ErrUpstream) || !strings.Contains(err.Error(), "decode") {
		t.Errorf("want decode ErrUpstream, got %v", err)
	}
}
