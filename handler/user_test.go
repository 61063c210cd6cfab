package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"linkboard/auth"
	"linkboard/model"
	"linkboard/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newTestUserHandler(t *testing.T) *UserHandler {
	t.Helper()

	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(s.Close)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := testConfig()
	st := store.New(client, cfg.Analytics.EventsChannel)

	jwtManager, err := auth.NewJWTManager("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("Failed to create JWT manager: %v", err)
	}

	return NewUserHandler(st, jwtManager, cfg)
}

func postJSON(t *testing.T, handlerFunc http.HandlerFunc, target string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Failed to marshal payload: %v", err)
	}
	req := httptest.NewRequest("POST", target, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handlerFunc(w, req)
	return w
}

func TestRegister(t *testing.T) {
	h := newTestUserHandler(t)

	w := postJSON(t, h.Register, "/api/auth/register", model.RegisterRequest{
		Email:    "New@Example.com",
		Password: "correct-horse",
		Name:     "New User",
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status Created, got %v: %s", w.Code, w.Body.String())
	}

	var resp model.LoginResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.AccessToken == "" {
		t.Error("Expected an access token")
	}
	if resp.User.Email != "new@example.com" {
		t.Errorf("Expected lowercased email, got %q", resp.User.Email)
	}
	if resp.User.ID == "" {
		t.Error("Expected a user ID")
	}
}

func TestRegister_Validation(t *testing.T) {
	h := newTestUserHandler(t)

	tests := []struct {
		name string
		req  model.RegisterRequest
	}{
		{"Missing email", model.RegisterRequest{Password: "long-enough"}},
		{"Bad email", model.RegisterRequest{Email: "not-an-email", Password: "long-enough"}},
		{"Short password", model.RegisterRequest{Email: "a@example.com", Password: "short"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, h.Register, "/api/auth/register", tt.req)
			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status BadRequest, got %v", w.Code)
			}
		})
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	h := newTestUserHandler(t)

	first := postJSON(t, h.Register, "/api/auth/register", model.RegisterRequest{
		Email:    "taken@example.com",
		Password: "correct-horse",
	})
	if first.Code != http.StatusCreated {
		t.Fatalf("First registration failed: %v", first.Code)
	}

	second := postJSON(t, h.Register, "/api/auth/register", model.RegisterRequest{
		Email:    "TAKEN@example.com",
		Password: "battery-staple",
	})
	if second.Code != http.StatusConflict {
		t.Errorf("Expected status Conflict, got %v", second.Code)
	}
}

func TestLogin(t *testing.T) {
	h := newTestUserHandler(t)

	created := postJSON(t, h.Register, "/api/auth/register", model.RegisterRequest{
		Email:    "login@example.com",
		Password: "correct-horse",
	})
	if created.Code != http.StatusCreated {
		t.Fatalf("Registration failed: %v", created.Code)
	}

	t.Run("Valid credentials", func(t *testing.T) {
		w := postJSON(t, h.Login, "/api/auth/login", model.LoginRequest{
			Email:    "LOGIN@example.com",
			Password: "correct-horse",
		})
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status OK, got %v: %s", w.Code, w.Body.String())
		}

		var resp model.LoginResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("Failed to decode response: %v", err)
		}
		if resp.AccessToken == "" {
			t.Error("Expected an access token")
		}
	})

	t.Run("Wrong password", func(t *testing.T) {
		w := postJSON(t, h.Login, "/api/auth/login", model.LoginRequest{
			Email:    "login@example.com",
			Password: "wrong",
		})
		if w.Code != http.StatusUnauthorized {
			t.Errorf("Expected status Unauthorized, got %v", w.Code)
		}
	})

	t.Run("Unknown email", func(t *testing.T) {
		w := postJSON(t, h.Login, "/api/auth/login", model.LoginRequest{
			Email:    "nobody@example.com",
			Password: "whatever",
		})
		if w.Code != http.StatusUnauthorized {
			t.Errorf("Expected status Unauthorized, got %v", w.Code)
		}
	})
}

func TestMe(t *testing.T) {
	h := newTestUserHandler(t)

	created := postJSON(t, h.Register, "/api/auth/register", model.RegisterRequest{
		Email:    "me@example.com",
		Password: "correct-horse",
		Name:     "Me",
	})
	if created.Code != http.StatusCreated {
		t.Fatalf("Registration failed: %v", created.Code)
	}
	var reg model.LoginResponse
	if err := json.NewDecoder(created.Body).Decode(&reg); err != nil {
		t.Fatalf("Failed to decode registration: %v", err)
	}

	r := authedRequest("GET", "/api/me", nil, reg.User.ID)
	w := httptest.NewRecorder()

	h.Me(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status OK, got %v: %s", w.Code, w.Body.String())
	}

	var user model.UserResponse
	if err := json.NewDecoder(w.Body).Decode(&user); err != nil {
		t.Fatalf("Failed to decode user: %v", err)
	}
	if user.Email != "me@example.com" || user.Name != "Me" {
		t.Errorf("Unexpected user payload: %+v", user)
	}
}
