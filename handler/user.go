package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"linkboard/auth"
	"linkboard/config"
	"linkboard/middleware"
	"linkboard/model"
	"linkboard/store"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// UserHandler serves registration, login and the current-user endpoint.
type UserHandler struct {
	store      *store.Store
	jwtManager *auth.JWTManager
	config     config.Config
}

// NewUserHandler creates a new user handler
func NewUserHandler(st *store.Store, jwtManager *auth.JWTManager, cfg config.Config) *UserHandler {
	return &UserHandler{
		store:      st,
		jwtManager: jwtManager,
		config:     cfg,
	}
}

func (h *UserHandler) opCtx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), time.Duration(h.config.Redis.OperationTimeout)*time.Second)
}

// Register handles POST /api/auth/register
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		SendJSONError(w, http.StatusBadRequest, errors.New("invalid request body"), "Request body must be valid JSON")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		SendJSONError(w, http.StatusBadRequest, errors.New("invalid email address"), "")
		return
	}
	if len(req.Password) < minPasswordLength {
		SendJSONError(w, http.StatusBadRequest, errors.New("password too short"), "Password must be at least 8 characters")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error().Err(err).Msg("Failed to hash password")
		SendJSONError(w, http.StatusInternalServerError, errors.New("failed to register"), "")
		return
	}

	ctx, cancel := h.opCtx(r)
	defer cancel()

	user, err := h.store.CreateUser(ctx, model.User{
		Email:        req.Email,
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: string(hash),
	})
	if err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			SendJSONError(w, http.StatusConflict, err, "")
			return
		}
		log.Error().Err(err).Msg("Failed to create user")
		SendJSONError(w, http.StatusInternalServerError, errors.New("failed to register"), "")
		return
	}

	token, err := h.jwtManager.GenerateToken(user.ID, user.Email)
	if err != nil {
		log.Error().Err(err).Msg("Failed to issue token")
		SendJSONError(w, http.StatusInternalServerError, errors.New("failed to register"), "")
		return
	}

	SendJSONSuccess(w, http.StatusCreated, model.LoginResponse{
		AccessToken: token,
		User:        user.ToResponse(),
	})
}

// Login handles POST /api/auth/login
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		SendJSONError(w, http.StatusBadRequest, errors.New("invalid request body"), "Request body must be valid JSON")
		return
	}

	ctx, cancel := h.opCtx(r)
	defer cancel()

	// One generic failure for both unknown email and bad password so the
	// endpoint cannot be used to probe registered addresses.
	invalidCredentials := errors.New("invalid email or password")

	user, err := h.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			SendJSONError(w, http.StatusUnauthorized, invalidCredentials, "")
			return
		}
		log.Error().Err(err).Msg("Failed to fetch user")
		SendJSONError(w, http.StatusInternalServerError, errors.New("failed to log in"), "")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		SendJSONError(w, http.StatusUnauthorized, invalidCredentials, "")
		return
	}

	token, err := h.jwtManager.GenerateToken(user.ID, user.Email)
	if err != nil {
		log.Error().Err(err).Msg("Failed to issue token")
		SendJSONError(w, http.StatusInternalServerError, errors.New("failed to log in"), "")
		return
	}

	log.Info().Str("user_id", user.ID).Msg("User logged in")
	SendJSONSuccess(w, http.StatusOK, model.LoginResponse{
		AccessToken: token,
		User:        user.ToResponse(),
	})
}

// Me handles GET /api/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)

	ctx, cancel := h.opCtx(r)
	defer cancel()

	user, err := h.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			SendJSONError(w, http.StatusNotFound, err, "")
			return
		}
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to fetch user")
		SendJSONError(w, http.StatusInternalServerError, errors.New("failed to fetch user"), "")
		return
	}

	SendJSONSuccess(w, http.StatusOK, user.ToResponse())
}
