package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"mps-dashboard/internal/authcall"
	"mps-dashboard/internal/backend"
	"mps-dashboard/internal/cookie"
	"mps-dashboard/internal/event"
	"mps-dashboard/internal/middleware"
	"mps-dashboard/internal/model"
	"mps-dashboard/internal/session"
	"mps-dashboard/internal/token"
	"mps-dashboard/pkg/apierror"
)

const maxLoginBody = 64 << 10

type AuthHandler struct {
	client    *backend.Client
	caller    *authcall.Caller
	refresher authcall.Refresher
	store     *cookie.Store
	codec     *session.Codec
	bus       event.Bus
	logger    *slog.Logger
}

type AuthHandlerDeps struct {
	Client    *backend.Client
	Caller    *authcall.Caller
	Refresher authcall.Refresher
	Store     *cookie.Store
	Codec     *session.Codec
	Bus       event.Bus
	Logger    *slog.Logger
}

func NewAuthHandler(deps AuthHandlerDeps) *AuthHandler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &AuthHandler{
		client:    deps.Client,
		caller:    deps.Caller,
		refresher: deps.Refresher,
		store:     deps.Store,
		codec:     deps.Codec,
		bus:       deps.Bus,
		logger:    logger,
	}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var payload model.LoginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBody)).Decode(&payload); err != nil {
		writeError(w, apierror.BadRequest("invalid JSON body", ""))
		return
	}
	if err := payload.Validate(); err != nil {
		writeError(w, err)
		return
	}

	record, err := h.establish(w, r, payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{"user": record}, nil)
}

// establish logs in against the backend and writes all three cookies.
func (h *AuthHandler) establish(w http.ResponseWriter, r *http.Request, payload model.LoginRequest) (*session.Record, error) {
	pair, record, err := h.client.Login(r.Context(), payload.Identifier(), payload.Password)
	if err != nil {
		if errors.Is(err, backend.ErrInvalidCredentials) {
			event.Publish(h.bus, event.New(event.TypeLoginFailed, "", map[string]any{
				"username":  payload.Identifier(),
				"client_ip": middleware.ClientIP(r),
			}))
		}
		return nil, err
	}

	jar := h.store.Bind(w, r)
	cookie.Clear(jar)
	cookie.SetTokens(jar, pair.AccessToken, pair.RefreshToken, 0, 0)
	if err := h.codec.Create(jar, record); err != nil {
		cookie.Clear(jar)
		return nil, err
	}

	h.logger.Info("user logged in", "user_id", record.UserID, "role", record.Role)
	event.Publish(h.bus, event.New(event.TypeSessionCreated, record.UserID, map[string]any{
		"client_ip": middleware.ClientIP(r),
	}))

	return &record, nil
}

// Logout revokes the tokens on the backend when it can and clears the
// cookies in every case.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.end(w, r)
	writeSuccess(w, http.StatusOK, map[string]any{"loggedOut": true}, nil)
}

func (h *AuthHandler) end(w http.ResponseWriter, r *http.Request) {
	jar := h.store.Bind(w, r)
	actor := h.codec.UserID(jar)

	// Read at call time: Do may rotate the refresh token before logging out.
	logout := func(ctx context.Context, accessToken string) (*http.Response, error) {
		refreshToken, _ := jar.Get(cookie.RefreshTokenCookie)
		return h.client.Logout(refreshToken)(ctx, accessToken)
	}
	if _, err := h.caller.Do(r.Context(), jar, logout); err != nil && !authcall.IsAuthExpired(err) {
		h.logger.Warn("backend logout failed", "user_id", actor, "error", err)
	}

	cookie.Clear(jar)
	event.Publish(h.bus, event.New(event.TypeSessionDestroyed, actor, nil))
}

// Session returns the current record and slides its expiry.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	jar := h.store.Bind(w, r)

	record := h.codec.Get(jar)
	if record == nil {
		writeError(w, apierror.ErrUnauthorized)
		return
	}
	h.codec.Refresh(jar)

	writeSuccess(w, http.StatusOK, model.SessionView{
		User:      *record,
		ExpiresAt: time.Now().Add(h.codec.TTL()).UTC(),
	}, nil)
}

// Refresh rotates the token pair on demand, for clients that cannot
// write cookies themselves.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	jar := h.store.Bind(w, r)

	if _, err := h.refresher.Refresh(r.Context(), jar); err != nil {
		if errors.Is(err, token.ErrNoRefreshToken) {
			cookie.Clear(jar)
			writeError(w, apierror.ErrUnauthorized)
			return
		}
		writeError(w, apierror.ErrRefreshFailed)
		return
	}
	h.codec.Refresh(jar)

	writeSuccess(w, http.StatusOK, map[string]any{"refreshed": true}, nil)
}
