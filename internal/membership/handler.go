// internal/membership/handler.go
package membership

import (
	"errors"
	"net/http"
	"time"

	"onlinelibrary/internal/platform/httpjson"
)

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Issue(userID int64, userName string) (string, time.Time, error)
}

type Handler struct {
	service Service
	tokens  TokenIssuer
}

func NewHandler(service Service, tokens TokenIssuer) *Handler {
	return &Handler{service: service, tokens: tokens}
}

type credentialsRequest struct {
	UserName string `json:"user_name"`
	Password string `json:"password"`
}

type sessionResponse struct {
	User      *User     `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Fail(w, http.StatusBadRequest, err)
		return
	}

	user, err := h.service.Register(r.Context(), req.UserName, req.Password)
	if err != nil {
		httpjson.Fail(w, statusFor(err), err)
		return
	}
	h.writeSession(w, http.StatusCreated, user)
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := httpjson.Decode(r, &req); err != nil {
		httpjson.Fail(w, http.StatusBadRequest, err)
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.UserName, req.Password)
	if err != nil {
		httpjson.Fail(w, statusFor(err), err)
		return
	}
	h.writeSession(w, http.StatusOK, user)
}

func (h *Handler) writeSession(w http.ResponseWriter, status int, user *User) {
	token, expires, err := h.tokens.Issue(user.ID, user.UserName)
	if err != nil {
		httpjson.Fail(w, http.StatusInternalServerError, err)
		return
	}
	httpjson.Write(w, status, sessionResponse{User: user, Token: token, ExpiresAt: expires})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return httpjson.Status(err)
	}
}
