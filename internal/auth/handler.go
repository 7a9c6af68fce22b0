package auth

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/redmonkez12/printcost-auth/internal/httputil"
	"github.com/redmonkez12/printcost-auth/internal/logging"
	"github.com/redmonkez12/printcost-auth/internal/user"
)

const maxRequestBodyBytes = 1 << 20

const (
	msgSignup        = "Signup successful. Please check your email to verify your account."
	msgEmailVerified = "Email verified successfully. You can now log in."
	msgResendGeneric = "If an account with that email exists and is not yet verified, a verification email has been sent."
	msgForgotGeneric = "If an account with that email exists, a password reset link has been sent."
	msgPasswordReset = "Password has been reset successfully. Please log in with your new password."
	msgLoggedOut     = "Logged out successfully."
)

// EventRecorder counts auth outcomes. A nil recorder is allowed.
type EventRecorder interface {
	AuthEvent(event, outcome string)
}

// Handler contains HTTP handlers for authentication endpoints
type Handler struct {
	service  *Service
	recorder EventRecorder
	logger   *logging.Logger
}

func NewHandler(service *Service, recorder EventRecorder, logger *logging.Logger) *Handler {
	return &Handler{
		service:  service,
		recorder: recorder,
		logger:   logger,
	}
}

// SignupRequest represents the signup request body
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// EmailRequest is the body of resend-verification and forgot-password
type EmailRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest represents the password reset confirmation
type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// MeResponse wraps the current user
type MeResponse struct {
	User user.Public `json:"user"`
}

// Signup handles account creation
// @Summary      Create an account
// @Description  Create an unverified account. A verification email is sent; the token is never returned.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body SignupRequest true "Signup data"
// @Success      201 {object} httputil.MessageResponse
// @Failure      400 {object} httputil.ErrorResponse "Missing or invalid fields"
// @Failure      409 {object} httputil.ErrorResponse "Email already registered"
// @Failure      429 {object} httputil.ErrorResponse "Too many requests"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /auth/signup [post]
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !h.decode(w, r, "signup", &req) {
		return
	}

	if err := h.service.Signup(r.Context(), req.Name, req.Email, req.Password); err != nil {
		h.respondServiceError(w, r, "signup", err)
		return
	}

	h.record("signup", "success")
	httputil.RespondMessage(w, msgSignup, http.StatusCreated)
}

// VerifyEmail handles email verification
// @Summary      Verify email address
// @Description  Consume a verification token from the emailed link
// @Tags         auth
// @Produce      json
// @Param        token query string true "Verification token"
// @Success      200 {object} httputil.MessageResponse
// @Failure      400 {object} httputil.ErrorResponse "Missing, invalid, used or expired token"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /auth/verify-email [get]
func (h *Handler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	if err := h.service.VerifyEmail(r.Context(), r.URL.Query().Get("token")); err != nil {
		h.respondServiceError(w, r, "verify_email", err)
		return
	}

	h.record("verify_email", "success")
	httputil.RespondMessage(w, msgEmailVerified, http.StatusOK)
}

// ResendVerification handles resending the verification email
// @Summary      Resend verification email
// @Description  Always answers with the same message whether or not the account exists
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body EmailRequest true "Account email"
// @Success      200 {object} httputil.MessageResponse
// @Failure      400 {object} httputil.ErrorResponse "Missing email"
// @Router       /auth/resend-verification [post]
func (h *Handler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if !h.decode(w, r, "resend_verification", &req) {
		return
	}

	if err := h.service.ResendVerification(r.Context(), req.Email); err != nil {
		h.respondServiceError(w, r, "resend_verification", err)
		return
	}

	h.record("resend_verification", "success")
	httputil.RespondMessage(w, msgResendGeneric, http.StatusOK)
}

// Login handles user login
// @Summary      User login
// @Description  Authenticate and receive a session token
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body LoginRequest true "Login credentials"
// @Success      200 {object} LoginResult
// @Failure      400 {object} httputil.ErrorResponse "Missing fields"
// @Failure      401 {object} httputil.ErrorResponse "Invalid email or password"
// @Failure      403 {object} httputil.ErrorResponse "Email not verified"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, "login", &req) {
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password, clientInfo(r))
	if err != nil {
		h.respondServiceError(w, r, "login", err)
		return
	}

	logging.GetLoggerFromContext(r.Context()).Info("user logged in", "user_id", result.User.ID)
	h.record("login", "success")
	httputil.RespondJSON(w, result, http.StatusOK)
}

// ForgotPassword handles password reset requests
// @Summary      Request password reset
// @Description  Always answers with the same message whether or not the account exists
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body EmailRequest true "Account email"
// @Success      200 {object} httputil.MessageResponse
// @Failure      400 {object} httputil.ErrorResponse "Missing email"
// @Router       /auth/forgot-password [post]
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if !h.decode(w, r, "forgot_password", &req) {
		return
	}

	if err := h.service.ForgotPassword(r.Context(), req.Email); err != nil {
		h.respondServiceError(w, r, "forgot_password", err)
		return
	}

	h.record("forgot_password", "success")
	httputil.RespondMessage(w, msgForgotGeneric, http.StatusOK)
}

// ResetPassword handles password reset confirmation
// @Summary      Reset password
// @Description  Set a new password with a reset token. Every session of the user is revoked.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        request body ResetPasswordRequest true "Reset token and new password"
// @Success      200 {object} httputil.MessageResponse
// @Failure      400 {object} httputil.ErrorResponse "Missing, invalid, used or expired token"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /auth/reset-password [post]
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !h.decode(w, r, "reset_password", &req) {
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		h.respondServiceError(w, r, "reset_password", err)
		return
	}

	h.record("reset_password", "success")
	httputil.RespondMessage(w, msgPasswordReset, http.StatusOK)
}

// Me returns the current user
// @Summary      Current user
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} MeResponse
// @Failure      401 {object} httputil.ErrorResponse "Unauthorized"
// @Router       /auth/me [get]
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.respondServiceError(w, r, "me", ErrUnauthorized)
		return
	}

	u, err := h.service.Me(r.Context(), principal)
	if err != nil {
		h.respondServiceError(w, r, "me", err)
		return
	}

	httputil.RespondJSON(w, MeResponse{User: *u}, http.StatusOK)
}

// Logout revokes the calling session
// @Summary      Logout
// @Description  Revoke the session behind the bearer token. Other sessions stay valid.
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} httputil.MessageResponse
// @Failure      401 {object} httputil.ErrorResponse "Unauthorized"
// @Router       /auth/logout [post]
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.respondServiceError(w, r, "logout", ErrUnauthorized)
		return
	}

	if err := h.service.Logout(r.Context(), principal); err != nil {
		h.respondServiceError(w, r, "logout", err)
		return
	}

	h.record("logout", "success")
	httputil.RespondMessage(w, msgLoggedOut, http.StatusOK)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, event string, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		logging.GetLoggerFromContext(r.Context()).Warn("invalid request body", "event", event, "error", err.Error())
		h.respondServiceError(w, r, event, ErrInvalidRequestBody)
		return false
	}
	return true
}

// respondServiceError writes client errors as-is and hides everything else
// behind a generic 500.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, event string, err error) {
	logger := logging.GetLoggerFromContext(r.Context())

	if ae, ok := asError(err); ok {
		logger.Warn(event+" rejected", "code", ae.Code)
		h.record(event, ae.Code)
		httputil.RespondErrorWithCode(w, ae.Message, ae.Code, ae.Kind.HTTPStatus())
		return
	}

	logger.Error(event+" failed", "error", err.Error())
	h.record(event, httputil.CodeInternalError)
	httputil.RespondInternalError(w)
}

func (h *Handler) record(event, outcome string) {
	if h.recorder != nil {
		h.recorder.AuthEvent(event, outcome)
	}
}

func clientInfo(r *http.Request) ClientInfo {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return ClientInfo{IP: ip, UserAgent: r.UserAgent()}
}
