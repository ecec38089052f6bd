package handlers

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"studypal/internal/auth"
	mw "studypal/internal/middleware"
	"studypal/internal/models"
	"studypal/internal/services"
)

const (
	stateCookie = "oauth_state"
	stateTTL    = 10 * time.Minute
)

type OTPFlow interface {
	Issue(ctx context.Context, req services.IssueRequest) error
	Verify(ctx context.Context, req services.VerifyRequest) (*models.User, error)
}

type Accounts interface {
	Signup(ctx context.Context, req services.SignupRequest) (*models.User, error)
	Login(ctx context.Context, email, password string) (*models.User, string, error)
	LoginWithGoogle(ctx context.Context, p *auth.GoogleProfile) (*models.User, string, error)
	CurrentUser(ctx context.Context, claims *auth.Claims) (*models.User, error)
}

type OAuthProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GoogleProfile, error)
}

// SessionCookies controls how the session cookie is written.
type SessionCookies struct {
	Secure bool
	TTL    time.Duration
}

type AuthHandler struct {
	otp      OTPFlow
	accounts Accounts
	google   OAuthProvider // nil when Google sign-in is not configured
	cookies  SessionCookies
	rs       Responder
}

func NewAuthHandler(otp OTPFlow, accounts Accounts, google OAuthProvider, cookies SessionCookies, rs Responder) *AuthHandler {
	return &AuthHandler{otp: otp, accounts: accounts, google: google, cookies: cookies, rs: rs}
}

var otpFailure = failure{internal: "Database error"}

type sendOTPRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// SendOTP godoc
// @Summary Start sign-up by mailing a one-time code
// @Tags auth
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 400 {object} errorBody
// @Failure 429 {object} errorBody
// @Failure 500 {object} errorBody
// @Router /auth/send-otp [post]
func (h *AuthHandler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req sendOTPRequest
	if err := decode(r, &req); err != nil {
		h.rs.badBody(w)
		return
	}
	err := h.otp.Issue(r.Context(), services.IssueRequest{Email: req.Email, Password: req.Password, Name: req.Name})
	if err != nil {
		h.rs.fail(w, r, err, otpFailure)
		return
	}
	h.rs.json(w, http.StatusOK, map[string]string{"message": "OTP sent to your email"})
}

type verifyOTPRequest struct {
	Email    string `json:"email"`
	OTP      string `json:"otp"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// VerifyOTP godoc
// @Summary Finish sign-up with the mailed code
// @Tags auth
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} errorBody
// @Router /auth/verify-otp [post]
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := decode(r, &req); err != nil {
		h.rs.badBody(w)
		return
	}
	u, err := h.otp.Verify(r.Context(), services.VerifyRequest{
		Email:    req.Email,
		OTP:      req.OTP,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		h.rs.fail(w, r, err, otpFailure)
		return
	}
	h.rs.json(w, http.StatusOK, map[string]any{"message": "User created successfully", "user": ToUserDTO(u)})
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decode(r, &req); err != nil {
		h.rs.badBody(w)
		return
	}
	u, err := h.accounts.Signup(r.Context(), services.SignupRequest{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Role:     req.Role,
	})
	if err != nil {
		h.rs.fail(w, r, err, failure{internal: "Failed to create user"})
		return
	}
	h.rs.json(w, http.StatusOK, map[string]any{"message": "User created successfully", "user": ToUserDTO(u)})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		h.rs.badBody(w)
		return
	}
	u, token, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.rs.fail(w, r, err, failure{internal: "Failed to sign in"})
		return
	}
	h.setSession(w, token)
	h.rs.json(w, http.StatusOK, map[string]any{"token": token, "user": ToUserDTO(u)})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     mw.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	h.rs.json(w, http.StatusOK, map[string]string{"message": "Signed out"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, _, ok := h.rs.caller(w, r)
	if !ok {
		return
	}
	u, err := h.accounts.CurrentUser(r.Context(), claims)
	if err != nil {
		h.rs.fail(w, r, err, failure{internal: "Failed to load user", notFound: "User not found"})
		return
	}
	h.rs.json(w, http.StatusOK, map[string]any{"user": ToUserDTO(u)})
}

func (h *AuthHandler) setSession(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     mw.SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.cookies.TTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func newState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// homeFor is where a freshly signed-in user lands.
func homeFor(role models.Role) string {
	if role == models.RoleTeacher {
		return "/quiz"
	}
	return "/dashboard"
}

func signInError(code string) string {
	return mw.SignInPath + "?error=" + url.QueryEscape(code)
}

// GoogleStart redirects to the consent screen. The state is bound to the browser by a short-lived cookie.
func (h *AuthHandler) GoogleStart(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		h.rs.error(w, http.StatusNotFound, "Google sign-in is not configured")
		return
	}
	state, err := newState()
	if err != nil {
		h.rs.upstream(w, r, "Failed to start Google sign-in", err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/api/auth/google",
		MaxAge:   int(stateTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.google.AuthURL(state), http.StatusFound)
}

// GoogleCallback completes the code exchange, signs the user in and sends them home.
// Failures go back to the sign-in page with an error code.
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		h.rs.error(w, http.StatusNotFound, "Google sign-in is not configured")
		return
	}
	q := r.URL.Query()
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/api/auth/google", MaxAge: -1, HttpOnly: true})

	if q.Get("error") != "" {
		http.Redirect(w, r, signInError("AccessDenied"), http.StatusFound)
		return
	}
	c, err := r.Cookie(stateCookie)
	if err != nil || c.Value == "" || subtle.ConstantTimeCompare([]byte(c.Value), []byte(q.Get("state"))) != 1 {
		http.Redirect(w, r, signInError("OAuthState"), http.StatusFound)
		return
	}

	profile, err := h.google.Exchange(r.Context(), q.Get("code"))
	if err != nil {
		h.rs.logger.Warn("google code exchange failed", zap.Error(err))
		http.Redirect(w, r, signInError("OAuthCallback"), http.StatusFound)
		return
	}
	u, token, err := h.accounts.LoginWithGoogle(r.Context(), profile)
	if err != nil {
		h.rs.logger.Error("google sign-in failed", zap.Error(err))
		http.Redirect(w, r, signInError("OAuthCallback"), http.StatusFound)
		return
	}
	h.setSession(w, token)
	http.Redirect(w, r, homeFor(u.Role), http.StatusFound)
}
