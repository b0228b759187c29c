package handler

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/dtroode/accessgate/internal/apierror"
	"github.com/dtroode/accessgate/internal/logger"
	"github.com/dtroode/accessgate/internal/model"
	"github.com/dtroode/accessgate/internal/service"
	"github.com/dtroode/accessgate/internal/session"
)

const (
	oauthStateCookie = "oauth_state"
	oauthStateMaxAge = 600

	callbackErrorNoInvite       = "no_invite"
	callbackErrorExchangeFailed = "oauth_exchange_failed"
)

// AuthService defines the sign-in operations exposed over HTTP.
type AuthService interface {
	Register(ctx context.Context, email, password string) (*session.Response, error)
	Login(ctx context.Context, email, password string) (*session.Response, error)
	OAuthStart(provider, state string) (string, error)
	OAuthCallback(ctx context.Context, provider, code string) (service.OAuthResult, error)
	WhoAmI(ctx context.Context, userID uuid.UUID) (*session.Response, error)
}

// Auth handles the /auth routes.
type Auth struct {
	service             AuthService
	contextManager      model.ContextManager
	frontendRedirectURL string
	secureCookies       bool
	logger              *logger.Logger
}

// NewAuth creates a new Auth handler instance.
func NewAuth(
	service AuthService,
	contextManager model.ContextManager,
	frontendRedirectURL string,
	secureCookies bool,
	logger *logger.Logger,
) *Auth {
	return &Auth{
		service:             service,
		contextManager:      contextManager,
		frontendRedirectURL: frontendRedirectURL,
		secureCookies:       secureCookies,
		logger:              logger,
	}
}

type credentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register creates a password principal and returns its session.
func (h *Auth) Register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "email and password are required")
		return
	}

	resp, err := h.service.Register(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, resp.Payload())
}

// Login verifies local credentials and returns a session.
func (h *Auth) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "email and password are required")
		return
	}

	resp, err := h.service.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, resp.Payload())
}

// Me returns the current entitlement of the authenticated principal.
func (h *Auth) Me(c *gin.Context) {
	userID, ok := h.contextManager.GetUserIDFromContext(c.Request.Context())
	if !ok {
		writeError(c, h.logger, apierror.NewErrMissingAuthorizationToken())
		return
	}

	resp, err := h.service.WhoAmI(c.Request.Context(), userID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, resp.Payload())
}

// OAuthStart redirects to the provider consent page. The state is kept in a
// short lived cookie and checked on callback.
func (h *Auth) OAuthStart(c *gin.Context) {
	state := oauth2.GenerateVerifier()

	target, err := h.service.OAuthStart(c.Param("provider"), state)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(oauthStateCookie, state, oauthStateMaxAge, "/auth/oauth", "", h.secureCookies, true)
	c.Redirect(http.StatusFound, target)
}

// OAuthCallback completes the provider flow and hands the session to the
// frontend through query parameters.
func (h *Auth) OAuthCallback(c *gin.Context) {
	provider := c.Param("provider")

	c.SetSameSite(http.SameSiteLaxMode)
	cookieState, _ := c.Cookie(oauthStateCookie)
	c.SetCookie(oauthStateCookie, "", -1, "/auth/oauth", "", h.secureCookies, true)

	state := c.Query("state")
	if state == "" || subtle.ConstantTimeCompare([]byte(state), []byte(cookieState)) != 1 {
		h.logger.Warn("OAuth callback: state mismatch", "provider", provider)
		h.redirectError(c, callbackErrorExchangeFailed)
		return
	}

	code := c.Query("code")
	if code == "" {
		h.logger.Warn("OAuth callback: provider returned no code",
			"provider", provider,
			"provider_error", c.Query("error"))
		h.redirectError(c, callbackErrorExchangeFailed)
		return
	}

	result, err := h.service.OAuthCallback(c.Request.Context(), provider, code)
	if err != nil {
		if errors.Is(err, model.ErrPaymentDisabled) {
			h.redirectError(c, callbackErrorNoInvite)
			return
		}
		h.logger.Warn("OAuth callback: sign-in failed",
			"provider", provider,
			"error", err)
		h.redirectError(c, callbackErrorExchangeFailed)
		return
	}

	payload := result.Session.Payload()
	h.redirect(c, url.Values{
		"token":            {payload.AuthToken},
		"user_id":          {payload.AuthUser.ID.String()},
		"email":            {payload.AuthUser.Email},
		"is_new_user":      {strconv.FormatBool(result.IsNewUser)},
		"payment_required": {strconv.FormatBool(payload.PaymentUser.PaymentRequired)},
		"has_valid_invite": {strconv.FormatBool(payload.PaymentUser.HasValidInvite)},
	})
}

func (h *Auth) redirectError(c *gin.Context, code string) {
	h.redirect(c, url.Values{"error": {code}})
}

func (h *Auth) redirect(c *gin.Context, params url.Values) {
	target, err := url.Parse(h.frontendRedirectURL)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	query := target.Query()
	for k, v := range params {
		query[k] = v
	}
	target.RawQuery = query.Encode()

	c.Redirect(http.StatusFound, target.String())
}
