package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"

	"github.com/google/uuid"

	"github.com/dtroode/accessgate/internal/apierror"
	"github.com/dtroode/accessgate/internal/clock"
	"github.com/dtroode/accessgate/internal/credential"
	"github.com/dtroode/accessgate/internal/logger"
	"github.com/dtroode/accessgate/internal/model"
	"github.com/dtroode/accessgate/internal/session"
)

const minPasswordLength = 8

// PasswordVerifier checks local credentials.
type PasswordVerifier interface {
	Verify(ctx context.Context, email, password string) (model.User, error)
}

// PasswordHasher hashes local credentials.
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// IdentityExchanger trades provider authorization codes for verified identities.
type IdentityExchanger interface {
	AuthCodeURL(provider, state string) (string, error)
	Exchange(ctx context.Context, provider, code string) (credential.ExternalProfile, error)
}

// SessionIssuer builds unified session responses.
type SessionIssuer interface {
	Issue(ctx context.Context, userID uuid.UUID) (*session.Response, error)
	Refresh(ctx context.Context, userID uuid.UUID) (*session.Response, error)
}

// OAuthResult is the outcome of a provider callback.
type OAuthResult struct {
	Session   *session.Response
	IsNewUser bool
}

// Auth implements every sign-in entry point. Each one ends in the session
// issuer so they all return the same response.
type Auth struct {
	userStore      model.UserStore
	signupStore    model.SignupStore
	verifier       PasswordVerifier
	hasher         PasswordHasher
	exchanger      IdentityExchanger
	issuer         SessionIssuer
	clock          clock.Clock
	paymentEnabled bool
	logger         *logger.Logger
}

func NewAuth(
	userStore model.UserStore,
	signupStore model.SignupStore,
	verifier PasswordVerifier,
	hasher PasswordHasher,
	exchanger IdentityExchanger,
	issuer SessionIssuer,
	clk clock.Clock,
	paymentEnabled bool,
	logger *logger.Logger,
) *Auth {
	return &Auth{
		userStore:      userStore,
		signupStore:    signupStore,
		verifier:       verifier,
		hasher:         hasher,
		exchanger:      exchanger,
		issuer:         issuer,
		clock:          clk,
		paymentEnabled: paymentEnabled,
		logger:         logger,
	}
}

// Register creates a password principal. Without a payment collaborator the
// email must hold a redeemable invitation.
func (a *Auth) Register(ctx context.Context, email, password string) (*session.Response, error) {
	email = model.NormalizeEmail(email)
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}

	a.logger.Debug("Auth service: starting user registration",
		"email", email)

	// Duplicate check comes before any invitation work so existing accounts
	// do not reveal their invitation state.
	_, err := a.userStore.GetByEmail(ctx, email)
	if err == nil {
		a.logger.Info("Auth service: user already exists",
			"email", email)
		return nil, model.ErrDuplicateEmail
	}
	if !errors.Is(err, model.ErrNotFound) {
		a.logger.Error("Auth service: failed to get user by email",
			"email", email,
			"error", err.Error())
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	digest, err := a.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := a.clock.Now()
	reg, err := a.signupStore.Register(ctx, model.Signup{
		User: model.User{
			ID:           uuid.New(),
			Email:        email,
			PasswordHash: digest,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
		RequireInvitation: !a.paymentEnabled,
		Now:               now,
	})
	switch {
	case errors.Is(err, model.ErrInvitationRequired):
		a.logger.Info("Auth service: registration rejected without invitation",
			"email", email)
		return nil, fmt.Errorf("%w: %w", model.ErrPaymentDisabled, err)
	case errors.Is(err, model.ErrDuplicateEmail):
		return nil, model.ErrDuplicateEmail
	case err != nil:
		a.logger.Error("Auth service: failed to register user",
			"email", email,
			"error", err.Error())
		return nil, fmt.Errorf("failed to register user: %w", err)
	}

	a.logger.Info("Auth service: user registered",
		"user_id", reg.User.ID,
		"invitation_redeemed", reg.InvitationRedeemed)

	return a.issuer.Issue(ctx, reg.User.ID)
}

// Login verifies a local credential and issues a session.
func (a *Auth) Login(ctx context.Context, email, password string) (*session.Response, error) {
	user, err := a.verifier.Verify(ctx, email, password)
	if err != nil {
		if errors.Is(err, model.ErrInvalidCredentials) {
			a.logger.Info("Auth service: login rejected",
				"email", model.NormalizeEmail(email))
			return nil, model.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to verify credentials: %w", err)
	}

	a.logger.Info("Auth service: user logged in",
		"user_id", user.ID)

	return a.issuer.Issue(ctx, user.ID)
}

// OAuthStart returns the provider consent URL.
func (a *Auth) OAuthStart(provider, state string) (string, error) {
	return a.exchanger.AuthCodeURL(provider, state)
}

// OAuthCallback resolves the provider identity to a principal, creating one
// for a first-seen identity and email, and issues a session.
func (a *Auth) OAuthCallback(ctx context.Context, provider, code string) (OAuthResult, error) {
	profile, err := a.exchanger.Exchange(ctx, provider, code)
	if err != nil {
		a.logger.Warn("Auth service: oauth exchange failed",
			"provider", provider,
			"error", err.Error())
		return OAuthResult{}, err
	}

	user, isNew, err := a.resolveExternal(ctx, profile)
	if err != nil {
		return OAuthResult{}, err
	}

	resp, err := a.issuer.Issue(ctx, user.ID)
	if err != nil {
		return OAuthResult{}, err
	}

	a.logger.Info("Auth service: oauth sign-in completed",
		"provider", provider,
		"user_id", user.ID,
		"is_new_user", isNew)

	return OAuthResult{Session: resp, IsNewUser: isNew}, nil
}

func (a *Auth) resolveExternal(ctx context.Context, profile credential.ExternalProfile) (model.User, bool, error) {
	user, err := a.userStore.GetByIdentity(ctx, profile.Provider, profile.Subject)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return model.User{}, false, fmt.Errorf("failed to get user by identity: %w", err)
	}

	user, err = a.linkByEmail(ctx, profile)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return model.User{}, false, err
	}

	now := a.clock.Now()
	reg, err := a.signupStore.Register(ctx, model.Signup{
		User: model.User{
			ID:        uuid.New(),
			Email:     profile.Email,
			CreatedAt: now,
			UpdatedAt: now,
		},
		Identity: &model.ExternalIdentity{
			Provider:  profile.Provider,
			Subject:   profile.Subject,
			CreatedAt: now,
		},
		RequireInvitation: !a.paymentEnabled,
		Now:               now,
	})
	switch {
	case errors.Is(err, model.ErrInvitationRequired):
		a.logger.Info("Auth service: first-seen identity without invitation",
			"provider", profile.Provider,
			"email", profile.Email)
		return model.User{}, false, model.ErrNoInviteAndPaymentDisabled
	case errors.Is(err, model.ErrDuplicateEmail):
		// Lost a race with a concurrent signup for the same email.
		user, err = a.linkByEmail(ctx, profile)
		if err != nil {
			return model.User{}, false, err
		}
		return user, false, nil
	case err != nil:
		return model.User{}, false, fmt.Errorf("failed to register user: %w", err)
	}

	return reg.User, true, nil
}

func (a *Auth) linkByEmail(ctx context.Context, profile credential.ExternalProfile) (model.User, error) {
	user, err := a.userStore.GetByEmail(ctx, profile.Email)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.User{}, err
		}
		return model.User{}, fmt.Errorf("failed to get user by email: %w", err)
	}

	err = a.userStore.LinkIdentity(ctx, model.ExternalIdentity{
		Provider:  profile.Provider,
		Subject:   profile.Subject,
		UserID:    user.ID,
		CreatedAt: a.clock.Now(),
	})
	if err != nil {
		return model.User{}, fmt.Errorf("failed to link identity: %w", err)
	}
	return user, nil
}

// WhoAmI rebuilds the session of an already authenticated principal.
func (a *Auth) WhoAmI(ctx context.Context, userID uuid.UUID) (*session.Response, error) {
	return a.issuer.Refresh(ctx, userID)
}

func validateCredentials(email, password string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apierror.NewErrBadRequest("invalid email")
	}
	if len(password) < minPasswordLength {
		return apierror.NewErrBadRequest(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	return nil
}
