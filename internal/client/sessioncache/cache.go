package sessioncache

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/dtroode/accessgate/internal/clock"
	"github.com/dtroode/accessgate/internal/logger"
	"github.com/dtroode/accessgate/internal/model"
	"github.com/dtroode/accessgate/internal/session"
)

// Route is a navigation destination.
type Route string

const (
	RouteSignIn  Route = "sign-in"
	RoutePayWall Route = "pay-wall"
	RouteApp     Route = "app"
)

// State is the logical session state a route corresponds to.
type State string

const (
	StateSignedOut               State = "signed-out"
	StateSignedInPaymentRequired State = "signed-in-payment-required"
	StateSignedInEntitled        State = "signed-in-entitled"
)

// State returns the session state behind r.
func (r Route) State() State {
	switch r {
	case RouteApp:
		return StateSignedInEntitled
	case RoutePayWall:
		return StateSignedInPaymentRequired
	default:
		return StateSignedOut
	}
}

const (
	DefaultFreshness      = 5 * time.Minute
	DefaultGrace          = 15 * time.Minute
	DefaultRefreshTimeout = 10 * time.Second

	refreshKey       = "whoami:"
	maxRouteAttempts = 3
)

var (
	// ErrMissingToken is returned for sign-in responses without a token.
	ErrMissingToken = errors.New("session response carries no token")
	// ErrNoInvite is reported by an OAuth callback for an uninvited identity.
	ErrNoInvite = errors.New("no invitation for identity and payment is disabled")
	// ErrSessionChanged is returned when the stored session keeps changing
	// while its entitlement is being refreshed.
	ErrSessionChanged = errors.New("session changed during refresh")
	// ErrSignedOut is returned by WhoAmI when no credentials are stored.
	ErrSignedOut = errors.New("not signed in")
)

// Fetcher retrieves the current entitlement for a token.
type Fetcher interface {
	WhoAmI(ctx context.Context, token string) (session.Payload, error)
}

// Options tunes refresh behaviour. Zero values select the defaults.
type Options struct {
	Freshness      time.Duration
	Grace          time.Duration
	RefreshTimeout time.Duration
}

// Cache decides where a client should navigate. State is re-read from the
// stores on every decision so changes made by other processes are observed.
type Cache struct {
	durable   DurableStore
	ephemeral EphemeralStore
	fetcher   Fetcher
	clock     clock.Clock
	opts      Options
	refresh   singleflight.Group
	logger    *logger.Logger
}

// NewCache creates a session cache.
func NewCache(
	durable DurableStore,
	ephemeral EphemeralStore,
	fetcher Fetcher,
	clk clock.Clock,
	opts Options,
	logger *logger.Logger,
) *Cache {
	if opts.Freshness <= 0 {
		opts.Freshness = DefaultFreshness
	}
	if opts.Grace < opts.Freshness {
		opts.Grace = max(DefaultGrace, opts.Freshness)
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = DefaultRefreshTimeout
	}
	return &Cache{
		durable:   durable,
		ephemeral: ephemeral,
		fetcher:   fetcher,
		clock:     clk,
		opts:      opts,
		logger:    logger,
	}
}

// SignIn stores a session response from register, login or OAuth.
func (c *Cache) SignIn(ctx context.Context, payload session.Payload) error {
	if payload.AuthToken == "" {
		return ErrMissingToken
	}

	if err := c.durable.SaveCredentials(ctx, Credentials{Token: payload.AuthToken, User: payload.AuthUser}); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	if err := c.ephemeral.SaveSnapshot(ctx, Snapshot{
		UserID:    payload.AuthUser.ID,
		Payment:   payload.PaymentUser,
		FetchedAt: c.clock.Now(),
	}); err != nil {
		return fmt.Errorf("failed to save entitlement snapshot: %w", err)
	}

	c.logger.Info("Session cache: signed in",
		"user_id", payload.AuthUser.ID)
	return nil
}

// SignInFromCallback stores the session carried by an OAuth redirect. The
// redirect has no expiry information so the snapshot is dropped and the next
// NextRoute refreshes it.
func (c *Cache) SignInFromCallback(ctx context.Context, query url.Values) (isNewUser bool, err error) {
	switch query.Get("error") {
	case "":
	case "no_invite":
		return false, ErrNoInvite
	default:
		return false, fmt.Errorf("%w: %s", model.ErrExchangeFailed, query.Get("error"))
	}

	token := query.Get("token")
	if token == "" {
		return false, ErrMissingToken
	}
	userID, err := uuid.Parse(query.Get("user_id"))
	if err != nil {
		return false, fmt.Errorf("%w: invalid user_id", ErrMissingToken)
	}

	creds := Credentials{
		Token: token,
		User:  session.UserView{ID: userID, Email: query.Get("email")},
	}
	if err := c.durable.SaveCredentials(ctx, creds); err != nil {
		return false, fmt.Errorf("failed to save credentials: %w", err)
	}
	if err := c.ephemeral.ClearSnapshot(ctx); err != nil {
		return false, fmt.Errorf("failed to clear entitlement snapshot: %w", err)
	}

	isNewUser, _ = strconv.ParseBool(query.Get("is_new_user"))
	return isNewUser, nil
}

// SignOut clears both stores.
func (c *Cache) SignOut(ctx context.Context) error {
	return c.clear(ctx)
}

// Credentials returns the stored credentials, nil when signed out.
func (c *Cache) Credentials(ctx context.Context) (*Credentials, error) {
	return c.durable.LoadCredentials(ctx)
}

// Snapshot returns the stored entitlement snapshot, nil when absent.
func (c *Cache) Snapshot(ctx context.Context) (*Snapshot, error) {
	return c.ephemeral.LoadSnapshot(ctx)
}

// WhoAmI fetches the current session from the server and stores its
// entitlement snapshot. A rejected token signs the client out; a failure to
// clear the stores is returned together with the rejection.
func (c *Cache) WhoAmI(ctx context.Context) (session.Payload, error) {
	creds, err := c.durable.LoadCredentials(ctx)
	if err != nil {
		return session.Payload{}, fmt.Errorf("failed to load credentials: %w", err)
	}
	if creds == nil {
		return session.Payload{}, ErrSignedOut
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.opts.RefreshTimeout)
	defer cancel()

	payload, err := c.fetcher.WhoAmI(fetchCtx, creds.Token)
	if err != nil {
		if !IsAuthFailure(err) {
			return session.Payload{}, err
		}
		switch currentErr := c.ensureCurrent(ctx, creds.Token); {
		case currentErr == nil:
			return session.Payload{}, errors.Join(err, c.clear(ctx))
		case errors.Is(currentErr, ErrSessionChanged):
			return session.Payload{}, err
		default:
			return session.Payload{}, errors.Join(err, currentErr)
		}
	}

	if err := c.ensureCurrent(ctx, creds.Token); err != nil {
		return session.Payload{}, err
	}
	snap := Snapshot{UserID: creds.User.ID, Payment: payload.PaymentUser, FetchedAt: c.clock.Now()}
	if err := c.ephemeral.SaveSnapshot(ctx, snap); err != nil {
		return session.Payload{}, fmt.Errorf("failed to save entitlement snapshot: %w", err)
	}
	return payload, nil
}

// NextRoute returns the destination for the next navigation. A stale or
// missing snapshot is refreshed first; concurrent callers holding the same
// token share one refresh. If another process signs out or in while the
// refresh runs, the decision is taken again against the new session.
func (c *Cache) NextRoute(ctx context.Context) (Route, error) {
	for attempt := 1; ; attempt++ {
		route, err := c.nextRoute(ctx)
		if !errors.Is(err, ErrSessionChanged) || attempt >= maxRouteAttempts {
			return route, err
		}
		c.logger.Debug("Session cache: session changed during refresh, deciding again",
			"attempt", attempt)
	}
}

func (c *Cache) nextRoute(ctx context.Context) (Route, error) {
	creds, err := c.durable.LoadCredentials(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load credentials: %w", err)
	}
	if creds == nil {
		return RouteSignIn, nil
	}

	snap, err := c.ephemeral.LoadSnapshot(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load entitlement snapshot: %w", err)
	}
	if belongsTo(snap, creds) && c.fresh(snap) {
		return c.decide(snap), nil
	}

	held := *creds
	ch := c.refresh.DoChan(refreshKey+held.Token, func() (interface{}, error) {
		return c.refreshRoute(context.WithoutCancel(ctx), held)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(Route), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// refreshRoute fetches the entitlement for held. Results are written back
// only while held is still the stored session.
func (c *Cache) refreshRoute(ctx context.Context, held Credentials) (Route, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, c.opts.RefreshTimeout)
	defer cancel()

	payload, err := c.fetcher.WhoAmI(fetchCtx, held.Token)
	if err == nil {
		snap := Snapshot{UserID: held.User.ID, Payment: payload.PaymentUser, FetchedAt: c.clock.Now()}
		if err := c.ensureCurrent(ctx, held.Token); err != nil {
			return "", err
		}
		if err := c.ephemeral.SaveSnapshot(ctx, snap); err != nil {
			return "", fmt.Errorf("failed to save entitlement snapshot: %w", err)
		}
		return c.decide(&snap), nil
	}

	if IsAuthFailure(err) {
		if err := c.ensureCurrent(ctx, held.Token); err != nil {
			return "", err
		}
		c.logger.Info("Session cache: token rejected, signing out")
		if err := c.clear(ctx); err != nil {
			return "", err
		}
		return RouteSignIn, nil
	}

	if err := c.ensureCurrent(ctx, held.Token); err != nil {
		return "", err
	}
	snap, loadErr := c.ephemeral.LoadSnapshot(ctx)
	if loadErr != nil {
		return "", fmt.Errorf("failed to load entitlement snapshot: %w", loadErr)
	}
	if belongsTo(snap, &held) && c.clock.Now().Before(snap.FetchedAt.Add(c.opts.Grace)) {
		c.logger.Warn("Session cache: refresh failed, using last snapshot",
			"fetched_at", snap.FetchedAt,
			"error", err.Error())
		return c.decide(snap), nil
	}

	c.logger.Warn("Session cache: refresh failed outside grace window, signing out",
		"error", err.Error())
	if err := c.clear(ctx); err != nil {
		return "", err
	}
	return RouteSignIn, nil
}

// ensureCurrent returns ErrSessionChanged unless token is still the stored
// one.
func (c *Cache) ensureCurrent(ctx context.Context, token string) error {
	creds, err := c.durable.LoadCredentials(ctx)
	if err != nil {
		return fmt.Errorf("failed to load credentials: %w", err)
	}
	if creds == nil || creds.Token != token {
		return ErrSessionChanged
	}
	return nil
}

// belongsTo reports whether snap was taken for the principal in creds.
func belongsTo(snap *Snapshot, creds *Credentials) bool {
	return snap != nil && creds != nil && snap.UserID == creds.User.ID
}

func (c *Cache) fresh(snap *Snapshot) bool {
	return c.clock.Now().Sub(snap.FetchedAt) < c.opts.Freshness
}

func (c *Cache) decide(snap *Snapshot) Route {
	if snap.Payment.Allowed(c.clock.Now()) {
		return RouteApp
	}
	return RoutePayWall
}

func (c *Cache) clear(ctx context.Context) error {
	var errs []error
	if err := c.durable.ClearCredentials(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to clear credentials: %w", err))
	}
	if err := c.ephemeral.ClearSnapshot(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to clear entitlement snapshot: %w", err))
	}
	return errors.Join(errs...)
}
