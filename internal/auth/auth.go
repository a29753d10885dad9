// Package auth authenticates API callers and resolves them to an actor with
// a firm role.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc"
	"golang.org/x/oauth2"

	"veritas/backend/internal/config"
	"veritas/backend/pkg/models"
)

// DefaultTokenTTL is used when auth.token_ttl is not set.
const DefaultTokenTTL = 8 * time.Hour

// DevActor is the identity used when the development bypass is on.
var DevActor = models.Actor{UserID: "dev-user", Email: "dev@localhost", Role: models.RolePartner}

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Auth verifies bearer tokens and session cookies. Tokens are either signed
// locally with the shared secret or issued by the OpenID Connect provider.
type Auth struct {
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
	apiVerifier  *oidc.IDTokenVerifier
	secret       []byte
	tokenTTL     time.Duration
	logger       Logger
	authBypass   bool
}

// New creates an Auth from the application configuration. The OIDC provider
// is contacted only when an issuer is configured.
func New(ctx context.Context, cfg *config.Config, logger Logger) (*Auth, error) {
	a := &Auth{
		secret:     []byte(cfg.Auth.JWTSecret),
		tokenTTL:   cfg.Auth.TokenTTL,
		logger:     logger,
		authBypass: cfg.IsDev() && cfg.DevModeBypass,
	}
	if a.tokenTTL <= 0 {
		a.tokenTTL = DefaultTokenTTL
	}
	if a.authBypass {
		return a, nil
	}

	if cfg.Auth.OktaDomain != "" {
		if cfg.Auth.ClientID == "" || cfg.Auth.ClientSecret == "" || cfg.Auth.RedirectURL == "" {
			return nil, errors.New("auth configuration is incomplete")
		}
		provider, err := oidc.NewProvider(ctx, cfg.Auth.OktaDomain)
		if err != nil {
			return nil, err
		}
		a.oauth2Config = &oauth2.Config{
			ClientID:     cfg.Auth.ClientID,
			ClientSecret: cfg.Auth.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.Auth.RedirectURL,
			Scopes:       AllScopes,
		}
		a.verifier = provider.Verifier(&oidc.Config{ClientID: cfg.Auth.ClientID})
		// Access tokens carry an API audience rather than the client ID.
		a.apiVerifier = provider.Verifier(&oidc.Config{SkipClientIDCheck: true})
	}

	if len(a.secret) == 0 && a.apiVerifier == nil {
		return nil, errors.New("auth configuration is incomplete: set auth.jwt_secret or auth.okta_domain")
	}
	return a, nil
}

// IssueToken mints a local bearer token for actor.
func (a *Auth) IssueToken(actor models.Actor) (string, error) {
	return IssueToken(a.secret, actor, a.tokenTTL)
}

// LoginHandler starts the authorization code flow. A random state value is
// stored in a cookie to mitigate CSRF attacks.
func (a *Auth) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if a.authBypass || a.oauth2Config == nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	state, err := generateState()
	if err != nil {
		http.Error(w, "failed to generate state", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "oauthstate",
		Value:    state,
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, a.oauth2Config.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// CallbackHandler verifies the state, exchanges the code and stores the raw
// ID token in a session cookie.
func (a *Auth) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	if a.authBypass || a.oauth2Config == nil {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	cookie, err := r.Cookie("oauthstate")
	if err != nil || r.URL.Query().Get("state") != cookie.Value {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}

	token, err := a.oauth2Config.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		http.Error(w, "token exchange failed", http.StatusInternalServerError)
		return
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		http.Error(w, "no id_token in token response", http.StatusInternalServerError)
		return
	}
	if _, err := a.verifier.Verify(r.Context(), rawIDToken); err != nil {
		http.Error(w, "failed to verify id token", http.StatusUnauthorized)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "id_token",
		Value:    rawIDToken,
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// RequireAuth is middleware that resolves the caller to an actor and stores it
// in the request context.
func (a *Auth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.authBypass {
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), DevActor)))
			return
		}

		var (
			actor models.Actor
			err   error
		)
		if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
			actor, err = a.verifyBearer(r.Context(), strings.TrimPrefix(authHeader, "Bearer "))
		} else if cookie, cookieErr := r.Cookie("id_token"); cookieErr == nil && a.verifier != nil {
			actor, err = a.verifyOIDC(r.Context(), a.verifier, cookie.Value)
		} else {
			if a.oauth2Config != nil {
				http.Redirect(w, r, "/login", http.StatusSeeOther)
				return
			}
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		if err != nil {
			if a.logger != nil {
				a.logger.Debug("authentication failed", "error", err)
			}
			http.Error(w, "invalid token: "+err.Error(), http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// verifyBearer accepts locally signed tokens first, then provider tokens.
func (a *Auth) verifyBearer(ctx context.Context, raw string) (models.Actor, error) {
	var localErr error
	if len(a.secret) > 0 {
		actor, err := ParseToken(a.secret, raw)
		if err == nil {
			return actor, nil
		}
		localErr = err
	}
	if a.apiVerifier != nil {
		return a.verifyOIDC(ctx, a.apiVerifier, raw)
	}
	if localErr == nil {
		localErr = errors.New("no token verifier configured")
	}
	return models.Actor{}, localErr
}

func (a *Auth) verifyOIDC(ctx context.Context, verifier *oidc.IDTokenVerifier, raw string) (models.Actor, error) {
	token, err := verifier.Verify(ctx, raw)
	if err != nil {
		return models.Actor{}, err
	}
	var claims struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	if err := token.Claims(&claims); err != nil {
		return models.Actor{}, errors.New("failed to parse token claims")
	}
	return actorFromClaims(token.Subject, claims.Email, claims.Role)
}

// LogoutHandler clears the session cookie and redirects to the home page.
func (a *Auth) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:   "id_token",
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
