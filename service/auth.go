package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/zlnvch/letterbox/logging"
	"github.com/zlnvch/letterbox/models"
	"golang.org/x/oauth2"
)

// Provider-specific structs
type gitHubUser struct {
	Login string `json:"login"`
	ID    int    `json:"id"`
}

type googleUser struct {
	Email string `json:"email"`
	Sub   string `json:"sub"`
}

// OAuthLogin is the external account an identity signs in with.
type OAuthLogin struct {
	Provider   string
	ProviderId string
	Username   string
}

var oauthAPIs = map[string]struct {
	URL     string
	Headers map[string]string
}{
	"github": {
		URL: "https://api.github.com/user",
		Headers: map[string]string{
			"X-GitHub-Api-Version": "2022-11-28",
		},
	},
	"google": {
		URL:     "https://openidconnect.googleapis.com/v1/userinfo",
		Headers: map[string]string{},
	},
}

var oauthConfigsTemplate = map[string]*oauth2.Config{
	"github": {
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://github.com/login/oauth/authorize",
			TokenURL: "https://github.com/login/oauth/access_token",
		},
		Scopes: []string{""},
	},
	"google": {
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.google.com/o/oauth2/v2/auth",
			TokenURL: "https://oauth2.googleapis.com/token",
		},
		Scopes: []string{"openid", "email"},
	},
}

const tokenLifetime = 24 * time.Hour

func addOauthEndpointsAndScopes(oauthConfigs map[string]*oauth2.Config) (map[string]*oauth2.Config, error) {
	for provider := range oauthConfigs {
		template, ok := oauthConfigsTemplate[provider]
		if !ok {
			return nil, fmt.Errorf("unsupported provider: %s", provider)
		}
		oauthConfigs[provider].Endpoint = template.Endpoint
		oauthConfigs[provider].Scopes = template.Scopes
	}

	return oauthConfigs, nil
}

func (s *Service) HandleOauth(ctx context.Context, provider string, code string) (OAuthLogin, error) {
	conf, ok := s.OAuthConfigs[provider]
	if !ok {
		return OAuthLogin{}, fmt.Errorf("unsupported provider: %s", provider)
	}

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		logging.Log.WithError(err).Warn("OAuth code exchange failed")
		return OAuthLogin{}, err
	}

	client := conf.Client(ctx, tok)
	api, ok := oauthAPIs[provider]
	if !ok {
		return OAuthLogin{}, fmt.Errorf("unsupported provider: %s", provider)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api.URL, nil)
	if err != nil {
		return OAuthLogin{}, err
	}
	for k, v := range api.Headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		logging.Log.WithError(err).Warn("OAuth user lookup failed")
		return OAuthLogin{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return OAuthLogin{}, err
	}

	return parseLogin(body, provider)
}

func parseLogin(jsonData []byte, provider string) (OAuthLogin, error) {
	login := OAuthLogin{Provider: provider}

	switch provider {
	case "github":
		var gh gitHubUser
		if err := json.Unmarshal(jsonData, &gh); err != nil {
			return OAuthLogin{}, err
		}
		login.Username = gh.Login
		login.ProviderId = strconv.Itoa(gh.ID)
	case "google":
		var g googleUser
		if err := json.Unmarshal(jsonData, &g); err != nil {
			return OAuthLogin{}, err
		}
		// Only the local part, the address itself is never shown to peers
		login.Username, _, _ = strings.Cut(g.Email, "@")
		login.ProviderId = g.Sub
	default:
		return OAuthLogin{}, fmt.Errorf("unsupported provider: %s", provider)
	}

	if login.ProviderId == "" || login.ProviderId == "0" {
		return OAuthLogin{}, errors.New("provider returned no account id")
	}

	return login, nil
}

func (s *Service) CreateJWT(id string) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"id":  id,
		"exp": now.Add(tokenLifetime).Unix(),
		"iat": now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(s.JWTSecret)
	if err != nil {
		return "", err
	}

	return signedToken, nil
}

func (s *Service) VerifyJWT(tokenString string) (string, time.Time, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return s.JWTSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", time.Time{}, err
	}

	if !token.Valid {
		return "", time.Time{}, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", time.Time{}, errors.New("invalid token claims")
	}

	id, ok := claims["id"].(string)
	if !ok || id == "" {
		return "", time.Time{}, errors.New("missing id claim")
	}

	expiry, err := claims.GetExpirationTime()
	if err != nil || expiry == nil {
		return "", time.Time{}, errors.New("missing exp claim")
	}

	return id, expiry.Time, nil
}

func (s *Service) AuthenticateToken(ctx context.Context, token string) (models.Identity, error) {
	if len(token) == 0 {
		return models.Identity{}, fmt.Errorf("%w: token not provided", ErrUnauthorized)
	}

	id, _, err := s.VerifyJWT(token)
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	identity, err := s.Store.GetIdentity(ctx, id)
	if err != nil {
		return models.Identity{}, err
	}

	return identity, nil
}

// RegisterIdentity returns the identity linked to the login, creating it on
// first use. displayName is only applied to new identities.
func (s *Service) RegisterIdentity(ctx context.Context, login OAuthLogin, displayName string, displayEmoji string) (models.Identity, error) {
	if login.Provider == "" || login.ProviderId == "" {
		return models.Identity{}, fmt.Errorf("%w: login missing", ErrInvalidInput)
	}
	if displayName == "" {
		displayName = truncateRunes(login.Username, maxDisplayNameLength)
	}
	if err := ValidateDisplayName(displayName); err != nil {
		return models.Identity{}, err
	}
	if displayEmoji != "" {
		if err := ValidateDisplayEmoji(displayEmoji); err != nil {
			return models.Identity{}, err
		}
	}

	id, err := uuid.NewV4()
	if err != nil {
		return models.Identity{}, err
	}

	identity := models.Identity{
		Id:           id.String(),
		DisplayName:  displayName,
		DisplayEmoji: displayEmoji,
		CreatedAt:    s.now(),
	}
	return s.Store.CreateIdentity(ctx, identity, login.Provider, login.ProviderId)
}

func (s *Service) Login(ctx context.Context, provider, code string) (models.Identity, string, error) {
	login, err := s.HandleOauth(ctx, provider, code)
	if err != nil {
		return models.Identity{}, "", fmt.Errorf("oauth failed: %w", err)
	}

	identity, err := s.RegisterIdentity(ctx, login, "", "")
	if err != nil {
		return models.Identity{}, "", fmt.Errorf("create identity failed: %w", err)
	}

	token, err := s.CreateJWT(identity.Id)
	if err != nil {
		return models.Identity{}, "", fmt.Errorf("token generation failed: %w", err)
	}

	return identity, token, nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
