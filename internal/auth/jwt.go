package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/straye-as/indicator-api/internal/config"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrInvalidScope = errors.New("token missing required scope")
)

const jwksCacheTTL = 24 * time.Hour

// KeySource resolves a signing key by key id
type KeySource interface {
	Key(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// JWTValidator validates JWT tokens from Azure AD
type JWTValidator struct {
	config *config.AzureAdConfig
	keys   KeySource
}

// NewJWTValidator creates a validator that fetches signing keys from the tenant's JWKS endpoint
func NewJWTValidator(cfg *config.AzureAdConfig) *JWTValidator {
	return NewJWTValidatorWithKeys(cfg, newJWKSCache(cfg))
}

// NewJWTValidatorWithKeys creates a validator with an explicit key source
func NewJWTValidatorWithKeys(cfg *config.AzureAdConfig, keys KeySource) *JWTValidator {
	return &JWTValidator{config: cfg, keys: keys}
}

// ValidateToken validates a JWT token and returns user context
func (v *JWTValidator) ValidateToken(ctx context.Context, tokenString string) (*UserContext, error) {
	token, _, err := new(jwt.Parser).ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	kid, ok := token.Header["kid"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: missing kid in header", ErrInvalidToken)
	}

	publicKey, err := v.keys.Key(ctx, kid)
	if err != nil {
		return nil, fmt.Errorf("failed to get public key: %w", err)
	}

	claims := jwt.MapClaims{}
	parsedToken, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return publicKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsedToken.Valid {
		return nil, ErrInvalidToken
	}

	if v.config.ClientId != "" {
		aud, _ := claims.GetAudience()
		validAud := false
		for _, a := range aud {
			if a == v.config.ClientId || strings.Contains(a, v.config.ClientId) {
				validAud = true
				break
			}
		}
		if !validAud {
			return nil, fmt.Errorf("%w: invalid audience", ErrInvalidToken)
		}
	}

	iss, _ := claims.GetIssuer()
	if !strings.Contains(iss, v.config.TenantId) {
		return nil, fmt.Errorf("%w: invalid issuer", ErrInvalidToken)
	}

	if v.config.RequiredScopes != "" {
		if !HasRequiredScope(ExtractScopes(claims), v.config.RequiredScopes) {
			return nil, ErrInvalidScope
		}
	}

	userCtx := &UserContext{
		UserID:      extractString(claims, "oid", "sub"),
		DisplayName: extractString(claims, "name", "unique_name", "preferred_username"),
		Email:       strings.ToLower(extractString(claims, "email", "upn", "preferred_username", "unique_name")),
		AuthType:    AuthTypeJWT,
	}
	if userCtx.UserID == "" {
		userCtx.UserID = userCtx.Email
	}
	if userCtx.UserID == "" {
		return nil, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}

	return userCtx, nil
}

// jwksCache fetches and caches the tenant's signing keys
type jwksCache struct {
	url    string
	client *http.Client

	mu         sync.RWMutex
	keys       map[string]*rsa.PublicKey
	lastUpdate time.Time
}

func newJWKSCache(cfg *config.AzureAdConfig) *jwksCache {
	return &jwksCache{
		url:    fmt.Sprintf("%s%s/discovery/v2.0/keys", cfg.InstanceUrl, cfg.TenantId),
		client: &http.Client{Timeout: 10 * time.Second},
		keys:   make(map[string]*rsa.PublicKey),
	}
}

func (c *jwksCache) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	c.mu.RLock()
	key, exists := c.keys[kid]
	fresh := time.Since(c.lastUpdate) < jwksCacheTTL
	c.mu.RUnlock()
	if exists && fresh {
		return key, nil
	}

	if err := c.refresh(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	key, exists = c.keys[kid]
	if !exists {
		return nil, fmt.Errorf("public key not found for kid: %s", kid)
	}
	return key, nil
}

func (c *jwksCache) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to build JWKS request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	keys, err := parseJWKS(resp.Body)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.keys = keys
	c.lastUpdate = time.Now()
	c.mu.Unlock()
	return nil
}

func parseJWKS(r io.Reader) (map[string]*rsa.PublicKey, error) {
	var jwks struct {
		Keys []struct {
			Kid string `json:"kid"`
			N   string `json:"n"`
			E   string `json:"e"`
			Kty string `json:"kty"`
			Use string `json:"use"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(r).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("failed to decode JWKS: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey)
	for _, key := range jwks.Keys {
		if key.Kty != "RSA" || key.Use != "sig" {
			continue
		}
		nBytes, err := base64.RawURLEncoding.DecodeString(key.N)
		if err != nil {
			continue
		}
		eBytes, err := base64.RawURLEncoding.DecodeString(key.E)
		if err != nil {
			continue
		}
		e := 0
		for _, b := range eBytes {
			e = e<<8 + int(b)
		}
		keys[key.Kid] = &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: e}
	}
	return keys, nil
}

func extractString(claims jwt.MapClaims, keys ...string) string {
	for _, key := range keys {
		if val, ok := claims[key]; ok {
			if str, ok := val.(string); ok && str != "" {
				return str
			}
		}
	}
	return ""
}

// ExtractScopes extracts scopes from JWT claims
func ExtractScopes(claims jwt.MapClaims) []string {
	scopes := []string{}

	if val, ok := claims["scp"]; ok {
		if str, ok := val.(string); ok {
			scopes = strings.Split(str, " ")
		}
	}

	if val, ok := claims["scope"]; ok {
		if str, ok := val.(string); ok {
			scopes = append(scopes, strings.Split(str, " ")...)
		}
	}

	return scopes
}

// HasRequiredScope checks if the token carries any of the comma-separated required scopes
func HasRequiredScope(tokenScopes []string, required string) bool {
	required = strings.TrimSpace(required)
	if required == "" {
		return true
	}

	for _, req := range strings.Split(required, ",") {
		req = strings.TrimSpace(req)
		if req == "" {
			continue
		}
		for _, scope := range tokenScopes {
			if strings.EqualFold(scope, req) {
				return true
			}
		}
	}
	return false
}
