package apihub

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/golang-jwt/jwt/v5"
)

type AuthResult struct {
	// Code is CodeSuccess, CodeAuthInvalid or CodeAuthTokenExpired.
	Code        Code
	AccountID   string
	AccessToken string
	Claims      jwt.MapClaims
}

// CognitoAuthenticator verifies Cognito access tokens sent as bearer
// tokens. The pool's signing keys are fetched once and cached.
type CognitoAuthenticator struct {
	PoolID           string
	AllowedClientIDs []string
	// Region defaults to the hub's region setting.
	Region string
	// JWKSURL overrides the pool's well-known key set location.
	JWKSURL    string
	HTTPClient *http.Client
	// RetryOptions tune the key set download, which is retried 4 times.
	RetryOptions []RetryOption

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

// jwksRefetchInterval is the least time between two key set downloads
// triggered by unknown key ids.
const jwksRefetchInterval = time.Minute

type jwks struct {
	Keys []json.RawMessage `json:"keys"`
}

type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwksFetchError struct {
	err error
}

func (e *jwksFetchError) Error() string {
	return fmt.Sprintf("failed to fetch JWKS: %s", e.err)
}

func (e *jwksFetchError) Unwrap() error {
	return e.err
}

// Authenticate checks the request's bearer token. An invalid or expired
// token is reported through AuthResult.Code; only a failure to load the
// signing keys is returned as an error.
func (a *CognitoAuthenticator) Authenticate(ctx *Context, req events.APIGatewayV2HTTPRequest) (AuthResult, error) {
	logs := ctx.Logs()

	token, ok := BearerToken(req)
	if !ok {
		return AuthResult{Code: CodeAuthInvalid}, nil
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return a.publicKey(ctx, kid)
	}, jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}), jwt.WithExpirationRequired())

	if err != nil {
		var fetchErr *jwksFetchError
		switch {
		case errors.As(err, &fetchErr):
			return AuthResult{}, fetchErr
		case errors.Is(err, jwt.ErrTokenExpired):
			return AuthResult{Code: CodeAuthTokenExpired}, nil
		default:
			logs.Info("Could not verify token", "error", err.Error())
			return AuthResult{Code: CodeAuthInvalid}, nil
		}
	}

	if !a.audienceAllowed(claims) {
		logs.Warn("Token was not issued for this audience")
		return AuthResult{Code: CodeAuthInvalid}, nil
	}

	sub, _ := claims.GetSubject()
	return AuthResult{
		Code:        CodeSuccess,
		AccountID:   sub,
		AccessToken: token,
		Claims:      claims,
	}, nil
}

// RequireAuth authenticates the request and throws the matching response
// unless the token is valid.
func (a *CognitoAuthenticator) RequireAuth(ctx *Context, req events.APIGatewayV2HTTPRequest) (AuthResult, error) {
	result, err := a.Authenticate(ctx, req)
	if err != nil {
		return AuthResult{}, err
	}
	if result.Code != CodeSuccess {
		return result, ThrowResponse(result.Code)
	}
	return result, nil
}

func (a *CognitoAuthenticator) audienceAllowed(claims jwt.MapClaims) bool {
	clientID, _ := claims["client_id"].(string)
	aud, _ := claims.GetAudience()
	for _, allowed := range a.AllowedClientIDs {
		if allowed == clientID || slices.Contains(aud, allowed) {
			return true
		}
	}
	return false
}

func (a *CognitoAuthenticator) publicKey(ctx *Context, kid string) (*rsa.PublicKey, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if key, ok := a.keys[kid]; ok {
		return key, nil
	}
	// unknown kid, the pool may have rotated its keys
	if a.keys != nil && time.Since(a.fetchedAt) < jwksRefetchInterval {
		return nil, fmt.Errorf("could not find a public key for key id (kid) %s", kid)
	}
	keys, err := a.fetchKeys(ctx)
	if err != nil {
		return nil, &jwksFetchError{err: err}
	}
	a.keys = keys
	a.fetchedAt = time.Now()

	key, ok := keys[kid]
	if !ok {
		return nil, fmt.Errorf("could not find a public key for key id (kid) %s", kid)
	}
	return key, nil
}

func (a *CognitoAuthenticator) jwksURL(ctx *Context) string {
	if a.JWKSURL != "" {
		return a.JWKSURL
	}
	region := a.Region
	if region == "" && ctx.hub != nil {
		region = ctx.hub.settings.Region
	}
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s/.well-known/jwks.json", region, a.PoolID)
}

func (a *CognitoAuthenticator) fetchKeys(ctx *Context) (map[string]*rsa.PublicKey, error) {
	client := a.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	url := a.jwksURL(ctx)

	opts := append([]RetryOption{
		WithMaxRetries(4),
		WithBaseDelay(200 * time.Millisecond),
		WithJitter(func() time.Duration { return 0 }),
	}, a.RetryOptions...)

	set, err := Retry(ctx, func(ctx context.Context) (*jwks, error) {
		return fetchJWKS(ctx, client, url)
	}, opts...)
	if err != nil {
		return nil, err
	}
	return parseJWKS(set)
}

func fetchJWKS(ctx context.Context, client *http.Client, url string) (*jwks, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, NoRetry(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var set jwks
	if err := json.Unmarshal(body, &set); err != nil {
		return nil, err
	}
	return &set, nil
}

func parseJWKS(set *jwks) (map[string]*rsa.PublicKey, error) {
	parser := jwt.NewParser()
	keys := make(map[string]*rsa.PublicKey, len(set.Keys))

	for _, raw := range set.Keys {
		var k jwk
		if err := json.Unmarshal(raw, &k); err != nil {
			return nil, err
		}
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}

		nBytes, err := parser.DecodeSegment(k.N)
		if err != nil {
			return nil, fmt.Errorf("failed to decode modulus of key %s: %w", k.Kid, err)
		}
		eBytes, err := parser.DecodeSegment(k.E)
		if err != nil {
			return nil, fmt.Errorf("failed to decode exponent of key %s: %w", k.Kid, err)
		}

		e := 0
		for _, b := range eBytes {
			e = e*256 + int(b)
		}
		keys[k.Kid] = &rsa.PublicKey{
			N: new(big.Int).SetBytes(nBytes),
			E: e,
		}
	}
	return keys, nil
}
