package plugins

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/n9te9/graphql-gateway/internal/execcontext"
	"github.com/n9te9/graphql-gateway/internal/gqlmsg"
	"github.com/n9te9/graphql-gateway/internal/httpmsg"
	"github.com/n9te9/graphql-gateway/internal/pluginapi"
	gocache "github.com/patrickmn/go-cache"
)

func init() {
	pluginapi.Register("jwt_auth", func(config map[string]any) (pluginapi.Plugin, error) {
		var cfg JWTAuthConfig
		if err := pluginapi.DecodeConfig(config, &cfg); err != nil {
			return nil, err
		}
		return NewJWTAuth(cfg)
	})
}

const (
	stateJWTToken  = "jwt.token"
	stateJWTClaims = "jwt.claims"
)

// JWTAuthConfig configures bearer-token verification.
type JWTAuthConfig struct {
	// JWKSURL is fetched (and cached) to obtain verification keys.
	JWKSURL string `json:"jwks_url"`
	// JWKS is an inline JWKS JSON document, used instead of a URL.
	JWKS string `json:"jwks"`

	Issuer    string   `json:"issuer"`
	Audiences []string `json:"audiences"`

	// RejectUnauthenticated short-circuits requests without a token.
	RejectUnauthenticated bool `json:"reject_unauthenticated"`

	ForwardClaimsHeader string `json:"forward_claims_header"`
	ForwardTokenHeader  string `json:"forward_token_header"`

	// JWKSCacheTTL bounds how long a fetched JWKS is reused. Duration
	// string, default "10m".
	JWKSCacheTTL string `json:"jwks_cache_ttl"`
}

// JWTAuth verifies Authorization bearer tokens against a JWKS and forwards
// the verified claims to upstreams.
type JWTAuth struct {
	cfg      JWTAuthConfig
	client   *http.Client
	keyCache *gocache.Cache
	cacheTTL time.Duration

	inlineKeys []*jwksKey
}

// NewJWTAuth builds the plugin. An inline JWKS is parsed once here so a bad
// key set fails at startup.
func NewJWTAuth(cfg JWTAuthConfig) (*JWTAuth, error) {
	if cfg.JWKSURL == "" && cfg.JWKS == "" {
		return nil, fmt.Errorf("jwt_auth requires jwks_url or an inline jwks")
	}
	if cfg.ForwardClaimsHeader == "" {
		cfg.ForwardClaimsHeader = "X-Forwarded-Claims"
	}
	if cfg.ForwardTokenHeader == "" {
		cfg.ForwardTokenHeader = "X-Forwarded-Token"
	}

	ttl := 10 * time.Minute
	if cfg.JWKSCacheTTL != "" {
		d, err := time.ParseDuration(cfg.JWKSCacheTTL)
		if err != nil {
			return nil, fmt.Errorf("invalid jwks_cache_ttl: %w", err)
		}
		ttl = d
	}

	p := &JWTAuth{
		cfg:      cfg,
		client:   &http.Client{Timeout: 10 * time.Second},
		keyCache: gocache.New(ttl, ttl),
		cacheTTL: ttl,
	}

	if cfg.JWKS != "" {
		keys, err := parseJWKS([]byte(cfg.JWKS))
		if err != nil {
			return nil, fmt.Errorf("invalid inline jwks: %w", err)
		}
		p.inlineKeys = keys
	}

	return p, nil
}

func (p *JWTAuth) Name() string { return "jwt_auth" }

func (p *JWTAuth) OnDownstreamHTTPRequest(ctx context.Context, rctx *execcontext.Context) error {
	authz := rctx.Request.Headers.Get("authorization")
	if authz == "" {
		if p.cfg.RejectUnauthenticated {
			resp := gqlmsg.NewErrorResponse("unauthenticated request").ToHTTPResponse(http.StatusBadRequest)
			rctx.ShortCircuit(resp)
		}
		return nil
	}

	raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))

	claims, err := p.verify(ctx, raw)
	if err != nil {
		resp := gqlmsg.NewErrorResponse("unauthenticated request").ToHTTPResponse(http.StatusUnauthorized)
		rctx.ShortCircuit(resp)
		return nil
	}

	rctx.Set(stateJWTToken, raw)
	rctx.Set(stateJWTClaims, map[string]any(claims))
	return nil
}

// OnUpstreamHTTPRequest forwards the verified identity to subgraphs.
func (p *JWTAuth) OnUpstreamHTTPRequest(ctx context.Context, rctx *execcontext.Context, outgoing *httpmsg.Request) error {
	claims, ok := rctx.Get(stateJWTClaims)
	if !ok {
		return nil
	}

	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return err
	}

	outgoing.Headers.Set(p.cfg.ForwardClaimsHeader, string(claimsJSON))
	outgoing.Headers.Set(p.cfg.ForwardTokenHeader, rctx.GetString(stateJWTToken))
	return nil
}

func (p *JWTAuth) verify(ctx context.Context, raw string) (jwt.MapClaims, error) {
	keys, err := p.keys(ctx)
	if err != nil {
		return nil, err
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
	}
	if p.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.cfg.Issuer))
	}

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return selectKey(keys, kid)
	}, opts...)
	if err != nil {
		return nil, err
	}

	if len(p.cfg.Audiences) > 0 {
		if err := p.checkAudience(claims); err != nil {
			return nil, err
		}
	}

	return claims, nil
}

func (p *JWTAuth) checkAudience(claims jwt.MapClaims) error {
	aud, err := claims.GetAudience()
	if err != nil {
		return err
	}
	for _, want := range p.cfg.Audiences {
		for _, got := range aud {
			if want == got {
				return nil
			}
		}
	}
	return fmt.Errorf("token audience %v is not allowed", aud)
}

func (p *JWTAuth) keys(ctx context.Context) ([]*jwksKey, error) {
	if p.inlineKeys != nil {
		return p.inlineKeys, nil
	}

	if cached, ok := p.keyCache.Get(p.cfg.JWKSURL); ok {
		return cached.([]*jwksKey), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.JWKSURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d fetching JWKS", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	keys, err := parseJWKS(body)
	if err != nil {
		return nil, err
	}

	p.keyCache.Set(p.cfg.JWKSURL, keys, p.cacheTTL)
	return keys, nil
}

func selectKey(keys []*jwksKey, kid string) (*rsa.PublicKey, error) {
	if kid != "" {
		for _, k := range keys {
			if k.Kid == kid {
				return k.publicKey()
			}
		}
		return nil, fmt.Errorf("no JWKS key with kid %q", kid)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("JWKS contains no usable keys")
	}
	return keys[0].publicKey()
}

type jwksDocument struct {
	Keys []*jwksKey `json:"keys"`
}

type jwksKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func parseJWKS(raw []byte) ([]*jwksKey, error) {
	var doc jwksDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	keys := make([]*jwksKey, 0, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("JWKS contains no RSA keys")
	}
	return keys, nil
}

func (k *jwksKey) publicKey() (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("invalid JWKS modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("invalid JWKS exponent: %w", err)
	}

	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}
