package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

// TokenClaims is the subset of auth provider access-token claims we read.
type TokenClaims struct {
	Sub      string `json:"sub"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`
	Exp      int64  `json:"exp"`
	Issuer   string `json:"iss,omitempty"`
	Audience string `json:"aud,omitempty"`
}

var (
	ErrMalformedToken = errors.New("malformed token")
	ErrBadSignature   = errors.New("invalid signature")
	ErrTokenExpired   = errors.New("token expired")
	ErrWrongAudience  = errors.New("unexpected audience")
)

type userKey string

const (
	userIDKey userKey = "user_id"
	claimsKey userKey = "claims"
)

// DefaultAudience is the audience of signed-in user tokens.
const DefaultAudience = "authenticated"

func SignJWT(secret string, claims TokenClaims) (string, error) {
	header := map[string]string{"alg": "HS256", "typ": "JWT"}
	headerJSON, _ := json.Marshal(header)
	payloadJSON, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	headerEnc := base64.RawURLEncoding.EncodeToString(headerJSON)
	payloadEnc := base64.RawURLEncoding.EncodeToString(payloadJSON)
	data := headerEnc + "." + payloadEnc
	return data + "." + hmacSign(secret, data), nil
}

func hmacSign(secret, data string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(data))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyJWT checks an HS256 token. An empty audience skips the aud check.
func VerifyJWT(secret, audience, token string, now time.Time) (*TokenClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, ErrMalformedToken
	}
	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, ErrMalformedToken
	}
	var header struct {
		Alg string `json:"alg"`
	}
	if err := json.Unmarshal(headerJSON, &header); err != nil || header.Alg != "HS256" {
		return nil, ErrMalformedToken
	}
	expected := hmacSign(secret, parts[0]+"."+parts[1])
	if !hmac.Equal([]byte(expected), []byte(parts[2])) {
		return nil, ErrBadSignature
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrMalformedToken
	}
	var claims TokenClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, ErrMalformedToken
	}
	if claims.Exp != 0 && now.Unix() > claims.Exp {
		return nil, ErrTokenExpired
	}
	if audience != "" && claims.Audience != audience {
		return nil, ErrWrongAudience
	}
	if strings.TrimSpace(claims.Sub) == "" {
		return nil, ErrMalformedToken
	}
	return &claims, nil
}

// AuthJWT rejects requests without a valid bearer token.
func AuthJWT(secret, audience string) func(http.Handler) http.Handler {
	return authJWT(secret, audience, true)
}

// OptionalAuthJWT lets anonymous requests through but still rejects a
// token that is present and invalid.
func OptionalAuthJWT(secret, audience string) func(http.Handler) http.Handler {
	return authJWT(secret, audience, false)
}

func authJWT(secret, audience string, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				if required {
					writeAuthError(w, "missing authorization")
					return
				}
				next.ServeHTTP(w, r)
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				writeAuthError(w, "invalid authorization")
				return
			}
			claims, err := VerifyJWT(secret, audience, strings.TrimSpace(parts[1]), time.Now())
			if err != nil {
				writeAuthError(w, "invalid token")
				return
			}
			ctx := context.WithValue(r.Context(), userIDKey, claims.Sub)
			ctx = context.WithValue(ctx, claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAuthError(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

func ClaimsFromContext(ctx context.Context) *TokenClaims {
	if v, ok := ctx.Value(claimsKey).(*TokenClaims); ok {
		return v
	}
	return nil
}

func ContextWithUserID(ctx context.Context, userID string) context.Context {
	if strings.TrimSpace(userID) == "" {
		return ctx
	}
	return context.WithValue(ctx, userIDKey, userID)
}
