package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"tradeacademy.io/support-desk/internal/config"
)

// HeaderToken is the custom header checked before Authorization.
const HeaderToken = "x-auth-token"

var ErrInvalidToken = errors.New("invalid token")

// Agent is the identity carried in the "agent" claim.
type Agent struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

type Claims struct {
	Agent Agent `json:"agent"`
	jwt.RegisteredClaims
}

type agentCtxKey struct{}

func GenerateJWT(agent Agent, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Agent: agent,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   agent.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(config.AppConfig.JWTSecret))
}

// ValidateJWT verifies tokenString against the shared secret. Every
// verification failure collapses to an error wrapping ErrInvalidToken.
func ValidateJWT(tokenString string) (*Agent, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(config.AppConfig.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Agent.ID == "" {
		return nil, ErrInvalidToken
	}
	return &claims.Agent, nil
}

// TokenFromRequest returns the credential from the x-auth-token header, a
// Bearer Authorization header, or the token query parameter, in that order.
func TokenFromRequest(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get(HeaderToken)); token != "" {
		return token
	}
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		if token, ok := strings.CutPrefix(authHeader, "Bearer "); ok && strings.TrimSpace(token) != "" {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func WithAgent(ctx context.Context, agent *Agent) context.Context {
	return context.WithValue(ctx, agentCtxKey{}, agent)
}

func AgentFromContext(ctx context.Context) (*Agent, bool) {
	agent, ok := ctx.Value(agentCtxKey{}).(*Agent)
	return agent, ok && agent != nil
}
