package middleware

import (
	"context"
	"errors"

	"github.com/golang-jwt/jwt/v5"

	"github.com/felixgeelhaar/relay/protocol"
)

// JWTAuthenticator creates an authenticator that validates bearer tokens as
// JWTs. The subject claim becomes Identity.ID and the name claim
// Identity.Name; all claims are copied into Identity.Metadata.
//
// Requests without a bearer token yield no identity. Tokens that fail
// parsing or validation are reported as errors.
func JWTAuthenticator(keyFunc jwt.Keyfunc, opts ...jwt.ParserOption) Authenticator {
	parser := jwt.NewParser(opts...)

	return func(ctx context.Context, _ *protocol.Request) (*Identity, error) {
		raw := bearerToken(ctx)
		if raw == "" {
			return nil, nil
		}

		claims := jwt.MapClaims{}
		tok, err := parser.ParseWithClaims(raw, claims, keyFunc)
		if err != nil {
			return nil, err
		}
		if !tok.Valid {
			return nil, errors.New("invalid token")
		}

		sub, err := claims.GetSubject()
		if err != nil || sub == "" {
			return nil, errors.New("token has no subject")
		}

		identity := &Identity{
			ID:       sub,
			Metadata: make(map[string]any, len(claims)),
		}
		if name, ok := claims["name"].(string); ok {
			identity.Name = name
		}
		for k, v := range claims {
			identity.Metadata[k] = v
		}
		return identity, nil
	}
}

// HMACKey returns a jwt.Keyfunc that accepts HS256/384/512 tokens signed
// with secret.
func HMACKey(secret []byte) jwt.Keyfunc {
	return func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	}
}
