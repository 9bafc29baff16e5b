package api

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the participant identity carried inside the login token.
type Identity struct {
	StudentID string
	Matricule string
	Role      string
	ExpiresAt time.Time
}

// IdentityFromToken extracts the participant identity from a bearer
// token. The signature is not verified — the client holds no key and
// the server re-validates every request; this is display and
// announcement data only.
func IdentityFromToken(token string) (*Identity, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("parse token: unexpected claims type")
	}

	id := &Identity{
		StudentID: stringClaim(claims, "studentId"),
		Matricule: stringClaim(claims, "matricule"),
		Role:      stringClaim(claims, "role"),
	}
	if id.StudentID == "" {
		// Older tokens use the subject claim.
		id.StudentID = stringClaim(claims, "sub")
	}
	if id.StudentID == "" {
		return nil, fmt.Errorf("parse token: no participant identity")
	}

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		id.ExpiresAt = exp.Time
	}
	return id, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}
