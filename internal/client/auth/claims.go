package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/portphilio/portkeeper/internal/common"
)

// claims are the identity facts decoded from the provider's tokens.
// Signature verification is the provider's job (tokens arrive over the
// provider's own channel); we only decode.
type claims struct {
	subjectID   string
	roles       []string
	apiID       string
	googleToken string
	expiresAt   time.Time
	issuedAt    time.Time
}

// decodeClaims extracts expiry/issue timestamps from the access token and
// the namespaced custom claims (roles, api id, google token) plus the
// subject from the ID token. When no ID token is supplied, only the
// access-token claims are populated.
func decodeClaims(accessToken, idToken, namespace string) (*claims, error) {
	parser := jwt.NewParser()

	accessClaims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(accessToken, accessClaims); err != nil {
		return nil, fmt.Errorf("%w: access token: %v", common.ErrInvalidToken, err)
	}

	c := &claims{}
	if exp, err := accessClaims.GetExpirationTime(); err == nil && exp != nil {
		c.expiresAt = exp.Time
	}
	if iat, err := accessClaims.GetIssuedAt(); err == nil && iat != nil {
		c.issuedAt = iat.Time
	}

	if idToken == "" {
		return c, nil
	}

	idClaims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(idToken, idClaims); err != nil {
		return nil, fmt.Errorf("%w: id token: %v", common.ErrInvalidToken, err)
	}

	c.subjectID, _ = idClaims["sub"].(string)
	c.apiID, _ = idClaims[namespace+"api_id"].(string)
	c.googleToken, _ = idClaims[namespace+"google"].(string)
	if raw, ok := idClaims[namespace+"roles"].([]any); ok {
		for _, r := range raw {
			if role, ok := r.(string); ok {
				c.roles = append(c.roles, role)
			}
		}
	}
	return c, nil
}
