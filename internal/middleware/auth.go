package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/BruksfildServices01/barber-booking/internal/httperr"
)

const (
	ContextSubjectID   = "subjectID"
	ContextRole        = "role"
	ContextBarberID    = "barberID"
	ContextDisplayName = "displayName"
)

const (
	RoleCustomer = "customer"
	RoleBarber   = "barber"
)

// Claims is the token payload issued by the external identity provider.
type Claims struct {
	Role     string `json:"role"`
	BarberID string `json:"barber_id,omitempty"`
	Name     string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// AuthMiddleware verifies an HS256 bearer token. It never issues tokens.
func AuthMiddleware(secret string) gin.HandlerFunc {
	key := []byte(secret)

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, "missing_authorization_header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abort(c, "invalid_authorization_header")
			return
		}

		var claims Claims
		token, err := jwt.ParseWithClaims(parts[1], &claims, func(token *jwt.Token) (interface{}, error) {
			return key, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			abort(c, "invalid_token")
			return
		}

		if claims.Subject == "" {
			abort(c, "invalid_token_payload")
			return
		}

		switch claims.Role {
		case RoleCustomer:
		case RoleBarber:
			if claims.BarberID == "" {
				abort(c, "invalid_token_payload")
				return
			}
		default:
			abort(c, "invalid_token_role")
			return
		}

		c.Set(ContextSubjectID, claims.Subject)
		c.Set(ContextRole, claims.Role)
		c.Set(ContextBarberID, claims.BarberID)
		c.Set(ContextDisplayName, claims.Name)

		c.Next()
	}
}

// RequireRole rejects callers whose token carries another role.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ContextRole) != role {
			httperr.Abort(c, http.StatusForbidden, "forbidden_role", "This action requires the "+role+" role.")
			return
		}
		c.Next()
	}
}

func abort(c *gin.Context, code string) {
	httperr.Abort(c, http.StatusUnauthorized, code, "Authentication required.")
}
