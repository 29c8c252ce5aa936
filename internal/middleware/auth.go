package middleware

import (
	"errors"
	"net/http"
	"strings"

	"arcana/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	ContextUserID   = "userID"
	ContextUserRole = "userRole"
)

var errNoActor = errors.New("authenticated user not found in context")

// Auth validates the access tokens issued by the user service.
type Auth struct {
	secret []byte
	secure bool
}

// NewAuth builds the middleware. Cookies are marked Secure when secure is set.
func NewAuth(secret []byte, secure bool) *Auth {
	return &Auth{secret: secret, secure: secure}
}

// SetTokenCookie stores the access token as an HttpOnly cookie
func (a *Auth) SetTokenCookie(c *gin.Context, token string, maxAge int) {
	sameSite := http.SameSiteLaxMode
	if a.secure {
		sameSite = http.SameSiteNoneMode
	}
	c.SetSameSite(sameSite)
	c.SetCookie("access_token", token, maxAge, "/", "", a.secure, true)
}

// ClearTokenCookie removes the access_token cookie
func (a *Auth) ClearTokenCookie(c *gin.Context) {
	a.SetTokenCookie(c, "", -1)
}

// RequireRole validates the JWT token and checks if the user's role exists in the allowedRoles list
func (a *Auth) RequireRole(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Try cookie first, fallback to Authorization header
		tokenString, cookieErr := c.Cookie("access_token")
		if cookieErr != nil || tokenString == "" {
			authHeader := c.GetHeader("Authorization")
			if authHeader == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid authorization format. Expected 'Bearer <token>'"))
				return
			}
			tokenString = parts[1]
		}

		claims, err := a.Parse(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid token"))
			return
		}

		sub, _ := claims["sub"].(string)
		userID, err := uuid.Parse(sub)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid token subject"))
			return
		}

		userRole, ok := claims["role"].(string)
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Role not found in token"))
			return
		}

		roleAllowed := false
		for _, role := range allowedRoles {
			if userRole == role {
				roleAllowed = true
				break
			}
		}
		if !roleAllowed {
			c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Access denied: insufficient permissions"))
			return
		}

		c.Set(ContextUserID, userID)
		c.Set(ContextUserRole, userRole)
		c.Next()
	}
}

// Parse verifies an HS256 token and returns its claims.
func (a *Auth) Parse(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// ActorID returns the authenticated user set by RequireRole.
func ActorID(c *gin.Context) (uuid.UUID, error) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return uuid.Nil, errNoActor
	}
	id, ok := v.(uuid.UUID)
	if !ok {
		return uuid.Nil, errNoActor
	}
	return id, nil
}

// ActorRole returns the role set by RequireRole.
func ActorRole(c *gin.Context) string {
	return c.GetString(ContextUserRole)
}
