package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"crm-pipeline-api/internal/domain"
	"crm-pipeline-api/internal/response"
)

const userContextKey = "crm_user"

// Claims is the identity the auth layer signs into every token
type Claims struct {
	UserID    string `json:"user_id"`
	CompanyID string `json:"company_id"`
	Role      string `json:"role"`
	RoleID    string `json:"role_id,omitempty"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// User converts the claims to the identity the services work with
func (c *Claims) User() domain.User {
	id := c.UserID
	if id == "" {
		id = c.Subject
	}
	return domain.User{
		ID:        id,
		CompanyID: c.CompanyID,
		Email:     c.Email,
		Name:      c.Name,
		Role:      c.Role,
		RoleID:    c.RoleID,
	}
}

// Auth validates HMAC-signed JWTs and stores the caller in the context
func Auth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.SendError(c, http.StatusUnauthorized, response.ErrCodeUnauthorized, "Authorization header is required")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.SendError(c, http.StatusUnauthorized, response.ErrCodeUnauthorized, "Invalid authorization header format")
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(jwtSecret), nil
		})
		if err != nil || !token.Valid {
			response.SendError(c, http.StatusUnauthorized, response.ErrCodeUnauthorized, "Invalid or expired token")
			return
		}

		user := claims.User()
		if user.ID == "" || user.CompanyID == "" {
			response.SendError(c, http.StatusUnauthorized, response.ErrCodeUnauthorized, "Token is missing user or company")
			return
		}
		if user.Role == "" {
			user.Role = domain.RoleTeam
		}

		c.Set(userContextKey, user)
		c.Next()
	}
}

// GetUser returns the caller stored by Auth
func GetUser(c *gin.Context) (domain.User, bool) {
	v, ok := c.Get(userContextKey)
	if !ok {
		return domain.User{}, false
	}
	user, ok := v.(domain.User)
	return user, ok
}

// SetUser stores user as the caller; handler tests use it in place of Auth
func SetUser(c *gin.Context, user domain.User) {
	c.Set(userContextKey, user)
}
