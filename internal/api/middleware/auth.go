package middleware

import (
	"crypto/rsa"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/kirkhezir/church-app-sub002/internal/api/response"
	jwtutil "github.com/kirkhezir/church-app-sub002/pkg/jwt"
)

const claimsContextKey = "claims"

type Claims = jwtutil.Claims

// JWTAuth verifies the bearer token or session cookie against publicKey and
// stores the claims on the context. A nil key rejects every request.
func JWTAuth(publicKey *rsa.PublicKey) gin.HandlerFunc {
	return func(c *gin.Context) {
		if claims, ok := GetClaims(c); ok && claims != nil {
			c.Next()
			return
		}

		tokenString := tokenFromRequest(c)
		if tokenString == "" || publicKey == nil {
			response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "unauthorized")
			c.Abort()
			return
		}

		claims, err := jwtutil.ParseAccessToken(tokenString, publicKey)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				response.Fail(c, http.StatusUnauthorized, response.ErrTokenExpired, "token expired")
			} else {
				response.Fail(c, http.StatusUnauthorized, response.ErrUnauthorized, "unauthorized")
			}
			c.Abort()
			return
		}

		c.Set(claimsContextKey, claims)
		c.Next()
	}
}

func GetClaims(c *gin.Context) (*Claims, bool) {
	val, ok := c.Get(claimsContextKey)
	if !ok {
		return nil, false
	}
	claims, ok := val.(*Claims)
	if !ok || claims == nil {
		return nil, false
	}
	return claims, true
}

func tokenFromRequest(c *gin.Context) string {
	if cookieToken, err := c.Cookie("access_token"); err == nil && cookieToken != "" {
		return cookieToken
	}
	return bearerTokenFromRequest(c.GetHeader("Authorization"))
}
