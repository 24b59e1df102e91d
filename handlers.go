package main

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"betube/models"
	"betube/pkg/session"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	accessCookie  = "accessToken"
	refreshCookie = "refreshToken"
)

func setupRoutes(r *gin.Engine) {
	r.POST("/register", registerHandler)
	r.POST("/login", loginHandler)
	r.POST("/refresh", refreshHandler)
	authGroup := r.Group("")
	authGroup.Use(authMiddleware())
	authGroup.POST("/logout", logoutHandler)
	authGroup.GET("/me", meHandler)
	authGroup.POST("/change-password", changePasswordHandler)
}

// accessTokenFromRequest extracts the access token from the request. The
// cookie wins over the Authorization header when both are present.
func accessTokenFromRequest(c *gin.Context) string {
	if tok, err := c.Cookie(accessCookie); err == nil && tok != "" {
		return tok
	}
	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(authHeader[len("Bearer "):])
	}
	return ""
}

// refreshTokenFromRequest extracts the refresh token: cookie first, then a
// refreshToken field in the JSON body.
func refreshTokenFromRequest(c *gin.Context) string {
	if tok, err := c.Cookie(refreshCookie); err == nil && tok != "" {
		return tok
	}
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := c.ShouldBindJSON(&req); err == nil {
		return req.RefreshToken
	}
	return ""
}

// authMiddleware is the request gate: every protected route resolves its
// user exclusively through here. Access tokens are verified statelessly;
// the persisted refresh token is never consulted.
func authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := accessTokenFromRequest(c)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized request"})
			c.Abort()
			return
		}
		userID, err := sessions.Verify(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid access token"})
			c.Abort()
			return
		}
		// load only the public columns: credentials and the persisted
		// refresh token stay out of the request context
		var user models.User
		if err := db.Select("id", "username", "email", "full_name").First(&user, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// a valid-looking token for a deleted account is not authentication
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid access token"})
			} else {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve user"})
			}
			c.Abort()
			return
		}
		c.Set("user", user.Sanitized())
		c.Next()
	}
}

// userFromContext fetches the sanitized user resolved by authMiddleware.
func userFromContext(c *gin.Context) (models.PublicUser, bool) {
	v, ok := c.Get("user")
	if !ok {
		return models.PublicUser{}, false
	}
	user, ok := v.(models.PublicUser)
	return user, ok
}

// setAuthCookies delivers a token pair as httpOnly+secure cookies.
func setAuthCookies(c *gin.Context, pair session.Pair) {
	c.SetCookie(accessCookie, pair.AccessToken, int(tokenCfg.AccessTTL.Seconds()), "/", "", true, true)
	c.SetCookie(refreshCookie, pair.RefreshToken, int(tokenCfg.RefreshTTL.Seconds()), "/", "", true, true)
}

func clearAuthCookies(c *gin.Context) {
	c.SetCookie(accessCookie, "", -1, "/", "", true, true)
	c.SetCookie(refreshCookie, "", -1, "/", "", true, true)
}

func registerHandler(c *gin.Context) {
	var req struct {
		FullName string `json:"fullname" binding:"required"`
		Username string `json:"username" binding:"required"`
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := RegisterUser(req.FullName, req.Username, req.Email, req.Password)
	if err != nil {
		// only duplicate accounts are conflicts; everything else is a bad request
		status := http.StatusBadRequest
		if errors.Is(err, ErrUserExists) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user registered successfully", "user": user.Sanitized()})
}

func loginHandler(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	identifier := req.Username
	if identifier == "" {
		identifier = req.Email
	}
	if identifier == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username or email is required"})
		return
	}
	user, err := Authenticate(identifier, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	pair, err := sessions.Issue(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}
	setAuthCookies(c, pair)
	c.JSON(http.StatusOK, gin.H{
		"message":      "login successful",
		"user":         user.Sanitized(),
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

// refreshHandler exchanges a refresh token for a new pair, rotating the
// persisted token so the presented one is dead afterwards.
func refreshHandler(c *gin.Context) {
	token := refreshTokenFromRequest(c)
	pair, err := sessions.Rotate(token)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrReuseDetected):
			// security-significant: a rotated-out token came back
			log.Printf("SECURITY: %v", err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired refresh token"})
		case errors.Is(err, session.ErrInvalidToken):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired refresh token"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to refresh session"})
		}
		return
	}
	setAuthCookies(c, pair)
	c.JSON(http.StatusOK, gin.H{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

func logoutHandler(c *gin.Context) {
	user, ok := userFromContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "context missing user"})
		return
	}
	if err := sessions.Revoke(user.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to log out"})
		return
	}
	clearAuthCookies(c)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func meHandler(c *gin.Context) {
	user, ok := userFromContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "context missing user"})
		return
	}
	c.JSON(http.StatusOK, user)
}

func changePasswordHandler(c *gin.Context) {
	user, ok := userFromContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "context missing user"})
		return
	}
	var req struct {
		OldPassword string `json:"oldPassword" binding:"required"`
		NewPassword string `json:"newPassword" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := ChangePassword(user.ID, req.OldPassword, req.NewPassword); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password changed"})
}
