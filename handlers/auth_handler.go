package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"crowpro-api/config"
	"crowpro-api/helper"
	"crowpro-api/middleware"
	"crowpro-api/models"
	"crowpro-api/services"
)

type AuthHandler struct {
	authService services.AuthService
	cookies     config.JWTConfig
	Helper      *helper.HTTPHelper
}

func NewAuthHandler(authService services.AuthService, cookies config.JWTConfig, h *helper.HTTPHelper) *AuthHandler {
	return &AuthHandler{authService: authService, cookies: cookies, Helper: h}
}

func (h *AuthHandler) setTokenCookies(c *gin.Context, tokens models.TokenPair) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessCookie, tokens.Access, int(h.cookies.AccessTokenTTL.Seconds()), "/", h.cookies.CookieDomain, h.cookies.CookieSecure, true)
	c.SetCookie(middleware.RefreshCookie, tokens.Refresh, int(h.cookies.RefreshTokenTTL.Seconds()), "/", h.cookies.CookieDomain, h.cookies.CookieSecure, true)
}

func (h *AuthHandler) clearTokenCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.AccessCookie, "", -1, "/", h.cookies.CookieDomain, h.cookies.CookieSecure, true)
	c.SetCookie(middleware.RefreshCookie, "", -1, "/", h.cookies.CookieDomain, h.cookies.CookieSecure, true)
}

// refreshToken reads the refresh token from an optional JSON body, then the cookie.
func (h *AuthHandler) refreshToken(c *gin.Context) (string, error) {
	var req models.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	if req.Refresh != "" {
		return req.Refresh, nil
	}
	if cookie, err := c.Cookie(middleware.RefreshCookie); err == nil {
		return cookie, nil
	}
	return "", nil
}

func (h *AuthHandler) Signup(c *gin.Context) {
	var req models.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Helper.SendBindError(c, err)
		return
	}

	user, err := h.authService.Register(c.Request.Context(), req)
	if err != nil {
		h.Helper.SendErrorFrom(c, err)
		return
	}

	h.Helper.SendCreated(c, "Register success", user)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Helper.SendBindError(c, err)
		return
	}

	response, err := h.authService.Login(c.Request.Context(), req, c.ClientIP())
	if err != nil {
		h.Helper.SendErrorFrom(c, err)
		return
	}

	h.setTokenCookies(c, response.Tokens)
	h.Helper.SendSuccess(c, "Login success", response)
}

func (h *AuthHandler) Logout(c *gin.Context) {
	refresh, err := h.refreshToken(c)
	if err != nil {
		h.Helper.SendBindError(c, err)
		return
	}

	if err := h.authService.Logout(c.Request.Context(), middleware.AccessToken(c), refresh); err != nil {
		h.Helper.SendErrorFrom(c, err)
		return
	}

	h.clearTokenCookies(c)
	h.Helper.SendSuccess(c, "Logout success", h.Helper.EmptyJsonMap())
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	refresh, err := h.refreshToken(c)
	if err != nil {
		h.Helper.SendBindError(c, err)
		return
	}

	response, err := h.authService.Refresh(c.Request.Context(), refresh)
	if err != nil {
		h.clearTokenCookies(c)
		h.Helper.SendErrorFrom(c, err)
		return
	}

	h.setTokenCookies(c, response.Tokens)
	h.Helper.SendSuccess(c, "Token refreshed", response)
}

func (h *AuthHandler) PasswordReset(c *gin.Context) {
	var req models.PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Helper.SendBindError(c, err)
		return
	}

	if err := h.authService.ChangePassword(c.Request.Context(), middleware.CurrentUser(c), req); err != nil {
		h.Helper.SendErrorFrom(c, err)
		return
	}

	h.clearTokenCookies(c)
	h.Helper.SendSuccess(c, "Password changed, login again to continue", h.Helper.EmptyJsonMap())
}

func (h *AuthHandler) CurrentUser(c *gin.Context) {
	user, err := h.authService.CurrentUser(c.Request.Context(), middleware.CurrentUser(c).ID)
	if err != nil {
		h.Helper.SendErrorFrom(c, err)
		return
	}

	h.Helper.SendSuccess(c, "Profile loaded", user)
}
