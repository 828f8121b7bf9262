package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rabbitdeck/backend/internal/auth"
	"github.com/rabbitdeck/backend/internal/domain"
	"github.com/rabbitdeck/backend/internal/middleware"
	"github.com/rabbitdeck/backend/internal/service"
)

// AuthHandler login and user management
type AuthHandler struct {
	userService *service.UserService
	jwtManager  *auth.JWTManager
}

// NewAuthHandler creates the auth handler
func NewAuthHandler(userService *service.UserService, jwtManager *auth.JWTManager) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		jwtManager:  jwtManager,
	}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
}

// Login authenticates and issues a token
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_failed",
			Message: "username and password are required",
		})
		return
	}

	user, err := h.userService.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	token, err := h.jwtManager.GenerateToken(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to issue token",
		})
		return
	}

	c.JSON(http.StatusOK, loginResponse{Token: token, User: user})
}

// Me returns the authenticated user's profile and cluster assignments
func (h *AuthHandler) Me(c *gin.Context) {
	claims := middleware.PrincipalFrom(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "Authentication required"})
		return
	}
	user, err := h.userService.GetByID(c.Request.Context(), claims.UserID)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "User not found"})
		return
	}
	c.JSON(http.StatusOK, user)
}

type createUserRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role" binding:"required"`
}

// CreateUser registers a new console user (administrators only)
func (h *AuthHandler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_failed",
			Message: "username, password and role are required",
		})
		return
	}

	user, err := h.userService.CreateUser(c.Request.Context(), req.Username, req.Password, domain.Role(req.Role))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}
