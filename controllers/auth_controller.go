package controllers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"trashbin/services"
	"trashbin/utils"
)

type AuthController struct {
	users *services.UserService
}

func NewAuthController(users *services.UserService) *AuthController {
	return &AuthController{users: users}
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name"`
	Surname  string `json:"surname"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (ac *AuthController) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := ac.users.Register(ctx, services.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Surname:  req.Surname,
	})
	if err != nil {
		if errors.Is(err, services.ErrEmailTaken) {
			utils.ConflictResponse(c, "Email already registered", nil)
			return
		}
		utils.InternalServerErrorResponse(c, "Failed to register", nil)
		return
	}

	utils.CreatedResponse(c, "Registration successful", gin.H{
		"user":  res.User,
		"token": res.Token,
	})
}

// Login signs the user in. A deleted account is restored by a successful
// login and the response says so.
func (ac *AuthController) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := ac.users.Login(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			utils.UnauthorizedResponse(c, "Invalid email or password")
			return
		}
		utils.InternalServerErrorResponse(c, "Failed to login", nil)
		return
	}

	message := "Login successful"
	if res.WasRestored {
		message = "Login successful, account restored"
	}
	utils.SuccessResponse(c, message, gin.H{
		"user":         res.User,
		"token":        res.Token,
		"was_restored": res.WasRestored,
	})
}
