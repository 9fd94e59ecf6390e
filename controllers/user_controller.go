package controllers

import (
	"errors"
	"math"

	"github.com/gin-gonic/gin"

	"trashbin/services"
	"trashbin/utils"
)

type UserController struct {
	users *services.UserService
}

func NewUserController(users *services.UserService) *UserController {
	return &UserController{users: users}
}

type UpdateProfileRequest struct {
	Email   *string `json:"email" binding:"omitempty,email"`
	Name    *string `json:"name"`
	Surname *string `json:"surname"`
}

func (uc *UserController) Me(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := uc.users.ActiveUser(ctx, userID)
	if err != nil {
		uc.userError(c, err, "Failed to get user")
		return
	}
	utils.SuccessResponse(c, "User retrieved", user)
}

func (uc *UserController) UpdateMe(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := uc.users.UpdateProfile(ctx, userID, services.UpdateProfileInput{
		Email:   req.Email,
		Name:    req.Name,
		Surname: req.Surname,
	})
	if err != nil {
		uc.userError(c, err, "Failed to update user")
		return
	}
	utils.SuccessResponse(c, "Profile updated", user)
}

// DeleteMe soft-deletes the caller's account. Signing in again within the
// retention window restores it.
func (uc *UserController) DeleteMe(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := uc.users.DeleteAccount(ctx, userID)
	if err != nil {
		uc.userError(c, err, "Failed to delete account")
		return
	}
	utils.SuccessResponse(c, "Account deleted", gin.H{"deleted_at": user.DeletedAt})
}

func (uc *UserController) ListUsers(c *gin.Context) {
	in := services.ListUsersInput{
		Page:           queryInt(c, "page", 1),
		Limit:          queryInt(c, "limit", 20),
		IncludeDeleted: queryBool(c, "includeDeleted"),
		OnlyDeleted:    queryBool(c, "onlyDeleted"),
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	users, total, err := uc.users.ListUsers(ctx, in)
	if err != nil {
		utils.InternalServerErrorResponse(c, "Failed to list users", nil)
		return
	}
	if in.Page < 1 {
		in.Page = 1
	}
	if in.Limit < 1 || in.Limit > 100 {
		in.Limit = 20
	}
	utils.PaginatedSuccessResponse(c, "Users retrieved", users, &utils.Pagination{
		Page:       in.Page,
		Limit:      in.Limit,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(in.Limit))),
	})
}

// GetUser is the admin lookup and also returns deleted accounts.
func (uc *UserController) GetUser(c *gin.Context) {
	id, ok := pathObjectID(c, "id")
	if !ok {
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := uc.users.GetUser(ctx, id)
	if err != nil {
		uc.userError(c, err, "Failed to get user")
		return
	}
	utils.SuccessResponse(c, "User retrieved", user)
}

func (uc *UserController) RestoreUser(c *gin.Context) {
	id, ok := pathObjectID(c, "id")
	if !ok {
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := uc.users.RestoreUser(ctx, id)
	if err != nil {
		uc.userError(c, err, "Failed to restore user")
		return
	}
	utils.SuccessResponse(c, "User restored", user)
}

func (uc *UserController) userError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, services.ErrUserNotFound):
		utils.NotFoundResponse(c, "User not found")
	case errors.Is(err, services.ErrEmailTaken):
		utils.ConflictResponse(c, "Email already in use", nil)
	default:
		utils.InternalServerErrorResponse(c, message, nil)
	}
}
