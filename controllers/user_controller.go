package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"alumni-chat/middlewares"
	"alumni-chat/models"
	"alumni-chat/services"
	"alumni-chat/utils"
)

type AccountService interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.User, error)
	Login(ctx context.Context, email, password string) (*models.User, error)
	Profile(ctx context.Context, userID string) (*models.User, error)
}

type TokenIssuer interface {
	GenerateToken(userID string) (string, error)
}

type UserController struct {
	accounts AccountService
	tokens   TokenIssuer
}

func NewUserController(accounts AccountService, tokens TokenIssuer) *UserController {
	return &UserController{accounts: accounts, tokens: tokens}
}

type authResponse struct {
	Token string             `json:"token"`
	User  models.UserSummary `json:"user"`
}

// Register creates an account and returns an access token for it.
func (ctl *UserController) Register(c *gin.Context) {
	var input struct {
		Name         string `json:"name" binding:"required,max=50"`
		Email        string `json:"email" binding:"required,email"`
		Password     string `json:"password" binding:"required,min=6"`
		ProfileImage string `json:"profile_image"`
		Batch        string `json:"batch"`
		Branch       string `json:"branch" binding:"max=50"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondFailure(c, http.StatusBadRequest, err.Error())
		return
	}

	user, err := ctl.accounts.Register(c.Request.Context(), services.RegisterInput{
		Name:         input.Name,
		Email:        input.Email,
		Password:     input.Password,
		ProfileImage: input.ProfileImage,
		Batch:        input.Batch,
		Branch:       input.Branch,
	})
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	ctl.respondWithToken(c, http.StatusCreated, user)
}

// Login checks credentials and returns an access token.
func (ctl *UserController) Login(c *gin.Context) {
	var input struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RespondFailure(c, http.StatusBadRequest, err.Error())
		return
	}

	user, err := ctl.accounts.Login(c.Request.Context(), input.Email, input.Password)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	ctl.respondWithToken(c, http.StatusOK, user)
}

func (ctl *UserController) respondWithToken(c *gin.Context, status int, user *models.User) {
	token, err := ctl.tokens.GenerateToken(user.ID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccessWithStatus(c, status, authResponse{Token: token, User: user.Summary()}, nil)
}

// GetUserInfo returns the caller's current profile.
func (ctl *UserController) GetUserInfo(c *gin.Context) {
	user, ok := middlewares.CurrentUser(c)
	if !ok {
		utils.RespondFailure(c, http.StatusUnauthorized, "Not authorized")
		return
	}

	profile, err := ctl.accounts.Profile(c.Request.Context(), user.ID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.RespondSuccess(c, profile.Summary(), nil)
}
