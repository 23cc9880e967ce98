package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gdg-garage/garage-rsvp-api/internal/apierr"
	"github.com/gdg-garage/garage-rsvp-api/internal/database"
	"github.com/gdg-garage/garage-rsvp-api/internal/models"
	"github.com/zeromicro/go-zero/core/logx"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type RegisterInput struct {
	Body struct {
		Username string `json:"username" minLength:"1" maxLength:"100" doc:"Display name"`
		Email    string `json:"email" format:"email" maxLength:"191" doc:"Login email"`
		Password string `json:"password" minLength:"8" maxLength:"72" doc:"Password, at least 8 characters"`
	}
}

type LoginInput struct {
	Body struct {
		Email    string `json:"email" format:"email" maxLength:"191"`
		Password string `json:"password" maxLength:"72"`
	}
}

type SessionOutput struct {
	SetCookie http.Cookie `header:"Set-Cookie"`
	Body      struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
}

type MeOutput struct {
	Body models.User
}

func (h *AuthHandler) HandleRegister(ctx context.Context, input *RegisterInput) (*SessionOutput, error) {
	email := strings.ToLower(strings.TrimSpace(input.Body.Email))
	username := strings.TrimSpace(input.Body.Username)
	if email == "" || username == "" || len(input.Body.Password) < 8 {
		return nil, apierr.From(fmt.Errorf("%w: username, email and a password of at least 8 characters are required", models.ErrInvalidInput))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Body.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apierr.From(err)
	}

	user := models.User{
		Username:     username,
		Email:        &email,
		PasswordHash: string(hash),
	}
	if err := h.db.WithContext(ctx).Create(&user).Error; err != nil {
		if database.IsDuplicateKey(err) {
			return nil, apierr.From(models.ErrEmailTaken)
		}
		return nil, apierr.From(err)
	}

	logx.WithContext(ctx).Infow("user registered", logx.Field("user_id", user.ID))
	return h.session(user)
}

func (h *AuthHandler) HandleLogin(ctx context.Context, input *LoginInput) (*SessionOutput, error) {
	email := strings.ToLower(strings.TrimSpace(input.Body.Email))

	var user models.User
	err := h.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.From(models.ErrInvalidCredentials)
	}
	if err != nil {
		return nil, apierr.From(err)
	}
	if user.PasswordHash == "" {
		return nil, apierr.From(models.ErrInvalidCredentials)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Body.Password)); err != nil {
		return nil, apierr.From(models.ErrInvalidCredentials)
	}

	return h.session(user)
}

func (h *AuthHandler) HandleMe(ctx context.Context, input *struct{}) (*MeOutput, error) {
	userID, err := RequireUser(ctx)
	if err != nil {
		return nil, err
	}

	var user models.User
	err = h.db.WithContext(ctx).First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.From(models.ErrUserNotFound)
	}
	if err != nil {
		return nil, apierr.From(err)
	}
	return &MeOutput{Body: user}, nil
}

func (h *AuthHandler) session(user models.User) (*SessionOutput, error) {
	token, err := h.GenerateToken(user.ID)
	if err != nil {
		return nil, apierr.From(err)
	}
	out := &SessionOutput{SetCookie: *h.tokenCookie(token)}
	out.Body.Token = token
	out.Body.User = user
	return out, nil
}
