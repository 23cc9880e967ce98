package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gdg-garage/garage-rsvp-api/internal/apierr"
	"github.com/gdg-garage/garage-rsvp-api/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/zeromicro/go-zero/core/logx"
	"gorm.io/gorm"
)

type contextKey string

const UserIDKey contextKey = "user_id"

var (
	errAPIKeyInvalid = errors.New("invalid API key")
	errAPIKeyExpired = errors.New("API key expired")
)

// Identify resolves the caller from, in order, an X-API-KEY header, a bearer
// token or the auth cookie, and stores the user id in the request context.
// Requests without credentials pass through anonymously; handlers that need
// a user call RequireUser.
func (h *AuthHandler) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if apiKey := r.Header.Get("X-API-KEY"); apiKey != "" {
			userID, err := h.userForAPIKey(r.Context(), apiKey)
			if err != nil {
				writeUnauthorized(w, err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
			return
		}

		if header := r.Header.Get("Authorization"); header != "" {
			tokenString, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				writeUnauthorized(w, "unsupported authorization scheme")
				return
			}
			userID, _, err := h.ParseToken(tokenString)
			if err != nil {
				writeUnauthorized(w, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
			return
		}

		cookie, err := r.Cookie(TokenCookieName)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		userID, expiresAt, err := h.ParseToken(cookie.Value)
		if err != nil {
			// A stale browser session must not lock the user out of login.
			http.SetCookie(w, &http.Cookie{Name: TokenCookieName, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
			next.ServeHTTP(w, r)
			return
		}

		// Sliding session: refresh token if it's more than halfway through its duration
		if time.Until(expiresAt) < TokenDuration/2 {
			if newToken, err := h.GenerateToken(userID); err == nil {
				http.SetCookie(w, h.tokenCookie(newToken))
			}
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

// ParseToken validates an HS256 token and returns its user id and expiry.
func (h *AuthHandler) ParseToken(tokenString string) (string, time.Time, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(h.cfg.JWTSecret), nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return "", time.Time{}, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", time.Time{}, errors.New("invalid token claims")
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", time.Time{}, errors.New("invalid token claims")
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return "", time.Time{}, errors.New("invalid token expiry")
	}
	return userID, exp.Time, nil
}

func (h *AuthHandler) userForAPIKey(ctx context.Context, key string) (string, error) {
	var keyModel models.APIKey
	err := h.db.WithContext(ctx).Where(&models.APIKey{Key: key}).First(&keyModel).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", errAPIKeyInvalid
	}
	if err != nil {
		logx.WithContext(ctx).Errorw("api key lookup failed", logx.Field("error", err.Error()))
		return "", errAPIKeyInvalid
	}
	if keyModel.ExpiresAt != nil && time.Now().After(*keyModel.ExpiresAt) {
		return "", errAPIKeyExpired
	}

	if err := h.db.WithContext(ctx).Model(&keyModel).UpdateColumn("last_used_at", time.Now()).Error; err != nil {
		logx.WithContext(ctx).Errorw("api key last_used_at update failed",
			logx.Field("key_id", keyModel.ID),
			logx.Field("error", err.Error()),
		)
	}
	return keyModel.UserID, nil
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

func UserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok && userID != ""
}

// RequireUser returns the caller's id or an Unauthorized API error.
func RequireUser(ctx context.Context) (string, error) {
	userID, ok := UserID(ctx)
	if !ok {
		return "", apierr.Unauthorized(models.ErrUnauthorized.Error())
	}
	return userID, nil
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(apierr.Unauthorized(message))
}
