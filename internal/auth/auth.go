package auth

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gdg-garage/garage-rsvp-api/internal/config"
	"github.com/gdg-garage/garage-rsvp-api/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/core/logx"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

const (
	DiscordAuthorizeEndpoint = "https://discord.com/api/oauth2/authorize"
	DiscordTokenEndpoint     = "https://discord.com/api/oauth2/token"
	DiscordUserAPI           = "https://discord.com/api/users/@me"
	DiscordUserGuildsAPI     = "https://discord.com/api/users/@me/guilds"

	TokenDuration   = 24 * time.Hour
	TokenCookieName = "auth_token"
	stateCookieName = "oauth_state"
)

type AuthHandler struct {
	oauthConfig *oauth2.Config
	db          *gorm.DB
	cfg         *config.Config
}

func NewAuthHandler(cfg *config.Config, db *gorm.DB) *AuthHandler {
	return &AuthHandler{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.DiscordClientID,
			ClientSecret: cfg.DiscordClientSecret,
			RedirectURL:  cfg.DiscordRedirectURL,
			Scopes:       []string{"identify", "email", "guilds"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  DiscordAuthorizeEndpoint,
				TokenURL: DiscordTokenEndpoint,
			},
		},
		db:  db,
		cfg: cfg,
	}
}

func (h *AuthHandler) HandleDiscordLogin(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Expires:  time.Now().Add(10 * time.Minute),
		HttpOnly: true,
		Path:     "/",
	})
	url := h.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOnline)
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

func (h *AuthHandler) HandleDiscordCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value != r.URL.Query().Get("state") {
		http.Error(w, "Invalid OAuth state", http.StatusBadRequest)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "Code not found", http.StatusBadRequest)
		return
	}

	token, err := h.oauthConfig.Exchange(ctx, code)
	if err != nil {
		logx.WithContext(ctx).Errorw("discord token exchange failed", logx.Field("error", err.Error()))
		http.Error(w, "Failed to exchange token", http.StatusInternalServerError)
		return
	}

	client := h.oauthConfig.Client(ctx, token)

	if h.cfg.DiscordGuildID != "" {
		guildsResp, err := client.Get(DiscordUserGuildsAPI)
		if err != nil {
			http.Error(w, "Failed to get user guilds", http.StatusInternalServerError)
			return
		}
		defer guildsResp.Body.Close()

		var guilds []struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(guildsResp.Body).Decode(&guilds); err != nil {
			http.Error(w, "Failed to decode user guilds", http.StatusInternalServerError)
			return
		}

		isMember := false
		for _, g := range guilds {
			if g.ID == h.cfg.DiscordGuildID {
				isMember = true
				break
			}
		}

		if !isMember {
			http.Error(w, "Access denied: You are not a member of the required guild.", http.StatusForbidden)
			return
		}
	}

	resp, err := client.Get(DiscordUserAPI)
	if err != nil {
		http.Error(w, "Failed to get user info", http.StatusInternalServerError)
		return
	}
	defer resp.Body.Close()

	var discordUser struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Email    string `json:"email"`
		Avatar   string `json:"avatar"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&discordUser); err != nil {
		http.Error(w, "Failed to decode user info", http.StatusInternalServerError)
		return
	}

	var user models.User
	if err := h.db.WithContext(ctx).Where("discord_id = ?", discordUser.ID).FirstOrInit(&user).Error; err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	user.DiscordID = &discordUser.ID
	user.Username = discordUser.Username
	user.Avatar = discordUser.Avatar
	// Another account may already own this email.
	if user.Email == nil && discordUser.Email != "" {
		var taken int64
		h.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", discordUser.Email).Count(&taken)
		if taken == 0 {
			user.Email = &discordUser.Email
		}
	}

	if err := h.db.WithContext(ctx).Save(&user).Error; err != nil {
		http.Error(w, "Failed to save user", http.StatusInternalServerError)
		return
	}

	jwtToken, err := h.GenerateToken(user.ID)
	if err != nil {
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, h.tokenCookie(jwtToken))

	logx.WithContext(ctx).Infow("discord login", logx.Field("user_id", user.ID))
	if h.cfg.FrontendURL != "" {
		http.Redirect(w, r, h.cfg.FrontendURL, http.StatusTemporaryRedirect)
		return
	}
	w.Write([]byte("Welcome " + user.Username + "! You are logged in."))
}

func (h *AuthHandler) GenerateToken(userID string) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(TokenDuration).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.cfg.JWTSecret))
}

func (h *AuthHandler) tokenCookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     TokenCookieName,
		Value:    token,
		Expires:  time.Now().Add(TokenDuration),
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	}
}
