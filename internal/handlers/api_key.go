package handlers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/gdg-garage/garage-rsvp-api/internal/apierr"
	"github.com/gdg-garage/garage-rsvp-api/internal/auth"
	"github.com/gdg-garage/garage-rsvp-api/internal/models"
	"gorm.io/gorm"
)

type APIKeyHandler struct {
	db *gorm.DB
}

func NewAPIKeyHandler(db *gorm.DB) *APIKeyHandler {
	return &APIKeyHandler{db: db}
}

type CreateAPIKeyInput struct {
	Body struct {
		Name      string     `json:"name" maxLength:"100" doc:"Label to recognise the key by"`
		ExpiresAt *time.Time `json:"expiresAt,omitempty" doc:"Optional expiry"`
	}
}

type APIKeyResponse struct {
	ID         uint       `json:"id"`
	Name       string     `json:"name"`
	Key        string     `json:"key"`
	CreatedAt  time.Time  `json:"createdAt"`
	ExpiresAt  *time.Time `json:"expiresAt"`
	LastUsedAt *time.Time `json:"lastUsedAt"`
}

type CreateAPIKeyOutput struct {
	Body APIKeyResponse
}

func (h *APIKeyHandler) HandleCreate(ctx context.Context, input *CreateAPIKeyInput) (*CreateAPIKeyOutput, error) {
	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}
	if input.Body.ExpiresAt != nil && input.Body.ExpiresAt.Before(time.Now()) {
		return nil, apierr.From(fmt.Errorf("%w: expiresAt is in the past", models.ErrInvalidInput))
	}

	keyBytes := make([]byte, 32)
	if _, err := rand.Read(keyBytes); err != nil {
		return nil, apierr.From(err)
	}

	apiKey := models.APIKey{
		UserID:    userID,
		Key:       hex.EncodeToString(keyBytes),
		Name:      input.Body.Name,
		ExpiresAt: input.Body.ExpiresAt,
	}
	if err := h.db.WithContext(ctx).Omit("User").Create(&apiKey).Error; err != nil {
		return nil, apierr.From(err)
	}

	// The full key is only ever shown here.
	return &CreateAPIKeyOutput{Body: toAPIKeyResponse(apiKey, apiKey.Key)}, nil
}

type ListAPIKeysOutput struct {
	Body []APIKeyResponse
}

func (h *APIKeyHandler) HandleList(ctx context.Context, input *struct{}) (*ListAPIKeysOutput, error) {
	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}

	var apiKeys []models.APIKey
	if err := h.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&apiKeys).Error; err != nil {
		return nil, apierr.From(err)
	}

	response := make([]APIKeyResponse, 0, len(apiKeys))
	for _, k := range apiKeys {
		maskedKey := k.Key
		if len(k.Key) > 4 {
			maskedKey = "..." + k.Key[len(k.Key)-4:]
		}
		response = append(response, toAPIKeyResponse(k, maskedKey))
	}
	return &ListAPIKeysOutput{Body: response}, nil
}

type DeleteAPIKeyInput struct {
	ID uint `path:"id"`
}

func (h *APIKeyHandler) HandleDelete(ctx context.Context, input *DeleteAPIKeyInput) (*struct{}, error) {
	userID, err := auth.RequireUser(ctx)
	if err != nil {
		return nil, err
	}

	res := h.db.WithContext(ctx).Where("id = ? AND user_id = ?", input.ID, userID).Delete(&models.APIKey{})
	if res.Error != nil {
		return nil, apierr.From(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apierr.New(http.StatusNotFound, apierr.KindNotFound, "API key not found")
	}
	return nil, nil
}

func toAPIKeyResponse(k models.APIKey, key string) APIKeyResponse {
	return APIKeyResponse{
		ID:         k.ID,
		Name:       k.Name,
		Key:        key,
		CreatedAt:  k.CreatedAt,
		ExpiresAt:  k.ExpiresAt,
		LastUsedAt: k.LastUsedAt,
	}
}

func (h *APIKeyHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/api-keys",
		Summary:       "Create an API key",
		Tags:          []string{"API Keys"},
		DefaultStatus: http.StatusCreated,
		Security:      authenticated,
	}, h.HandleCreate)

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/api-keys",
		Summary:     "List your API keys",
		Tags:        []string{"API Keys"},
		Security:    authenticated,
	}, h.HandleList)

	huma.Register(api, huma.Operation{
		OperationID:   "delete-api-key",
		Method:        http.MethodDelete,
		Path:          "/api-keys/{id}",
		Summary:       "Revoke an API key",
		Tags:          []string{"API Keys"},
		DefaultStatus: http.StatusNoContent,
		Security:      authenticated,
	}, h.HandleDelete)
}
