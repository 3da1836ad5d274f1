package server

import (
	"taskpilot/internal/agent"
	"taskpilot/internal/domain"
)

// Request payloads

type RegisterRequest struct {
	Email    string `json:"email" format:"email"`
	Password string `json:"password" minLength:"8"`
}

type LoginRequest struct {
	Email    string `json:"email" format:"email"`
	Password string `json:"password"`
}

type CreateTaskRequest struct {
	Title       string  `json:"title" minLength:"1"`
	Description *string `json:"description,omitempty"`
}

type UpdateTaskRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Completed   *bool   `json:"completed,omitempty"`
}

type PromptRequest struct {
	Text string `json:"text" minLength:"1"`
}

type ChatRequest struct {
	ConversationID int64  `json:"conversation_id,omitempty"`
	Text           string `json:"text" minLength:"1"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

// Response payloads

type TokenResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

type PromptResponse struct {
	Reply string `json:"reply"`
}

type ChatResponse struct {
	ConversationID int64  `json:"conversation_id"`
	Reply          string `json:"reply"`
}

type ReportResponse = agent.Report

type APIKeyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

func toAPIKeyResponse(k domain.APIKey, plaintext string) APIKeyResponse {
	return APIKeyResponse{ID: k.ID, Name: k.Name, Key: plaintext, CreatedAt: k.CreatedAt}
}
