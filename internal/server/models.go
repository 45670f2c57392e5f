package server

// HTTPError is the unified error body.
type HTTPError struct {
	Error string `json:"error"`
}

// AuthSignupRequest creates an account.
type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthLoginRequest exchanges credentials for a token.
type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries the JWT for Bearer flows.
type TokenResponse struct {
	Token string `json:"token"`
}

// ChatMessage is one client-visible turn.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest starts or continues a streamed conversation.
type ChatRequest struct {
	ID       string        `json:"id,omitempty"` // existing chat to append to
	Messages []ChatMessage `json:"messages"`
	Group    string        `json:"group,omitempty"`
	Model    string        `json:"model,omitempty"` // {provider}:{model} override
}

// ChatCreatedResponse is embedded in the done event.
type ChatCreatedResponse struct {
	ChatID string `json:"chat_id,omitempty"`
}
