package ai

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultOAuthURL = "https://ngw.devices.sberbank.ru:9443/api/v2/oauth"
	DefaultChatURL  = "https://gigachat.devices.sberbank.ru/api/v1/chat/completions"
	DefaultModel    = "GigaChat-Pro"
	DefaultScope    = "GIGACHAT_API_PERS"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type GigaChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type GigaChatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"` // unix ms
}

type GigaChatClient struct {
	authKey    string
	model      string
	scope      string
	oauthURL   string
	chatURL    string
	httpClient *http.Client
	now        func() time.Time

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

type Option func(*GigaChatClient)

func WithHTTPClient(c *http.Client) Option {
	return func(gg_cl *GigaChatClient) { gg_cl.httpClient = c }
}

func WithEndpoints(oauthURL, chatURL string) Option {
	return func(gg_cl *GigaChatClient) {
		gg_cl.oauthURL = oauthURL
		gg_cl.chatURL = chatURL
	}
}

func WithModel(model string) Option {
	return func(gg_cl *GigaChatClient) {
		if model != "" {
			gg_cl.model = model
		}
	}
}

func NewGigaChatClient(authKey string, opts ...Option) *GigaChatClient {
	gg_cl := &GigaChatClient{
		authKey:  authKey,
		model:    DefaultModel,
		scope:    DefaultScope,
		oauthURL: DefaultOAuthURL,
		chatURL:  DefaultChatURL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(gg_cl)
	}
	if gg_cl.httpClient == nil {
		// TLS fix: у Сбера сертификат Минцифры
		tr := &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
		gg_cl.httpClient = &http.Client{Transport: tr, Timeout: 60 * time.Second}
	}
	return gg_cl
}

// Configured reports whether an auth key was provided.
func (gg_cl *GigaChatClient) Configured() bool {
	return gg_cl.authKey != ""
}

// Generate sends one user prompt and returns the model's answer.
func (gg_cl *GigaChatClient) Generate(ctx context.Context, prompt string) (string, error) {
	token, err := gg_cl.token(ctx)
	if err != nil {
		return "", err
	}

	reqBody := GigaChatRequest{
		Model:    gg_cl.model,
		Messages: []Message{{Role: "user", Content: prompt}},
		Stream:   false,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("chat marshal failed: %w", err)
	}

	chatHttpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, gg_cl.chatURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("chat request create failed: %w", err)
	}
	chatHttpReq.Header.Set("Authorization", "Bearer "+token)
	chatHttpReq.Header.Set("Content-Type", "application/json")
	chatHttpReq.Header.Set("RqUID", uuid.NewString())

	resp, err := gg_cl.httpClient.Do(chatHttpReq)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusUnauthorized {
			gg_cl.resetToken()
		}
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("chat http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var chatResp GigaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("chat decode failed: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return chatResp.Choices[0].Message.Content, nil
}

// token returns the cached access token or fetches a new one.
func (gg_cl *GigaChatClient) token(ctx context.Context) (string, error) {
	gg_cl.mu.Lock()
	defer gg_cl.mu.Unlock()

	if gg_cl.accessToken != "" && gg_cl.now().Before(gg_cl.expiresAt) {
		return gg_cl.accessToken, nil
	}

	tokenForm := url.Values{}
	tokenForm.Set("scope", gg_cl.scope)

	tokenHttpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, gg_cl.oauthURL, strings.NewReader(tokenForm.Encode()))
	if err != nil {
		return "", fmt.Errorf("token request create failed: %w", err)
	}

	tokenHttpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	tokenHttpReq.Header.Set("RqUID", uuid.NewString())
	tokenHttpReq.Header.Set("Authorization", "Basic "+gg_cl.authKey)

	tokenResp, err := gg_cl.httpClient.Do(tokenHttpReq)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer tokenResp.Body.Close()

	if tokenResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(tokenResp.Body)
		return "", fmt.Errorf("token http %d: %s", tokenResp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tokenData tokenResponse
	if err := json.NewDecoder(tokenResp.Body).Decode(&tokenData); err != nil {
		return "", fmt.Errorf("token decode failed: %w", err)
	}
	if tokenData.AccessToken == "" {
		return "", fmt.Errorf("token response has no access_token")
	}

	gg_cl.accessToken = tokenData.AccessToken
	// запас в минуту, токен живёт 30 минут
	gg_cl.expiresAt = time.UnixMilli(tokenData.ExpiresAt).Add(-time.Minute)
	return gg_cl.accessToken, nil
}

func (gg_cl *GigaChatClient) resetToken() {
	gg_cl.mu.Lock()
	gg_cl.accessToken = ""
	gg_cl.mu.Unlock()
}
