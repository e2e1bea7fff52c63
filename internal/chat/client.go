package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"pireminder/internal/config"
	appLog "pireminder/internal/log"
)

// systemPrompt anchors the assistant persona for every conversation.
const systemPrompt = "You are a helpful AI assistant on a Raspberry Pi reminder system. " +
	"Be concise and friendly. Help users with their reminders and answer questions."

const (
	// historyCap bounds stored conversation turns.
	historyCap = 20
	// historyWindow is how many stored messages are sent with each request.
	historyWindow = 10
)

// Message is one chat turn in OpenAI wire format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Client is a chatbot client for any OpenAI-compatible chat completions
// endpoint. It keeps a bounded conversation history.
type Client struct {
	cfg    config.ChatbotConfig
	client *http.Client

	mu      sync.Mutex
	history []Message
}

// NewClient constructs a chat client from config.
func NewClient(cfg config.ChatbotConfig) *Client {
	return &Client{
		cfg: cfg,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Enabled reports whether the chatbot is configured and usable.
func (c *Client) Enabled() bool {
	return c.cfg.Enabled && c.cfg.APIKey != ""
}

// Chat sends a user message together with the recent conversation window and
// returns the assistant reply. Successful exchanges extend the history.
func (c *Client) Chat(ctx context.Context, userMessage string) (string, error) {
	if !c.Enabled() {
		return "", errors.New("chat: not configured")
	}
	userMessage = strings.TrimSpace(userMessage)
	if userMessage == "" {
		return "", errors.New("chat: empty message")
	}

	c.mu.Lock()
	window := c.history
	if len(window) > historyWindow {
		window = window[len(window)-historyWindow:]
	}
	messages := make([]Message, 0, len(window)+2)
	messages = append(messages, Message{Role: "system", Content: systemPrompt})
	messages = append(messages, window...)
	messages = append(messages, Message{Role: "user", Content: userMessage})
	c.mu.Unlock()

	reply, err := c.complete(ctx, messages)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.history = append(c.history,
		Message{Role: "user", Content: userMessage},
		Message{Role: "assistant", Content: reply},
	)
	if len(c.history) > historyCap {
		c.history = c.history[len(c.history)-historyCap:]
	}
	c.mu.Unlock()

	return reply, nil
}

// ClearHistory forgets the conversation.
func (c *Client) ClearHistory() {
	c.mu.Lock()
	c.history = nil
	c.mu.Unlock()
	appLog.Info("chat history cleared")
}

func (c *Client) complete(ctx context.Context, messages []Message) (string, error) {
	payload := chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("chat: decode response (status %s): %w", resp.Status, err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("chat: api error: %s", parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat: endpoint returned %s", resp.Status)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("chat: empty choices in response")
	}

	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}
