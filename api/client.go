// Package api wraps the translation server's HTTP endpoints: conversation
// CRUD, message send, audio upload, summaries and the supported language
// list. The reconciliation core never talks HTTP directly; it consumes this
// client through small interfaces.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bosley/medtalk/chat"
)

const defaultTimeout = 30 * time.Second

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

// conversationDetail is the GET /conversations/{id} payload, metadata plus
// the full ordered message history.
type conversationDetail struct {
	chat.Conversation
	Messages []chat.Message `json:"messages"`
}

func (c *Client) Conversations(ctx context.Context) ([]chat.Conversation, error) {
	var out []chat.Conversation
	if err := c.do(ctx, http.MethodGet, "/conversations", nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	return out, nil
}

func (c *Client) CreateConversation(ctx context.Context) (chat.Conversation, error) {
	var out chat.Conversation
	if err := c.do(ctx, http.MethodPost, "/conversations", struct{}{}, &out); err != nil {
		return chat.Conversation{}, fmt.Errorf("failed to create conversation: %w", err)
	}
	return out, nil
}

func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	if err := c.do(ctx, http.MethodDelete, "/conversations/"+conversationID, nil, nil); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

// FetchMessages loads the conversation history snapshot used on activation.
func (c *Client) FetchMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	var detail conversationDetail
	if err := c.do(ctx, http.MethodGet, "/conversations/"+conversationID, nil, &detail); err != nil {
		return nil, fmt.Errorf("failed to fetch conversation: %w", err)
	}
	return detail.Messages, nil
}

// SendMessage submits a draft for translation and relay.
func (c *Client) SendMessage(ctx context.Context, conversationID string, draft chat.Draft) (chat.Message, error) {
	payload := map[string]string{
		"conversation_id": conversationID,
		"role":            string(draft.Role),
		"original_text":   draft.Text,
		"source_language": draft.SourceLanguage,
		"target_language": draft.TargetLanguage,
	}
	if draft.AudioPath != "" {
		payload["audio_path"] = draft.AudioPath
	}

	var out chat.Message
	if err := c.do(ctx, http.MethodPost, "/messages", payload, &out); err != nil {
		return chat.Message{}, err
	}
	out.Status = chat.StatusConfirmed
	return out, nil
}

// UploadAudio sends a local recording as multipart form data and returns
// the server-side filename to reference from a message.
func (c *Client) UploadAudio(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open audio file: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("failed to read audio file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/upload", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to upload audio: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return "", err
	}

	var out struct {
		Filename string `json:"filename"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}
	return out.Filename, nil
}

func (c *Client) Summary(ctx context.Context, conversationID string) (chat.Summary, error) {
	var out chat.Summary
	if err := c.do(ctx, http.MethodPost, "/summary/"+conversationID, struct{}{}, &out); err != nil {
		return chat.Summary{}, fmt.Errorf("failed to create summary: %w", err)
	}
	return out, nil
}

func (c *Client) Languages(ctx context.Context) ([]chat.Language, error) {
	var out []chat.Language
	if err := c.do(ctx, http.MethodGet, "/languages", nil, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch languages: %w", err)
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("server returned %s: %s", resp.Status, strings.TrimSpace(string(data)))
}
