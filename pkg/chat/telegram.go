package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/roster-gateway/internal/models"
	"github.com/noah-isme/roster-gateway/pkg/config"
)

const defaultAPIURL = "https://api.telegram.org"

// ErrNotConfigured is returned when no bot token is set.
var ErrNotConfigured = errors.New("chat: bot token not configured")

// APIError is a non-ok answer from the Bot API.
type APIError struct {
	Method      string
	StatusCode  int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat: %s failed (%d): %s", e.Method, e.StatusCode, e.Description)
}

// Client talks to the Telegram Bot API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger
}

// New builds a Bot API client.
func New(cfg config.ChatConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL := strings.TrimRight(cfg.APIURL, "/")
	if baseURL == "" {
		baseURL = defaultAPIURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

type inlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type replyMarkup struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

func markup(kb models.Keyboard) *replyMarkup {
	rows := make([][]inlineButton, 0, len(kb))
	for _, row := range kb {
		buttons := make([]inlineButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, inlineButton{Text: b.Text, CallbackData: b.Action})
		}
		rows = append(rows, buttons)
	}
	return &replyMarkup{InlineKeyboard: rows}
}

func parseMode(r models.Rendering) string {
	if r.HTML {
		return "HTML"
	}
	return ""
}

// SendMessage posts a new message and returns its id.
func (c *Client) SendMessage(ctx context.Context, chatID int64, r models.Rendering) (int, error) {
	payload := map[string]interface{}{
		"chat_id": chatID,
		"text":    r.Text,
	}
	if mode := parseMode(r); mode != "" {
		payload["parse_mode"] = mode
	}
	if len(r.Keyboard) > 0 {
		payload["reply_markup"] = markup(r.Keyboard)
	}

	var msg struct {
		MessageID int `json:"message_id"`
	}
	if err := c.call(ctx, "sendMessage", payload, &msg); err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// EditText replaces the text and keyboard of an existing message.
func (c *Client) EditText(ctx context.Context, msg models.MessageRef, r models.Rendering) error {
	payload := map[string]interface{}{
		"chat_id":      msg.ChatID,
		"message_id":   msg.MessageID,
		"text":         r.Text,
		"reply_markup": markup(r.Keyboard),
	}
	if mode := parseMode(r); mode != "" {
		payload["parse_mode"] = mode
	}
	return c.ignoreNotModified(c.call(ctx, "editMessageText", payload, nil))
}

// EditKeyboard swaps the inline keyboard; a nil keyboard removes it.
func (c *Client) EditKeyboard(ctx context.Context, msg models.MessageRef, kb models.Keyboard) error {
	payload := map[string]interface{}{
		"chat_id":      msg.ChatID,
		"message_id":   msg.MessageID,
		"reply_markup": markup(kb),
	}
	return c.ignoreNotModified(c.call(ctx, "editMessageReplyMarkup", payload, nil))
}

// SendDocument uploads a file with an optional HTML caption.
func (c *Client) SendDocument(ctx context.Context, chatID int64, filename string, data []byte, caption string) error {
	if c.token == "" {
		return ErrNotConfigured
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("chat_id", strconv.FormatInt(chatID, 10))
	if caption != "" {
		_ = w.WriteField("caption", caption)
		_ = w.WriteField("parse_mode", "HTML")
	}
	part, err := w.CreateFormFile("document", filename)
	if err != nil {
		return fmt.Errorf("chat: create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("chat: write form file: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("chat: close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL("sendDocument"), &buf)
	if err != nil {
		return fmt.Errorf("chat: create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return c.do(req, "sendDocument", nil)
}

// Fetch downloads the blob behind a file handle (getFile + file endpoint).
func (c *Client) Fetch(ctx context.Context, handle string) ([]byte, error) {
	var file struct {
		FilePath string `json:"file_path"`
	}
	if err := c.call(ctx, "getFile", map[string]interface{}{"file_id": handle}, &file); err != nil {
		return nil, err
	}
	if file.FilePath == "" {
		return nil, fmt.Errorf("chat: getFile returned no path for %s", handle)
	}

	url := fmt.Sprintf("%s/file/bot%s/%s", c.baseURL, c.token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("chat: create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat: download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, &APIError{Method: "file", StatusCode: resp.StatusCode, Description: resp.Status}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("chat: read file: %w", err)
	}
	return data, nil
}

func (c *Client) call(ctx context.Context, method string, payload interface{}, out interface{}) error {
	if c.token == "" {
		return ErrNotConfigured
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("chat: marshal %s: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("chat: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, method, out)
}

func (c *Client) do(req *http.Request, method string, out interface{}) error {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("chat: %s request: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("chat: read %s response: %w", method, err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return &APIError{Method: method, StatusCode: resp.StatusCode, Description: strings.TrimSpace(string(raw))}
	}
	if !parsed.OK || resp.StatusCode >= 300 {
		return &APIError{Method: method, StatusCode: resp.StatusCode, Description: parsed.Description}
	}

	c.logger.Debug("chat call", zap.String("method", method), zap.Duration("took", time.Since(start)))

	if out != nil && len(parsed.Result) > 0 {
		if err := json.Unmarshal(parsed.Result, out); err != nil {
			return fmt.Errorf("chat: decode %s result: %w", method, err)
		}
	}
	return nil
}

// ignoreNotModified treats "message is not modified" as success; re-rendering an unchanged
// roster page is routine.
func (c *Client) ignoreNotModified(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) && strings.Contains(apiErr.Description, "message is not modified") {
		return nil
	}
	return err
}

func (c *Client) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
}
