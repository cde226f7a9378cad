package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrNoChannel is returned when no notifier handles the requested method.
var ErrNoChannel = errors.New("no notification channel configured")

// Message 封装一次告警投递。
type Message struct {
	Method  string
	To      string
	Subject string
	Body    string
}

// Notifier 定义告警输送接口。A nil error means the message was accepted.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Router 根据 Message.Method 选择具体通道。
type Router struct {
	channels map[string]Notifier
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{channels: make(map[string]Notifier)}
}

// Register binds a method name to a notifier.
func (r *Router) Register(method string, n Notifier) {
	if n == nil {
		return
	}
	r.channels[method] = n
}

// Methods lists registered method names.
func (r *Router) Methods() []string {
	out := make([]string, 0, len(r.channels))
	for m := range r.channels {
		out = append(out, m)
	}
	return out
}

// Send dispatches msg to the notifier registered for msg.Method.
func (r *Router) Send(ctx context.Context, msg Message) error {
	n, ok := r.channels[msg.Method]
	if !ok {
		return fmt.Errorf("%w for method %q", ErrNoChannel, msg.Method)
	}
	return n.Send(ctx, msg)
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "notify_telegram").Logger(),
	}
}

// Send 调用 sendMessage API 推送文本。The configured chat receives every
// message; msg.To is only logged.
func (n *TelegramNotifier) Send(ctx context.Context, msg Message) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    msg.Subject + "\n\n" + msg.Body,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && !result.OK {
		return fmt.Errorf("telegram 返回 ok=false")
	}

	n.logger.Info().Str("recipient", msg.To).Str("subject", msg.Subject).Msg("告警已发送 (Telegram)")
	return nil
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*Router)(nil)
)
