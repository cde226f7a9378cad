package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/wneessen/go-mail"

	"price-watch/internal/fetcher"
	"price-watch/internal/storage"
)

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	msg := Message{Method: storage.NotifyTelegram, To: "a@b.c", Subject: "Price Drop Alert: pixel", Body: "body"}

	if err := notifier.Send(context.Background(), msg); err != nil {
		t.Fatalf("Telegram Send 应成功: %v", err)
	}
	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	if !strings.Contains(received["text"], "Price Drop Alert: pixel") {
		t.Fatalf("text 应包含标题: %q", received["text"])
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Send(context.Background(), Message{Subject: "s"}); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

type recordingNotifier struct {
	sent []Message
}

func (r *recordingNotifier) Send(ctx context.Context, msg Message) error {
	r.sent = append(r.sent, msg)
	return nil
}

func TestRouterDispatchesByMethod(t *testing.T) {
	email := &recordingNotifier{}
	router := NewRouter()
	router.Register(storage.NotifyEmail, email)
	router.Register(storage.NotifyTelegram, nil)

	if err := router.Send(context.Background(), Message{Method: storage.NotifyEmail, To: "x@y.z"}); err != nil {
		t.Fatalf("email route should succeed: %v", err)
	}
	if len(email.sent) != 1 {
		t.Fatalf("email notifier should receive the message")
	}
	err := router.Send(context.Background(), Message{Method: storage.NotifyTelegram})
	if !errors.Is(err, ErrNoChannel) {
		t.Fatalf("unregistered method should yield ErrNoChannel, got %v", err)
	}
	if len(router.Methods()) != 1 {
		t.Fatalf("nil notifiers must not be registered: %v", router.Methods())
	}
}

func TestPriceDropMessage(t *testing.T) {
	alert := storage.Alert{
		ID:           7,
		Email:        "buyer@example.com",
		Query:        "iphone 15",
		TargetPrice:  decimal.NewFromInt(65000),
		NotifyMethod: storage.NotifyEmail,
	}
	best := fetcher.Quote{
		Source: "amazon",
		Price:  decimal.NewNullDecimal(decimal.NewFromInt(64999)),
		Link:   "https://amazon.example/iphone",
	}

	msg := PriceDrop(alert, best, "₹")
	if msg.To != alert.Email || msg.Method != storage.NotifyEmail {
		t.Fatalf("routing fields wrong: %+v", msg)
	}
	if msg.Subject != "Price Drop Alert: iphone 15" {
		t.Fatalf("unexpected subject %q", msg.Subject)
	}
	for _, want := range []string{"Product: iphone 15", "Target Price: ₹65,000", "Current Price: ₹64,999", "Store: amazon", "https://amazon.example/iphone", "Alert ID: 7"} {
		if !strings.Contains(msg.Body, want) {
			t.Fatalf("body missing %q:\n%s", want, msg.Body)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	if got := FormatAmount("₹", decimal.RequireFromString("1299.5")); got != "₹1,299.50" {
		t.Fatalf("unexpected %q", got)
	}
	if got := FormatAmount("$", decimal.NewFromInt(950)); got != "$950" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestEmailBuildMessage(t *testing.T) {
	n := NewEmailNotifier(EmailOptions{Host: "smtp.example.com", From: "alerts@example.com"}, testLogger())

	m, err := n.buildMessage(Message{To: "buyer@example.com", Subject: "Price Drop Alert: pixel", Body: "hi"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if subj := m.GetGenHeader(mail.HeaderSubject); len(subj) != 1 || subj[0] != "Price Drop Alert: pixel" {
		t.Fatalf("subject header wrong: %v", subj)
	}

	if _, err := n.buildMessage(Message{To: "not an address"}); err == nil {
		t.Fatal("invalid recipient should fail")
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
