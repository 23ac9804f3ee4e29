package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// 中文说明：
// Telegram 推送通道。决策推送是尽力而为：发送失败只影响通知，
// 不参与决策流程的错误传播，重试耗尽后由调用方记日志了事。

const (
	telegramAPI      = "https://api.telegram.org/bot%s/sendMessage"
	sendAttempts     = 3
	sendTimeout      = 10 * time.Second
	maxMessageLength = 4096 // Telegram 单条消息上限
)

var _ TextNotifier = (*Telegram)(nil)

type Telegram struct {
	botToken string
	chatID   string
	client   *http.Client
}

func NewTelegram(botToken, chatID string) *Telegram {
	return &Telegram{
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: sendTimeout},
	}
}

// SendText 推送一条 Markdown 文本，失败按线性退避重试。
func (t *Telegram) SendText(text string) error {
	if t.botToken == "" || t.chatID == "" {
		return fmt.Errorf("notifier: telegram 未配置 bot token 或 chat id")
	}
	if len(text) > maxMessageLength {
		text = text[:maxMessageLength-3] + "..."
	}
	body, err := json.Marshal(map[string]any{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	})
	if err != nil {
		return fmt.Errorf("notifier: 消息序列化失败: %w", err)
	}

	endpoint := fmt.Sprintf(telegramAPI, t.botToken)
	var lastErr error
	for attempt := 1; attempt <= sendAttempts; attempt++ {
		if lastErr = t.post(endpoint, body); lastErr == nil {
			return nil
		}
		if attempt < sendAttempts {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
	}
	return fmt.Errorf("notifier: telegram 发送 %d 次均失败: %w", sendAttempts, lastErr)
}

func (t *Telegram) post(endpoint string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("telegram 返回 status=%d", resp.StatusCode)
	}
	return nil
}
