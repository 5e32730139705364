package bot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/SlpAus/dream-rewards-backend/internal/platform/config"
	"github.com/gin-gonic/gin"
)

// SecretTokenHeader 是Telegram在webhook请求中携带密钥的请求头。
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// defaultAPIBase 是Telegram Bot API的地址，测试时可以替换。
const defaultAPIBase = "https://api.telegram.org"

// Update 是Telegram webhook推送的更新结构（只保留用到的字段）。
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

// Message 是更新中的消息部分。
type Message struct {
	MessageID int64  `json:"message_id"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
}

// Chat 标识消息所属的会话。
type Chat struct {
	ID int64 `json:"id"`
}

// Handler 处理Telegram机器人的webhook更新。
// 机器人唯一的职责是响应 /start 命令，发出进入Mini App的深链接按钮；
// 它不触碰核心的用户状态。
type Handler struct {
	cfg     config.TelegramConfig
	client  *http.Client
	apiBase string
}

// NewHandler 创建一个webhook处理器。
func NewHandler(cfg config.TelegramConfig) *Handler {
	return &Handler{
		cfg:     cfg,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiBase: defaultAPIBase,
	}
}

// HandleUpdate 处理 POST /webhook
// Telegram期望尽快收到200，所以耗时的出站调用放到后台执行。
func (h *Handler) HandleUpdate(c *gin.Context) {
	// 1. 校验密钥头，防止任意来源伪造webhook请求
	if h.cfg.WebhookSecret != "" {
		if c.GetHeader(SecretTokenHeader) != h.cfg.WebhookSecret {
			c.String(http.StatusUnauthorized, "Invalid secret")
			return
		}
	}

	// 2. 解析更新。无法解析的更新直接确认，避免Telegram反复重推
	var update Update
	if err := c.ShouldBindJSON(&update); err != nil {
		fmt.Printf("无法解析Telegram更新: %v\n", err)
		c.Status(http.StatusOK)
		return
	}

	// 3. 只响应 /start 命令
	if update.Message != nil && strings.HasPrefix(update.Message.Text, "/start") {
		chatID := update.Message.Chat.ID
		go func() {
			if err := h.sendWelcome(chatID); err != nil {
				fmt.Printf("发送欢迎消息失败: %v\n", err)
			}
		}()
	}

	c.Status(http.StatusOK)
}

// sendWelcome 通过Bot API向指定会话发送欢迎消息和Mini App按钮。
func (h *Handler) sendWelcome(chatID int64) error {
	welcome := h.cfg.WelcomeMessage
	if welcome == "" {
		welcome = "Welcome!"
	}

	payload := map[string]interface{}{
		"chat_id": chatID,
		"text":    welcome,
	}
	if h.cfg.WebAppURL != "" {
		payload["reply_markup"] = map[string]interface{}{
			"inline_keyboard": [][]map[string]interface{}{
				{
					{
						"text":    "Open Dream App 🏆",
						"web_app": map[string]string{"url": h.cfg.WebAppURL},
					},
				},
			},
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("无法序列化sendMessage请求: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", h.apiBase, h.cfg.BotToken)
	resp, err := h.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("调用Bot API失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Bot API返回状态 %d", resp.StatusCode)
	}
	return nil
}
