package user

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/SlpAus/dream-rewards-backend/internal/platform/database"
	"github.com/gin-gonic/gin"
)

// resolveIdentifier 解析请求的规范标识符。
// 经过签名校验的身份桥优先；没有身份桥时使用请求携带的兜底字段。
// 两者都缺失或非正数时视为InvalidIdentifier。
func resolveIdentifier(c *gin.Context, fallback int64) (int64, bool) {
	if tgUser := identityFromContext(c); tgUser != nil {
		return tgUser.ID, true
	}
	if fallback > 0 {
		return fallback, true
	}
	return 0, false
}

// CheckUser 处理 GET /api/check?id=...
// 纯读操作，回答"是否已注册"，绝不创建记录。
func CheckUser(c *gin.Context) {
	var queryID int64
	if raw := c.Query("id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err == nil {
			queryID = parsed
		}
	}

	telegramID, ok := resolveIdentifier(c, queryID)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid telegram id"})
		return
	}

	u, err := CheckEligibility(telegramID)
	if err != nil {
		fmt.Printf("CheckUser 查询失败: %v\n", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		return
	}
	if u == nil {
		c.JSON(http.StatusOK, gin.H{"registered": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"registered": true, "user": u})
}

// RegisterRequestBody 定义了注册请求体的JSON结构。
// 同时接受表单风格(firstName)和Telegram风格(first_name)的姓名字段。
type RegisterRequestBody struct {
	TelegramID    int64  `json:"telegramId"`
	Name          string `json:"name"`
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	TgFirstName   string `json:"first_name"`
	TgLastName    string `json:"last_name"`
	Email         string `json:"email"`
	Country       string `json:"country"`
	Phone         string `json:"phone"`
	Age           int    `json:"age"`
	Workplace     string `json:"workplace"`
	AccountNumber string `json:"accountNumber"`
}

// resolveName 从请求体的多种姓名字段中拼出显示名。
// 优先级：整名 > firstName/lastName > first_name/last_name > 身份桥 > 兜底。
func (body *RegisterRequestBody) resolveName(c *gin.Context) string {
	if body.Name != "" {
		return body.Name
	}

	first := body.FirstName
	if first == "" {
		first = body.TgFirstName
	}
	last := body.LastName
	if last == "" {
		last = body.TgLastName
	}
	if joined := strings.TrimSpace(first + " " + last); joined != "" {
		return joined
	}

	if tgUser := identityFromContext(c); tgUser != nil {
		if name := tgUser.DisplayName(); name != "" {
			return name
		}
	}
	return "Unnamed"
}

// Register 处理 POST /api/register
// 首次注册返回201，重复注册返回200和已存在的记录（含解锁码集合）。
func Register(c *gin.Context) {
	var body RegisterRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误: " + err.Error()})
		return
	}

	telegramID, ok := resolveIdentifier(c, body.TelegramID)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid telegram id"})
		return
	}

	profile := Profile{
		Name:          body.resolveName(c),
		Email:         body.Email,
		Country:       body.Country,
		Phone:         body.Phone,
		Age:           body.Age,
		Workplace:     body.Workplace,
		AccountNumber: body.AccountNumber,
	}

	u, created, err := RegisterUser(telegramID, profile)
	if err != nil {
		fmt.Printf("Register 失败: %v\n", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Registration failed"})
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"success": true, "user": u})
}

// QuizRequestBody 定义了提交测验结果的请求体。
// 分数和通过与否由调用方计算，核心按原样记录。
type QuizRequestBody struct {
	TelegramID int64 `json:"telegramId"`
	Score      int   `json:"score"`
	Passed     bool  `json:"passed"`
}

// SaveQuizResult 处理 POST /api/quiz
func SaveQuizResult(c *gin.Context) {
	var body QuizRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误: " + err.Error()})
		return
	}

	telegramID, ok := resolveIdentifier(c, body.TelegramID)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid telegram id"})
		return
	}

	u, err := RecordQuizResult(telegramID, body.Score, body.Passed)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		fmt.Printf("SaveQuizResult 失败: %v\n", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "user": u})
}

// UnlockRequestBody 定义了提交解锁码的请求体。
type UnlockRequestBody struct {
	TelegramID int64  `json:"telegramId"`
	Code       string `json:"code" binding:"required"`
}

// UnlockReward 处理 POST /api/unlock
// 码错误和码已用过是预期内的结果，以200返回并带上区分性的message，
// 客户端据此给出不同的提示。
func UnlockReward(c *gin.Context) {
	var body UnlockRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Code is required"})
		return
	}

	telegramID, ok := resolveIdentifier(c, body.TelegramID)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid telegram id"})
		return
	}

	if strings.TrimSpace(body.Code) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Code is required"})
		return
	}

	result, err := ConsumeUnlockCode(telegramID, body.Code)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "User not found"})
			return
		}
		fmt.Printf("UnlockReward 失败: %v\n", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		return
	}

	if !result.Success {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": result.Message})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "rewardId": result.RewardID})
}

// ListUsersHandler 处理 GET /api/dev/users
// 开发期辅助接口，生产部署时应当移除或加以保护。
func ListUsersHandler(c *gin.Context) {
	users, err := ListUsers()
	if err != nil {
		fmt.Printf("ListUsers 失败: %v\n", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(users), "users": users})
}

// GetWinners 处理 GET /api/winners
// 排行榜依赖Redis缓存，Redis不健康时降级为503。
func GetWinners(c *gin.Context) {
	if !database.IsRedisHealthy() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Leaderboard temporarily unavailable"})
		return
	}

	limit := 10
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	winners, err := TopWinners(limit)
	if err != nil {
		fmt.Printf("GetWinners 失败: %v\n", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Leaderboard temporarily unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "winners": winners})
}
