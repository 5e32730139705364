package user

import (
	"fmt"
	"net/http"

	"github.com/SlpAus/dream-rewards-backend/pkg/telegram"
	"github.com/gin-gonic/gin"
)

const (
	// InitDataHeader 是Mini App客户端携带原始init data的请求头。
	InitDataHeader = "X-Telegram-Init-Data"

	// IdentityKey 是经过签名校验的Telegram用户在Gin上下文中的键。
	IdentityKey = "telegramUser"
)

// IdentityMiddleware 校验请求头中的Telegram init data签名。
// 校验通过的用户身份被放入上下文，优先于请求体里的兜底标识符；
// 请求头不存在时直接放行（身份桥缺席，由请求体字段兜底）；
// 请求头存在但签名非法时拒绝请求，不能让伪造的身份静默降级为匿名。
func IdentityMiddleware(botToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		initData := c.GetHeader(InitDataHeader)
		if initData == "" || botToken == "" {
			c.Next()
			return
		}

		tgUser, err := telegram.ValidateInitData(initData, botToken)
		if err != nil {
			fmt.Printf("检测到非法的Telegram init data: %v\n", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid init data"})
			return
		}

		c.Set(IdentityKey, tgUser)
		c.Next()
	}
}

// identityFromContext 取出中间件放入的已认证Telegram用户，可能不存在。
func identityFromContext(c *gin.Context) *telegram.WebAppUser {
	value, exists := c.Get(IdentityKey)
	if !exists {
		return nil
	}
	tgUser, ok := value.(*telegram.WebAppUser)
	if !ok {
		return nil
	}
	return tgUser
}
