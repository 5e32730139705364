package telegram

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// WebAppUser 是Telegram Mini App init data中user字段的JSON结构。
// 它就是身份桥提供的 { userId, displayName } 信息。
type WebAppUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

// DisplayName 按照 "FirstName LastName" 的方式拼接显示名。
func (u *WebAppUser) DisplayName() string {
	parts := make([]string, 0, 2)
	if u.FirstName != "" {
		parts = append(parts, u.FirstName)
	}
	if u.LastName != "" {
		parts = append(parts, u.LastName)
	}
	return strings.Join(parts, " ")
}

// ErrInvalidInitData 表示init data缺失必要字段或签名校验失败。
var ErrInvalidInitData = errors.New("invalid telegram init data")

// secretKeyFor 按Bot API的约定派生init data校验密钥：
// HMAC-SHA256(key="WebAppData", message=botToken)。
func secretKeyFor(botToken string) []byte {
	mac := hmac.New(sha256.New, []byte("WebAppData"))
	mac.Write([]byte(botToken))
	return mac.Sum(nil)
}

// ValidateInitData 校验一段Mini App init data的签名，并返回其中的用户信息。
// initData 是Telegram客户端注入的原始query string。
func ValidateInitData(initData, botToken string) (*WebAppUser, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, fmt.Errorf("无法解析init data: %w", err)
	}

	// 1. 取出hash字段，其余字段参与签名
	gotHash := values.Get("hash")
	if gotHash == "" {
		return nil, ErrInvalidInitData
	}
	values.Del("hash")

	// 2. 构造data-check-string：key=value按key字典序排序，用\n连接
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+values.Get(k))
	}
	checkString := strings.Join(lines, "\n")

	// 3. 重新计算预期签名
	mac := hmac.New(sha256.New, secretKeyFor(botToken))
	mac.Write([]byte(checkString))
	expected := mac.Sum(nil)

	// 4. 解码客户端传来的签名
	actual, err := hex.DecodeString(gotHash)
	if err != nil {
		return nil, ErrInvalidInitData
	}

	// 5. 使用 hmac.Equal 进行时间恒定的比较，防止时序攻击
	if !hmac.Equal(expected, actual) {
		return nil, ErrInvalidInitData
	}

	// 6. 签名通过后才解析user字段
	rawUser := values.Get("user")
	if rawUser == "" {
		return nil, ErrInvalidInitData
	}
	var user WebAppUser
	if err := json.Unmarshal([]byte(rawUser), &user); err != nil {
		return nil, fmt.Errorf("无法解析init data中的user字段: %w", err)
	}
	if user.ID <= 0 {
		return nil, ErrInvalidInitData
	}

	return &user, nil
}

// SignInitData 用给定的bot token为一组init data字段生成签名。
// 主要供测试和本地联调使用，生产路径只会用到ValidateInitData。
func SignInitData(values url.Values, botToken string) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k == "hash" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+values.Get(k))
	}

	mac := hmac.New(sha256.New, secretKeyFor(botToken))
	mac.Write([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(mac.Sum(nil))
}
