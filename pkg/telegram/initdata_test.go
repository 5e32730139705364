package telegram

import (
	"errors"
	"net/url"
	"testing"
)

const testBotToken = "12345:TEST-TOKEN"

// buildInitData 构造一段带合法签名的init data。
func buildInitData(t *testing.T, userJSON string) string {
	t.Helper()
	values := url.Values{}
	values.Set("user", userJSON)
	values.Set("auth_date", "1700000000")
	values.Set("query_id", "AAHdF6IQAAAAAN0XohDhrOrc")
	values.Set("hash", SignInitData(values, testBotToken))
	return values.Encode()
}

// TestValidateInitDataOK 验证合法签名能通过校验并解析出用户。
func TestValidateInitDataOK(t *testing.T) {
	initData := buildInitData(t, `{"id":123456789,"first_name":"Ada","last_name":"Lovelace","username":"ada"}`)

	user, err := ValidateInitData(initData, testBotToken)
	if err != nil {
		t.Fatalf("校验合法init data失败: %v", err)
	}
	if user.ID != 123456789 {
		t.Errorf("用户ID应为123456789, 实际为 %d", user.ID)
	}
	if got := user.DisplayName(); got != "Ada Lovelace" {
		t.Errorf("DisplayName应为 'Ada Lovelace', 实际为 %q", got)
	}
}

// TestValidateInitDataTampered 验证字段被篡改后签名校验失败。
func TestValidateInitDataTampered(t *testing.T) {
	initData := buildInitData(t, `{"id":123456789,"first_name":"Ada"}`)

	values, err := url.ParseQuery(initData)
	if err != nil {
		t.Fatalf("解析测试数据失败: %v", err)
	}
	values.Set("user", `{"id":999,"first_name":"Mallory"}`)

	if _, err := ValidateInitData(values.Encode(), testBotToken); !errors.Is(err, ErrInvalidInitData) {
		t.Fatalf("篡改后的init data应返回ErrInvalidInitData, 实际为 %v", err)
	}
}

// TestValidateInitDataWrongToken 验证用错误的bot token校验会失败。
func TestValidateInitDataWrongToken(t *testing.T) {
	initData := buildInitData(t, `{"id":42,"first_name":"Bob"}`)
	if _, err := ValidateInitData(initData, "54321:OTHER-TOKEN"); !errors.Is(err, ErrInvalidInitData) {
		t.Fatalf("错误token应返回ErrInvalidInitData, 实际为 %v", err)
	}
}

// TestValidateInitDataMissingHash 验证缺失hash字段直接拒绝。
func TestValidateInitDataMissingHash(t *testing.T) {
	if _, err := ValidateInitData("user=%7B%22id%22%3A1%7D", testBotToken); !errors.Is(err, ErrInvalidInitData) {
		t.Fatalf("缺失hash应返回ErrInvalidInitData, 实际为 %v", err)
	}
}
