package code

import (
	"strings"
	"testing"
)

// TestGenerateFormat 验证生成的解锁码长度固定且只包含大写字母数字。
func TestGenerateFormat(t *testing.T) {
	for i := 0; i < 200; i++ {
		c, err := Generate(6)
		if err != nil {
			t.Fatalf("Generate 返回错误: %v", err)
		}
		if len(c) != 6 {
			t.Fatalf("解锁码长度应为6, 实际为 %d (%q)", len(c), c)
		}
		for _, r := range c {
			if !strings.ContainsRune(alphabet, r) {
				t.Fatalf("解锁码包含非法字符 %q: %q", r, c)
			}
		}
		if c != strings.ToUpper(c) {
			t.Fatalf("解锁码应为大写: %q", c)
		}
	}
}

// TestGenerateDefaultLength 验证非法长度回退到默认长度。
func TestGenerateDefaultLength(t *testing.T) {
	c, err := Generate(0)
	if err != nil {
		t.Fatalf("Generate 返回错误: %v", err)
	}
	if len(c) != DefaultLength {
		t.Fatalf("默认长度应为 %d, 实际为 %d", DefaultLength, len(c))
	}
}

// TestGenerateVariety 粗略验证生成结果不是常量。
// 200个6位码全部相同的概率可以忽略不计。
func TestGenerateVariety(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		c, err := Generate(6)
		if err != nil {
			t.Fatalf("Generate 返回错误: %v", err)
		}
		seen[c] = true
	}
	if len(seen) < 2 {
		t.Fatalf("200次生成只得到 %d 种结果，随机源可疑", len(seen))
	}
}
