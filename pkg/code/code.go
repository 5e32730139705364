package code

import (
	"crypto/rand"
	"fmt"
)

// alphabet 是解锁码使用的字符集：大写字母加数字。
// 解锁码对用户是手工输入的，所以不使用区分大小写的字符集。
const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// DefaultLength 是解锁码的默认长度。
const DefaultLength = 6

// Generate 生成一个指定长度的大写字母数字解锁码。
// 随机源是密码学安全的，不依赖时钟等可预测种子。
// 码的唯一性由调用方在自己的作用域内保证（同一用户的码集合内不重复）。
func Generate(length int) (string, error) {
	if length <= 0 {
		length = DefaultLength
	}

	// 1. 从密码学安全的随机源读取随机字节
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("无法读取安全随机源: %w", err)
	}

	// 2. 将每个字节映射到字符集
	// 256 不是 36 的整数倍，取模会带来轻微偏差，
	// 对6位验证码的防猜测要求而言可以接受。
	out := make([]byte, length)
	for i, b := range buf {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(out), nil
}
