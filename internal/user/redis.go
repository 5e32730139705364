package user

// 定义与用户相关的Redis键名
const (
	// RegisteredUsersKey 是一个Set，用于快速判断一个Telegram ID是否已注册。
	// Key: user:registered
	// Member: Telegram ID的十进制字符串
	RegisteredUsersKey = "user:registered"

	// QuizRankingKey 是一个Sorted Set，用于测验分数排行榜（Winners页面）。
	// Score: 用户最近一次提交的测验分数
	// Member: Telegram ID的十进制字符串
	QuizRankingKey = "user:quiz:ranking"
)
