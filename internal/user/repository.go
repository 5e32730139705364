package user

import (
	"fmt"
	"strconv"

	"github.com/SlpAus/dream-rewards-backend/internal/platform/database"
	"github.com/redis/go-redis/v9"
)

// 本文件封装对本模块管理的Redis键的访问。
// SQLite是唯一的权威存储，这里的两个键都是派生缓存：
// 写入失败只降级排行榜等辅助功能，绝不能让核心操作失败。

// cacheRegisteredID 将一个已注册的Telegram ID加入注册集合。
func cacheRegisteredID(telegramID int64) error {
	member := strconv.FormatInt(telegramID, 10)
	if err := database.RDB.SAdd(database.Ctx, RegisteredUsersKey, member).Err(); err != nil {
		return fmt.Errorf("无法将用户 %d 加入注册缓存: %w", telegramID, err)
	}
	return nil
}

// cacheQuizScore 更新排行榜中一个用户的测验分数。
// 测验语义是last write wins，所以这里直接覆盖旧分数。
func cacheQuizScore(telegramID int64, score int) error {
	member := strconv.FormatInt(telegramID, 10)
	err := database.RDB.ZAdd(database.Ctx, QuizRankingKey, redis.Z{
		Score:  float64(score),
		Member: member,
	}).Err()
	if err != nil {
		return fmt.Errorf("无法更新用户 %d 的排行榜分数: %w", telegramID, err)
	}
	return nil
}

// topQuizScores 读取排行榜分数最高的前limit个Telegram ID及其分数。
func topQuizScores(limit int) ([]redis.Z, error) {
	entries, err := database.RDB.ZRevRangeWithScores(database.Ctx, QuizRankingKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("无法读取测验排行榜: %w", err)
	}
	return entries, nil
}
