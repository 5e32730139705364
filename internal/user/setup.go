package user

import (
	"fmt"
	"strconv"

	"github.com/SlpAus/dream-rewards-backend/internal/platform/database"
	"github.com/redis/go-redis/v9"
)

// migrateDB 负责自动迁移数据库表结构
func migrateDB() error {
	if err := database.DB.AutoMigrate(&User{}, &UnlockCode{}); err != nil {
		return fmt.Errorf("无法迁移user表: %w", err)
	}
	fmt.Println("User数据库表迁移成功。")
	return nil
}

// WarmupCache 从SQLite加载全部用户，重建Redis中的注册集合和测验排行榜。
// 它总是先清空旧键再整体重建，保证缓存与权威存储一致。
func WarmupCache() error {
	var users []User
	if err := database.DB.Select("telegram_id", "quiz_score").Find(&users).Error; err != nil {
		return fmt.Errorf("无法从SQLite读取用户: %w", err)
	}

	pipe := database.RDB.Pipeline()
	// 先清空旧的缓存，确保数据一致性
	pipe.Del(database.Ctx, RegisteredUsersKey)
	pipe.Del(database.Ctx, QuizRankingKey)

	if len(users) == 0 {
		if _, err := pipe.Exec(database.Ctx); err != nil {
			return fmt.Errorf("清空用户缓存失败: %w", err)
		}
		fmt.Println("无现有用户数据，用户缓存已清空。")
		return nil
	}

	members := make([]interface{}, len(users))
	ranking := make([]redis.Z, len(users))
	for i, u := range users {
		member := strconv.FormatInt(u.TelegramID, 10)
		members[i] = member
		ranking[i] = redis.Z{Score: float64(u.QuizScore), Member: member}
	}

	pipe.SAdd(database.Ctx, RegisteredUsersKey, members...)
	pipe.ZAdd(database.Ctx, QuizRankingKey, ranking...)

	if _, err := pipe.Exec(database.Ctx); err != nil {
		return fmt.Errorf("预热用户缓存到Redis失败: %w", err)
	}

	fmt.Printf("成功预热 %d 个用户到Redis。\n", len(users))
	return nil
}

// PrimeCachedDB 是user模块的初始化总入口
func PrimeCachedDB() error {
	if err := migrateDB(); err != nil {
		return err
	}
	if err := WarmupCache(); err != nil {
		return err
	}
	return nil
}
