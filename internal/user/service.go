package user

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/SlpAus/dream-rewards-backend/internal/platform/config"
	"github.com/SlpAus/dream-rewards-backend/internal/platform/database"
	"github.com/SlpAus/dream-rewards-backend/pkg/code"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrUserNotFound 表示操作要求的用户记录不存在（注册必须先于测验和解锁）。
var ErrUserNotFound = errors.New("用户不存在")

// 解锁的两种软失败是高频的、预期内的用户侧结果，
// 它们作为正常响应的一部分返回，而不是错误。
// 消息文本是与客户端的线上契约，保持英文原样。
const (
	MessageInvalidCode     = "Invalid Code"
	MessageCodeAlreadyUsed = "Code already used"
)

// Profile 是注册时一次性写入的档案字段。
// 字段内容由表现层校验，核心按原样透传。
type Profile struct {
	Name          string
	Email         string
	Country       string
	Phone         string
	Age           int
	Workplace     string
	AccountNumber string
}

// UnlockResult 是一次解锁尝试的结果。
// Success为false时Message区分"码错误"和"码已用过"两种情况。
type UnlockResult struct {
	Success  bool
	Message  string
	RewardID int
}

// Winner 是排行榜上的一个条目。
type Winner struct {
	TelegramID int64  `json:"telegramId"`
	Name       string `json:"name"`
	QuizScore  int    `json:"quizScore"`
}

// rewardCount 返回每个用户固定的奖励槽位数量。
func rewardCount() int {
	if config.Cfg != nil && config.Cfg.Rewards.Count > 0 {
		return config.Cfg.Rewards.Count
	}
	return 4
}

// codeLength 返回解锁码的固定长度。
func codeLength() int {
	if config.Cfg != nil && config.Cfg.Rewards.CodeLength > 0 {
		return config.Cfg.Rewards.CodeLength
	}
	return code.DefaultLength
}

// generateCodeSet 为一个新用户生成完整的解锁码集合，每个奖励槽位一个。
// 码只需在本集合内唯一，集合内部碰撞时重新生成。
func generateCodeSet() ([]UnlockCode, error) {
	count := rewardCount()
	length := codeLength()

	codes := make([]UnlockCode, 0, count)
	seen := make(map[string]bool, count)
	for rewardID := 1; rewardID <= count; rewardID++ {
		var token string
		for {
			var err error
			token, err = code.Generate(length)
			if err != nil {
				return nil, err
			}
			if !seen[token] {
				break
			}
			// 同一集合内撞码，概率极低，直接重试
		}
		seen[token] = true
		codes = append(codes, UnlockCode{RewardID: rewardID, Code: token})
	}
	return codes, nil
}

// findByTelegramID 按标识符加载用户及其解锁码集合。
// 用户不存在时返回ErrUserNotFound。
func findByTelegramID(db *gorm.DB, telegramID int64) (*User, error) {
	var u User
	err := db.Preload("UnlockCodes").Where("telegram_id = ?", telegramID).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("无法查询用户 %d: %w", telegramID, err)
	}
	return &u, nil
}

// RegisterUser 为一个标识符创建用户记录，整个生命周期内至多创建一次。
// 返回值中的bool表示本次调用是否真的创建了新记录。
//
// 幂等性由telegram_id上的唯一索引保证：查找和创建之间若有并发注册
// 抢先写入，Create会以gorm.ErrDuplicatedKey失败，此时重新读取并返回
// 胜者的记录，绝不向调用方暴露这个冲突。
func RegisterUser(telegramID int64, profile Profile) (*User, bool, error) {
	// 1. 已注册则原样返回，档案字段不做任何更新（first write wins）
	existing, err := findByTelegramID(database.DB, telegramID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, false, err
	}

	// 2. 生成完整的解锁码集合，与用户记录一次性原子落库
	codes, err := generateCodeSet()
	if err != nil {
		return nil, false, fmt.Errorf("无法生成解锁码: %w", err)
	}

	newUser := User{
		TelegramID:      telegramID,
		Name:            profile.Name,
		Email:           profile.Email,
		Country:         profile.Country,
		Phone:           profile.Phone,
		Age:             profile.Age,
		Workplace:       profile.Workplace,
		AccountNumber:   profile.AccountNumber,
		UnlockCodes:     codes,
		UnlockedRewards: RewardIDList{},
	}

	if err := database.DB.Create(&newUser).Error; err != nil {
		// 3. 唯一索引冲突意味着别人在查找和创建之间抢先注册了
		// 这不是错误：重新读取并返回胜者的记录
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			winner, ferr := findByTelegramID(database.DB, telegramID)
			if ferr != nil {
				return nil, false, fmt.Errorf("注册冲突后无法重读用户 %d: %w", telegramID, ferr)
			}
			return winner, false, nil
		}
		return nil, false, fmt.Errorf("无法创建用户 %d: %w", telegramID, err)
	}

	// 4. 尽力而为地更新注册缓存，失败只记录警告
	if err := cacheRegisteredID(telegramID); err != nil {
		fmt.Printf("警告: %v\n", err)
	}

	return &newUser, true, nil
}

// CheckEligibility 回答"这个标识符是否已注册、测验是否通过"。
// 纯读操作：未注册时返回(nil, nil)，绝不作为副作用创建记录。
func CheckEligibility(telegramID int64) (*User, error) {
	u, err := findByTelegramID(database.DB, telegramID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// RecordQuizResult 记录一次测验结果。
// 语义是last write wins：重复提交无条件覆盖之前的分数和通过状态，
// 没有"保留最好成绩"之类的合并策略。
func RecordQuizResult(telegramID int64, score int, passed bool) (*User, error) {
	// 1. 注册必须先于测验
	u, err := findByTelegramID(database.DB, telegramID)
	if err != nil {
		return nil, err
	}

	// 2. 无条件覆盖。用map更新，保证score=0和passed=false也能写入
	err = database.DB.Model(&User{}).Where("id = ?", u.ID).Updates(map[string]interface{}{
		"quiz_score":      score,
		"has_passed_quiz": passed,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("无法更新用户 %d 的测验结果: %w", telegramID, err)
	}

	u.QuizScore = score
	u.HasPassedQuiz = passed

	// 3. 尽力而为地刷新排行榜，失败只记录警告
	if err := cacheQuizScore(telegramID, score); err != nil {
		fmt.Printf("警告: %v\n", err)
	}

	return u, nil
}

// ConsumeUnlockCode 用一个提交的码尝试解锁对应的奖励槽位。
// 码在比较前统一转为大写，比较是精确匹配。
//
// "找到码、检查is_used、置位、追加rewardId"整个序列在一个事务内完成，
// 其中置位是一条条件更新(is_used=false才生效)，RowsAffected告诉我们
// 本次调用是否是消费这个码的那一个。两个并发的相同提交恰好一个成功、
// 一个得到"已用过"，绝不会出现两个成功。
func ConsumeUnlockCode(telegramID int64, submittedCode string) (*UnlockResult, error) {
	normalized := strings.ToUpper(strings.TrimSpace(submittedCode))
	if normalized == "" {
		return &UnlockResult{Success: false, Message: MessageInvalidCode}, nil
	}

	var result *UnlockResult
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		// 1. 锁定用户行，保护unlocked_rewards的读改写
		var u User
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("telegram_id = ?", telegramID).First(&u).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("无法查询用户 %d: %w", telegramID, err)
		}

		// 2. 条件更新：只有码存在且尚未使用时才会置位
		res := tx.Model(&UnlockCode{}).
			Where("user_id = ? AND code = ? AND is_used = ?", u.ID, normalized, false).
			Update("is_used", true)
		if res.Error != nil {
			return fmt.Errorf("无法更新解锁码: %w", res.Error)
		}

		// 3. 没有行被更新：区分"码不存在"和"码已用过"
		if res.RowsAffected == 0 {
			var existing UnlockCode
			err := tx.Where("user_id = ? AND code = ?", u.ID, normalized).First(&existing).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				result = &UnlockResult{Success: false, Message: MessageInvalidCode}
				return nil
			}
			if err != nil {
				return fmt.Errorf("无法查询解锁码: %w", err)
			}
			result = &UnlockResult{Success: false, Message: MessageCodeAlreadyUsed}
			return nil
		}

		// 4. 本次调用消费了这个码，把rewardId追加到已解锁列表（至多一次）
		var consumed UnlockCode
		if err := tx.Where("user_id = ? AND code = ?", u.ID, normalized).First(&consumed).Error; err != nil {
			return fmt.Errorf("无法读取已消费的解锁码: %w", err)
		}

		if !u.UnlockedRewards.Contains(consumed.RewardID) {
			updated := append(u.UnlockedRewards, consumed.RewardID)
			if err := tx.Model(&u).Update("unlocked_rewards", updated).Error; err != nil {
				return fmt.Errorf("无法更新已解锁奖励列表: %w", err)
			}
		}

		result = &UnlockResult{Success: true, RewardID: consumed.RewardID}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListUsers 返回全部用户记录，仅供开发期的管理接口使用。
func ListUsers() ([]User, error) {
	var users []User
	if err := database.DB.Preload("UnlockCodes").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("无法列出用户: %w", err)
	}
	return users, nil
}

// TopWinners 从Redis排行榜读取测验分数最高的前limit名用户，
// 并从SQLite解析他们的显示名。
func TopWinners(limit int) ([]Winner, error) {
	if limit <= 0 {
		limit = 10
	}

	entries, err := topQuizScores(limit)
	if err != nil {
		return nil, err
	}

	winners := make([]Winner, 0, len(entries))
	for _, entry := range entries {
		member, ok := entry.Member.(string)
		if !ok {
			continue
		}
		telegramID, err := strconv.ParseInt(member, 10, 64)
		if err != nil {
			continue
		}

		var u User
		if err := database.DB.Select("name").Where("telegram_id = ?", telegramID).First(&u).Error; err != nil {
			// 缓存里有、库里没有：跳过这个脏条目
			continue
		}
		winners = append(winners, Winner{
			TelegramID: telegramID,
			Name:       u.Name,
			QuizScore:  int(entry.Score),
		})
	}
	return winners, nil
}
