package user

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// User 定义了注册用户在SQLite数据库中的持久化模型。
// 解锁码集合随用户记录一次性创建，之后只有is_used位和
// unlocked_rewards列表会被修改。
type User struct {
	// ID 是内部主键，不对外暴露。
	ID uint `json:"-" gorm:"primarykey"`

	// TelegramID 是用户的规范标识符，来自身份桥或客户端兜底字段。
	// 唯一索引是注册幂等性的根基：并发的首次注册只有一个能写入成功。
	TelegramID int64 `json:"telegramId" gorm:"uniqueIndex;not null"`

	// 档案字段由注册一次性写入，重复注册不会覆盖（first write wins）。
	Name          string `json:"name"`
	Email         string `json:"email"`
	Country       string `json:"country"`
	Phone         string `json:"phone"`
	Age           int    `json:"age"`
	Workplace     string `json:"workplace"`
	AccountNumber string `json:"accountNumber"`

	// 测验结果，由测验服务无条件覆盖（last write wins）。
	HasPassedQuiz bool `json:"hasPassedQuiz"`
	QuizScore     int  `json:"quizScore"`

	// UnlockCodes 是用户固定数量的解锁码集合，与用户记录原子创建。
	UnlockCodes []UnlockCode `json:"unlockCodes" gorm:"constraint:OnDelete:CASCADE"`

	// UnlockedRewards 记录已解锁的奖励槽位，单调增长，每个rewardId至多出现一次。
	UnlockedRewards RewardIDList `json:"unlockedRewards" gorm:"type:text"`

	// CreatedAt 在创建时设置，之后不再变化。
	CreatedAt time.Time `json:"createdAt"`
}

// UnlockCode 定义了单个解锁码的持久化模型。
// 码只在所属用户的集合内保证唯一（user_id+code的联合唯一索引），
// 跨用户的碰撞无关紧要，因为查找总是先按用户过滤。
type UnlockCode struct {
	ID     uint `json:"-" gorm:"primarykey"`
	UserID uint `json:"-" gorm:"uniqueIndex:idx_user_code;not null"`

	// RewardID 是该码对应的奖励槽位，在所属用户内唯一，取值1..N。
	RewardID int `json:"rewardId"`

	// Code 是固定长度的大写字母数字令牌。
	Code string `json:"code" gorm:"uniqueIndex:idx_user_code;type:varchar(16)"`

	// IsUsed 只允许false→true的单向迁移，由解锁服务的条件更新保证。
	IsUsed bool `json:"isUsed"`

	// IsSent 是管理侧的发送簿记位，核心逻辑不关心它。
	IsSent bool `json:"isSent"`
}

// RewardIDList 以JSON文本的形式把已解锁的奖励槽位列表内嵌在用户行中。
// 奖励槽位从不脱离所属用户被单独查询，所以不值得为它建表。
type RewardIDList []int

// Contains 判断列表中是否已有给定的rewardId。
func (l RewardIDList) Contains(rewardID int) bool {
	for _, id := range l {
		if id == rewardID {
			return true
		}
	}
	return false
}

// Value 实现driver.Valuer，序列化为JSON文本。
func (l RewardIDList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]int(l))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan 实现sql.Scanner，从JSON文本反序列化。
func (l *RewardIDList) Scan(value interface{}) error {
	if value == nil {
		*l = RewardIDList{}
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("无法将 %T 扫描为RewardIDList", value)
	}

	if len(data) == 0 {
		*l = RewardIDList{}
		return nil
	}

	var ids []int
	if err := json.Unmarshal(data, &ids); err != nil {
		return fmt.Errorf("无法解析unlocked_rewards列: %w", err)
	}
	*l = RewardIDList(ids)
	return nil
}
