package user

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/SlpAus/dream-rewards-backend/internal/platform/config"
	"github.com/SlpAus/dream-rewards-backend/internal/platform/database"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestEnv 为每个测试准备独立的SQLite库和一个不可达的Redis客户端。
// Redis只承载派生缓存，核心操作在缓存完全不可用时也必须照常工作，
// 所以测试故意使用一个连不上的地址。
func setupTestEnv(t *testing.T) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	dsn := fmt.Sprintf("file:%s?_busy_timeout=10000&_txlock=immediate", dbPath)
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Discard,
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("无法打开测试数据库: %v", err)
	}
	if err := gdb.AutoMigrate(&User{}, &UnlockCode{}); err != nil {
		t.Fatalf("无法迁移测试数据库: %v", err)
	}

	database.DB = gdb
	database.RDB = redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})

	config.Cfg = &config.Config{
		Rewards: config.RewardsConfig{Count: 4, CodeLength: 6},
	}
}

const testProfileName = "Ada Lovelace"

func testProfile() Profile {
	return Profile{
		Name:    testProfileName,
		Email:   "ada@example.com",
		Country: "UK",
		Phone:   "+4400000000",
		Age:     36,
	}
}

// TestRegisterCodeSetInvariant 注册成功后必须恰好有N个码，
// rewardId覆盖1..N，全部未使用，码为6位大写字母数字。
func TestRegisterCodeSetInvariant(t *testing.T) {
	setupTestEnv(t)

	u, created, err := RegisterUser(1001, testProfile())
	if err != nil {
		t.Fatalf("注册失败: %v", err)
	}
	if !created {
		t.Fatal("首次注册应该创建新记录")
	}
	if len(u.UnlockCodes) != 4 {
		t.Fatalf("解锁码数量应为4, 实际为 %d", len(u.UnlockCodes))
	}

	seenRewards := make(map[int]bool)
	for _, c := range u.UnlockCodes {
		if c.IsUsed {
			t.Errorf("新生成的码 %q 不应是已使用状态", c.Code)
		}
		if len(c.Code) != 6 || c.Code != strings.ToUpper(c.Code) {
			t.Errorf("码 %q 应为6位大写", c.Code)
		}
		if seenRewards[c.RewardID] {
			t.Errorf("rewardId %d 重复出现", c.RewardID)
		}
		seenRewards[c.RewardID] = true
	}
	for rewardID := 1; rewardID <= 4; rewardID++ {
		if !seenRewards[rewardID] {
			t.Errorf("缺少rewardId %d 的码", rewardID)
		}
	}
}

// TestRegisterIdempotent 重复注册返回同一条记录：
// 码集合不重新生成，档案字段不被第二次提交覆盖。
func TestRegisterIdempotent(t *testing.T) {
	setupTestEnv(t)

	first, created, err := RegisterUser(1002, testProfile())
	if err != nil || !created {
		t.Fatalf("首次注册失败: created=%v err=%v", created, err)
	}

	second, created, err := RegisterUser(1002, Profile{Name: "Mallory"})
	if err != nil {
		t.Fatalf("重复注册失败: %v", err)
	}
	if created {
		t.Fatal("重复注册不应创建新记录")
	}
	if second.Name != testProfileName {
		t.Errorf("重复注册不应覆盖档案, name=%q", second.Name)
	}
	if len(second.UnlockCodes) != len(first.UnlockCodes) {
		t.Fatalf("码集合数量变化: %d -> %d", len(first.UnlockCodes), len(second.UnlockCodes))
	}
	firstCodes := make(map[string]bool)
	for _, c := range first.UnlockCodes {
		firstCodes[c.Code] = true
	}
	for _, c := range second.UnlockCodes {
		if !firstCodes[c.Code] {
			t.Errorf("重复注册出现了新的码 %q", c.Code)
		}
	}

	var count int64
	database.DB.Model(&User{}).Count(&count)
	if count != 1 {
		t.Fatalf("库中应只有1条记录, 实际为 %d", count)
	}
}

// TestRegisterConcurrent 两个并发的首次注册只能产生一条记录和一套码集合，
// 落败的一方观察到胜者的记录。
func TestRegisterConcurrent(t *testing.T) {
	setupTestEnv(t)

	type outcome struct {
		user    *User
		created bool
		err     error
	}
	results := make([]outcome, 2)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u, created, err := RegisterUser(1003, testProfile())
			results[i] = outcome{u, created, err}
		}(i)
	}
	wg.Wait()

	createdCount := 0
	for i, r := range results {
		if r.err != nil {
			t.Fatalf("并发注册 %d 返回错误: %v", i, r.err)
		}
		if r.created {
			createdCount++
		}
	}
	if createdCount != 1 {
		t.Fatalf("并发注册应恰好有一个创建成功, 实际为 %d", createdCount)
	}

	var count int64
	database.DB.Model(&User{}).Count(&count)
	if count != 1 {
		t.Fatalf("库中应只有1条记录, 实际为 %d", count)
	}

	// 两边看到的码集合必须一致
	codesOf := func(u *User) map[string]bool {
		m := make(map[string]bool)
		for _, c := range u.UnlockCodes {
			m[c.Code] = true
		}
		return m
	}
	a, b := codesOf(results[0].user), codesOf(results[1].user)
	if len(a) != len(b) {
		t.Fatalf("两侧码集合数量不同: %d vs %d", len(a), len(b))
	}
	for c := range a {
		if !b[c] {
			t.Fatalf("两侧码集合不一致, 缺少 %q", c)
		}
	}
}

// TestCheckEligibilityGating 资格查询的完整门禁场景：
// 未注册 -> 注册后未通过测验 -> 通过测验。
func TestCheckEligibilityGating(t *testing.T) {
	setupTestEnv(t)

	u, err := CheckEligibility(1004)
	if err != nil {
		t.Fatalf("查询未注册用户失败: %v", err)
	}
	if u != nil {
		t.Fatal("未注册的标识符应返回nil")
	}

	// 资格查询绝不能作为副作用创建记录
	var count int64
	database.DB.Model(&User{}).Count(&count)
	if count != 0 {
		t.Fatalf("CheckEligibility不应创建记录, 库中有 %d 条", count)
	}

	if _, _, err := RegisterUser(1004, testProfile()); err != nil {
		t.Fatalf("注册失败: %v", err)
	}

	u, err = CheckEligibility(1004)
	if err != nil || u == nil {
		t.Fatalf("查询已注册用户失败: user=%v err=%v", u, err)
	}
	if u.HasPassedQuiz {
		t.Fatal("新注册用户不应已通过测验")
	}

	if _, err := RecordQuizResult(1004, 80, true); err != nil {
		t.Fatalf("记录测验结果失败: %v", err)
	}

	u, err = CheckEligibility(1004)
	if err != nil || u == nil {
		t.Fatalf("查询失败: user=%v err=%v", u, err)
	}
	if !u.HasPassedQuiz || u.QuizScore != 80 {
		t.Fatalf("测验状态未更新: passed=%v score=%d", u.HasPassedQuiz, u.QuizScore)
	}
}

// TestQuizOverwrite 测验结果是last write wins：重复提交无条件覆盖。
func TestQuizOverwrite(t *testing.T) {
	setupTestEnv(t)
	if _, _, err := RegisterUser(1005, testProfile()); err != nil {
		t.Fatalf("注册失败: %v", err)
	}

	if _, err := RecordQuizResult(1005, 10, false); err != nil {
		t.Fatalf("第一次记录失败: %v", err)
	}
	u, err := RecordQuizResult(1005, 50, true)
	if err != nil {
		t.Fatalf("第二次记录失败: %v", err)
	}
	if u.QuizScore != 50 || !u.HasPassedQuiz {
		t.Fatalf("覆盖后应为 score=50 passed=true, 实际 score=%d passed=%v", u.QuizScore, u.HasPassedQuiz)
	}

	// 通过之后还可以被不通过覆盖，没有保最好成绩的策略
	u, err = RecordQuizResult(1005, 5, false)
	if err != nil {
		t.Fatalf("第三次记录失败: %v", err)
	}
	if u.QuizScore != 5 || u.HasPassedQuiz {
		t.Fatalf("覆盖后应为 score=5 passed=false, 实际 score=%d passed=%v", u.QuizScore, u.HasPassedQuiz)
	}
}

// TestQuizUnknownUser 未注册的标识符提交测验必须失败且不产生任何写入。
func TestQuizUnknownUser(t *testing.T) {
	setupTestEnv(t)

	if _, err := RecordQuizResult(9999, 100, true); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("应返回ErrUserNotFound, 实际为 %v", err)
	}
	var count int64
	database.DB.Model(&User{}).Count(&count)
	if count != 0 {
		t.Fatalf("不应产生写入, 库中有 %d 条", count)
	}
}

// TestUnlockWrongCode 错误的码是软失败，且不改变任何状态。
func TestUnlockWrongCode(t *testing.T) {
	setupTestEnv(t)
	if _, _, err := RegisterUser(1006, testProfile()); err != nil {
		t.Fatalf("注册失败: %v", err)
	}

	result, err := ConsumeUnlockCode(1006, "ZZZZZZ")
	if err != nil {
		t.Fatalf("解锁调用失败: %v", err)
	}
	if result.Success || result.Message != MessageInvalidCode {
		t.Fatalf("应为Invalid Code软失败, 实际 %+v", result)
	}

	u, _ := CheckEligibility(1006)
	for _, c := range u.UnlockCodes {
		if c.IsUsed {
			t.Errorf("错误的提交不应消费任何码, %q 被标记为已用", c.Code)
		}
	}
	if len(u.UnlockedRewards) != 0 {
		t.Errorf("unlockedRewards应保持为空, 实际 %v", u.UnlockedRewards)
	}
}

// TestUnlockSuccessThenReuse 成功解锁后重复提交同一个码得到"已用过"。
func TestUnlockSuccessThenReuse(t *testing.T) {
	setupTestEnv(t)
	u, _, err := RegisterUser(1007, testProfile())
	if err != nil {
		t.Fatalf("注册失败: %v", err)
	}
	target := u.UnlockCodes[0]

	// 大小写不敏感：提交小写形式
	result, err := ConsumeUnlockCode(1007, strings.ToLower(target.Code))
	if err != nil {
		t.Fatalf("解锁失败: %v", err)
	}
	if !result.Success || result.RewardID != target.RewardID {
		t.Fatalf("应解锁rewardId %d, 实际 %+v", target.RewardID, result)
	}

	result, err = ConsumeUnlockCode(1007, target.Code)
	if err != nil {
		t.Fatalf("重复解锁调用失败: %v", err)
	}
	if result.Success || result.Message != MessageCodeAlreadyUsed {
		t.Fatalf("应为Code already used软失败, 实际 %+v", result)
	}

	refreshed, _ := CheckEligibility(1007)
	if len(refreshed.UnlockedRewards) != 1 || refreshed.UnlockedRewards[0] != target.RewardID {
		t.Fatalf("unlockedRewards应恰好包含 %d 一次, 实际 %v", target.RewardID, refreshed.UnlockedRewards)
	}
}

// TestUnlockConcurrentExactlyOnce 两个并发提交同一个未使用的码，
// 必须恰好一个成功、一个得到"已用过"——绝不能两个都成功。
func TestUnlockConcurrentExactlyOnce(t *testing.T) {
	setupTestEnv(t)
	u, _, err := RegisterUser(1008, testProfile())
	if err != nil {
		t.Fatalf("注册失败: %v", err)
	}
	target := u.UnlockCodes[1]

	results := make([]*UnlockResult, 2)
	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = ConsumeUnlockCode(1008, target.Code)
		}(i)
	}
	wg.Wait()

	successCount, usedCount := 0, 0
	for i := 0; i < 2; i++ {
		if errs[i] != nil {
			t.Fatalf("并发解锁 %d 返回错误: %v", i, errs[i])
		}
		if results[i].Success {
			successCount++
		} else if results[i].Message == MessageCodeAlreadyUsed {
			usedCount++
		}
	}
	if successCount != 1 || usedCount != 1 {
		t.Fatalf("应恰好1成功1已用过, 实际 success=%d used=%d", successCount, usedCount)
	}

	refreshed, _ := CheckEligibility(1008)
	if len(refreshed.UnlockedRewards) != 1 {
		t.Fatalf("unlockedRewards应恰好有1项, 实际 %v", refreshed.UnlockedRewards)
	}
}

// TestUnlockUnknownUser 未注册的标识符解锁必须失败且无写入。
func TestUnlockUnknownUser(t *testing.T) {
	setupTestEnv(t)

	if _, err := ConsumeUnlockCode(8888, "ABC123"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("应返回ErrUserNotFound, 实际为 %v", err)
	}
}

// TestListUsers 开发接口返回全部记录及其码集合。
func TestListUsers(t *testing.T) {
	setupTestEnv(t)
	for id := int64(1); id <= 3; id++ {
		if _, _, err := RegisterUser(id, testProfile()); err != nil {
			t.Fatalf("注册 %d 失败: %v", id, err)
		}
	}

	users, err := ListUsers()
	if err != nil {
		t.Fatalf("ListUsers失败: %v", err)
	}
	if len(users) != 3 {
		t.Fatalf("应有3条记录, 实际 %d", len(users))
	}
	for _, u := range users {
		if len(u.UnlockCodes) != 4 {
			t.Errorf("用户 %d 的码集合应为4个, 实际 %d", u.TelegramID, len(u.UnlockCodes))
		}
	}
}
