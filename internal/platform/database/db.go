package database

import (
	"fmt"
	"log"
	"os"

	"github.com/SlpAus/dream-rewards-backend/internal/platform/config"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB 是一个全局的GORM数据库实例，供项目其他部分使用
var DB *gorm.DB

// InitDB 初始化数据库连接
func InitDB(cfg config.SqliteConfig) {
	var err error

	// GORM日志配置
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: 0,
			LogLevel:      logger.Silent, // 在生产环境中可以设为Silent
			Colorful:      true,
		},
	)

	// 连接到SQLite数据库
	// TranslateError 让唯一约束冲突以 gorm.ErrDuplicatedKey 的形式暴露，
	// 注册服务依赖这个错误来识别并发的重复注册。
	// _txlock=immediate 让事务在BEGIN时就拿写锁，配合busy_timeout，
	// 并发的解锁事务会排队等待而不是升级锁时直接冲突。
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_txlock=immediate", cfg.Path)
	DB, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         newLogger,
		TranslateError: true,
	})

	if err != nil {
		fmt.Println("连接数据库失败", err)
		panic(err)
	}

	fmt.Println("数据库连接成功！")
}
