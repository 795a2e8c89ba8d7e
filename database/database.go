package database

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"liveserver/models"

	"github.com/glebarez/sqlite"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DefaultConfig は設定ファイルに書かれていない項目の既定値です。
func DefaultConfig() models.Config {
	return models.Config{
		DBDriver:                "postgres",
		DBSSLMode:               "disable",
		SQLitePath:              "liveserver.db",
		RedisAddr:               "localhost:6379",
		ListenAddr:              ":8080",
		LogLevel:                "info",
		DefaultCapacity:         models.DefaultCapacity,
		TokenCacheTTLSeconds:    600,
		DisbandedRetentionHours: 48,
		IdleRoomHours:           24,
	}
}

// LoadConfig は設定ファイルを読み込み、環境変数で上書きします。
// ファイルが存在しない場合は既定値と環境変数だけを使います。
func LoadConfig(filename string) (models.Config, error) {
	config := DefaultConfig()
	configFile, err := os.Open(filename)
	switch {
	case err == nil:
		defer configFile.Close()
		if err := json.NewDecoder(configFile).Decode(&config); err != nil {
			return config, fmt.Errorf("設定ファイルの解析に失敗しました: %w", err)
		}
	case !os.IsNotExist(err):
		return config, err
	}

	overrideString(&config.DBDriver, "DB_DRIVER")
	overrideString(&config.DBHost, "DB_HOST")
	overrideString(&config.DBUser, "DB_USER")
	overrideString(&config.DBPassword, "DB_PASSWORD")
	overrideString(&config.DBName, "DB_NAME")
	overrideString(&config.DBSSLMode, "DB_SSLMODE")
	overrideString(&config.SQLitePath, "SQLITE_PATH")
	overrideString(&config.RedisAddr, "REDIS_ADDR")
	overrideString(&config.RedisPassword, "REDIS_PASSWORD")
	overrideString(&config.JWTSecret, "JWT_SECRET")
	overrideString(&config.ListenAddr, "LISTEN_ADDR")
	overrideString(&config.LogLevel, "LOG_LEVEL")
	if v := os.Getenv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return config, fmt.Errorf("REDIS_DB が不正です: %w", err)
		}
		config.RedisDB = db
	}

	if config.JWTSecret == "" {
		return config, fmt.Errorf("jwt_secret が設定されていません")
	}
	if config.DefaultCapacity <= 0 {
		config.DefaultCapacity = models.DefaultCapacity
	}
	return config, nil
}

func overrideString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Dialector は設定に応じたgormのドライバを返します。
func Dialector(config models.Config) (gorm.Dialector, error) {
	switch config.DBDriver {
	case "postgres", "":
		dsn := fmt.Sprintf("host=%s user=%s dbname=%s password=%s sslmode=%s",
			config.DBHost, config.DBUser, config.DBName, config.DBPassword, config.DBSSLMode)
		return postgres.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(config.SQLitePath), nil
	default:
		return nil, fmt.Errorf("未対応のdb_driverです: %s", config.DBDriver)
	}
}

// InitDatabase はデータベースに接続します。失敗時は数回リトライします。
func InitDatabase(config models.Config, logger *zap.Logger) (*gorm.DB, error) {
	dialector, err := Dialector(config)
	if err != nil {
		return nil, err
	}

	const maxRetries = 3
	const retryInterval = 5 * time.Second
	for i := 0; i <= maxRetries; i++ {
		var gormDB *gorm.DB
		gormDB, err = gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
		if err == nil {
			if config.DBDriver == "sqlite" {
				// SQLiteは書き込みが1接続に限られるため直列化する
				sqlDB, dbErr := gormDB.DB()
				if dbErr != nil {
					return nil, dbErr
				}
				sqlDB.SetMaxOpenConns(1)
			}
			logger.Info("データベースに接続しました", zap.String("driver", config.DBDriver))
			return gormDB, nil
		}
		logger.Error("データベース接続のリトライ", zap.Int("retry", i), zap.Error(err))
		if i < maxRetries {
			time.Sleep(retryInterval)
		}
	}
	return nil, fmt.Errorf("データベース接続に失敗しました: %w", err)
}

// AutoMigrate は user, room, room_member テーブルを作成・更新します。
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.User{}, &models.Room{}, &models.RoomMember{}); err != nil {
		return fmt.Errorf("マイグレーションに失敗しました: %w", err)
	}
	return nil
}

func InitRedis(config models.Config, logger *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		logger.Error("Failed to connect to Redis", zap.Error(err))
		rdb.Close()
		return nil, err
	}

	logger.Info("Connected to Redis", zap.String("addr", config.RedisAddr))
	return rdb, nil
}
