package models

// Config 構造体はサーバーの設定情報を保持します。
type Config struct {
	DBDriver   string `json:"db_driver"` // "postgres" または "sqlite"
	DBHost     string `json:"db_host"`
	DBUser     string `json:"db_user"`
	DBPassword string `json:"db_password"`
	DBName     string `json:"db_name"`
	DBSSLMode  string `json:"db_sslmode"`
	SQLitePath string `json:"sqlite_path"`

	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`

	JWTSecret      string   `json:"jwt_secret"`
	ListenAddr     string   `json:"listen_addr"`
	AllowedOrigins []string `json:"allowed_origins"`
	LogLevel       string   `json:"log_level"` // debug, info, warn, error

	DefaultCapacity         int `json:"default_capacity"`
	TokenCacheTTLSeconds    int `json:"token_cache_ttl_seconds"`
	DisbandedRetentionHours int `json:"disbanded_retention_hours"`
	IdleRoomHours           int `json:"idle_room_hours"`
}
