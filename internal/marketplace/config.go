package marketplace

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/samber/lo"
)

// Config はサーバーの設定。環境変数から読み込む。
type Config struct {
	// Port はリッスンポート。
	Port string `env:"PORT" envDefault:"5000"`
	// DBURI はSQLiteのDSN。
	DBURI string `env:"DB_URI" envDefault:"file:marketplace.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate"`
	// AccessTokenSecret はアクセストークンの署名鍵。必須。
	AccessTokenSecret string `env:"ACCESS_TOKEN_SECRET,required,notEmpty"`
	// TokenTTL はアクセストークンの有効期間。0の場合は期限なし。
	TokenTTL time.Duration `env:"TOKEN_TTL" envDefault:"0s"`
	// CORSAllowedOrigins はCORSで許可するオリジン。"*" で全許可。
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	// LogLevel はログレベル（DEBUG/INFO/WARN/ERROR）。
	LogLevel string `env:"LOG_LEVEL" envDefault:"INFO"`
	// LogFormat はログ形式（json/text）。
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
	// BootstrapAdmins は起動時に管理者として登録するメールアドレス。
	BootstrapAdmins []string `env:"BOOTSTRAP_ADMINS" envSeparator:","`
	// ShutdownTimeout はグレースフルシャットダウンの待ち時間。
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// LoadConfig は環境変数から設定を読み込む。
func LoadConfig() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("設定の読み込みに失敗: %w", err)
	}
	if cfg.TokenTTL < 0 {
		return Config{}, fmt.Errorf("TOKEN_TTLに負の値は指定できません: %s", cfg.TokenTTL)
	}

	cfg.CORSAllowedOrigins = normalizeList(cfg.CORSAllowedOrigins)
	cfg.BootstrapAdmins = normalizeList(cfg.BootstrapAdmins)
	return cfg, nil
}

// normalizeList は各要素の前後の空白を除き、空要素を取り除く。
func normalizeList(values []string) []string {
	return lo.Compact(lo.Map(values, func(v string, _ int) string {
		return strings.TrimSpace(v)
	}))
}
