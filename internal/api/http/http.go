package http

type Config struct {
	Port        uint            `mapstructure:"port"`
	AdminAPIKey string          `mapstructure:"admin_api_key"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}
