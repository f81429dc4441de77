package config

type App struct {
	Port               string `env:"APP_PORT" default:"8080"`
	DatabaseURL        string `env:"DATABASE_URL,required"`
	JWTSecret          string `env:"JWT_SECRET,required"`
	FineRefreshMinutes int    `env:"FINE_REFRESH_MINUTES" default:"60"`
	Env                string `env:"APP_ENV" default:"dev"`
}
