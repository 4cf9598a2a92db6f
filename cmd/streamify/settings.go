package main

import (
	"strings"
	"time"
)

type Settings struct {
	Port           int    `env:"PORT,default=8000"`
	BasePath       string `env:"BASE_PATH,default=/streamify"`
	BaseURL        string `env:"BASE_URL,default=http://localhost:5173"`
	JWTSecret      string `env:"JWT_SECRET,required=true"`
	ChatAPIKey     string `env:"CHAT_API_KEY"`
	ChatAPISecret  string `env:"CHAT_API_SECRET,required=true"`
	ChatTokenTTL   string `env:"CHAT_TOKEN_TTL,default=24h"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS,default=http://localhost:5173"`
	LogEncoding    string `env:"LOG_ENCODING,default=console"`
	LogLevel       string `env:"LOG_LEVEL,default=info"`
	MongoURI       string `env:"MONGODB_URI"`
	MongoDatabase  string `env:"MONGODB_DATABASE,default=streamify"`
	SendBufferSize int    `env:"SEND_BUFFER_SIZE,default=16"`
}

func (s Settings) AllowedOriginList() []string {
	return strings.Split(s.AllowedOrigins, ",")
}

// TokenTTL is zero when CHAT_TOKEN_TTL is "0", meaning tokens never expire.
func (s Settings) TokenTTL() (time.Duration, error) {
	return time.ParseDuration(s.ChatTokenTTL)
}
