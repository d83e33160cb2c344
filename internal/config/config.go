package config

import (
	"log"
	"os"
)

type Config struct {
	DatabaseURL    string
	JWTSecret      string
	Port           string
	CORSOrigin     string
	PlannerURL     string
	DailyTaskCount string
	LogLevel       string
	LogFormat      string
	LogFile        string
}

func Load() Config {
	cfg := Config{
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		Port:           os.Getenv("PORT"),
		CORSOrigin:     os.Getenv("CORS_ORIGIN"),
		PlannerURL:     os.Getenv("PLANNER_URL"),
		DailyTaskCount: os.Getenv("DAILY_TASK_COUNT"),
		LogLevel:       os.Getenv("LOG_LEVEL"),
		LogFormat:      os.Getenv("LOG_FORMAT"),
		LogFile:        os.Getenv("LOG_FILE"),
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.DailyTaskCount == "" {
		cfg.DailyTaskCount = "3"
	}
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}
	if cfg.PlannerURL == "" {
		log.Fatal("PLANNER_URL is required")
	}
	return cfg
}
