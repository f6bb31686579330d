package logging

import (
	"log/slog"
	"os"
)

var Logger *slog.Logger

func Init() {
	env := os.Getenv("APP_ENV")
	if env == "prod" {
		Logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	} else {
		Logger = slog.New(slog.NewTextHandler(os.Stdout, nil))
	}
	slog.SetDefault(Logger)
}

func init() {
	// workers and tests may log before main calls Init
	if Logger == nil {
		Logger = slog.New(slog.NewTextHandler(os.Stdout, nil))
	}
}
