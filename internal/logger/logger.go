package logger

import (
	"io"
	"os"
	"time"

	"osp-stores-backend/internal/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Init configures the global logger. Development gets a console writer,
// everything else JSON lines on stdout.
func Init(serviceName string, isDevelopment bool, level string) {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var output io.Writer = os.Stdout
	if isDevelopment {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	Logger = zerolog.New(output).
		Level(lvl).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()

	log.Logger = Logger
}

// RequestLogger logs every request once it has been handled. 5xx responses
// are logged at error level, 4xx at warn.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				status = e.Code
			} else if kind, ok := apperr.KindOf(err); ok {
				status = apperr.HTTPStatus(kind)
			}
		}

		event := Logger.Info()
		switch {
		case status >= fiber.StatusInternalServerError:
			event = Logger.Error()
		case status >= fiber.StatusBadRequest:
			event = Logger.Warn()
		}

		if err != nil && status >= fiber.StatusInternalServerError {
			event = event.Err(err)
		}
		event.
			Str("method", c.Method()).
			Str("path", c.Path()).
			Str("ip", c.IP()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("request handled")

		return err
	}
}
