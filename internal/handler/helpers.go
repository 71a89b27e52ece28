package handler

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

func parseIDParam(c *fiber.Ctx, key string) (uint, error) {
	value, err := strconv.ParseUint(c.Params(key), 10, 64)
	if err != nil || value == 0 {
		return 0, errors.New("invalid identifier")
	}
	return uint(value), nil
}

// requestLogger prefers the correlation-bound logger placed on the request context.
func requestLogger(c *fiber.Ctx, component string, fallback zerolog.Logger) *zerolog.Logger {
	if c != nil {
		if logger := zerolog.Ctx(c.UserContext()); logger.GetLevel() != zerolog.Disabled {
			scoped := logger.With().Str("component", component).Logger()
			return &scoped
		}
	}
	return &fallback
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}
