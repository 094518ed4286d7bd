package utils

import (
	"fmt"
	"os"
	"strconv"

	"github.com/danthegoodman1/scanbench/gologger"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/segmentio/ksuid"
)

var logger = gologger.NewLogger()

func GetEnvOrDefault(env, defaultVal string) string {
	e := os.Getenv(env)
	if e == "" {
		return defaultVal
	} else {
		return e
	}
}

func GetEnvOrDefaultInt(env string, defaultVal int64) int64 {
	e := os.Getenv(env)
	if e == "" {
		return defaultVal
	} else {
		intVal, err := strconv.ParseInt(e, 10, 64)
		if err != nil {
			logger.Error().Msg(fmt.Sprintf("Failed to parse string to int '%s'", env))
			os.Exit(1)
		}

		return (intVal)
	}
}

func GenKSortedID(prefix string) string {
	return prefix + ksuid.New().String()
}

// GenCursorName returns a lowercase random name that is a valid unquoted SQL identifier.
func GenCursorName(prefix string) string {
	return prefix + gonanoid.MustGenerate("abcdefghijklmnopqrstuvwxyz0123456789", 12)
}

func Ptr[T any](s T) *T {
	return &s
}
