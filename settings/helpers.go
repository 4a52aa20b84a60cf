package settings

import (
	"strings"
	"time"

	"github.com/ordishs/gocore"
)

func getString(key, defaultValue string) string {
	value, found := gocore.Config().Get(key)
	if !found {
		return defaultValue
	}

	return value
}

func getMultiString(key string, defaultValue ...string) []string {
	value, found := gocore.Config().Get(key)
	if !found || value == "" {
		return defaultValue
	}

	return strings.Split(value, "|")
}

func getInt(key string, defaultValue int) int {
	value, found := gocore.Config().GetInt(key)
	if !found {
		return defaultValue
	}

	return value
}

func getBool(key string, defaultValue bool) bool {
	return gocore.Config().GetBool(key, defaultValue)
}

func getDuration(key, defaultValue string) time.Duration {
	value := getString(key, defaultValue)

	d, err := time.ParseDuration(value)
	if err != nil {
		panic("invalid duration for " + key + ": " + value)
	}

	return d
}
