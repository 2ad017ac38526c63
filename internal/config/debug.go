package config

import "os"

func IsDebug() bool {
	return os.Getenv("TUTOR_DEBUG") == "1"
}
