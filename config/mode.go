package config

import "os"

// Dev reads gip.config from the work dir, Prod from the directory of the executable.
const (
	Dev  = "dev"
	Prod = "prod"
)

var mode = modeFromEnv()

func modeFromEnv() string {
	if os.Getenv("GIP_MODE") == Prod {
		return Prod
	}
	return Dev
}

func SetMode(newMode string) {
	mode = newMode
}

func CurrentMode() string {
	return mode
}
