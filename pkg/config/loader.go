package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var dotenvOnce sync.Once

// validator is implemented by config structs that check their own invariants
// after parsing.
type validator interface {
	Validate() error
}

// Load populates v from environment variables using `env` struct tags.
//
// The first call loads the default .env file when present; missing files are
// not an error. If *T implements Validate() error it is called after parsing
// and its error is returned wrapped with ErrInvalidConfig.
//
//	var cfg smartnotify.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}

	dotenvOnce.Do(func() {
		_ = godotenv.Load()
	})

	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}

	if val, ok := any(v).(validator); ok {
		if err := val.Validate(); err != nil {
			return errors.Join(ErrInvalidConfig, err)
		}
	}

	return nil
}

// LoadFile loads variables from the given dotenv files without overriding
// values that are already set, then behaves like Load.
func LoadFile[T any](v *T, files ...string) error {
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return errors.Join(ErrLoadingEnvFile, err)
		}
	}
	return Load(v)
}

// MustLoad works like Load but panics on failure. Intended for main packages.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}
