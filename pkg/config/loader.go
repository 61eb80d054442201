package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Option configures a Load call.
type Option func(*options)

type options struct {
	envFiles         []string
	requireEnvFiles  bool
	prefix           string
	useDefaultDotEnv bool
}

// WithEnvFiles loads the given .env files before parsing. Missing files are
// skipped unless WithRequiredEnvFiles is also used.
func WithEnvFiles(paths ...string) Option {
	return func(o *options) {
		o.envFiles = append(o.envFiles, paths...)
		o.useDefaultDotEnv = false
	}
}

// WithRequiredEnvFiles makes a missing .env file an error.
func WithRequiredEnvFiles() Option {
	return func(o *options) {
		o.requireEnvFiles = true
	}
}

// WithPrefix prepends prefix to every env tag, e.g. "SESSIOND_".
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// Load populates v from the environment. Without WithEnvFiles the default
// .env in the working directory is read if it exists.
func Load[T any](v *T, opts ...Option) error {
	if v == nil {
		return ErrNilPointer
	}

	o := &options{useDefaultDotEnv: true}
	for _, opt := range opts {
		opt(o)
	}

	files := o.envFiles
	if o.useDefaultDotEnv {
		files = []string{".env"}
	}

	for _, path := range files {
		if _, err := os.Stat(path); err != nil {
			if o.requireEnvFiles {
				return errors.Join(ErrLoadingEnvFile, fmt.Errorf("%s: %w", path, err))
			}
			continue
		}
		// godotenv.Load never overrides variables already set in the process.
		if err := godotenv.Load(path); err != nil {
			return errors.Join(ErrLoadingEnvFile, fmt.Errorf("%s: %w", path, err))
		}
	}

	if err := env.ParseWithOptions(v, env.Options{Prefix: o.prefix}); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}

	return nil
}

// MustLoad works like Load but panics if configuration loading fails.
func MustLoad[T any](v *T, opts ...Option) {
	if err := Load(v, opts...); err != nil {
		panic(fmt.Sprintf("Failed to load required configuration: %v", err))
	}
}
