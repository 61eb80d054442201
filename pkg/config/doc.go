// Package config loads configuration structs from the process environment
// and optional .env files.
//
// It wraps github.com/joho/godotenv and github.com/caarlos0/env/v11:
// .env files are read first (existing process variables always win), then
// the environment is parsed into a struct using `env` / `envDefault` tags.
//
// # Usage
//
//	type Config struct {
//	    Addr    string        `env:"ADDR" envDefault:":8080"`
//	    Timeout time.Duration `env:"TIMEOUT" envDefault:"5s"`
//	}
//
//	var cfg Config
//	if err := config.Load(&cfg, config.WithEnvFiles(".env", ".env.local")); err != nil {
//	    // handle error
//	}
//
// # Error Handling
//
// Parse failures wrap ErrParsingConfig; a nil target returns ErrNilPointer.
package config
