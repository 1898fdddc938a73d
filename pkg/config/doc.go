// Package config loads typed configuration structs from the environment.
//
// Structs declare their variables with github.com/caarlos0/env tags; a .env
// file in the working directory is read once via github.com/joho/godotenv.
// Structs that implement Validate() error are validated after parsing, which
// lets each package own its invariants next to its Config type.
package config
