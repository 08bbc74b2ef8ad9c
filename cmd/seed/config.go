package main

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	BadgerFilepath string   `envconfig:"BADGER_FILEPATH" required:"true"`
	Users          []string `envconfig:"SEED_USERS" default:"alice@example.com,bob@example.com,carol@example.com"`
	Password       string   `envconfig:"SEED_PASSWORD" default:"Passw0rd!"`
	// SEED_CONVERSATION creates a group conversation between every seeded user
	Conversation bool `envconfig:"SEED_CONVERSATION" default:"true"`
	// SEED_COLOURS enables colorized output
	Colours bool `envconfig:"SEED_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
