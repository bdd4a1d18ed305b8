package main

import (
	"flag"
	"fmt"

	"shopbot/internal/auth"
	"shopbot/internal/config"
	"shopbot/internal/logger"
)

func main() {
	cfg := config.MustLoad()
	log := logger.New(cfg.App.LogLevel, cfg.App.LogFormat)

	userID := flag.String("user", "", "discord user id recorded as the actor of API changes")
	guildID := flag.String("guild", auth.AllGuilds, "guild the token may manage, or * for all")
	ttl := flag.Duration("ttl", cfg.HTTP.TokenTTL, "token lifetime")
	flag.Parse()

	if *userID == "" {
		log.Fatal("-user is required")
	}
	token, err := auth.GenerateToken(cfg.HTTP.JWTSecret, *userID, *guildID, *ttl)
	if err != nil {
		log.WithError(err).Fatal("failed to sign token")
	}
	fmt.Println(token)
}
