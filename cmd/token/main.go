package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/VampKunal/IdeaRoom/internal/identity"
	"github.com/VampKunal/IdeaRoom/internal/models"
)

func main() {
	_ = godotenv.Load()

	secret := flag.String("secret", os.Getenv("AUTH_SECRET"), "HS256 secret (defaults to AUTH_SECRET)")
	user := flag.String("user", "", "User id (token subject)")
	name := flag.String("name", "", "Display name")
	picture := flag.String("picture", "", "Avatar URL")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	flag.Parse()

	if *secret == "" || *user == "" {
		fmt.Fprintln(os.Stderr, "Usage: token -user <id> [-name <display name>] [-picture <url>] [-ttl 24h] [-secret <secret>]")
		fmt.Fprintln(os.Stderr, "  Reads the secret from AUTH_SECRET if -secret is not specified")
		os.Exit(1)
	}

	token, err := identity.Issue([]byte(*secret), models.Identity{
		UserID:      *user,
		DisplayName: *name,
		AvatarURL:   *picture,
	}, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to sign token: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Authorization: Bearer %s\n", token)
	fmt.Printf("ws query:      ?token=%s\n", token)
}
