package main

import (
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"os"

	"github.com/VampKunal/IdeaRoom/internal/identity"
)

func main() {
	size := flag.Int("bytes", 48, "Secret length in bytes")
	flag.Parse()

	if *size < identity.MinSecretLen {
		fmt.Fprintf(os.Stderr, "Secret must be at least %d bytes\n", identity.MinSecretLen)
		os.Exit(1)
	}

	secret := make([]byte, *size)
	if _, err := rand.Read(secret); err != nil {
		panic(err)
	}

	// Base64 keeps the secret printable; the server uses the string bytes as is
	fmt.Printf("AUTH_SECRET=%s\n", base64.RawURLEncoding.EncodeToString(secret))
}
