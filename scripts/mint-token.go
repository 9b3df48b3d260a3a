//go:build ignore

// Mints a JWT for a user id, for local development against the gateway:
//
//	JWT_SECRET=... go run scripts/mint-token.go <user-id> [ttl]
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/chatapp/gateway-server-go/internal/auth"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: mint-token.go <user-id> [ttl]")
		os.Exit(1)
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is required")
		os.Exit(1)
	}

	ttl := auth.DefaultTokenTTL
	if len(os.Args) > 2 {
		parsed, err := time.ParseDuration(os.Args[2])
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid ttl: %v\n", err)
			os.Exit(1)
		}
		ttl = parsed
	}

	token, err := auth.NewVerifier(secret).Sign(os.Args[1], ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
