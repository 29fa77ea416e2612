package main

import (
	"flag"
	"fmt"
	"os"

	_ "github.com/joho/godotenv/autoload"

	"github.com/cassiomorais/checkout/internal/infrastructure/config"
	"github.com/cassiomorais/checkout/internal/middleware"
)

// Prints a bearer token for /payments, signed with auth.jwt_secret and valid for auth.jwt_expiry.
func main() {
	var userID string
	flag.StringVar(&userID, "user", "", "Merchant user id to put in the token")
	flag.Parse()

	if userID == "" {
		fmt.Fprintln(os.Stderr, "-user is required")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Auth.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "auth.jwt_secret is not set; the API accepts unauthenticated requests")
		os.Exit(1)
	}

	token, err := middleware.IssueToken(cfg.Auth.JWTSecret, userID, cfg.Auth.JWTExpiry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
