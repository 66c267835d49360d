package main

import (
	"flag"
	"fmt"
	"os"
	"syscall"

	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/logger"
	"github.com/stemsi/exstem-attempt/internal/service"
	"golang.org/x/term"
)

// issue-token mints a student token for local testing against the attempt
// endpoints. Production tokens come from the platform's login service.
func main() {
	studentID := flag.Int("student", 0, "Student ID (required)")
	classID := flag.Int("class", 0, "Class ID")
	promptSecret := flag.Bool("prompt-secret", false, "Read the signing secret from the terminal instead of JWT_SECRET")
	flag.Parse()

	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	if *studentID <= 0 {
		fmt.Fprintln(os.Stderr, "Usage: issue-token -student <id> [-class <id>] [-prompt-secret]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	if *promptSecret {
		fmt.Fprint(os.Stderr, "JWT secret: ")
		secret, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read secret")
		}
		if len(secret) == 0 {
			log.Fatal().Msg("Secret cannot be empty")
		}
		cfg.JWTSecret = string(secret)
	}

	token, err := service.NewAuthService(cfg).GenerateStudentToken(*studentID, *classID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to sign token")
	}

	log.Info().
		Int("student_id", *studentID).
		Dur("expires_in", cfg.JWTExpiry).
		Msg("Token issued")
	fmt.Println(token)
}
