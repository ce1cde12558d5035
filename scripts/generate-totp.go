//go:build ignore

// go run scripts/generate-totp.go [-new] [-password pw]
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	newSecret := flag.Bool("new", false, "Generate a new TOTP secret")
	account := flag.String("account", "admin", "Account name shown in the authenticator app")
	password := flag.String("password", "", "Also print a bcrypt hash for admin.password")
	flag.Parse()

	secret := os.Getenv("ADMIN_TOTP_SECRET")
	if *newSecret {
		key, err := totp.Generate(totp.GenerateOpts{Issuer: "Payroll Admin", AccountName: *account})
		if err != nil {
			fmt.Printf("Error generating TOTP secret: %v\n", err)
			os.Exit(1)
		}
		secret = key.Secret()
		fmt.Printf("New secret: %s\n", secret)
		fmt.Printf("Provisioning URL: %s\n", key.URL())
	}
	if secret == "" {
		fmt.Println("Set ADMIN_TOTP_SECRET or pass -new")
		os.Exit(1)
	}

	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		fmt.Printf("Error generating TOTP code: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Current TOTP Code: %s\n", code)
	fmt.Printf("Valid for: ~30 seconds\n")

	if *password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(*password), bcrypt.DefaultCost)
		if err != nil {
			fmt.Printf("Error hashing password: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("admin.password: %s\n", hash)
	}
}
