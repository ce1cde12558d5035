package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"payroll-backend/internal/config"
	"payroll-backend/internal/handlers"
)

func main() {
	configPath := flag.String("config", "", "Path to config file; its admin.jwtSecret is used when -secret is empty")
	secret := flag.String("secret", "", "JWT secret")
	username := flag.String("username", "admin", "Admin username")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	flag.Parse()

	jwtSecret := *secret
	if jwtSecret == "" {
		if err := config.LoadConfig(*configPath); err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
		jwtSecret = config.AppConfig.Admin.JWTSecret
	}

	tokenString, err := handlers.GenerateAdminJWTToken([]byte(jwtSecret), *username, *ttl)
	if err != nil {
		fmt.Printf("Error generating token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("============================================================")
	fmt.Println("Admin JWT Token Generated for Testing")
	fmt.Println("============================================================")
	fmt.Println()
	fmt.Println("Token:")
	fmt.Println(tokenString)
	fmt.Println()
	fmt.Printf("  Username: %s\n", *username)
	fmt.Printf("  Expires: %s\n", time.Now().Add(*ttl).Format(time.RFC3339))
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println()
	fmt.Printf("curl -H 'Authorization: Bearer %s' http://localhost:8080/api/admin/batches\n", tokenString)
	fmt.Println()
}
