package main

import (
	"database/sql"
	"fmt"
	"log"

	"payroll-backend/internal/config"
	"payroll-backend/internal/db"
)

// expected column types of the payroll tables
var expectedColumns = []struct {
	table, column, dataType string
}{
	{"batches", "root", "character varying"},
	{"batches", "total_amount", "numeric"},
	{"notes", "amount", "numeric"},
	{"notes", "nullifier_hash", "character varying"},
	{"notes", "path_elements", "ARRAY"},
	{"notes", "claim_token_id", "character varying"},
	{"claims", "nullifier_hash", "character varying"},
	{"claims", "authorization_id", "character varying"},
	{"claims", "payout_amount", "numeric"},
}

func main() {
	fmt.Println("🔍 Verifying database connection and payroll schema...")

	if err := config.LoadConfig(""); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := db.InitDB(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	sqlDB, err := db.DB.DB()
	if err != nil {
		log.Fatalf("Failed to get database connection: %v", err)
	}
	defer sqlDB.Close()

	var dbName string
	if err := sqlDB.QueryRow("SELECT current_database()").Scan(&dbName); err != nil {
		log.Fatalf("Failed to get database name: %v", err)
	}
	fmt.Printf("📋 Connected to database: %s\n", dbName)

	failures := 0
	for _, col := range expectedColumns {
		var dataType sql.NullString
		err := sqlDB.QueryRow(`
			SELECT data_type
			FROM information_schema.columns
			WHERE table_schema = 'public'
			AND table_name = $1
			AND column_name = $2
		`, col.table, col.column).Scan(&dataType)
		switch {
		case err == sql.ErrNoRows || !dataType.Valid:
			fmt.Printf("❌ %s.%s does not exist!\n", col.table, col.column)
			failures++
		case err != nil:
			log.Fatalf("Failed to query %s.%s: %v", col.table, col.column, err)
		case dataType.String != col.dataType:
			fmt.Printf("❌ %s.%s is %s, expected %s\n", col.table, col.column, dataType.String, col.dataType)
			failures++
		default:
			fmt.Printf("✅ %s.%s: %s\n", col.table, col.column, dataType.String)
		}
	}

	var counts [3]int64
	for i, table := range []string{"batches", "notes", "claims"} {
		if err := sqlDB.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&counts[i]); err != nil {
			log.Fatalf("Failed to count %s: %v", table, err)
		}
	}
	fmt.Printf("\n📊 batches=%d notes=%d claims=%d\n", counts[0], counts[1], counts[2])

	if failures > 0 {
		log.Fatalf("%d schema problem(s) found", failures)
	}
	fmt.Println("✅ Schema looks good")
}
