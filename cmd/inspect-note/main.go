package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/big"

	"payroll-backend/internal/config"
	"payroll-backend/internal/db"
	"payroll-backend/internal/field"
	"payroll-backend/internal/merkle"
	"payroll-backend/internal/models"
	"payroll-backend/internal/repository"
)

// Recomputes a stored note's nullifier hash, commitment and merkle path and
// reports any mismatch with what the database holds.
func main() {
	var (
		noteID     = flag.String("id", "", "Note ID")
		nh         = flag.String("nullifier-hash", "", "Look the note up by nullifier hash instead")
		configPath = flag.String("config", "config.yaml", "Path to config file")
	)
	flag.Parse()
	if *noteID == "" && *nh == "" {
		log.Fatal("Please specify either -id or -nullifier-hash")
	}

	if err := config.LoadConfig(*configPath); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := db.InitDB(); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if sqlDB, err := db.DB.DB(); err == nil {
			sqlDB.Close()
		}
	}()

	ctx := context.Background()
	store := repository.NewStore(db.DB)

	var (
		note *models.Note
		err  error
	)
	if *noteID != "" {
		note, err = store.Notes().GetByID(ctx, *noteID)
	} else {
		note, err = store.Notes().GetByNullifierHash(ctx, *nh)
	}
	if err != nil {
		log.Fatalf("Failed to load note: %v", err)
	}

	amount := field.MustDecimal(note.Amount)
	secret := field.MustDecimal(note.Secret)
	nullifier := field.MustDecimal(note.Nullifier)

	gotNH, err := field.Hash(nullifier)
	if err != nil {
		log.Fatalf("hash nullifier: %v", err)
	}
	gotCommitment, err := field.Hash(amount, secret, nullifier)
	if err != nil {
		log.Fatalf("hash commitment: %v", err)
	}

	fmt.Println("=== Note ===")
	fmt.Printf("ID:         %s\n", note.ID)
	fmt.Printf("Batch:      %s\n", note.BatchID)
	fmt.Printf("Recipient:  %s\n", note.Recipient)
	fmt.Printf("Amount:     %s\n", note.Amount)
	fmt.Printf("Leaf index: %d\n", note.LeafIndex)
	fmt.Printf("Spent:      %v\n", note.Spent)
	fmt.Println()

	ok := true
	check := func(name, stored string, computed *big.Int) {
		if computed.String() == stored {
			fmt.Printf("✅ %s matches: %s\n", name, stored)
			return
		}
		ok = false
		fmt.Printf("❌ %s mismatch\n   stored:   %s\n   computed: %s\n", name, stored, computed)
	}
	check("Nullifier hash", note.NullifierHash, gotNH)
	check("Commitment", note.Commitment, gotCommitment)

	proof := &merkle.Proof{
		LeafIndex:    uint64(note.LeafIndex),
		PathElements: make([]*big.Int, len(note.PathElements)),
		PathIndices:  make([]uint8, len(note.PathIndices)),
	}
	for i, e := range note.PathElements {
		proof.PathElements[i] = field.MustDecimal(e)
	}
	for i, b := range note.PathIndices {
		proof.PathIndices[i] = uint8(b)
	}
	root, err := proof.Fold(gotCommitment)
	if err != nil {
		ok = false
		fmt.Printf("❌ Merkle path is malformed: %v\n", err)
	} else {
		check("Merkle root", note.Root, root)
	}

	if claim, err := store.Claims().GetByNullifierHash(ctx, note.NullifierHash); err == nil {
		fmt.Println()
		fmt.Printf("Claim: %s status=%s reserve=%s relayer=%s finalize=%s cancel=%s\n",
			claim.ClaimID, claim.Status, claim.ReserveTxHash, claim.RelayerTxHash, claim.FinalizeTxHash, claim.CancelTxHash)
	}

	if !ok {
		log.Fatal("note is inconsistent")
	}
}
