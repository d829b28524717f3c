package main

import (
	"context"
	"fmt"
	"os"

	"partyline/internal/store"
)

// RunCLI handles subcommand execution. Returns true if a subcommand was
// handled; the caller then skips server startup.
func RunCLI(args []string, dbPath string) bool {
	if len(args) == 0 {
		return false
	}

	switch args[0] {
	case "version":
		fmt.Printf("partyline server %s\n", Version)
		return true
	case "status":
		return cliStatus(dbPath)
	case "users":
		return cliUsers(dbPath)
	case "files":
		return cliFiles(dbPath)
	default:
		return false
	}
}

func openStoreOrExit(dbPath string) *store.Store {
	st, err := store.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database: %v\n", err)
		os.Exit(1)
	}
	return st
}

func cliStatus(dbPath string) bool {
	st := openStoreOrExit(dbPath)
	defer st.Close()

	ctx := context.Background()
	users, err := st.ListUsers(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fileRecords, err := st.ListFiles(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	var totalBytes int64
	for _, rec := range fileRecords {
		totalBytes += rec.SizeBytes
	}

	fmt.Printf("Database: %s\n", dbPath)
	fmt.Printf("Users: %d\n", len(users))
	fmt.Printf("Files: %d (%d bytes)\n", len(fileRecords), totalBytes)
	fmt.Printf("Version: %s\n", Version)
	return true
}

func cliUsers(dbPath string) bool {
	st := openStoreOrExit(dbPath)
	defer st.Close()

	users, err := st.ListUsers(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if len(users) == 0 {
		fmt.Println("No registered users.")
		return true
	}
	for _, u := range users {
		lastLogin := "never"
		if !u.LastLogin.IsZero() {
			lastLogin = u.LastLogin.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("  [%d] %s (registered %s, last login %s)\n",
			u.ID, u.Username, u.CreatedAt.Format("2006-01-02"), lastLogin)
	}
	return true
}

func cliFiles(dbPath string) bool {
	st := openStoreOrExit(dbPath)
	defer st.Close()

	records, err := st.ListFiles(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if len(records) == 0 {
		fmt.Println("No stored files.")
		return true
	}
	for _, rec := range records {
		fmt.Printf("  %s  %10d  %s\n", rec.ID, rec.SizeBytes, rec.Name)
	}
	return true
}
