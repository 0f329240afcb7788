package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

// RunCLI handles subcommand execution against a running server's HTTP
// API. Returns true if a subcommand was handled.
func RunCLI(args []string, apiBase string) bool {
	if len(args) == 0 {
		return false
	}

	switch args[0] {
	case "version":
		fmt.Printf("uwuchat server %s\n", Version)
		return true
	case "status":
		return cliStatus(apiBase)
	case "users":
		return cliUsers(apiBase)
	default:
		return false
	}
}

func cliStatus(apiBase string) bool {
	var health struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
	}
	if err := fetchJSON(apiBase+"/health", &health); err != nil {
		fmt.Fprintf(os.Stderr, "error reaching server: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Server: %s\n", apiBase)
	fmt.Printf("Status: %s\n", health.Status)
	fmt.Printf("Users: %d\n", health.Clients)
	fmt.Printf("Version: %s\n", Version)
	return true
}

func cliUsers(apiBase string) bool {
	var state struct {
		Clients int `json:"clients"`
		Users   []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"users"`
	}
	if err := fetchJSON(apiBase+"/api/state", &state); err != nil {
		fmt.Fprintf(os.Stderr, "error reaching server: %v\n", err)
		os.Exit(1)
	}
	if state.Clients == 0 {
		fmt.Println("No users connected.")
		return true
	}
	for _, u := range state.Users {
		fmt.Printf("  %s (%s)\n", u.Name, u.Status)
	}
	return true
}

func fetchJSON(url string, out any) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
