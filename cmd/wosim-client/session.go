package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// session is the client's saved connection state between invocations
// of join, play, and create: the CLI has no persistent process, so
// each subcommand is a fresh reconnect using whatever join last saved.
type session struct {
	ServerAddr string    `json:"server_addr"`
	UUID       uuid.UUID `json:"uuid"`
	Username   string    `json:"username,omitempty"`
	Password   string    `json:"password,omitempty"`
	Secret     string    `json:"secret,omitempty"`
	Bearer     string    `json:"bearer,omitempty"`
}

func sessionPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "wosim", "session.json"), nil
}

func saveSession(s session) error {
	path, err := sessionPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func loadSession() (session, error) {
	path, err := sessionPath()
	if err != nil {
		return session{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return session{}, fmt.Errorf("no saved session (run join first): %w", err)
	}
	var s session
	if err := json.Unmarshal(data, &s); err != nil {
		return session{}, err
	}
	return s, nil
}
