// Package device implements the device registry (spec §4.3): identifying
// the host a session runs on, and upserting its row lazily on first use.
package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"runtime"

	"github.com/surveilr/surveilr/internal/ids"
)

// Device mirrors the device table (spec §3).
type Device struct {
	ID           string
	Name         string
	State        string
	Boundary     string
	Segmentation *string
	Sysinfo      json.RawMessage
	Elaboration  json.RawMessage
}

// SingletonState is the default device state per spec §3.
const SingletonState = "SINGLETON"

// Sysinfo captures the portable host facts recorded once at device creation
// and never rewritten by later sessions (spec §4.3). It deliberately sticks
// to what the standard library can report; a system-info library such as
// shirou/gopsutil belongs to the out-of-core ingesters, not this registry
// (see DESIGN.md).
type Sysinfo struct {
	OS       string `json:"os"`
	Arch     string `json:"arch"`
	NumCPU   int    `json:"num_cpu"`
	Hostname string `json:"hostname"`
	GoVer    string `json:"go_version"`
}

func captureSysinfo() (json.RawMessage, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	si := Sysinfo{
		OS:       runtime.GOOS,
		Arch:     runtime.GOARCH,
		NumCPU:   runtime.NumCPU(),
		Hostname: hostname,
		GoVer:    runtime.Version(),
	}
	return json.Marshal(si)
}

// Ensure upserts a device row by (name, state, boundary), creating it with a
// freshly captured sysinfo snapshot if it does not yet exist. An empty name
// defaults to the host's name; state defaults to SingletonState.
func Ensure(ctx context.Context, db *sql.DB, name, boundary string) (*Device, error) {
	if name == "" {
		if h, err := os.Hostname(); err == nil {
			name = h
		} else {
			name = "unknown-host"
		}
	}
	state := SingletonState

	var d Device
	err := db.QueryRowContext(ctx, `
		SELECT id, name, state, boundary, segmentation, sysinfo, elaboration
		FROM device
		WHERE name = ? AND state = ? AND boundary = ? AND deleted_at IS NULL
	`, name, state, boundary).Scan(&d.ID, &d.Name, &d.State, &d.Boundary, &d.Segmentation, &d.Sysinfo, &d.Elaboration)
	switch {
	case err == nil:
		return &d, nil
	case err != sql.ErrNoRows:
		return nil, fmt.Errorf("device: looking up %s/%s/%s: %w", name, state, boundary, err)
	}

	sysinfo, err := captureSysinfo()
	if err != nil {
		return nil, fmt.Errorf("device: capturing sysinfo: %w", err)
	}

	d = Device{
		ID:       ids.New(),
		Name:     name,
		State:    state,
		Boundary: boundary,
		Sysinfo:  sysinfo,
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO device (id, name, state, boundary, sysinfo)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name, state, boundary) DO NOTHING
	`, d.ID, d.Name, d.State, d.Boundary, string(d.Sysinfo))
	if err != nil {
		return nil, fmt.Errorf("device: inserting %s/%s/%s: %w", name, state, boundary, err)
	}

	// Another writer may have raced us; re-read so the caller always gets
	// the row that actually persisted (and its original sysinfo).
	err = db.QueryRowContext(ctx, `
		SELECT id, name, state, boundary, segmentation, sysinfo, elaboration
		FROM device
		WHERE name = ? AND state = ? AND boundary = ? AND deleted_at IS NULL
	`, name, state, boundary).Scan(&d.ID, &d.Name, &d.State, &d.Boundary, &d.Segmentation, &d.Sysinfo, &d.Elaboration)
	if err != nil {
		return nil, fmt.Errorf("device: re-reading %s/%s/%s: %w", name, state, boundary, err)
	}
	return &d, nil
}
