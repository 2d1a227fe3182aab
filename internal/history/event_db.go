// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

func openDB(dbFilePath string) (*sql.DB, func(), error) {
	db, err := sql.Open("sqlite", dbFilePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("failed to close database", "path", dbFilePath, "error", closeErr)
		}
	}, nil
}

func CreateEventsTable(dbFilePath string) error {
	db, closeDB, err := openDB(dbFilePath)
	if err != nil {
		return err
	}
	defer closeDB()

	_, err = db.Exec("CREATE TABLE IF NOT EXISTS workflow_events(id INTEGER PRIMARY KEY, run_id TEXT NOT NULL, json_string TEXT NOT NULL);")
	if err != nil {
		return fmt.Errorf("failed to create workflow_events table: %w", err)
	}
	return nil
}

func SaveEvent(dbFilePath string, event *Event) error {
	db, closeDB, err := openDB(dbFilePath)
	if err != nil {
		return err
	}
	defer closeDB()

	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event to JSON: %w", err)
	}
	_, err = db.Exec("INSERT INTO workflow_events (run_id, json_string) VALUES (?, ?);", event.RunId, string(eventJSON))
	if err != nil {
		return fmt.Errorf("failed to insert event into workflow_events: %w", err)
	}
	return nil
}

// DeleteEvents removes all events of runs other than the newest keepRuns runs
func DeleteEvents(dbFilePath string, keepRuns int) error {
	db, closeDB, err := openDB(dbFilePath)
	if err != nil {
		return err
	}
	defer closeDB()

	_, err = db.Exec(`DELETE FROM workflow_events WHERE run_id NOT IN
		(SELECT DISTINCT run_id FROM workflow_events ORDER BY run_id DESC LIMIT ?);`, keepRuns)
	if err != nil {
		return fmt.Errorf("failed to delete events from workflow_events: %w", err)
	}
	return nil
}

// GetEvents returns the last limit events in the order they were saved; limit <= 0 returns all of them
func GetEvents(dbFilePath string, limit int) ([]Event, error) {
	db, closeDB, err := openDB(dbFilePath)
	if err != nil {
		return nil, err
	}
	defer closeDB()

	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(`SELECT json_string FROM
		(SELECT id, json_string FROM workflow_events ORDER BY id DESC LIMIT ?) ORDER BY id;`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select events: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Error("failed to close rows", "error", closeErr)
		}
	}()

	var events []Event
	for rows.Next() {
		var eventData string
		if err := rows.Scan(&eventData); err != nil {
			return nil, fmt.Errorf("failed to scan event data: %w", err)
		}
		var event Event
		if err := json.Unmarshal([]byte(eventData), &event); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %w", err)
	}
	return events, nil
}
