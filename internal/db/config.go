package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mschirtzinger/workq/internal/types"
)

// Well-known config keys.
const (
	KeyIterations       = "remote.iterations"
	KeyCurrentIteration = "remote.current_iteration"
	KeyStatuses         = "remote.statuses"
	KeyTypes            = "remote.types"
	KeyLastSync         = "sync.last_sync"
	KeyLastErrors       = "sync.last_errors"
)

// ErrNoConfig is returned by GetConfig when the key is unset.
var ErrNoConfig = errors.New("config key not set")

// SetConfig stores value under key, replacing any previous value.
func (db *DB) SetConfig(ctx context.Context, key, value string) error {
	query := `
	INSERT INTO config (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at
	`
	_, err := db.conn.ExecContext(ctx, query, key, value, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to set config %s: %w", key, err)
	}
	return nil
}

// GetConfig returns the value for key, or ErrNoConfig if unset.
func (db *DB) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := db.conn.QueryRowContext(ctx, `SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoConfig
	}
	if err != nil {
		return "", fmt.Errorf("failed to get config %s: %w", key, err)
	}
	return value, nil
}

// DeleteConfig removes key. Missing keys are ignored.
func (db *DB) DeleteConfig(ctx context.Context, key string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM config WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete config %s: %w", key, err)
	}
	return nil
}

// SetConfigJSON stores v encoded as JSON.
func (db *DB) SetConfigJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal config %s: %w", key, err)
	}
	return db.SetConfig(ctx, key, string(data))
}

// GetConfigJSON decodes the JSON value stored under key into v.
// It returns ErrNoConfig if the key is unset.
func (db *DB) GetConfigJSON(ctx context.Context, key string, v any) error {
	value, err := db.GetConfig(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(value), v); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", key, err)
	}
	return nil
}

// SetVocabulary replaces the stored remote vocabulary.
func (db *DB) SetVocabulary(ctx context.Context, v *types.Vocabulary) error {
	if err := db.SetConfigJSON(ctx, KeyIterations, nonNil(v.Iterations)); err != nil {
		return err
	}
	if err := db.SetConfig(ctx, KeyCurrentIteration, v.CurrentIteration); err != nil {
		return err
	}
	if err := db.SetConfigJSON(ctx, KeyStatuses, nonNil(v.Statuses)); err != nil {
		return err
	}
	return db.SetConfigJSON(ctx, KeyTypes, nonNil(v.Types))
}

// GetVocabulary returns the stored remote vocabulary. Unset keys come back
// empty; a workspace that never pulled has an empty vocabulary.
func (db *DB) GetVocabulary(ctx context.Context) (*types.Vocabulary, error) {
	v := &types.Vocabulary{}
	for key, dst := range map[string]*[]string{
		KeyIterations: &v.Iterations,
		KeyStatuses:   &v.Statuses,
		KeyTypes:      &v.Types,
	} {
		if err := db.GetConfigJSON(ctx, key, dst); err != nil && !errors.Is(err, ErrNoConfig) {
			return nil, err
		}
	}
	current, err := db.GetConfig(ctx, KeyCurrentIteration)
	if err != nil && !errors.Is(err, ErrNoConfig) {
		return nil, err
	}
	v.CurrentIteration = current
	return v, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
