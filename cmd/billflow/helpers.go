package main

import (
	"context"
	"fmt"

	"github.com/spf13/viper"

	"github.com/Veraticus/the-bills-must-flow/internal/common"
	"github.com/Veraticus/the-bills-must-flow/internal/config"
	"github.com/Veraticus/the-bills-must-flow/internal/service"
	"github.com/Veraticus/the-bills-must-flow/internal/storage"
)

// openStorage creates the SQLite store at the configured path and brings
// its schema up to date.
func openStorage(ctx context.Context) (service.Storage, error) {
	path := viper.GetString("database.path")
	if path == "" {
		path = "~/.config/billflow/billflow.db"
	}
	path = config.ExpandPath(path)

	store, err := storage.NewSQLiteStorage(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", path, err)
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// resolveUser returns the user id from the flag or config.
func resolveUser(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if user := viper.GetString("user"); user != "" {
		return user, nil
	}
	return "", common.NewUserError("no user specified: pass --user or set 'user' in config", nil)
}
