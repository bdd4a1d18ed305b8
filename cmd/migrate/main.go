package main

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"shopbot/internal/config"
	"shopbot/internal/db"
	"shopbot/internal/logger"

	"github.com/jmoiron/sqlx"
)

const migrationsGlob = "migrations/*.sql"

func main() {
	cfg := config.MustLoad()
	log := logger.New(cfg.App.LogLevel, cfg.App.LogFormat)

	database, err := db.Connect(cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("failed to connect database")
	}
	defer database.Close()

	if _, err := database.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (filename text primary key, applied_at timestamptz default now())`); err != nil {
		log.WithError(err).Fatal("failed to ensure schema_migrations")
	}

	files, err := filepath.Glob(migrationsGlob)
	if err != nil {
		log.WithError(err).Fatal("failed to read migrations")
	}
	sort.Strings(files)

	ctx := context.Background()
	applied := 0
	for _, file := range files {
		filename := filepath.Base(file)
		fileLog := log.WithField("migration", filename)
		var exists bool
		if err := database.Get(&exists, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, filename); err != nil {
			fileLog.WithError(err).Fatal("failed to read migration state")
		}
		if exists {
			fileLog.Debug("already applied")
			continue
		}
		content, err := os.ReadFile(file)
		if err != nil {
			fileLog.WithError(err).Fatal("failed to read migration")
		}
		// DDL runs once, so the plain tx is used instead of the retrying runner.
		err = db.WithTx(ctx, database, func(tx *sqlx.Tx) error {
			for _, stmt := range upStatements(string(content)) {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, filename)
			return err
		})
		if err != nil {
			fileLog.WithError(err).Fatal("failed to apply migration")
		}
		applied++
		fileLog.Info("applied")
	}
	log.WithField("applied", applied).Info("migrations complete")
}

// upStatements returns the statements before the "-- +migrate Down" marker.
func upStatements(content string) []string {
	up, _, _ := strings.Cut(content, "-- +migrate Down")
	var statements []string
	for _, stmt := range splitSQL(up) {
		if strings.TrimSpace(stmt) != "" {
			statements = append(statements, stmt)
		}
	}
	return statements
}

func splitSQL(sqlText string) []string {
	var statements []string
	var current strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(sqlText))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		current.WriteString(line)
		current.WriteRune('\n')
		if strings.HasSuffix(strings.TrimSpace(line), ";") {
			statements = append(statements, current.String())
			current.Reset()
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		statements = append(statements, current.String())
	}
	return statements
}
