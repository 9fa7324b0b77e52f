package db

import (
	"strings"
	"testing"

	"github.com/yungbote/casestudy-backend/internal/platform/logger"
)

func TestPostgresDSNFromFields(t *testing.T) {
	cfg := Config{Host: "db", Port: "5432", User: "u", Password: "p@ss", Name: "cs", SSLMode: "disable"}
	dsn, err := cfg.PostgresDSN()
	if err != nil {
		t.Fatalf("PostgresDSN: %v", err)
	}
	if !strings.HasPrefix(dsn, "postgres://u:p%40ss@db:5432/cs") {
		t.Fatalf("unexpected dsn: %s", dsn)
	}
}

func TestPostgresDSNRejectsGarbage(t *testing.T) {
	cfg := Config{DSN: "postgres://u@host:notaport/db"}
	if _, err := cfg.PostgresDSN(); err == nil {
		t.Fatalf("expected error for invalid port")
	}
}

func TestSQLiteServiceMigrates(t *testing.T) {
	path := t.TempDir() + "/cs.db"
	svc, err := NewPostgresService(logger.Nop(), Config{Driver: DriverSQLite, SQLitePath: path})
	if err != nil {
		t.Fatalf("NewPostgresService: %v", err)
	}
	defer svc.Close()
	if err := AutoMigrateAll(svc.DB()); err != nil {
		t.Fatalf("AutoMigrateAll: %v", err)
	}
	if err := EnsureCaseStudyIndexes(svc.DB()); err != nil {
		t.Fatalf("EnsureCaseStudyIndexes: %v", err)
	}
	if !svc.DB().Migrator().HasTable("case_study_transcript_chunk") {
		t.Fatalf("chunk table missing")
	}
}
