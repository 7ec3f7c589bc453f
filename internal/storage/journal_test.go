package storage

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/go-sql-driver/mysql"

	"filerelay/internal/models"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := Migrate(db, "sqlite3"); err != nil {
		db.Close()
		t.Fatalf("migrate db: %v", err)
	}
	return db
}

func TestJournalRecordAndRecent(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	j := NewJournal(db)
	ctx := context.Background()

	err := j.Record(ctx, []models.Delivery{
		{Handle: "h1", FileName: "a.txt", Size: 2, Destination: "slack", Status: models.StatusDelivered},
		{Handle: "h2", Destination: "slack", Status: models.StatusNotFound, Error: "file not found"},
	})
	if err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if err := j.Record(ctx, []models.Delivery{
		{Handle: "h3", FileName: "c.pdf", Size: 9, Destination: "mail", Status: models.StatusSendFailed, Error: "535 auth"},
	}); err != nil {
		t.Fatalf("Record error: %v", err)
	}

	got, err := j.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if got[0].Handle != "h3" || got[0].Status != models.StatusSendFailed || got[0].Error != "535 auth" {
		t.Fatalf("unexpected newest row: %+v", got[0])
	}
	if got[1].Handle != "h2" || got[1].Status != models.StatusNotFound {
		t.Fatalf("unexpected second row: %+v", got[1])
	}
	if got[0].CreatedAt.IsZero() {
		t.Fatalf("created_at should be set")
	}
}

func TestJournalRecordEmpty(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	if err := NewJournal(db).Record(context.Background(), nil); err != nil {
		t.Fatalf("empty record should be a no-op: %v", err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open("postgres", "dsn"); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
	if _, err := Open("sqlite3", ""); err == nil {
		t.Fatalf("expected missing dsn error")
	}
}

func TestJournalTruncatesLongNames(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	j := NewJournal(db)
	ctx := context.Background()

	longName := strings.Repeat("é", 300) + ".txt"
	longHandle := strings.Repeat("h", 400)
	if err := j.Record(ctx, []models.Delivery{
		{Handle: longHandle, FileName: longName, Destination: "mail", Status: models.StatusDelivered},
	}); err != nil {
		t.Fatalf("Record error: %v", err)
	}
	got, err := j.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("Recent error: %v", err)
	}
	if n := utf8.RuneCountInString(got[0].FileName); n != maxNameLength {
		t.Fatalf("expected file name cut to %d characters, got %d", maxNameLength, n)
	}
	if got[0].Handle != longHandle[:maxNameLength] {
		t.Fatalf("expected handle cut to %d characters, got %d", maxNameLength, len(got[0].Handle))
	}
}

func TestMySQLDSNForcesParseTime(t *testing.T) {
	dsn, err := mysqlDSN("relay:secret@tcp(db:3306)/filerelay")
	if err != nil {
		t.Fatalf("mysqlDSN error: %v", err)
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		t.Fatalf("reparse dsn: %v", err)
	}
	if !cfg.ParseTime {
		t.Fatalf("expected parseTime in %q", dsn)
	}
	if cfg.User != "relay" || cfg.Passwd != "secret" || cfg.Addr != "db:3306" || cfg.DBName != "filerelay" {
		t.Fatalf("dsn fields lost: %+v", cfg)
	}

	if _, err := mysqlDSN("not a dsn"); err == nil {
		t.Fatalf("expected parse error")
	}
}
