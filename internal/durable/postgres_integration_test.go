package durable

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

var postgresIntegrationCounter uint64

func postgresIntegrationDSN(t *testing.T) string {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("DOCSYNC_TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("DOCSYNC_TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}
	return dsn
}

func postgresIntegrationTableName(prefix string) string {
	n := atomic.AddUint64(&postgresIntegrationCounter, 1)
	return fmt.Sprintf("%s_%d_%d", prefix, time.Now().UnixNano(), n)
}

func postgresIntegrationDropTable(t *testing.T, dsn, tableName string) {
	t.Helper()
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Logf("drop table open failed: %v", err)
		return
	}
	defer db.Close()
	_, _ = db.Exec(fmt.Sprintf(`DROP TABLE IF EXISTS %s`, postgresQuoteIdentifier(tableName)))
}

func TestPostgresIntegrationSectionStoreRoundTrip(t *testing.T) {
	dsn := postgresIntegrationDSN(t)

	store, err := NewPostgresSectionStore(dsn)
	if err != nil {
		t.Fatalf("new postgres section store: %v", err)
	}
	store.tableName = postgresIntegrationTableName("docsync_sections_it")
	t.Cleanup(func() {
		_ = store.Close()
		postgresIntegrationDropTable(t, dsn, store.tableName)
	})

	ctx := context.Background()
	if _, err := store.GetSectionContent(ctx, "sec_it"); err == nil {
		t.Fatalf("expected not found before upsert")
	}

	if err := store.UpsertSectionContent(ctx, "sec_it", []byte(`{"blocks":[]}`)); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	first, err := store.GetSectionContent(ctx, "sec_it")
	if err != nil {
		t.Fatalf("get after first upsert failed: %v", err)
	}
	if string(first.Content) != `{"blocks":[]}` {
		t.Fatalf("unexpected content %q", first.Content)
	}

	if err := store.UpsertSectionContent(ctx, "sec_it", []byte(`{"blocks":[{"id":"a","type":"paragraph","text":"x"}]}`)); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	second, err := store.GetSectionContent(ctx, "sec_it")
	if err != nil {
		t.Fatalf("get after second upsert failed: %v", err)
	}
	if second.Revision == first.Revision {
		t.Fatalf("expected revision to advance, still %s", second.Revision)
	}
	if !strings.Contains(string(second.Content), `"text":"x"`) {
		t.Fatalf("expected last write to win, got %q", second.Content)
	}

	sections, err := store.ListSections(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(sections) != 1 || sections[0].SectionID != "sec_it" {
		t.Fatalf("unexpected section list: %+v", sections)
	}
}
