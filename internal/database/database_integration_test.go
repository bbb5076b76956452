package database

import (
	"context"
	"entryready/config"
	"entryready/internal/logger"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valkey-io/valkey-go"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) DB {
	t.Helper()

	db, err := New(config.Config{DatabaseDbPath: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func TestNew_Success(t *testing.T) {
	db := newTestDB(t)

	assert.NotNil(t, db.SQL)
	assert.Nil(t, db.Cache.Requirements)
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(config.Config{DatabaseDbPath: ""})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "database path is empty")
}

func TestInitializeSQLiteDB_CreatesNestedDirectory(t *testing.T) {
	db := &DB{log: logger.New("test")}
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")

	err := db.initializeSQLiteDB(&gorm.Config{}, config.Config{DatabaseDbPath: dbPath})
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, dbPath)
}

func TestInitializeSQLiteDB_InMemory(t *testing.T) {
	db := &DB{log: logger.New("test")}

	err := db.initializeSQLiteDB(&gorm.Config{}, config.Config{DatabaseDbPath: ":memory:"})
	require.NoError(t, err)
	defer db.Close()

	sqlDB, err := db.SQL.DB()
	require.NoError(t, err)
	assert.NoError(t, sqlDB.Ping())
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}

func TestDSN(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{"memory untouched", ":memory:", ":memory:"},
		{"explicit params untouched", "a.db?mode=ro", "a.db?mode=ro"},
		{"file gets pragmas", "a.db", "a.db?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dsn(tt.path))
		})
	}
}

func TestClose_WithNilSQL(t *testing.T) {
	db := &DB{log: logger.New("test")}
	assert.NoError(t, db.Close())
}

func TestSQLWithContext(t *testing.T) {
	db := newTestDB(t)

	gormDB := db.SQLWithContext(context.Background())
	assert.NotNil(t, gormDB)
	assert.NotEqual(t, db.SQL, gormDB)
}

func TestMigrate_CreatesSchemaOnce(t *testing.T) {
	db := newTestDB(t)

	applied, err := db.Migrate()
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	applied, err = db.Migrate()
	require.NoError(t, err)
	assert.Equal(t, 0, applied)

	for _, table := range []string{
		"passports", "personal_info", "travel_info", "fund_items",
		"entry_info", "entry_info_fund_items", "digital_arrival_cards",
	} {
		assert.True(t, db.SQL.Migrator().HasTable(table), table)
	}

	for table, index := range map[string]string{
		"passports":             "idx_passports_user_primary",
		"personal_info":         "idx_personal_info_user_default",
		"digital_arrival_cards": "idx_dac_current",
	} {
		var count int64
		err := db.SQL.Raw(
			"SELECT count(*) FROM sqlite_master WHERE type = 'index' AND tbl_name = ? AND name = ?",
			table, index,
		).Scan(&count).Error
		require.NoError(t, err)
		assert.Equal(t, int64(1), count, index)
	}
}

func TestMigrate_CurrentDACLookupUsesIndex(t *testing.T) {
	db := newTestDB(t)
	_, err := db.Migrate()
	require.NoError(t, err)

	var plan []struct {
		ID      int
		Parent  int
		Notused int
		Detail  string
	}
	err = db.SQL.Raw(
		`EXPLAIN QUERY PLAN SELECT * FROM digital_arrival_cards
		 WHERE entry_info_id = ? AND card_type = ? AND is_superseded = 0 AND status = 'success'`,
		"entry", "TDAC",
	).Scan(&plan).Error
	require.NoError(t, err)
	require.NotEmpty(t, plan)

	details := make([]string, 0, len(plan))
	for _, row := range plan {
		details = append(details, row.Detail)
	}
	joined := strings.Join(details, "\n")
	assert.Contains(t, joined, "USING INDEX")
	assert.NotContains(t, joined, "SCAN digital_arrival_cards")
}

func TestMigrate_PrimaryPassportBackstop(t *testing.T) {
	db := newTestDB(t)
	_, err := db.Migrate()
	require.NoError(t, err)

	insert := `INSERT INTO passports (id, created_at, updated_at, user_id, is_primary, nationality)
		VALUES (?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP, ?, ?, 'CHN')`

	require.NoError(t, db.SQL.Exec(insert, "p1", "u1", true).Error)
	require.NoError(t, db.SQL.Exec(insert, "p2", "u1", false).Error)
	require.NoError(t, db.SQL.Exec(insert, "p3", "u2", true).Error)

	err = db.SQL.Exec(insert, "p4", "u1", true).Error
	assert.Error(t, err)
}

func TestRollback(t *testing.T) {
	db := newTestDB(t)
	_, err := db.Migrate()
	require.NoError(t, err)

	reverted, err := db.Rollback(1)
	require.NoError(t, err)
	assert.Equal(t, 1, reverted)
	assert.False(t, db.SQL.Migrator().HasTable("digital_arrival_cards"))
}

func TestCacheBuilder_NoClient(t *testing.T) {
	err := NewCacheBuilder(nil, "key").WithStruct(map[string]string{"a": "b"}).Set()
	assert.ErrorIs(t, err, ErrNoCacheClient)

	var dst map[string]string
	found, err := NewCacheBuilder(nil, "key").Get(&dst)
	assert.False(t, found)
	assert.ErrorIs(t, err, ErrNoCacheClient)
}

func testValkeyClient(t *testing.T) CacheClient {
	t.Helper()

	address := os.Getenv("VALKEY_ADDR")
	if address == "" {
		t.Skip("VALKEY_ADDR not set, skipping cache test")
	}

	client, err := valkey.NewClient(valkey.ClientOption{InitAddress: []string{address}})
	if err != nil {
		t.Skipf("valkey not reachable: %v", err)
	}
	t.Cleanup(client.Close)

	return client
}

func TestCacheBuilder_RoundTrip(t *testing.T) {
	client := testValkeyClient(t)
	ctx := context.Background()
	key := "test:cachebuilder:" + strconv.FormatInt(time.Now().UnixNano(), 10)

	type payload struct {
		Name string `json:"name"`
	}

	err := NewCacheBuilder(client, key).
		WithStruct(payload{Name: "TDAC"}).
		WithTTL(time.Minute).
		WithContext(ctx).
		Set()
	require.NoError(t, err)

	var got payload
	found, err := NewCacheBuilder(client, key).WithContext(ctx).Get(&got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "TDAC", got.Name)

	deleted, err := NewCacheBuilder(client, key+"*").WithContext(ctx).DeletePattern()
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	found, err = NewCacheBuilder(client, key).WithContext(ctx).Get(&got)
	require.NoError(t, err)
	assert.False(t, found)
}
