package database

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/stepflow/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestDialector(t *testing.T) {
	tests := []struct {
		driver  string
		name    string
		want    string
		wantErr bool
	}{
		{driver: "sqlite", name: ":memory:", want: "sqlite"},
		{driver: "postgres", name: "stepflow", want: "postgres"},
		{driver: "mysql", name: "stepflow", want: "mysql"},
		{driver: "sqlite", name: "", wantErr: true},
		{driver: "oracle", name: "x", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.driver+"/"+tt.name, func(t *testing.T) {
			d, err := Dialector(config.DatabaseConfig{Driver: tt.driver, Name: tt.name, Host: "localhost", Port: 5432})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Name())
		})
	}
}

func TestOpen_Disabled(t *testing.T) {
	_, err := Open(config.DatabaseConfig{}, nil)
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestOpen_SQLiteMemory(t *testing.T) {
	cfg := config.DatabaseConfig{Driver: "sqlite", Name: ":memory:"}
	db, err := Open(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	pm, err := NewPoolManager(db, PoolConfigFrom(cfg), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { pm.Close() })

	require.NoError(t, pm.Ping(context.Background()))

	var one int
	require.NoError(t, db.Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)
}

type queryRow struct {
	ID   uint `gorm:"primaryKey"`
	Tool string
}

type querySpy struct {
	mu  sync.Mutex
	ops map[string]int
}

func (s *querySpy) RecordDBQuery(database, operation string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ops == nil {
		s.ops = make(map[string]int)
	}
	s.ops[database+"/"+operation]++
}

func TestInstrument(t *testing.T) {
	cfg := config.DatabaseConfig{Driver: "sqlite", Name: ":memory:"}
	db, err := Open(cfg, nil)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	spy := &querySpy{}
	require.NoError(t, Instrument(db, "audit", spy))
	require.NoError(t, db.AutoMigrate(&queryRow{}))

	require.NoError(t, db.Create(&queryRow{Tool: "weather"}).Error)
	var rows []queryRow
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.NoError(t, db.Model(&rows[0]).Update("tool", "search").Error)
	require.NoError(t, db.Delete(&rows[0]).Error)

	spy.mu.Lock()
	defer spy.mu.Unlock()
	for _, op := range []string{"create", "query", "update", "delete"} {
		assert.GreaterOrEqual(t, spy.ops["audit/"+op], 1, op)
	}
}

func TestInstrument_NilRecorder(t *testing.T) {
	db, err := Open(config.DatabaseConfig{Driver: "sqlite", Name: ":memory:"}, nil)
	require.NoError(t, err)
	assert.NoError(t, Instrument(db, "audit", nil))
}
