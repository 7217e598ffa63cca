package database

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"libraryhub/internal/config"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func TestOpenWithDialector_Success(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectPing()

	dial := mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	})

	gdb, err := OpenWithDialector(dial)
	require.NoError(t, err)
	require.NotNil(t, gdb)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenWithDialector_PingFails(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectPing().WillReturnError(errors.New("no ping"))

	dial := mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	})

	_, err = OpenWithDialector(dial)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDialector(t *testing.T) {
	tests := []struct {
		driver  string
		want    string
		wantErr bool
	}{
		{driver: config.DriverPostgres, want: "postgres"},
		{driver: config.DriverMySQL, want: "mysql"},
		{driver: config.DriverSQLite, want: "sqlite"},
		{driver: "oracle", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			d, err := Dialector(&config.Config{DBDriver: tt.driver, DBName: "library.db"})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Name())
		})
	}
}

type captureWriter struct {
	mu    sync.Mutex
	lines []string
}

func (c *captureWriter) Printf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, fmt.Sprintf(format, args...))
}

func (c *captureWriter) output() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Join(c.lines, "\n")
}

type shelf struct {
	ID   uint
	Name string
}

func TestOpenWithDialector_QuietOnMissingRow(t *testing.T) {
	w := &captureWriter{}
	prev := gormLogWriter
	gormLogWriter = w
	t.Cleanup(func() { gormLogWriter = prev })

	db := openSQLite(t)
	require.NoError(t, db.AutoMigrate(&shelf{}))

	var s shelf
	err := db.First(&s, "name = ?", "missing").Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.NotContains(t, w.output(), "record not found")

	err = db.Table("no_such_table").First(&s).Error
	require.Error(t, err)
	assert.Contains(t, w.output(), "no_such_table")
}
