package tester

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/emrgen/docvault/internal/model"
)

// one directory per test binary, packages run in parallel
var testPath = filepath.Join(os.TempDir(), fmt.Sprintf("docvault-test-%d", os.Getpid()))

// Setup removes databases and blobs left over from earlier runs.
func Setup() {
	RemoveDBFile()

	_ = os.Setenv("ENV", "test")
}

// NewDB opens a fresh, migrated sqlite database that no other test shares.
func NewDB() *gorm.DB {
	return open(filepath.Join(testPath, "db", uuid.New().String()+".db"))
}

// NewConcurrentDB opens a fresh sqlite database in WAL mode with several connections, so
// transactions from different goroutines really interleave. Transactions stay deferred:
// nothing but the caller's own locking keeps two writers of one row apart.
func NewConcurrentDB() *gorm.DB {
	path := filepath.Join(testPath, "db", uuid.New().String()+".db")
	return openWith(path, "?_busy_timeout=10000&_journal_mode=WAL", 8)
}

// BlobDir returns an empty directory for file blob stores.
func BlobDir() string {
	dir := filepath.Join(testPath, "blobs", uuid.New().String())
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		panic(err)
	}
	return dir
}

func RemoveDBFile() {
	err := os.RemoveAll(testPath)
	if err != nil {
		panic(err)
	}
}

func open(path string) *gorm.DB {
	// sqlite allows a single writer; one connection keeps concurrent tests from tripping SQLITE_BUSY
	return openWith(path, "?_busy_timeout=5000", 1)
}

func openWith(path, params string, conns int) *gorm.DB {
	err := os.MkdirAll(filepath.Dir(path), os.ModePerm)
	if err != nil {
		panic(err)
	}

	conn, err := gorm.Open(sqlite.Open("file:"+path+params), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		panic(err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		panic(err)
	}
	sqlDB.SetMaxOpenConns(conns)

	err = model.Migrate(conn)
	if err != nil {
		panic(err)
	}

	return conn
}
