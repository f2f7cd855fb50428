package config

import (
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/joho/godotenv"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

const SearchLimit = 50

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var (
	db *gorm.DB
)

func GetDB() *gorm.DB {
	return db
}

// SetDB installs an already opened handle (tests, one-off tools).
func SetDB(handle *gorm.DB) {
	db = handle
}

func init() {
	// Load env from .env
	godotenv.Load()
	// Do not block startup in init() waiting for the database;
	// main() connects after the HTTP listener is up.
}

// ConnectDatabaseWithRetry connects and sets the global DB.
// Call this from main() AFTER the HTTP server is listening.
func ConnectDatabaseWithRetry() {
	driver := databaseDriver()

	var attempt int
	for {
		attempt++
		handle, err := OpenDatabase(dialectorFromEnv(driver))
		if err == nil {
			db = handle
			tunePool(driver)
			log.Printf("connected to database (driver=%s attempt=%d)", driver, attempt)
			return
		}

		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		log.Printf("failed to connect database (driver=%s attempt=%d): %v; retrying in %s", driver, attempt, err, sleep)
		time.Sleep(sleep)
	}
}

// OpenDatabase opens a gorm handle with the service-wide config and plugins.
func OpenDatabase(dialector gorm.Dialector) (*gorm.DB, error) {
	handle, err := gorm.Open(dialector, initConfig())
	if err != nil {
		return nil, err
	}
	if pluginErr := handle.Use(otelgorm.NewPlugin()); pluginErr != nil {
		log.Printf("db connected but failed to install otelgorm plugin: %v", pluginErr)
	}
	if dialector.Name() == DriverSQLite {
		// sqlite allows a single writer; one connection keeps transactions from tripping over each other
		if sqlDB, derr := handle.DB(); derr == nil && sqlDB != nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}
	return handle, nil
}

// OpenSQLite opens a pure-Go sqlite database; ":memory:" gives a private in-memory store.
func OpenSQLite(path string) (*gorm.DB, error) {
	return OpenDatabase(sqlite.Open(path))
}

func databaseDriver() string {
	driver := strings.ToLower(strings.TrimSpace(os.Getenv("DB_DRIVER")))
	if driver == "" {
		return DriverMySQL
	}
	return driver
}

func dialectorFromEnv(driver string) gorm.Dialector {
	dbUser := os.Getenv("DB_USER")
	dbPassword := os.Getenv("DB_PASSWORD")
	dbHost := os.Getenv("DB_HOST")
	dbPort := os.Getenv("DB_PORT")
	dbName := os.Getenv("DB_NAME")

	switch driver {
	case DriverSQLite:
		path := os.Getenv("SQLITE_PATH")
		if path == "" {
			path = "manufacturing.db"
		}
		return sqlite.Open(path)
	case DriverPostgres:
		dsn := os.Getenv("DATABASE_URL")
		if dsn == "" {
			dsn = fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
				dbHost, dbUser, dbPassword, dbName, dbPort)
		}
		return postgres.Open(dsn)
	default:
		network := "tcp"
		address := fmt.Sprintf("%s:%s", dbHost, dbPort)
		// Cloud SQL Auth Proxy exposes a unix socket under /cloudsql/<CONNECTION_NAME>
		if strings.HasPrefix(dbHost, "/cloudsql/") {
			network = "unix"
			address = dbHost
		}
		dsn := fmt.Sprintf("%s:%s@%s(%s)/%s?multiStatements=true&parseTime=true",
			dbUser,
			dbPassword,
			network,
			address,
			dbName,
		)
		return mysql.Open(dsn)
	}
}

// Env overrides (optional):
// - DB_MAX_OPEN_CONNS (default 50)
// - DB_MAX_IDLE_CONNS (default 25)
// - DB_CONN_MAX_LIFETIME_SECONDS (default 300)
// - DB_CONN_MAX_IDLE_TIME_SECONDS (default 60)
func tunePool(driver string) {
	if driver == DriverSQLite {
		return
	}
	sqlDB, err := db.DB()
	if err != nil || sqlDB == nil {
		return
	}
	maxOpen := intFromEnv("DB_MAX_OPEN_CONNS", 50)
	maxIdle := intFromEnv("DB_MAX_IDLE_CONNS", 25)
	connMaxLife := time.Duration(intFromEnv("DB_CONN_MAX_LIFETIME_SECONDS", 300)) * time.Second
	connMaxIdle := time.Duration(intFromEnv("DB_CONN_MAX_IDLE_TIME_SECONDS", 60)) * time.Second

	if maxOpen > 0 {
		sqlDB.SetMaxOpenConns(maxOpen)
	}
	if maxIdle >= 0 {
		sqlDB.SetMaxIdleConns(maxIdle)
	}
	if connMaxLife > 0 {
		sqlDB.SetConnMaxLifetime(connMaxLife)
	}
	if connMaxIdle > 0 {
		sqlDB.SetConnMaxIdleTime(connMaxIdle)
	}
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func initConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         WriteGormLog(),
		NamingStrategy: initNamingStrategy(),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func initLog() logger.Interface {
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			Colorful:                  false,
			LogLevel:                  logger.Error,
			SlowThreshold:             time.Second,
			IgnoreRecordNotFoundError: true,
		},
	)
	return newLogger
}

func initNamingStrategy() *schema.NamingStrategy {
	return &schema.NamingStrategy{
		SingularTable: false,
		TablePrefix:   "",
	}
}

// WriteGormLog switches the gorm logger to a file at info level when GORM_LOG is set.
func WriteGormLog() logger.Interface {
	logFile := os.Getenv("GORM_LOG")
	if logFile == "" {
		return initLog()
	}
	f, err := os.Create(logFile)
	if err != nil {
		return initLog()
	}
	newLogger := logger.New(log.New(io.MultiWriter(f), "\r\n", log.LstdFlags), logger.Config{
		Colorful:      true,
		LogLevel:      logger.Info,
		SlowThreshold: time.Second,
	})
	return newLogger
}
