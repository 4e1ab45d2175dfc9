/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
)

type defaultDatabaseManager struct {
	config          *ConnectionConfig
	db              *bun.DB
	sqlDB           *sql.DB
	logger          Logger
	mu              sync.RWMutex
	connected       bool
	lastError       error
	stopWatch       context.CancelFunc
	metrics         *MetricsHook
	migrate         DataMigrateConfig
	init            DataInitConfig
}

// NewDatabaseManager returns an AbstractDatabaseManager backed by Bun.
// A nil config selects DefaultConnectionConfig.
func NewDatabaseManager(config *ConnectionConfig) AbstractDatabaseManager {
	if config == nil {
		config = DefaultConnectionConfig()
	}
	return &defaultDatabaseManager{
		config: config,
		init:   DefaultConfig().DataInitConfig,
	}
}

func (dm *defaultDatabaseManager) Connect(ctx context.Context) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.connected && dm.db != nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if dm.db != nil {
		_ = dm.db.Close()
		dm.db, dm.sqlDB = nil, nil
	}

	var err error
	dm.sqlDB, dm.db, err = dm.createConnection()
	if err != nil {
		dm.lastError = err
		return fmt.Errorf("failed to create database connection: %w", err)
	}

	dm.configureConnectionPool()

	ctxTimeout, cancel := context.WithTimeout(ctx, dm.config.ConnectTimeout)
	defer cancel()

	if err := dm.db.PingContext(ctxTimeout); err != nil {
		dm.lastError = err
		_ = dm.db.Close()
		dm.db, dm.sqlDB = nil, nil
		return fmt.Errorf("database connection test failed: %w", err)
	}

	dm.connected = true
	dm.lastError = nil

	if dm.config.HealthCheckInterval > 0 && dm.stopWatch == nil {
		watchCtx, stop := context.WithCancel(context.Background())
		dm.stopWatch = stop
		go dm.watch(watchCtx)
	}

	if dm.logger != nil {
		dm.logger.Info("database connected", "type", dm.config.Type, "driver", dm.config.Driver, "host", dm.config.Host, "dbname", dm.config.DBName)
	}
	return nil
}

func (dm *defaultDatabaseManager) createConnection() (*sql.DB, *bun.DB, error) {
	var sqlDB *sql.DB
	var db *bun.DB
	var err error

	if dm.config.ConnectTimeout.Seconds() <= 0 {
		dm.config.ConnectTimeout = 30 * time.Second
	}

	switch dm.config.Type {
	case "mysql":
		sqlDB, db, err = dm.createMySQLConnection()
	case "postgres", "postgresql":
		sqlDB, db, err = dm.createPostgreSQLConnection()
	case "sqlite", "sqlite3":
		sqlDB, db, err = dm.createSQLiteConnection()
	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", dm.config.Type)
	}

	if err != nil {
		return nil, nil, err
	}

	if dm.config.EnableQueryLog {
		db.AddQueryHook(NewQueryHook("DB_QUERY_LOG", true, false, nil))
	}
	if dm.config.EnableDebugLog {
		db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.FromEnv("BUNDEBUG"),
		))
	}
	if dm.config.SlowQueryTime > 0 {
		db.AddQueryHook(NewSlowQueryHook("DB_SLOW_QUERY_LOG", true, dm.config.SlowQueryTime, dm.logger))
	}
	if dm.config.EnableMetrics {
		if dm.metrics == nil {
			if dm.metrics, err = NewMetricsHook(prometheus.DefaultRegisterer, dm.config.MetricsNamespace); err != nil {
				_ = sqlDB.Close()
				return nil, nil, fmt.Errorf("failed to register query metrics: %w", err)
			}
		}
		db.AddQueryHook(dm.metrics)
	}
	db.RegisterModel(RegisteredModelInstances()...)

	return sqlDB, db, nil
}

func (dm *defaultDatabaseManager) createMySQLConnection() (*sql.DB, *bun.DB, error) {
	dsn := dm.config.DSN
	if dsn == "" {
		dsn = fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%s&readTimeout=%s&writeTimeout=%s",
			dm.config.Username,
			dm.config.Password,
			dm.config.Host,
			dm.config.Port,
			dm.config.DBName,
			dm.config.ConnectTimeout,
			dm.config.ReadTimeout,
			dm.config.WriteTimeout,
		)
		if secs := int(dm.config.LockTimeout.Seconds()); secs > 0 {
			dsn += fmt.Sprintf("&innodb_lock_wait_timeout=%d", secs)
		}
	}

	sqlDB, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, nil, err
	}

	db := bun.NewDB(sqlDB, mysqldialect.New())
	return sqlDB, db, nil
}

// createPostgreSQLConnection opens postgres through lib/pq, or through the
// pgx stdlib adapter when Driver is "pgx".
func (dm *defaultDatabaseManager) createPostgreSQLConnection() (*sql.DB, *bun.DB, error) {
	dsn := dm.config.DSN
	if dsn == "" {
		sslMode := dm.config.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&connect_timeout=%d",
			dm.config.Username,
			dm.config.Password,
			dm.config.Host,
			dm.config.Port,
			dm.config.DBName,
			sslMode,
			int(dm.config.ConnectTimeout.Seconds()),
		)
		if ms := dm.config.LockTimeout.Milliseconds(); ms > 0 {
			dsn += fmt.Sprintf("&lock_timeout=%d", ms)
		}
	}

	driverName := "postgres"
	if dm.config.Driver == "pgx" {
		driverName = "pgx"
	}
	sqlDB, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, nil, err
	}

	db := bun.NewDB(sqlDB, pgdialect.New())
	return sqlDB, db, nil
}

func (dm *defaultDatabaseManager) createSQLiteConnection() (*sql.DB, *bun.DB, error) {
	dsn := SQLiteDSN(dm.config)

	sqlDB, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, nil, err
	}
	db := bun.NewDB(sqlDB, sqlitedialect.New())
	return sqlDB, db, nil
}

// SQLiteDSN derives the sqlite data source: DSN when set, an in-memory
// database for ":memory:", a "file:" URI as given, otherwise "<dbname>.db".
func SQLiteDSN(cfg *ConnectionConfig) string {
	switch {
	case cfg.DSN != "":
		return cfg.DSN
	case cfg.DBName == ":memory:":
		return "file::memory:?cache=shared"
	case strings.HasPrefix(cfg.DBName, "file:"):
		return cfg.DBName
	}
	return fmt.Sprintf("%s.db", cfg.DBName)
}

func (dm *defaultDatabaseManager) configureConnectionPool() {
	if dm.sqlDB == nil {
		return
	}

	if dm.isMemorySQLite() {
		// an in-memory database lives and dies with its single connection
		dm.sqlDB.SetMaxOpenConns(1)
		dm.sqlDB.SetMaxIdleConns(1)
		dm.sqlDB.SetConnMaxLifetime(0)
		dm.sqlDB.SetConnMaxIdleTime(0)
		return
	}
	dm.sqlDB.SetMaxIdleConns(dm.config.MaxIdleConns)
	dm.sqlDB.SetMaxOpenConns(dm.config.MaxOpenConns)
	dm.sqlDB.SetConnMaxLifetime(dm.config.ConnMaxLifetime)
	dm.sqlDB.SetConnMaxIdleTime(dm.config.ConnMaxIdleTime)
}

func (dm *defaultDatabaseManager) isMemorySQLite() bool {
	switch dm.config.Type {
	case "sqlite", "sqlite3":
		dsn := SQLiteDSN(dm.config)
		return strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
	}
	return false
}

// Disconnect stops the health watcher and closes the pool.
func (dm *defaultDatabaseManager) Disconnect() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.stopWatch != nil {
		dm.stopWatch()
		dm.stopWatch = nil
	}
	return dm.closeLocked()
}

func (dm *defaultDatabaseManager) closeLocked() error {
	if dm.db == nil {
		return nil
	}
	err := dm.db.Close()
	dm.db, dm.sqlDB, dm.connected = nil, nil, false
	if dm.logger != nil {
		if err != nil {
			dm.logger.Error("closing database failed", "error", err)
		} else {
			dm.logger.Info("database closed")
		}
	}
	return err
}

// Reconnect replaces the pool and the *bun.DB returned by GetDB. A running
// health watcher keeps running. Repositories bound to the old handle must be
// rebuilt; Service does that on its next call.
func (dm *defaultDatabaseManager) Reconnect(ctx context.Context) error {
	dm.mu.Lock()
	if err := dm.closeLocked(); err != nil && dm.logger != nil {
		dm.logger.Warn("ignoring close error before reconnect", "error", err)
	}
	dm.mu.Unlock()
	return dm.Connect(ctx)
}

func (dm *defaultDatabaseManager) Ping(ctx context.Context) error {
	dm.mu.RLock()
	db := dm.db
	dm.mu.RUnlock()

	if db == nil {
		return fmt.Errorf("database not connected")
	}

	return db.PingContext(ctx)
}

func (dm *defaultDatabaseManager) GetDB() *bun.DB {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.db
}

func (dm *defaultDatabaseManager) GetSQLDB() *sql.DB {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.sqlDB
}

func (dm *defaultDatabaseManager) HealthCheck(ctx context.Context) *HealthStatus {
	dm.mu.RLock()
	db, sqlDB, connected := dm.db, dm.sqlDB, dm.connected
	dm.mu.RUnlock()

	status := &HealthStatus{LastCheckTime: time.Now(), Connected: connected}
	if db == nil {
		status.LastError = "database not connected"
		return status
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := db.PingContext(pingCtx)
	status.ResponseTime = time.Since(status.LastCheckTime)
	status.Healthy = err == nil
	status.Connected = err == nil
	if err != nil {
		status.LastError = err.Error()
	}
	if sqlDB != nil {
		stats := sqlDB.Stats()
		status.ActiveConns = stats.InUse
		status.IdleConns = stats.Idle
		status.MaxOpenConns = stats.MaxOpenConnections
	}

	dm.mu.Lock()
	dm.lastError = err
	dm.mu.Unlock()
	return status
}

// watch pings on every HealthCheckInterval tick and, when EnableReconnect is
// set, retries up to MaxReconnectTries times per outage. The retries go
// through the existing pool, which redials broken connections, so handles
// held by repositories stay valid.
func (dm *defaultDatabaseManager) watch(ctx context.Context) {
	ticker := time.NewTicker(dm.config.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if dm.HealthCheck(ctx).Healthy || !dm.config.EnableReconnect {
			continue
		}
		for try := 1; try <= dm.config.MaxReconnectTries; try++ {
			select {
			case <-ctx.Done():
				return
			case <-time.After(dm.config.ReconnectInterval):
			}
			pingCtx, cancel := context.WithTimeout(ctx, dm.config.ConnectTimeout)
			err := dm.Ping(pingCtx)
			cancel()
			if err == nil {
				if dm.logger != nil {
					dm.logger.Info("database reachable again", "try", try)
				}
				break
			}
			if dm.logger != nil {
				dm.logger.Error("database still unreachable", "error", err, "try", try)
			}
		}
	}
}

func (dm *defaultDatabaseManager) GetStats() *DBStats {
	dm.mu.RLock()
	sqlDB := dm.sqlDB
	dm.mu.RUnlock()

	if sqlDB == nil {
		return &DBStats{}
	}

	stats := sqlDB.Stats()
	return &DBStats{
		MaxOpenConns:      stats.MaxOpenConnections,
		OpenConns:         stats.OpenConnections,
		InUse:             stats.InUse,
		Idle:              stats.Idle,
		WaitCount:         stats.WaitCount,
		WaitDuration:      stats.WaitDuration,
		MaxIdleClosed:     stats.MaxIdleClosed,
		MaxIdleTimeClosed: stats.MaxIdleTimeClosed,
		MaxLifetimeClosed: stats.MaxLifetimeClosed,
	}
}

func (dm *defaultDatabaseManager) RunMigrations(ctx context.Context) error {
	db := dm.GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	return dm.migrationManager(db).RunMigrations(ctx)
}

func (dm *defaultDatabaseManager) InitData(ctx context.Context) error {
	db := dm.GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}
	return dm.migrationManager(db).InitData(ctx)
}

func (dm *defaultDatabaseManager) migrationManager(db *bun.DB) *MigrationManager {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	mm := NewMigrationManager(db, dm.logger)
	mm.SetMigrateConfig(dm.migrate)
	mm.SetInitConfig(dm.init)
	return mm
}

func (dm *defaultDatabaseManager) SetLogger(logger Logger) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.logger = logger
}
