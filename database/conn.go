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
	"errors"
	"fmt"
	"sync"

	"github.com/uptrace/bun"
)

// ErrNotInitialized is returned when the global database is used before
// InitDB or SetDB.
var ErrNotInitialized = errors.New("database not initialized")

var (
	globalMu      sync.RWMutex
	globalFactory *BaseDatabaseFactory
	globalConfig  *Config
	globalDB      *bun.DB
)

// GetDB returns the global Bun database instance.
func GetDB() *bun.DB {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalFactory != nil {
		if db := globalFactory.GetDB(); db != nil {
			return db
		}
	}
	return globalDB
}

// SetDB installs db as the global database without going through a factory,
// for callers that open the connection themselves.
func SetDB(db *bun.DB) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalDB = db
}

// GetDatabaseManager returns the global database manager.
func GetDatabaseManager() AbstractDatabaseManager {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalFactory != nil {
		return globalFactory.GetManager()
	}
	return nil
}

// GetDatabaseFactory returns the global database factory.
func GetDatabaseFactory() *BaseDatabaseFactory {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalFactory
}

// InitDB initializes the global database using the provided configuration,
// migrating and seeding as the configuration asks.
func InitDB(ctx context.Context, cfg *Config) (*bun.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	db, err := InitDatabaseWithOptions(ctx, cfg, cfg.DataMigrateConfig.EnableMigrateOnStartup)
	if err != nil {
		return nil, err
	}
	if cfg.DataInitConfig.AutoInitOnStartup {
		if err := InitData(ctx); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// InitDatabaseWithOptions initializes the database and optionally runs migrations.
func InitDatabaseWithOptions(ctx context.Context, cfg *Config, runMigrations bool) (*bun.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	factory := NewDatabaseFactory()
	manager, err := factory.CreateFromConfig(&cfg.ConnectionConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database manager: %w", err)
	}
	if m, ok := manager.(*defaultDatabaseManager); ok {
		m.migrate = cfg.DataMigrateConfig
		m.init = cfg.DataInitConfig
	}

	if err := factory.InitializeDatabase(ctx, runMigrations); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	globalMu.Lock()
	globalFactory = factory
	globalConfig = cfg
	globalDB = manager.GetDB()
	globalMu.Unlock()
	return manager.GetDB(), nil
}

// CloseDB closes the global database connection.
func CloseDB() error {
	globalMu.Lock()
	factory, db := globalFactory, globalDB
	globalFactory, globalDB = nil, nil
	globalMu.Unlock()
	if factory != nil {
		return factory.Close()
	}
	if db != nil {
		return db.Close()
	}
	return nil
}

// GetHealthStatus returns the current database health status.
func GetHealthStatus(ctx context.Context) *HealthStatus {
	if factory := GetDatabaseFactory(); factory != nil {
		return factory.GetHealthStatus(ctx)
	}
	return &HealthStatus{
		Healthy:   false,
		Connected: false,
		LastError: "Database not initialized",
	}
}

// GetDatabaseStats returns global database statistics.
func GetDatabaseStats() *DBStats {
	if factory := GetDatabaseFactory(); factory != nil {
		return factory.GetStats()
	}
	return &DBStats{}
}

// RunMigrations executes database migrations against the global database.
func RunMigrations(ctx context.Context) error {
	manager := GetDatabaseManager()
	if manager == nil {
		return ErrNotInitialized
	}
	return manager.RunMigrations(ctx)
}

// InitData seeds the global database for the configured environment.
func InitData(ctx context.Context) error {
	environment := "prod"
	globalMu.RLock()
	if globalConfig != nil && globalConfig.DataInitConfig.Environment != "" {
		environment = globalConfig.DataInitConfig.Environment
	}
	globalMu.RUnlock()
	return InitDataWithSQL(ctx, environment)
}

// InitDataWithSQL seeds the global database by executing the SQL files of
// the environment.
func InitDataWithSQL(ctx context.Context, environment string) error {
	db := GetDB()
	if db == nil {
		return ErrNotInitialized
	}

	root := "configs/sql"
	globalMu.RLock()
	if globalConfig != nil && globalConfig.DataInitConfig.Filepath != "" {
		root = globalConfig.DataInitConfig.Filepath
	}
	globalMu.RUnlock()

	sqlManager := NewSQLInitManager(db, environment)
	sqlManager.SetSQLRootPath(root)
	return sqlManager.ExecuteInitialization(ctx)
}
