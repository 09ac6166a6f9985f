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
	"fmt"
	"sync"
	"time"

	"github.com/uptrace/bun"
)

var (
	globalMu      sync.RWMutex
	globalManager AbstractDatabaseManager
)

// InitDB validates cfg, connects the global manager and, when configured,
// creates the tables of registered models.
func InitDB(ctx context.Context, cfg *Config) (*bun.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	manager := NewDatabaseManager(&cfg.ConnectionConfig)
	if err := manager.Connect(ctx); err != nil {
		return nil, err
	}
	if cfg.MigrateConfig.CreateTablesOnStartup {
		if err := manager.CreateTables(ctx); err != nil {
			_ = manager.Disconnect()
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
	}

	globalMu.Lock()
	previous := globalManager
	globalManager = manager
	globalMu.Unlock()
	if previous != nil {
		_ = previous.Disconnect()
	}
	return manager.GetDB(), nil
}

// GetDatabaseManager returns the global database manager, or nil before InitDB.
func GetDatabaseManager() AbstractDatabaseManager {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalManager
}

// GetDB returns the global Bun database instance, or nil before InitDB.
func GetDB() *bun.DB {
	if m := GetDatabaseManager(); m != nil {
		return m.GetDB()
	}
	return nil
}

// OpenSession opens a session on the global database.
func OpenSession() (*Session, error) {
	m := GetDatabaseManager()
	if m == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	return m.NewSession()
}

// CloseDB closes the global database connection.
func CloseDB() error {
	globalMu.Lock()
	m := globalManager
	globalManager = nil
	globalMu.Unlock()
	if m == nil {
		return nil
	}
	return m.Disconnect()
}

// GetHealthStatus returns the current database health status.
func GetHealthStatus(ctx context.Context) *HealthStatus {
	if m := GetDatabaseManager(); m != nil {
		return m.HealthCheck(ctx)
	}
	return &HealthStatus{
		LastError:     "Database not initialized",
		LastCheckTime: time.Now(),
	}
}

// GetDatabaseStats returns global database statistics.
func GetDatabaseStats() *DBStats {
	if m := GetDatabaseManager(); m != nil {
		return m.GetStats()
	}
	return &DBStats{}
}
