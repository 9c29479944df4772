package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// StoreFactory is a function that creates a new GraphStore instance
type StoreFactory func(config map[string]interface{}) (GraphStore, error)

var (
	storeMu       sync.RWMutex
	storeRegistry = make(map[string]StoreFactory)
)

// RegisterStore registers a new store implementation
func RegisterStore(name string, factory StoreFactory) {
	storeMu.Lock()
	defer storeMu.Unlock()
	storeRegistry[name] = factory
}

// NewStore creates a new store instance by name
func NewStore(name string, config map[string]interface{}) (GraphStore, error) {
	storeMu.RLock()
	factory, exists := storeRegistry[name]
	storeMu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown store type: %s", name)
	}

	return factory(config)
}

// ListStores returns all registered store types
func ListStores() []string {
	storeMu.RLock()
	defer storeMu.RUnlock()

	stores := make([]string, 0, len(storeRegistry))
	for name := range storeRegistry {
		stores = append(stores, name)
	}
	sort.Strings(stores)
	return stores
}

// init registers built-in stores
func init() {
	RegisterStore("sqlite", func(config map[string]interface{}) (GraphStore, error) {
		dbPath, ok := config["db_path"].(string)
		if !ok {
			dbPath = "netgraph.db"
		}

		sqliteConfig := SQLiteConfig{
			DBPath:      dbPath,
			EnableWAL:   true,
			CacheSize:   2000, // 2MB
			BusyTimeout: 5000, // 5 seconds
		}

		if wal, ok := config["enable_wal"].(bool); ok {
			sqliteConfig.EnableWAL = wal
		}
		if cache, ok := config["cache_size"].(int); ok {
			sqliteConfig.CacheSize = cache
		}
		if timeout, ok := config["busy_timeout"].(int); ok {
			sqliteConfig.BusyTimeout = timeout
		}

		return NewSQLiteStore(dbPath, sqliteConfig)
	})

	RegisterStore("postgres", func(config map[string]interface{}) (GraphStore, error) {
		url, _ := config["database_url"].(string)
		if url == "" {
			return nil, fmt.Errorf("postgres store requires database_url")
		}

		pgConfig := PostgresConfig{
			MaxConns:       10,
			ConnectTimeout: 10 * time.Second,
		}
		if n, ok := config["max_conns"].(int); ok && n > 0 {
			pgConfig.MaxConns = int32(n)
		}

		ctx, cancel := context.WithTimeout(context.Background(), pgConfig.ConnectTimeout)
		defer cancel()
		return NewPostgresStore(ctx, url, pgConfig)
	})
}
