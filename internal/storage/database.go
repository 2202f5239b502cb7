// internal/storage/database.go
package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/Corphon/DeepDetect/internal/utils"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DefaultPingTimeout     = 5 * time.Second
	DefaultMonitorInterval = 30 * time.Second
)

// ErrNoDSN 未配置数据库连接串
var ErrNoDSN = errors.New("database DSN not configured")

// Database 包装共享的 gorm 连接，并维护其可达性状态
type Database struct {
	mu     sync.RWMutex
	db     *gorm.DB
	dsn    string
	driver string
	debug  bool

	state       *StorageState
	pingTimeout time.Duration
}

// Open 建立数据库连接。任何失败都不会终止进程，只会让状态保持离线。
func Open(ctx context.Context, dsn string, debug bool) *Database {
	d := &Database{
		dsn:         strings.TrimSpace(dsn),
		debug:       debug,
		state:       NewStorageState(false),
		pingTimeout: DefaultPingTimeout,
	}

	if d.dsn == "" {
		utils.GetLogger().Warn("未配置数据库，进入离线模式", nil)
		return d
	}

	if err := d.connect(ctx); err != nil {
		utils.GetLogger().Warn("数据库连接失败，进入离线模式", map[string]interface{}{
			"driver": d.Driver(),
			"error":  err.Error(),
		})
		return d
	}

	d.state.markOnline()
	utils.GetLogger().Info("数据库连接成功", map[string]interface{}{"driver": d.Driver()})
	return d
}

// State 返回注入给业务层的状态
func (d *Database) State() *StorageState {
	return d.state
}

func (d *Database) Driver() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.driver
}

// DB 返回当前连接，未连接时为 nil
func (d *Database) DB() *gorm.DB {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.db
}

func (d *Database) connect(ctx context.Context) error {
	dialector, driver := dialectorFor(d.dsn)
	d.mu.Lock()
	d.driver = driver
	d.mu.Unlock()

	level := logger.Warn
	if d.debug {
		level = logger.Info
	}
	gormLogger := logger.New(
		log.New(log.Writer(), "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	if driver == "sqlite" {
		// sqlite 写操作本身是串行的，单连接同时保证 :memory: 库在各查询间共享
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if err := pingDB(ctx, db, d.pingTimeout); err != nil {
		sqlDB.Close()
		return err
	}

	if err := db.AutoMigrate(&ScanRecord{}, &ComparativeMetricRecord{}, &AccountRecord{}); err != nil {
		sqlDB.Close()
		return fmt.Errorf("auto migrate: %w", err)
	}

	d.mu.Lock()
	old := d.db
	d.db = db
	d.mu.Unlock()

	if old != nil {
		if oldSQL, err := old.DB(); err == nil {
			oldSQL.Close()
		}
	}
	return nil
}

// Ping 检查连接是否可用
func (d *Database) Ping(ctx context.Context) error {
	db := d.DB()
	if db == nil {
		return ErrNoDSN
	}
	return pingDB(ctx, db, d.pingTimeout)
}

// check 执行一次健康检查，失败时单向切换到离线
func (d *Database) check(ctx context.Context) {
	if !d.state.Online() {
		return
	}
	if err := d.Ping(ctx); err != nil {
		if d.state.markOffline() {
			utils.GetLogger().Error("数据库连接中断，切换到离线模式", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
}

// Monitor 定期检查连接，直到 ctx 结束
func (d *Database) Monitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.check(ctx)
		}
	}
}

// Reconnect 显式重连信号。成功后状态切回在线。
func (d *Database) Reconnect(ctx context.Context) error {
	if d.dsn == "" {
		return ErrNoDSN
	}

	if err := d.Ping(ctx); err != nil {
		if err := d.connect(ctx); err != nil {
			utils.GetLogger().Warn("数据库重连失败", map[string]interface{}{"error": err.Error()})
			return err
		}
	}

	if d.state.markOnline() {
		utils.GetLogger().Info("数据库已重新连接，恢复在线模式", map[string]interface{}{"driver": d.Driver()})
	}
	return nil
}

// Close 关闭连接并切换到离线
func (d *Database) Close() error {
	d.state.markOffline()

	d.mu.Lock()
	db := d.db
	d.db = nil
	d.mu.Unlock()

	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func pingDB(ctx context.Context, db *gorm.DB, timeout time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return sqlDB.PingContext(pingCtx)
}

// dialectorFor 根据 DSN 选择驱动: sqlite: 前缀或 .db 后缀使用 sqlite，其余使用 MySQL
func dialectorFor(dsn string) (gorm.Dialector, string) {
	switch {
	case strings.HasPrefix(dsn, "sqlite:"):
		return sqlite.Open(strings.TrimPrefix(dsn, "sqlite:")), "sqlite"
	case strings.HasSuffix(dsn, ".db"):
		return sqlite.Open(dsn), "sqlite"
	default:
		return mysql.Open(normalizeMySQLDSN(dsn)), "mysql"
	}
}

func normalizeMySQLDSN(dsn string) string {
	dsn = strings.TrimPrefix(dsn, "mysql://")
	dsn = ensureParam(dsn, "parseTime", "true")
	if !strings.Contains(dsn, "charset=") {
		dsn = ensureParam(dsn, "charset", "utf8mb4")
		dsn = ensureParam(dsn, "collation", "utf8mb4_unicode_ci")
	}
	return dsn
}

func ensureParam(dsn, key, val string) string {
	if strings.Contains(dsn, key+"=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + key + "=" + val
}
