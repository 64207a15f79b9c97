package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Gorm struct {
	db  *gorm.DB
	log *zap.Logger
}

// OpenPostgres connects with dsn and migrates the results table.
func OpenPostgres(dsn string, log *zap.Logger) (*Gorm, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return newGorm(db, log)
}

func newGorm(db *gorm.DB, log *zap.Logger) (*Gorm, error) {
	if err := db.AutoMigrate(&Result{}); err != nil {
		return nil, fmt.Errorf("migrate results: %w", err)
	}
	return &Gorm{db: db, log: log.Named("store")}, nil
}

func (g *Gorm) Save(ctx context.Context, r Result) error {
	r.ID = 0
	if err := g.db.WithContext(ctx).Create(&r).Error; err != nil {
		return fmt.Errorf("save result for room %s: %w", r.Room, err)
	}
	g.log.Debug("result saved", zap.String("room", r.Room), zap.Uint("id", r.ID))
	return nil
}

func (g *Gorm) Recent(ctx context.Context, room string, limit int) ([]Result, error) {
	q := g.db.WithContext(ctx).Where("room = ?", room).Order("finished_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	out := []Result{}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("recent results for room %s: %w", room, err)
	}
	return out, nil
}

func (g *Gorm) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping reports whether the database answers within timeout.
func (g *Gorm) Ping(ctx context.Context, timeout time.Duration) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return sqlDB.PingContext(ctx)
}
