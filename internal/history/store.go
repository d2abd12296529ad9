package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/DoyleJ11/matchmaking-client/internal/types"
)

type ConnectRecord struct {
	ID          uint      `gorm:"primaryKey"`
	Addr        string    `gorm:"size:128;not null"`
	ServerID    uint64    `gorm:"not null"`
	MatchID     uint64    `gorm:"index"`
	MatchGroup  string    `gorm:"size:32"`
	ConnectedAt time.Time `gorm:"index;not null"`
}

// Store persists connect history in Postgres.
type Store struct {
	db   *gorm.DB
	pool *pgxpool.Pool
}

func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect history pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect history ping: %w", err)
	}

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: stdlib.OpenDBFromPool(pool)}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("open gorm: %w", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&ConnectRecord{}); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate connect history: %w", err)
	}
	return &Store{db: db, pool: pool}, nil
}

func (s *Store) Save(ctx context.Context, e Entry) error {
	rec := ConnectRecord{
		Addr:        e.Addr,
		ServerID:    uint64(e.ServerID),
		MatchID:     uint64(e.MatchID),
		MatchGroup:  string(e.MatchGroup),
		ConnectedAt: e.At,
	}
	return s.db.WithContext(ctx).Create(&rec).Error
}

func (s *Store) Recent(ctx context.Context, n int) ([]Entry, error) {
	var recs []ConnectRecord
	err := s.db.WithContext(ctx).Order("connected_at desc").Limit(n).Find(&recs).Error
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(recs))
	for _, r := range recs {
		out = append(out, Entry{
			Addr:       r.Addr,
			ServerID:   types.SteamID(r.ServerID),
			MatchID:    types.MatchID(r.MatchID),
			MatchGroup: types.MatchGroup(r.MatchGroup),
			At:         r.ConnectedAt,
		})
	}
	return out, nil
}

// Run drains entries into the store until ctx is done. Write failures are logged, not fatal.
func (s *Store) Run(ctx context.Context, in <-chan Entry, log *zap.SugaredLogger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-in:
			wctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			if err := s.Save(wctx, e); err != nil {
				log.Warnw("connect history write failed", "addr", e.Addr, "error", err)
			}
			cancel()
		}
	}
}

func (s *Store) Close() error {
	var err error
	if sqlDB, dbErr := s.db.DB(); dbErr != nil {
		err = multierr.Append(err, dbErr)
	} else {
		err = multierr.Append(err, sqlDB.Close())
	}
	s.pool.Close()
	return err
}
