package statslog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"bagbot/internal/fusion"
	"bagbot/internal/logger"

	_ "modernc.org/sqlite"
)

// StatsStore 定期保存 FusionState 快照，供看板查看历史曲线。
type StatsStore struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// Snapshot 一条历史快照。
type Snapshot struct {
	ID      int64        `json:"id"`
	TakenAt time.Time    `json:"taken_at"`
	State   fusion.State `json:"state"`
}

// NewStatsStore 初始化 SQLite 存储。
func NewStatsStore(path string) (*StatsStore, error) {
	if path == "" {
		return nil, fmt.Errorf("stats log path 不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if err := ensureStatsSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &StatsStore{db: db, path: path}, nil
}

// Close 关闭底层 DB。
func (s *StatsStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureStatsSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS fusion_stats_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			total_decisions INTEGER NOT NULL DEFAULT 0,
			executed INTEGER NOT NULL DEFAULT 0,
			cancelled INTEGER NOT NULL DEFAULT 0,
			scaled INTEGER NOT NULL DEFAULT 0,
			delayed INTEGER NOT NULL DEFAULT 0,
			aborted INTEGER NOT NULL DEFAULT 0,
			conflicts INTEGER NOT NULL DEFAULT 0,
			avg_harmony REAL NOT NULL DEFAULT 0,
			avg_confidence REAL NOT NULL DEFAULT 0,
			conflict_rate REAL NOT NULL DEFAULT 0,
			last_sequence INTEGER NOT NULL DEFAULT 0,
			last_decision_at INTEGER
		);`,
		`CREATE INDEX IF NOT EXISTS idx_fusion_stats_snapshots_ts ON fusion_stats_snapshots(ts DESC, id DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("init stats schema: %w", err)
		}
	}
	return nil
}

func (s *StatsStore) conn() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, fmt.Errorf("stats store 已关闭")
	}
	return s.db, nil
}

// SaveSnapshot 写入一条快照，返回自增 ID。
func (s *StatsStore) SaveSnapshot(ctx context.Context, st fusion.State, at time.Time) (int64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	var lastAt sql.NullInt64
	if !st.LastDecisionAt.IsZero() {
		lastAt = sql.NullInt64{Int64: st.LastDecisionAt.UnixNano(), Valid: true}
	}
	res, err := db.ExecContext(ctx, `INSERT INTO fusion_stats_snapshots
		(ts, total_decisions, executed, cancelled, scaled, delayed, aborted, conflicts,
		 avg_harmony, avg_confidence, conflict_rate, last_sequence, last_decision_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		at.UnixMilli(), int64(st.TotalDecisions), int64(st.Executed), int64(st.Cancelled),
		int64(st.Scaled), int64(st.Delayed), int64(st.Aborted), int64(st.Conflicts),
		st.AverageHarmony, st.AverageConfidence, st.ConflictRate, int64(st.LastSequence), lastAt)
	if err != nil {
		return 0, fmt.Errorf("insert stats snapshot: %w", err)
	}
	return res.LastInsertId()
}

const snapshotColumns = `id, ts, total_decisions, executed, cancelled, scaled, delayed, aborted, conflicts,
	avg_harmony, avg_confidence, conflict_rate, last_sequence, last_decision_at`

// Latest 返回最新快照；库为空时返回 false。
func (s *StatsStore) Latest(ctx context.Context) (Snapshot, bool, error) {
	db, err := s.conn()
	if err != nil {
		return Snapshot{}, false, err
	}
	row := db.QueryRowContext(ctx, `SELECT `+snapshotColumns+` FROM fusion_stats_snapshots ORDER BY ts DESC, id DESC LIMIT 1`)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, err
	}
	return snap, true, nil
}

// History 按时间倒序返回 since 之后的快照（since 为零值表示不过滤）。
func (s *StatsStore) History(ctx context.Context, since time.Time, limit int) ([]Snapshot, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var sinceMs int64
	if !since.IsZero() {
		sinceMs = since.UnixMilli()
	}
	rows, err := db.QueryContext(ctx, `SELECT `+snapshotColumns+` FROM fusion_stats_snapshots
		WHERE ts >= ? ORDER BY ts DESC, id DESC LIMIT ?`, sinceMs, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Prune 只保留最新 keep 条。
func (s *StatsStore) Prune(ctx context.Context, keep int) (int64, error) {
	if keep <= 0 {
		return 0, nil
	}
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx, `DELETE FROM fusion_stats_snapshots WHERE id NOT IN (
		SELECT id FROM fusion_stats_snapshots ORDER BY ts DESC, id DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune stats snapshots: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (Snapshot, error) {
	var snap Snapshot
	var ts, total, executed, cancelled, scaled, delayed, aborted, conflicts, lastSeq int64
	var lastAt sql.NullInt64
	st := &snap.State
	if err := row.Scan(&snap.ID, &ts, &total, &executed, &cancelled, &scaled, &delayed, &aborted,
		&conflicts, &st.AverageHarmony, &st.AverageConfidence, &st.ConflictRate, &lastSeq, &lastAt); err != nil {
		return Snapshot{}, err
	}
	st.TotalDecisions = uint64(total)
	st.Executed = uint64(executed)
	st.Cancelled = uint64(cancelled)
	st.Scaled = uint64(scaled)
	st.Delayed = uint64(delayed)
	st.Aborted = uint64(aborted)
	st.Conflicts = uint64(conflicts)
	st.LastSequence = uint64(lastSeq)
	snap.TakenAt = time.UnixMilli(ts).UTC()
	if lastAt.Valid {
		st.LastDecisionAt = time.Unix(0, lastAt.Int64).UTC()
	}
	return snap, nil
}

// StateSource 提供当前统计，fusion.Service 即满足。
type StateSource interface {
	Statistics() fusion.State
}

// Snapshotter 按固定间隔把统计写入 StatsStore，并按 keep 裁剪历史。
type Snapshotter struct {
	store    *StatsStore
	source   StateSource
	interval time.Duration
	keep     int
	now      func() time.Time
}

func NewSnapshotter(store *StatsStore, source StateSource, interval time.Duration, keep int) *Snapshotter {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Snapshotter{store: store, source: source, interval: interval, keep: keep, now: time.Now}
}

// Run 阻塞直到 ctx 结束；退出前再写一次，保证最后状态落盘。
func (s *Snapshotter) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			s.Capture(flushCtx)
			cancel()
			return nil
		case <-ticker.C:
			s.Capture(ctx)
		}
	}
}

// Capture 立即写一次快照；失败只记日志。
func (s *Snapshotter) Capture(ctx context.Context) {
	st := s.source.Statistics()
	if _, err := s.store.SaveSnapshot(ctx, st, s.now()); err != nil {
		logger.Warnf("stats snapshot 写入失败: %v", err)
		return
	}
	if s.keep > 0 {
		if _, err := s.store.Prune(ctx, s.keep); err != nil {
			logger.Warnf("stats snapshot 裁剪失败: %v", err)
		}
	}
}
