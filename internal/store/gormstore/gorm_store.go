package gormstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bagbot/internal/fusion"
	storemodel "bagbot/internal/store/model"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type decisionModel = storemodel.FusionDecisionModel

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// DecisionQuery 审计查询条件，空字段表示不过滤。
type DecisionQuery struct {
	Symbol  string
	Command fusion.Command
	Limit   int
	Offset  int
}

// GormStore 用 Gorm + SQLite 保存融合决策审计记录。
type GormStore struct {
	db *gorm.DB
}

// NewGormStore initializes a new GormStore instance.
func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: 决策审计库路径不能为空")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&decisionModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: allow a small amount of parallelism for concurrent HTTP reads
	// while keeping lock contention low.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SQLDB exposes the underlying *sql.DB for shared connections.
func (s *GormStore) SQLDB() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	return s.db.DB()
}

var _ fusion.DecisionObserver = (*GormStore)(nil)

// AfterDecide 作为观察者挂到融合服务上，每条决策落一行审计。
func (s *GormStore) AfterDecide(ctx context.Context, d fusion.FusionDecision) error {
	return s.SaveDecision(ctx, d)
}

// SaveDecision 按 decision_id 幂等写入。
func (s *GormStore) SaveDecision(ctx context.Context, d fusion.FusionDecision) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store 未初始化")
	}
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("gorm store: decision id 不能为空")
	}
	m, err := newDecisionModel(d, time.Now())
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "decision_id"}}, DoNothing: true}).
		Create(&m).Error
}

// GetDecision 按 ID 查询；不存在时返回 false。
func (s *GormStore) GetDecision(ctx context.Context, id string) (fusion.FusionDecision, bool, error) {
	if s == nil || s.db == nil {
		return fusion.FusionDecision{}, false, fmt.Errorf("gorm store 未初始化")
	}
	var m decisionModel
	if err := s.db.WithContext(ctx).Where("decision_id = ?", strings.TrimSpace(id)).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fusion.FusionDecision{}, false, nil
		}
		return fusion.FusionDecision{}, false, err
	}
	d, err := decisionModelToRecord(m)
	if err != nil {
		return fusion.FusionDecision{}, false, err
	}
	return d, true, nil
}

// ListDecisions 按时间倒序分页。
func (s *GormStore) ListDecisions(ctx context.Context, q DecisionQuery) ([]fusion.FusionDecision, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store 未初始化")
	}
	limit := q.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	var rows []decisionModel
	if err := s.filtered(ctx, q).
		Order("decided_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]fusion.FusionDecision, 0, len(rows))
	for _, m := range rows {
		d, err := decisionModelToRecord(m)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *GormStore) CountDecisions(ctx context.Context, q DecisionQuery) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("gorm store 未初始化")
	}
	var total int64
	if err := s.filtered(ctx, q).Count(&total).Error; err != nil {
		return 0, err
	}
	return int(total), nil
}

func (s *GormStore) filtered(ctx context.Context, q DecisionQuery) *gorm.DB {
	query := s.db.WithContext(ctx).Model(&decisionModel{})
	if sym := strings.ToUpper(strings.TrimSpace(q.Symbol)); sym != "" {
		query = query.Where("UPPER(symbol) = ?", sym)
	}
	if cmd := strings.ToUpper(strings.TrimSpace(string(q.Command))); cmd != "" {
		query = query.Where("final_command = ?", cmd)
	}
	return query
}

func newDecisionModel(d fusion.FusionDecision, now time.Time) (decisionModel, error) {
	reasons, err := json.Marshal(d.Reasons)
	if err != nil {
		return decisionModel{}, fmt.Errorf("marshal reasons: %w", err)
	}
	metrics, err := json.Marshal(d.Metrics)
	if err != nil {
		return decisionModel{}, fmt.Errorf("marshal metrics: %w", err)
	}
	sources, err := json.Marshal(d.Sources)
	if err != nil {
		return decisionModel{}, fmt.Errorf("marshal sources: %w", err)
	}
	return decisionModel{
		DecisionID:     d.ID,
		Sequence:       d.Sequence,
		Symbol:         strings.ToUpper(strings.TrimSpace(d.Symbol)),
		Direction:      string(d.Direction),
		FinalCommand:   string(d.FinalCommand),
		FinalSize:      d.FinalSize,
		OrderType:      string(d.OrderType),
		DelayMs:        d.DelayMs,
		HarmonyScore:   d.HarmonyScore,
		OverallHarmony: d.Metrics.Harmony.OverallHarmony,
		Confidence:     d.Confidence,
		HasConflict:    d.Metrics.Harmony.HasConflict,
		ConflictType:   string(d.Metrics.Harmony.ConflictType),
		ReasonsJSON:    datatypes.JSON(reasons),
		MetricsJSON:    datatypes.JSON(metrics),
		SourcesJSON:    datatypes.JSON(sources),
		DecidedAtNanos: d.Timestamp.UnixNano(),
		CreatedAtUnix:  now.UnixMilli(),
	}, nil
}

func decisionModelToRecord(m decisionModel) (fusion.FusionDecision, error) {
	d := fusion.FusionDecision{
		ID:           m.DecisionID,
		Sequence:     m.Sequence,
		Symbol:       m.Symbol,
		Direction:    fusion.Direction(m.Direction),
		FinalCommand: fusion.Command(m.FinalCommand),
		FinalSize:    m.FinalSize,
		OrderType:    fusion.OrderType(m.OrderType),
		DelayMs:      m.DelayMs,
		HarmonyScore: m.HarmonyScore,
		Confidence:   m.Confidence,
		Timestamp:    time.Unix(0, m.DecidedAtNanos).UTC(),
	}
	if len(m.ReasonsJSON) > 0 {
		if err := json.Unmarshal(m.ReasonsJSON, &d.Reasons); err != nil {
			return d, fmt.Errorf("decode reasons %s: %w", m.DecisionID, err)
		}
	}
	if len(m.MetricsJSON) > 0 {
		if err := json.Unmarshal(m.MetricsJSON, &d.Metrics); err != nil {
			return d, fmt.Errorf("decode metrics %s: %w", m.DecisionID, err)
		}
	}
	if len(m.SourcesJSON) > 0 {
		if err := json.Unmarshal(m.SourcesJSON, &d.Sources); err != nil {
			return d, fmt.Errorf("decode sources %s: %w", m.DecisionID, err)
		}
	}
	return d, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
