package tasklog

import (
	"encoding/json"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// taskRow is the persisted form of a Record. The full document is kept as
// JSON next to the queryable columns.
type taskRow struct {
	ID         string `gorm:"primaryKey;column:id"`
	Goal       string `gorm:"column:goal"`
	Status     string `gorm:"column:status;index"`
	StartedAt  time.Time
	FinishedAt time.Time
	Steps      int
	Document   []byte `gorm:"column:document"`
}

func (taskRow) TableName() string { return "tasks" }

// History stores finished task records in a local SQLite database.
type History struct {
	db     *gorm.DB
	logger *zap.Logger
}

// OpenHistory opens (and migrates) the task history database at path.
func OpenHistory(path string, logger *zap.Logger) (*History, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&taskRow{}); err != nil {
		return nil, err
	}
	return &History{
		db:     db,
		logger: logger.With(zap.String("component", "task_history")),
	}, nil
}

// Append persists one finished task record.
func (h *History) Append(rec Record) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	row := taskRow{
		ID:         rec.TaskID,
		Goal:       rec.Goal,
		Status:     string(rec.Status),
		StartedAt:  rec.StartedAt,
		FinishedAt: rec.FinishedAt,
		Steps:      len(rec.Steps),
		Document:   doc,
	}
	return h.db.Save(&row).Error
}

// Recent returns up to limit records, newest first.
func (h *History) Recent(limit int) ([]Record, error) {
	var rows []taskRow
	err := h.db.Order("started_at DESC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		var rec Record
		if err := json.Unmarshal(row.Document, &rec); err != nil {
			h.logger.Warn("undecodable task document",
				zap.String("task_id", row.ID), zap.Error(err))
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Get returns one record by task id, or gorm.ErrRecordNotFound.
func (h *History) Get(taskID string) (Record, error) {
	var row taskRow
	if err := h.db.First(&row, "id = ?", taskID).Error; err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(row.Document, &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// Close releases the underlying database handle.
func (h *History) Close() error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
