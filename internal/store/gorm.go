package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type roomRow struct {
	Code       string `gorm:"primaryKey;size:6"`
	Name       string
	HostID     string
	MaxPlayers int
	Public     bool
	Difficulty string
	Phase      string `gorm:"index"`
	Members    int
	UpdatedAt  time.Time
}

func (roomRow) TableName() string { return "rooms" }

type sessionRow struct {
	ID        uint   `gorm:"primaryKey"`
	RoomCode  string `gorm:"index"`
	Phase     string `gorm:"index"`
	Version   int
	Snapshot  []byte
	UpdatedAt time.Time
}

func (sessionRow) TableName() string { return "sessions" }

type auditRow struct {
	ID       uint   `gorm:"primaryKey"`
	RoomCode string `gorm:"index"`
	Kind     string
	Actor    string
	Detail   string
	At       time.Time
}

func (auditRow) TableName() string { return "audit_log" }

type GormStore struct {
	db *gorm.DB
}

func OpenPostgres(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&roomRow{}, &sessionRow{}, &auditRow{}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) UpsertRoom(ctx context.Context, rec RoomRecord) error {
	row := roomRow{
		Code:       rec.Code,
		Name:       rec.Name,
		HostID:     rec.HostID,
		MaxPlayers: rec.MaxPlayers,
		Public:     rec.Public,
		Difficulty: rec.Difficulty,
		Phase:      rec.Phase,
		Members:    rec.Members,
		UpdatedAt:  rec.UpdatedAt,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		UpdateAll: true,
	}).Create(&row).Error
}

func (s *GormStore) SaveSession(ctx context.Context, rec SessionRecord) error {
	row := sessionRow{
		RoomCode:  rec.RoomCode,
		Phase:     rec.Phase,
		Version:   rec.Version,
		Snapshot:  rec.Snapshot,
		UpdatedAt: rec.UpdatedAt,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *GormStore) AppendAudit(ctx context.Context, rec AuditRecord) error {
	row := auditRow{
		RoomCode: rec.RoomCode,
		Kind:     rec.Kind,
		Actor:    rec.Actor,
		Detail:   rec.Detail,
		At:       rec.At,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *GormStore) LatestOpenSession(ctx context.Context, roomCode string) (*SessionRecord, error) {
	var row sessionRow
	err := s.db.WithContext(ctx).
		Where("room_code = ? AND phase <> ?", roomCode, "VICTORY").
		Order("id DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &SessionRecord{
		RoomCode:  row.RoomCode,
		Phase:     row.Phase,
		Version:   row.Version,
		Snapshot:  row.Snapshot,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
