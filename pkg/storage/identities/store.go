package identities

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"jirahooks/pkg/storage"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Config mirrors the storage configuration for the identities table.
type Config struct {
	Driver      string
	DSN         string
	Dialect     string
	Table       string
	AutoMigrate bool
}

// Store implements storage.IdentityStore on top of GORM.
type Store struct {
	db    *gorm.DB
	table string
}

var _ storage.IdentityStore = (*Store)(nil)

type row struct {
	Email       string    `gorm:"column:email;size:320;not null;uniqueIndex:idx_identity_email_user"`
	Username    string    `gorm:"column:username;size:255;not null;uniqueIndex:idx_identity_email_user"`
	UserKey     string    `gorm:"column:user_key;size:255"`
	DisplayName string    `gorm:"column:display_name;size:255"`
	Priority    int       `gorm:"column:priority;not null;default:0"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Open creates a GORM-backed identities store.
func Open(cfg Config) (*Store, error) {
	if cfg.Driver == "" && cfg.Dialect == "" {
		return nil, errors.New("storage driver or dialect is required")
	}
	if cfg.DSN == "" {
		return nil, errors.New("storage dsn is required")
	}
	driver := normalizeDriver(cfg.Driver)
	if driver == "" {
		driver = normalizeDriver(cfg.Dialect)
	}
	if driver == "" {
		return nil, errors.New("unsupported storage driver")
	}

	gormDB, err := openGorm(driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	table := cfg.Table
	if table == "" {
		table = "jirahooks_identities"
	}
	store := &Store{
		db:    gormDB,
		table: table,
	}
	if cfg.AutoMigrate {
		if err := store.migrate(); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// Close closes the underlying DB connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// UpsertIdentity inserts or updates a mapping. Emails are stored lowercased.
func (s *Store) UpsertIdentity(ctx context.Context, record storage.IdentityRecord) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	record.Email = normalizeEmail(record.Email)
	if record.Email == "" {
		return errors.New("email is required")
	}
	if strings.TrimSpace(record.Username) == "" {
		return errors.New("username is required")
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	data := toRow(record)
	return s.tableDB().
		WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "email"}, {Name: "username"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_key", "display_name", "priority", "updated_at"}),
		}).
		Create(&data).Error
}

// FindIdentities returns the users mapped to email, best first.
func (s *Store) FindIdentities(ctx context.Context, email string) ([]storage.IdentityRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	var data []row
	err := s.tableDB().
		WithContext(ctx).
		Where("email = ?", normalizeEmail(email)).
		Order("priority asc").
		Order("created_at asc").
		Order("username asc").
		Find(&data).Error
	if err != nil {
		return nil, err
	}
	return fromRows(data), nil
}

// ListIdentities lists every mapping ordered by email.
func (s *Store) ListIdentities(ctx context.Context) ([]storage.IdentityRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	var data []row
	err := s.tableDB().
		WithContext(ctx).
		Order("email asc").
		Order("priority asc").
		Order("username asc").
		Find(&data).Error
	if err != nil {
		return nil, err
	}
	return fromRows(data), nil
}

// DeleteIdentity removes one mapping. Deleting a missing mapping is not an error.
func (s *Store) DeleteIdentity(ctx context.Context, email, username string) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	return s.tableDB().
		WithContext(ctx).
		Where("email = ? AND username = ?", normalizeEmail(email), username).
		Delete(&row{}).Error
}

func (s *Store) migrate() error {
	return s.tableDB().AutoMigrate(&row{})
}

func (s *Store) tableDB() *gorm.DB {
	return s.db.Table(s.table)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func toRow(record storage.IdentityRecord) row {
	return row{
		Email:       record.Email,
		Username:    record.Username,
		UserKey:     record.UserKey,
		DisplayName: record.DisplayName,
		Priority:    record.Priority,
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}
}

func fromRows(data []row) []storage.IdentityRecord {
	records := make([]storage.IdentityRecord, 0, len(data))
	for _, item := range data {
		records = append(records, storage.IdentityRecord{
			Email:       item.Email,
			Username:    item.Username,
			UserKey:     item.UserKey,
			DisplayName: item.DisplayName,
			Priority:    item.Priority,
			CreatedAt:   item.CreatedAt,
			UpdatedAt:   item.UpdatedAt,
		})
	}
	return records
}

func normalizeDriver(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	switch value {
	case "postgres", "postgresql", "pgx":
		return "postgres"
	case "mysql":
		return "mysql"
	case "sqlite", "sqlite3":
		return "sqlite"
	default:
		return ""
	}
}

func openGorm(driver, dsn string) (*gorm.DB, error) {
	switch driver {
	case "postgres":
		return gorm.Open(postgres.Open(dsn), &gorm.Config{})
	case "mysql":
		return gorm.Open(mysql.Open(dsn), &gorm.Config{})
	case "sqlite":
		return gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", driver)
	}
}
