package models

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

type Repository interface {
	InitializeSchema(ctx context.Context) error
	EnsureSchema(ctx context.Context) error
	AddClient(ctx context.Context, firstName, lastName, email string) (*Client, error)
	AddPhone(ctx context.Context, clientID uint, phone string) (*Phone, error)
	GetClient(ctx context.Context, id uint) (*Client, error)
	ListPhones(ctx context.Context, clientID uint) ([]Phone, error)
	UpdateClient(ctx context.Context, clientID uint, update ClientUpdate) error
	DeletePhone(ctx context.Context, clientID uint, phone string) error
	DeleteClient(ctx context.Context, clientID uint) error
	FindClients(ctx context.Context, filter ClientFilter) ([]Contact, error)
	Ping(ctx context.Context) error
	Close() error
}

type GormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// InitializeSchema drops both tables and creates them again. Every stored
// client and phone is lost.
func (r *GormRepository) InitializeSchema(ctx context.Context) error {
	migrator := r.db.WithContext(ctx).Migrator()
	// phones references clients, so it has to go first.
	if err := migrator.DropTable(&Phone{}, &Client{}); err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}
	return r.EnsureSchema(ctx)
}

// EnsureSchema creates missing tables and leaves existing rows untouched.
func (r *GormRepository) EnsureSchema(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&Client{}, &Phone{}); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

func (r *GormRepository) AddClient(ctx context.Context, firstName, lastName, email string) (*Client, error) {
	client := &Client{
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
	}
	if err := r.db.WithContext(ctx).Create(client).Error; err != nil {
		return nil, fmt.Errorf("failed to add client: %w", classify(err))
	}
	return client, nil
}

func (r *GormRepository) AddPhone(ctx context.Context, clientID uint, phone string) (*Phone, error) {
	row := &Phone{
		Phone:    &phone,
		ClientID: &clientID,
	}
	// Omit the association so gorm does not try to upsert a client.
	if err := r.db.WithContext(ctx).Omit("Client").Create(row).Error; err != nil {
		return nil, fmt.Errorf("failed to add phone: %w", classify(err))
	}
	return row, nil
}

func (r *GormRepository) GetClient(ctx context.Context, id uint) (*Client, error) {
	var client Client
	if err := r.db.WithContext(ctx).First(&client, "client_id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return &client, nil
}

func (r *GormRepository) ListPhones(ctx context.Context, clientID uint) ([]Phone, error) {
	var phones []Phone
	err := r.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("phone_id").
		Find(&phones).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list phones: %w", err)
	}
	return phones, nil
}

// UpdateClient issues one UPDATE per provided field. A phone value replaces
// the number on every phone row the client owns, not a single one. Unknown
// ids are not an error.
func (r *GormRepository) UpdateClient(ctx context.Context, clientID uint, update ClientUpdate) error {
	db := r.db.WithContext(ctx)

	columns := []struct {
		name  string
		value *string
	}{
		{"first_name", update.FirstName},
		{"last_name", update.LastName},
		{"email", update.Email},
	}
	for _, col := range columns {
		if !present(col.value) {
			continue
		}
		err := db.Model(&Client{}).
			Where("client_id = ?", clientID).
			Update(col.name, *col.value).Error
		if err != nil {
			return fmt.Errorf("failed to update client %s: %w", col.name, classify(err))
		}
	}

	if present(update.Phone) {
		err := db.Model(&Phone{}).
			Where("client_id = ?", clientID).
			Update("phone", *update.Phone).Error
		if err != nil {
			return fmt.Errorf("failed to update client phones: %w", classify(err))
		}
	}
	return nil
}

func (r *GormRepository) DeletePhone(ctx context.Context, clientID uint, phone string) error {
	err := r.db.WithContext(ctx).
		Where("client_id = ? AND phone = ?", clientID, phone).
		Delete(&Phone{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete phone: %w", err)
	}
	return nil
}

// DeleteClient removes the client's phones before the client row itself;
// the foreign key does not cascade.
func (r *GormRepository) DeleteClient(ctx context.Context, clientID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("client_id = ?", clientID).Delete(&Phone{}).Error; err != nil {
			return fmt.Errorf("failed to delete client phones: %w", err)
		}
		if err := tx.Where("client_id = ?", clientID).Delete(&Client{}).Error; err != nil {
			return fmt.Errorf("failed to delete client: %w", classify(err))
		}
		return nil
	})
}

// FindClients searches the full outer join of clients and phones. Filters
// left nil take no part in the match.
func (r *GormRepository) FindClients(ctx context.Context, filter ClientFilter) ([]Contact, error) {
	query := r.db.WithContext(ctx).
		Table("clients AS c").
		Select("c.first_name, c.last_name, c.email, p.phone").
		Joins("FULL JOIN phones AS p ON p.client_id = c.client_id")

	if cond, args := filter.where(); cond != "" {
		query = query.Where(cond, args...)
	}

	var contacts []Contact
	if err := query.Order("c.client_id, p.phone_id").Scan(&contacts).Error; err != nil {
		return nil, fmt.Errorf("failed to find clients: %w", err)
	}
	return contacts, nil
}

func (f ClientFilter) where() (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(column string, value *string) {
		if value == nil {
			return
		}
		conds = append(conds, column+" = ?")
		args = append(args, *value)
	}
	add("c.first_name", f.FirstName)
	add("c.last_name", f.LastName)
	add("c.email", f.Email)
	add("p.phone", f.Phone)

	if len(conds) == 0 {
		return "", nil
	}
	sep := " OR "
	if f.Mode == MatchAll {
		sep = " AND "
	}
	return "(" + strings.Join(conds, sep) + ")", args
}

func (r *GormRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *GormRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
