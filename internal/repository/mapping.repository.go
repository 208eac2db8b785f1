package repository

import (
	"context"
	"errors"
	"time"

	"github.com/tickethub/whatsapp-bridge/internal/model"
	"github.com/tickethub/whatsapp-bridge/pkg/pg"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a mapping does not exist.
	ErrNotFound = errors.New("mapping not found")
)

type MappingRepository struct {
	*pg.DB
}

func NewMappingRepository(db *pg.DB) *MappingRepository {
	return &MappingRepository{
		db,
	}
}

// FindOpen returns the single open mapping for a phone, or nil when the
// phone has none. The phone must already be canonical.
func (r *MappingRepository) FindOpen(ctx context.Context, phone string) (*model.Mapping, error) {
	var entity MappingEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("phone = ? AND status = ?", phone, string(model.MappingStatusOpen)).
		Order("updated_at DESC").
		First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toMappingModel(&entity), nil
}

// FindActive returns every open or inactive mapping for a phone, oldest
// first. These are the tickets a customer can still switch between.
func (r *MappingRepository) FindActive(ctx context.Context, phone string) ([]*model.Mapping, error) {
	var entities []*MappingEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("phone = ? AND status IN ?", phone,
			[]string{string(model.MappingStatusOpen), string(model.MappingStatusInactive)}).
		Order("created_at ASC").
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return toMappingModels(entities), nil
}

// FindByTicketNumber returns the phone's mapping for a ticket number in any
// status, or nil when this phone never touched that ticket.
func (r *MappingRepository) FindByTicketNumber(ctx context.Context, phone, ticketNumber string) (*model.Mapping, error) {
	var entity MappingEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("phone = ? AND ticket_number = ?", phone, ticketNumber).
		Order("updated_at DESC").
		First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toMappingModel(&entity), nil
}

// FindByTicketID returns the newest mapping bound to a backend ticket,
// regardless of phone, or nil. Used by the agent-reply relay.
func (r *MappingRepository) FindByTicketID(ctx context.Context, ticketID int64) (*model.Mapping, error) {
	var entity MappingEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("ticket_id = ?", ticketID).
		Order("updated_at DESC").
		First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toMappingModel(&entity), nil
}

func (r *MappingRepository) Create(ctx context.Context, m *model.Mapping) (*model.Mapping, error) {
	entity := toMappingEntity(m)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toMappingModel(entity), nil
}

func (r *MappingRepository) UpdateStatus(ctx context.Context, id int64, status model.MappingStatus) error {
	res := r.Write(ctx).WithContext(ctx).
		Model(&MappingEntity{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     string(status),
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Touch bumps updated_at so the open mapping reflects the latest inbound
// activity.
func (r *MappingRepository) Touch(ctx context.Context, id int64) error {
	return r.Write(ctx).WithContext(ctx).
		Model(&MappingEntity{}).
		Where("id = ?", id).
		Update("updated_at", time.Now()).Error
}

// SwitchActiveTicket makes the target mapping the phone's single open one.
// Both steps run in one transaction so a concurrent reader never observes
// two open mappings for the phone.
func (r *MappingRepository) SwitchActiveTicket(ctx context.Context, phone string, targetID int64) error {
	return r.WithinTransaction(ctx, func(ctx context.Context) error {
		err := r.Write(ctx).WithContext(ctx).
			Model(&MappingEntity{}).
			Where("phone = ? AND status = ?", phone, string(model.MappingStatusOpen)).
			Updates(map[string]interface{}{
				"status":     string(model.MappingStatusInactive),
				"updated_at": time.Now(),
			}).Error
		if err != nil {
			return err
		}

		res := r.Write(ctx).WithContext(ctx).
			Model(&MappingEntity{}).
			Where("id = ? AND phone = ?", targetID, phone).
			Updates(map[string]interface{}{
				"status":     string(model.MappingStatusOpen),
				"updated_at": time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// LogMessage appends an audit entry to the mapping's message log.
func (r *MappingRepository) LogMessage(ctx context.Context, mappingID int64, req model.LogMessageRequest) (*model.MessageLogEntry, error) {
	entity := &MessageLogEntity{
		MappingID: mappingID,
		MessageID: req.MessageID,
		Direction: string(req.Direction),
		Content:   req.Content,
		Status:    req.Status,
	}

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toMessageLogModel(entity), nil
}

func (r *MappingRepository) GetLog(ctx context.Context, mappingID int64) ([]*model.MessageLogEntry, error) {
	var entities []*MessageLogEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("mapping_id = ?", mappingID).
		Order("created_at ASC").
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return toMessageLogModels(entities), nil
}

// Delete removes a single mapping together with its log entries.
func (r *MappingRepository) Delete(ctx context.Context, id int64) error {
	return r.WithinTransaction(ctx, func(ctx context.Context) error {
		err := r.Write(ctx).WithContext(ctx).
			Where("mapping_id = ?", id).
			Delete(&MessageLogEntity{}).Error
		if err != nil {
			return err
		}

		res := r.Write(ctx).WithContext(ctx).
			Where("id = ?", id).
			Delete(&MappingEntity{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// DeleteByTicketID removes every mapping bound to a ticket together with its
// log entries. Used when the backend deletes a ticket outright.
func (r *MappingRepository) DeleteByTicketID(ctx context.Context, ticketID int64) error {
	return r.WithinTransaction(ctx, func(ctx context.Context) error {
		var ids []int64
		err := r.Write(ctx).WithContext(ctx).
			Model(&MappingEntity{}).
			Where("ticket_id = ?", ticketID).
			Pluck("id", &ids).Error
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		err = r.Write(ctx).WithContext(ctx).
			Where("mapping_id IN ?", ids).
			Delete(&MessageLogEntity{}).Error
		if err != nil {
			return err
		}

		return r.Write(ctx).WithContext(ctx).
			Where("id IN ?", ids).
			Delete(&MappingEntity{}).Error
	})
}

// ListActive returns every open and inactive mapping across all phones. The
// cleanup sweep walks this set and closes mappings whose backend ticket no
// longer exists; inactive mappings orphan the same way open ones do.
func (r *MappingRepository) ListActive(ctx context.Context) ([]*model.Mapping, error) {
	var entities []*MappingEntity
	err := r.Read(ctx).WithContext(ctx).
		Where("status IN ?",
			[]string{string(model.MappingStatusOpen), string(model.MappingStatusInactive)}).
		Order("updated_at ASC").
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return toMappingModels(entities), nil
}
