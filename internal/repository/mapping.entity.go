package repository

import (
	"time"

	"github.com/tickethub/whatsapp-bridge/internal/model"
)

type MappingEntity struct {
	ID             int64     `db:"id"              gorm:"primaryKey;autoIncrement;column:id"`
	Phone          string    `db:"phone"           gorm:"column:phone;not null;index:idx_phone_status"`
	PhoneFormatted string    `db:"phone_formatted" gorm:"column:phone_formatted"`
	ContactName    string    `db:"contact_name"    gorm:"column:contact_name"`
	TicketID       int64     `db:"ticket_id"       gorm:"column:ticket_id;not null;index"`
	TicketNumber   string    `db:"ticket_number"   gorm:"column:ticket_number;not null"`
	UserID         *int64    `db:"user_id"         gorm:"column:user_id"`
	Status         string    `db:"status"          gorm:"column:status;not null;default:open;index:idx_phone_status"`
	CreatedAt      time.Time `db:"created_at"      gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `db:"updated_at"      gorm:"column:updated_at;autoUpdateTime"`

	Log []*MessageLogEntity `gorm:"foreignKey:MappingID"`
}

func (MappingEntity) TableName() string {
	return "whatsapp_mapping"
}

func toMappingEntity(m *model.Mapping) *MappingEntity {
	if m == nil {
		return nil
	}
	return &MappingEntity{
		ID:             m.ID,
		Phone:          m.Phone,
		PhoneFormatted: m.PhoneFormatted,
		ContactName:    m.ContactName,
		TicketID:       m.TicketID,
		TicketNumber:   m.TicketNumber,
		UserID:         m.UserID,
		Status:         string(m.Status),
		CreatedAt:      m.Created,
		UpdatedAt:      m.Updated,
	}
}

func toMappingModel(e *MappingEntity) *model.Mapping {
	if e == nil {
		return nil
	}
	return &model.Mapping{
		ID:             e.ID,
		Phone:          e.Phone,
		PhoneFormatted: e.PhoneFormatted,
		ContactName:    e.ContactName,
		TicketID:       e.TicketID,
		TicketNumber:   e.TicketNumber,
		UserID:         e.UserID,
		Status:         model.MappingStatus(e.Status),
		Created:        e.CreatedAt,
		Updated:        e.UpdatedAt,
	}
}

func toMappingModels(entities []*MappingEntity) []*model.Mapping {
	if entities == nil {
		return nil
	}
	models := make([]*model.Mapping, len(entities))
	for i, e := range entities {
		models[i] = toMappingModel(e)
	}
	return models
}

type MessageLogEntity struct {
	ID        int64     `db:"id"         gorm:"primaryKey;autoIncrement;column:id"`
	MappingID int64     `db:"mapping_id" gorm:"column:mapping_id;not null;index"`
	MessageID *string   `db:"message_id" gorm:"column:message_id"`
	Direction string    `db:"direction"  gorm:"column:direction;not null"`
	Content   string    `db:"content"    gorm:"column:content;not null"`
	Status    string    `db:"status"     gorm:"column:status;not null"`
	CreatedAt time.Time `db:"created_at" gorm:"column:created_at;autoCreateTime"`
}

func (MessageLogEntity) TableName() string {
	return "whatsapp_message_log"
}

func toMessageLogModel(e *MessageLogEntity) *model.MessageLogEntry {
	if e == nil {
		return nil
	}
	return &model.MessageLogEntry{
		ID:        e.ID,
		MappingID: e.MappingID,
		MessageID: e.MessageID,
		Direction: model.Direction(e.Direction),
		Content:   e.Content,
		Status:    e.Status,
		Created:   e.CreatedAt,
	}
}

func toMessageLogModels(entities []*MessageLogEntity) []*model.MessageLogEntry {
	if entities == nil {
		return nil
	}
	models := make([]*model.MessageLogEntry, len(entities))
	for i, e := range entities {
		models[i] = toMessageLogModel(e)
	}
	return models
}
