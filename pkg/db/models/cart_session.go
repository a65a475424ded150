package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/cartrecovery/pkg/enums"
)

// LiveIdentityIndex is the partial unique index enforcing one live session per identity.
const LiveIdentityIndex = "ux_cart_sessions_live_identity"

// CartSession is the persisted form of a tracked cart session.
type CartSession struct {
	ID            uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	Identity      string                 `gorm:"column:identity;not null;index:idx_cart_sessions_identity;uniqueIndex:ux_cart_sessions_live_identity,where:state <> 'recovered' AND state <> 'expired'"`
	DisplayName   string                 `gorm:"column:display_name;not null;default:''"`
	ContentHash   string                 `gorm:"column:content_hash;not null"`
	State         enums.CartSessionState `gorm:"column:state;type:text;not null;index:idx_cart_sessions_state"`
	TotalValue    int64                  `gorm:"column:total_value;not null;default:0"`
	CreatedAt     time.Time              `gorm:"column:created_at;not null"`
	LastUpdatedAt time.Time              `gorm:"column:last_updated_at;not null"`
	AbandonedAt   *time.Time             `gorm:"column:abandoned_at"`
	RecoveredAt   *time.Time             `gorm:"column:recovered_at"`
	ExpiredAt     *time.Time             `gorm:"column:expired_at"`
	Items         []CartSessionItem      `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
}

func (CartSession) TableName() string { return "cart_sessions" }

// CartSessionItem is one normalized line item of a cart session.
type CartSessionItem struct {
	SessionID uuid.UUID `gorm:"column:session_id;type:uuid;primaryKey"`
	ProductID string    `gorm:"column:product_id;primaryKey"`
	Position  int       `gorm:"column:position;not null"`
	Name      string    `gorm:"column:name;not null;default:''"`
	UnitPrice int64     `gorm:"column:unit_price;not null"`
	Quantity  int       `gorm:"column:quantity;not null"`
}

func (CartSessionItem) TableName() string { return "cart_session_items" }
