package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Type identifies a marketplace by its canonical lowercase tag.
type Type string

const (
	TypeEbay                Type = "ebay"
	TypePoshmark            Type = "poshmark"
	TypeMercari             Type = "mercari"
	TypeEtsy                Type = "etsy"
	TypeDepop               Type = "depop"
	TypeGrailed             Type = "grailed"
	TypeFacebookMarketplace Type = "facebook_marketplace"

	// Recognized tags without pipeline support. Events for these are
	// rejected with an explicit unsupported result, never best-effort parsed.
	TypeCustom              Type = "custom"
	TypeAmazon              Type = "amazon"
	TypeShopify             Type = "shopify"
	TypeTradesy             Type = "tradesy"
	TypeTheRealReal         Type = "the_realreal"
	TypeVestiaireCollective Type = "vestiaire_collective"
)

var knownTypes = map[Type]bool{
	TypeEbay:                true,
	TypePoshmark:            true,
	TypeMercari:             true,
	TypeEtsy:                true,
	TypeDepop:               true,
	TypeGrailed:             true,
	TypeFacebookMarketplace: true,
	TypeCustom:              true,
	TypeAmazon:              true,
	TypeShopify:             true,
	TypeTradesy:             true,
	TypeTheRealReal:         true,
	TypeVestiaireCollective: true,
}

// ParseType normalizes a marketplace tag. Unknown tags return ErrMarketplaceUnknown.
func ParseType(value string) (Type, error) {
	tag := Type(strings.ToLower(strings.TrimSpace(value)))
	if tag == "" || !knownTypes[tag] {
		return "", ErrMarketplaceUnknown
	}
	return tag, nil
}

func (t Type) String() string { return string(t) }

const (
	DelistPreferenceAuto    = "auto"
	DelistPreferenceConfirm = "confirm"
)

// Connection holds a user's credentials for one marketplace.
type Connection struct {
	ID               snowflake.ID   `json:"id" gorm:"primaryKey"`
	UserID           snowflake.ID   `json:"user_id" gorm:"not null;index:ix_marketplace_connections_user_marketplace,priority:1"`
	Marketplace      Type           `json:"marketplace" gorm:"type:text;not null;index:ix_marketplace_connections_user_marketplace,priority:2"`
	Credentials      datatypes.JSON `json:"-" gorm:"type:jsonb;not null"`
	WebhookSecret    string         `json:"-" gorm:"type:text"`
	DelistPreference string         `json:"delist_preference" gorm:"type:text;not null;default:auto"`
	IsActive         bool           `json:"is_active" gorm:"not null;default:true;index"`
	CreatedAt        time.Time      `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time      `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	DeletedAt        gorm.DeletedAt `json:"-" gorm:"index"`
}

func (Connection) TableName() string { return "marketplace_connections" }

// RequiresConfirmation reports whether delisting jobs derived from this
// connection's sales must wait for explicit user confirmation.
func (c Connection) RequiresConfirmation() bool {
	return strings.EqualFold(strings.TrimSpace(c.DelistPreference), DelistPreferenceConfirm)
}
