package walletstatedb

import (
	"gorm.io/gorm"
)

// SQLiteMetadata stores one wallet key and its JSON encoded value
type SQLiteMetadata struct {
	gorm.Model
	Key   string `gorm:"uniqueIndex"`
	Value string
}
