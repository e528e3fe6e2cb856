package directory

import "time"

// User is a staff profile. Rows are owned by the external profile system;
// this service only writes the presence columns.
type User struct {
	UID             string     `gorm:"primaryKey;type:varchar(128)" json:"uid"`
	Name            string     `gorm:"type:varchar(128);index;not null" json:"name"`
	Role            string     `gorm:"type:varchar(64)" json:"role"`
	Department      string     `gorm:"type:varchar(64);index" json:"department"`
	Email           string     `gorm:"type:varchar(255)" json:"email"`
	ProfileImageURL *string    `gorm:"type:varchar(512)" json:"profileImageUrl,omitempty"`
	IsOnline        bool       `gorm:"not null;default:false" json:"isOnline"`
	IsTyping        bool       `gorm:"not null;default:false" json:"isTyping"`
	LastSeen        *time.Time `json:"lastSeen,omitempty"`
}

func (User) TableName() string { return "users" }
