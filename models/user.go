package models

import "time"

// User is an alumni account. Only the profile fields shown next to chat
// messages are kept here.
type User struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)" json:"id" bson:"_id"`
	Name         string    `gorm:"type:varchar(50);not null" json:"name" bson:"name"`
	Email        string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email" bson:"email"`
	Password     string    `gorm:"type:varchar(255);not null" json:"-" bson:"password"`
	ProfileImage string    `gorm:"type:varchar(512)" json:"profile_image" bson:"profile_image"`
	Batch        string    `gorm:"type:varchar(16)" json:"batch" bson:"batch"`
	Branch       string    `gorm:"type:varchar(50)" json:"branch" bson:"branch"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" bson:"updated_at"`
}

// UserSummary is the public projection of a user embedded in chat payloads.
type UserSummary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ProfileImage string `json:"profile_image"`
	Batch        string `json:"batch,omitempty"`
	Branch       string `json:"branch,omitempty"`
}

// Summary projects the user onto its public profile fields.
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:           u.ID,
		Name:         u.Name,
		ProfileImage: u.ProfileImage,
		Batch:        u.Batch,
		Branch:       u.Branch,
	}
}
