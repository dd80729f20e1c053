package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// User is owned by the profile subsystem. The messaging core only reads the follow
// graph and privacy flag, and writes IsOnline and LastActive on connect/disconnect.
type User struct {
	ID          string         `gorm:"primaryKey" json:"id" bson:"_id"`
	Username    string         `gorm:"uniqueIndex" json:"username" bson:"username"`
	DisplayName string         `json:"displayName" bson:"displayName"`
	Avatar      string         `json:"avatar" bson:"avatar"`
	IsPrivate   bool           `json:"isPrivate" bson:"isPrivate"`
	Followers   pq.StringArray `gorm:"type:text[]" json:"-" bson:"followers"`
	Following   pq.StringArray `gorm:"type:text[]" json:"-" bson:"following"`
	IsOnline    bool           `json:"isOnline" bson:"isOnline"`
	LastActive  time.Time      `json:"lastActive" bson:"lastActive"`
}

// BeforeCreate generates a UUID for the user if ID is not set yet.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}

// HasFollower reports whether userID follows u.
func (u *User) HasFollower(userID string) bool {
	return contains(u.Followers, userID)
}

// Follows reports whether u follows userID.
func (u *User) Follows(userID string) bool {
	return contains(u.Following, userID)
}

// Contacts returns followers ∪ following, deduplicated, in first-seen order.
func (u *User) Contacts() []string {
	seen := make(map[string]struct{}, len(u.Followers)+len(u.Following))
	out := make([]string, 0, len(u.Followers)+len(u.Following))
	for _, list := range [][]string{u.Followers, u.Following} {
		for _, id := range list {
			if id == "" || id == u.ID {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// UserSummary is the display projection of a user embedded in conversations and events.
type UserSummary struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"displayName"`
	Avatar      string    `json:"avatar"`
	IsOnline    bool      `json:"isOnline"`
	LastActive  time.Time `json:"lastActive"`
}

func (u *User) Summary() UserSummary {
	if u == nil {
		return UserSummary{}
	}
	return UserSummary{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Avatar:      u.Avatar,
		IsOnline:    u.IsOnline,
		LastActive:  u.LastActive,
	}
}

func contains(list []string, id string) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}
