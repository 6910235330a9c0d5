package model

import "time"

// User is the public profile of an account. Password hashes never leave the
// store layer.
type User struct {
	ID         string    `json:"_id"`
	FullName   string    `json:"fullName"`
	Username   string    `json:"username"`
	Email      string    `json:"email,omitempty"`
	ProfilePic string    `json:"profilePic,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// UserRef is the subset of a profile embedded in events and chat summaries.
type UserRef struct {
	ID         string `json:"_id"`
	FullName   string `json:"fullName"`
	Username   string `json:"username"`
	ProfilePic string `json:"profilePic,omitempty"`
}

// Ref returns the embeddable subset of u.
func (u User) Ref() UserRef {
	return UserRef{
		ID:         u.ID,
		FullName:   u.FullName,
		Username:   u.Username,
		ProfilePic: u.ProfilePic,
	}
}
