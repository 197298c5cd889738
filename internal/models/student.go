package models

import (
	"strings"
	"time"
)

// Student represents a course member that rates and is rated by group mates.
type Student struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CourseID  uint      `gorm:"not null;index" json:"course_id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Email     string    `gorm:"size:255;not null" json:"email"`
	Group     *string   `gorm:"column:group_name;size:64;index" json:"group"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GroupName returns the trimmed group value, or an empty string when unassigned.
func (s Student) GroupName() string {
	if s.Group == nil {
		return ""
	}
	return strings.TrimSpace(*s.Group)
}
