package models

import (
	"strings"

	"gorm.io/gorm"
)

// Customer is a salon customer. Mobile holds the local 10-digit number.
type Customer struct {
	gorm.Model
	Name          string  `json:"name" gorm:"size:100;not null"`
	Email         string  `json:"email" gorm:"size:120"`
	Mobile        string  `json:"mobile" gorm:"size:20;not null;index"`
	Address       string  `json:"address"`
	LoyaltyPoints int     `json:"loyalty_points" gorm:"default:0"`
	TotalSpent    float64 `json:"total_spent" gorm:"default:0"`
	IsArchived    bool    `json:"is_archived" gorm:"default:false"`
}

// BeforeSave trims user supplied fields.
func (c *Customer) BeforeSave(tx *gorm.DB) error {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.TrimSpace(c.Email)
	return nil
}

// Staff is a salon staff member who can be booked.
type Staff struct {
	gorm.Model
	Name           string `json:"name" gorm:"size:100;not null"`
	Email          string `json:"email" gorm:"size:120"`
	Mobile         string `json:"mobile" gorm:"size:20;not null"`
	Specialization string `json:"specialization" gorm:"size:200"`
	IsActive       bool   `json:"is_active" gorm:"default:true;index"`
}

// TableName matches the singular table used by the salon admin.
func (Staff) TableName() string {
	return "staff"
}

// Service is a bookable salon service.
type Service struct {
	gorm.Model
	Name        string  `json:"name" gorm:"size:100;not null"`
	Description string  `json:"description"`
	Price       float64 `json:"price" gorm:"not null"`
	Duration    int     `json:"duration" gorm:"not null"` // minutes
	IsActive    bool    `json:"is_active" gorm:"default:true;index"`
}
