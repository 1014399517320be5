package session

import (
	"fmt"
	"strings"
)

// Passenger holds the traveler details a provider needs to ticket or check in.
type Passenger struct {
	FirstName      string `json:"first_name" validate:"required,max=100"`
	LastName       string `json:"last_name" validate:"required,max=100"`
	DateOfBirth    string `json:"date_of_birth" validate:"required,datetime=2006-01-02"`
	Email          string `json:"email,omitempty" validate:"omitempty,email"`
	Phone          string `json:"phone,omitempty" validate:"omitempty,e164"`
	DocumentNumber string `json:"document_number,omitempty" validate:"omitempty,alphanum,max=20"`
}

// FullName returns "First Last".
func (p Passenger) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

func (p Passenger) checkRequired() error {
	if strings.TrimSpace(p.FirstName) == "" || strings.TrimSpace(p.LastName) == "" {
		return fmt.Errorf("passenger name is required")
	}
	if strings.TrimSpace(p.DateOfBirth) == "" {
		return fmt.Errorf("passenger %s date of birth is required", p.FullName())
	}
	return nil
}
