package user

import "time"

const (
	RoleStudent = "student"
	RoleCompany = "company"
)

type User struct {
	Id        string    `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required"`
	Role     string `json:"role" validate:"required,oneof=student company"`
}
