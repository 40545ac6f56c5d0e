package domain

import "time"

type User struct {
	UserID       string     `json:"id" dynamodbav:"user_id"`
	Phone        *string    `json:"phone" dynamodbav:"phone"`
	Email        *string    `json:"email" dynamodbav:"email"`
	PasswordHash string     `json:"-" dynamodbav:"password_hash"`
	Verified     bool       `json:"verified" dynamodbav:"verified"`
	RefreshToken *string    `json:"-" dynamodbav:"refresh_token"`
	CreatedAt    time.Time  `json:"created" dynamodbav:"created_at"`
	UpdatedAt    time.Time  `json:"updated" dynamodbav:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty" dynamodbav:"deleted_at"`
}

type RegisterRequest struct {
	Phone    *string `json:"phone"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Password string  `json:"password" validate:"required,min=6,max=72"`
}
