package dto

type LoginRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}
