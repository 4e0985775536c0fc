package models

// TokenPayload is the identity carried by a session token.
type TokenPayload struct {
	UserID       int64  `json:"user_id"`
	MobileNumber string `json:"mobile_number"`
}
