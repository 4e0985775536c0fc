package models

import (
	"strconv"
	"time"
)

// OTP is the single live challenge of a user. A new request replaces it.
type OTP struct {
	ID           int64     `json:"id" dynamodbav:"id"`
	UserID       int64     `json:"user_id" dynamodbav:"user_id"`
	MobileNumber string    `json:"mobile_number" dynamodbav:"mobile_number"`
	Code         string    `json:"otp" dynamodbav:"otp"`
	ExpiresAt    time.Time `json:"expiry_time" dynamodbav:"expiry_time"`
	CreatedAt    time.Time `json:"created_at" dynamodbav:"created_at"`
}

func (o *OTP) GetPK() string {
	return "OTP#" + strconv.FormatInt(o.UserID, 10)
}

func (o *OTP) GetSK() string {
	return "METADATA"
}
