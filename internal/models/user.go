package models

import (
	"strconv"
	"time"
)

type User struct {
	ID           int64     `json:"userId" dynamodbav:"user_id"`
	MobileNumber string    `json:"mobileNumber" dynamodbav:"mobile_number"`
	CreatedAt    time.Time `json:"createdAt" dynamodbav:"created_at"`
}

func (u *User) GetPK() string {
	return "USER#" + u.MobileNumber
}

func (u *User) GetSK() string {
	return "METADATA"
}

// Subject is the user id as it appears in the token's sub claim.
func (u *User) Subject() string {
	return strconv.FormatInt(u.ID, 10)
}
