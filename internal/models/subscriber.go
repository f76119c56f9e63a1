package models

import (
	"time"

	"github.com/google/uuid"
)

type Subscriber struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	Username     string    `json:"username" db:"username"`
	SubscribedAt time.Time `json:"subscribed_at" db:"subscribed_at"`
}

// SubscriptionRequest is the raw form body of POST /subscriptions. Nothing in
// it has been validated yet.
type SubscriptionRequest struct {
	Email string `form:"email"`
	Name  string `form:"name"`
}

func NewSubscriber(email, username string) *Subscriber {
	return &Subscriber{
		ID:           uuid.New(),
		Email:        email,
		Username:     username,
		SubscribedAt: time.Now().UTC(),
	}
}
