package model

import "time"

// ResponseSet groups the answers of one respondent
type ResponseSet struct {
	ID        string    `json:"response_set_id" bson:"_id"`
	Name      string    `json:"name,omitempty" bson:"name,omitempty"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}
