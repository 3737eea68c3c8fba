package domain

import "time"

// MaxTitleLength bounds a note title, counted in code points.
const MaxTitleLength = 255

type Note struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
