package tenancy

import "time"

// Board is a tenant-scoped board row.
type Board struct {
	ID        int64     `json:"id"`
	OrgID     string    `json:"org_id"`
	Title     string    `json:"title"`
	CreatedBy *int64    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// List is a column on a board.
type List struct {
	ID        int64     `json:"id"`
	OrgID     string    `json:"org_id"`
	BoardID   int64     `json:"board_id"`
	Title     string    `json:"title"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Card is a task on a list.
type Card struct {
	ID          int64     `json:"id"`
	OrgID       string    `json:"org_id"`
	BoardID     int64     `json:"board_id"`
	ListID      int64     `json:"list_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Position    int       `json:"position"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Attachment is a file attached to a card. Uploaded flips to true only after
// the bytes landed in object storage.
type Attachment struct {
	ID        int64     `json:"id"`
	OrgID     string    `json:"org_id"`
	BoardID   int64     `json:"board_id"`
	CardID    int64     `json:"card_id"`
	FileName  string    `json:"file_name"`
	ObjectKey string    `json:"object_key,omitempty"`
	SizeBytes int64     `json:"size_bytes"`
	Uploaded  bool      `json:"uploaded"`
	CreatedAt time.Time `json:"created_at"`
}
