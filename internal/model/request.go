package model

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a purchase request.  Values are stored
// lower-case; NormalizeStatus maps client input onto the canonical form.
type Status string

const (
	StatusPending     Status = "pending"
	StatusNegotiation Status = "negotiation"
	StatusSourced     Status = "sourced"
	StatusListed      Status = "listed"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
)

// Statuses lists every accepted status in workflow order.
var Statuses = []Status{
	StatusPending,
	StatusNegotiation,
	StatusSourced,
	StatusListed,
	StatusCompleted,
	StatusCancelled,
}

// NormalizeStatus trims and lower-cases s and reports whether the result
// is one of the accepted statuses.
func NormalizeStatus(s string) (Status, bool) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Statuses {
		if st == known {
			return st, true
		}
	}
	return "", false
}

// MaxReferenceImages bounds how many reference images a request carries.
const MaxReferenceImages = 4

// Request is a user's purchase order for a sought item, as stored in the
// `requests` table.
//
// UnreadAdmin is raised when the owner sends a message and UnreadUser when
// the administrator does.  Each flag is cleared by its own role opening
// the thread.  Both are false on creation.
type Request struct {
	ID                 uint64    `json:"id"`
	UserID             uint64    `json:"user_id"`
	CharacterName      string    `json:"character_name"`
	Budget             uint32    `json:"budget"`
	Description        *string   `json:"description"`
	ReferenceImageURLs []string  `json:"reference_image_urls"`
	Status             Status    `json:"status"`
	EbayListingURL     *string   `json:"ebay_listing_url"`
	AdminNotes         *string   `json:"admin_notes"`
	UnreadAdmin        bool      `json:"unread_admin"`
	UnreadUser         bool      `json:"unread_user"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`

	// OwnerEmail is filled only on admin reads that join users.
	OwnerEmail string `json:"owner_email,omitempty"`
}

// Deletable reports whether the owner may still withdraw the request.
func (r Request) Deletable() bool { return r.Status == StatusPending }
