package notes

import (
	"errors"
	"fmt"
	"strings"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidNoteID indicates that a note identifier is empty or exceeds storage bounds.
	ErrInvalidNoteID = errors.New("notes: invalid note id")
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("notes: invalid user id")
)

// NoteID represents a validated note identifier.
type NoteID string

// NewNoteID validates raw input and returns a NoteID.
func NewNoteID(rawInput string) (NoteID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidNoteID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidNoteID, maxIdentifierLength)
	}
	return NoteID(trimmed), nil
}

// String returns the underlying string identifier.
func (id NoteID) String() string {
	return string(id)
}

// UserID represents a validated user identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// Note is a persisted note. Pages is authoritative; Content is a preview of
// the first block recomputed on every write.
type Note struct {
	NoteID           string   `gorm:"column:note_id;primaryKey;size:190;not null"`
	OwnerUserID      string   `gorm:"column:owner_user_id;size:190;not null;index:idx_notes_owner_created,priority:1"`
	Title            string   `gorm:"column:title;size:255;not null"`
	Content          string   `gorm:"column:content;type:text;not null;default:''"`
	Pages            Pages    `gorm:"column:pages_json;type:text;not null"`
	Comments         Comments `gorm:"column:comments_json;type:text"`
	Date             string   `gorm:"column:note_date;size:64;not null"`
	CreatedAtSeconds int64    `gorm:"column:created_at_s;not null;index:idx_notes_owner_created,priority:2"`
	UpdatedAtSeconds int64    `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Note) TableName() string {
	return "notes"
}

// SharedNote links a public token to a note and the user who shared it.
type SharedNote struct {
	ShareID          string `gorm:"column:share_id;primaryKey;size:190;not null"`
	NoteID           string `gorm:"column:note_id;size:190;not null;uniqueIndex:idx_shared_notes_note_owner,priority:1"`
	OwnerUserID      string `gorm:"column:owner_user_id;size:190;not null;uniqueIndex:idx_shared_notes_note_owner,priority:2;index"`
	ShareToken       string `gorm:"column:share_token;size:64;not null;uniqueIndex:idx_shared_notes_token"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (SharedNote) TableName() string {
	return "shared_notes"
}

// NoteDraft carries the fields of a note being created.
type NoteDraft struct {
	Title    string
	Pages    Pages
	Comments Comments
	Date     string
}

// NotePatch carries a partial update; nil fields are left unchanged.
type NotePatch struct {
	Title    *string
	Pages    *Pages
	Comments *Comments
}

// QuoteInsertion describes a new quote and where it should land.
type QuoteInsertion struct {
	FocusedPage int
	Position    *InsertPosition
	Content     string
	Color       string
}

// SharedNoteView is the public projection of a shared note.
type SharedNoteView struct {
	Note            Note
	SharedBy        string
	SharedAtSeconds int64
}

// ShareOutcome reports the token of a share and whether this call created it.
type ShareOutcome struct {
	Share   SharedNote
	Created bool
}
