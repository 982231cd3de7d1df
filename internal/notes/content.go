package notes

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// BlockType enumerates the block variants a page may contain.
type BlockType string

const (
	// BlockTypeText is a free text block addressable by word.
	BlockTypeText BlockType = "text"
	// BlockTypeQuote is a colored quote block.
	BlockTypeQuote BlockType = "quote"
)

var (
	// ErrInvalidBlock indicates a block payload with an unknown type.
	ErrInvalidBlock = errors.New("notes: invalid block")
	// ErrInvalidContent indicates a stored pages or comments document that cannot be decoded.
	ErrInvalidContent = errors.New("notes: invalid content document")
)

// Block is a tagged union of the text and quote variants.
// Color is only meaningful for quotes and is dropped from text blocks.
type Block struct {
	Type    BlockType `json:"type"`
	Content string    `json:"content"`
	Color   string    `json:"color,omitempty"`
}

// TextBlock constructs a text block.
func TextBlock(content string) Block {
	return Block{Type: BlockTypeText, Content: content}
}

// QuoteBlock constructs a quote block.
func QuoteBlock(content, color string) Block {
	return Block{Type: BlockTypeQuote, Content: content, Color: color}
}

// IsText reports whether the block is the text variant.
func (b Block) IsText() bool {
	return b.Type == BlockTypeText
}

// IsQuote reports whether the block is the quote variant.
func (b Block) IsQuote() bool {
	return b.Type == BlockTypeQuote
}

// UnmarshalJSON rejects unknown block types.
func (b *Block) UnmarshalJSON(data []byte) error {
	type rawBlock Block
	var raw rawBlock
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.Type {
	case BlockTypeText:
		raw.Color = ""
	case BlockTypeQuote:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidBlock, raw.Type)
	}
	*b = Block(raw)
	return nil
}

// Page is an ordered sequence of blocks.
type Page []Block

// MarshalJSON encodes a nil page as an empty array.
func (p Page) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Block(p))
}

// Pages is the authoritative, order-preserving content of a note.
type Pages []Page

// NewPages returns a single page holding one empty text block.
func NewPages() Pages {
	return Pages{Page{TextBlock("")}}
}

// MarshalJSON encodes nil pages as an empty array.
func (p Pages) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Page(p))
}

// Clone returns a deep copy.
func (p Pages) Clone() Pages {
	if p == nil {
		return nil
	}
	cloned := make(Pages, len(p))
	for pageIndex, page := range p {
		cloned[pageIndex] = append(Page{}, page...)
	}
	return cloned
}

// Contains reports whether pageIndex and blockIndex address an existing block.
func (p Pages) Contains(pageIndex, blockIndex int) bool {
	if pageIndex < 0 || pageIndex >= len(p) {
		return false
	}
	return blockIndex >= 0 && blockIndex < len(p[pageIndex])
}

// HasPage reports whether pageIndex addresses an existing page.
func (p Pages) HasPage(pageIndex int) bool {
	return pageIndex >= 0 && pageIndex < len(p)
}

// Preview returns the text of the first block of the first page, or "" when absent.
func (p Pages) Preview() string {
	if len(p) == 0 || len(p[0]) == 0 {
		return ""
	}
	return p[0][0].Content
}

// Value stores pages as a JSON document.
func (p Pages) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan loads pages from a JSON document.
func (p *Pages) Scan(value any) error {
	data, err := documentBytes(value)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		*p = Pages{}
		return nil
	}
	var decoded []Page
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("%w: pages: %v", ErrInvalidContent, err)
	}
	if decoded == nil {
		decoded = []Page{}
	}
	*p = Pages(decoded)
	return nil
}

// Comment annotates a single word of a note.
type Comment struct {
	Title   string `json:"title" validate:"max=255"`
	Content string `json:"content" validate:"max=10000"`
	Color   string `json:"color" validate:"required,iscolor"`
}

// Comments maps word keys to their comment. A nil Comments always encodes as {}.
type Comments map[WordKey]Comment

// MarshalJSON never emits null.
func (c Comments) MarshalJSON() ([]byte, error) {
	if c == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[WordKey]Comment(c))
}

// UnmarshalJSON accepts null and the empty array as an empty mapping.
func (c *Comments) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("[]")) {
		*c = Comments{}
		return nil
	}
	decoded := map[WordKey]Comment{}
	if err := json.Unmarshal(trimmed, &decoded); err != nil {
		return err
	}
	*c = Comments(decoded)
	return nil
}

// Normalized returns c, or an empty mapping when c is nil.
func (c Comments) Normalized() Comments {
	if c == nil {
		return Comments{}
	}
	return c
}

// Clone returns a copy of the mapping.
func (c Comments) Clone() Comments {
	cloned := make(Comments, len(c))
	for key, comment := range c {
		cloned[key] = comment
	}
	return cloned
}

// Value stores comments as a JSON object.
func (c Comments) Value() (driver.Value, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan loads comments from a JSON object; NULL and empty values become an empty mapping.
func (c *Comments) Scan(value any) error {
	data, err := documentBytes(value)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		*c = Comments{}
		return nil
	}
	if err := c.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("%w: comments: %v", ErrInvalidContent, err)
	}
	return nil
}

func documentBytes(value any) ([]byte, error) {
	switch typed := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		return typed, nil
	case string:
		return []byte(typed), nil
	default:
		return nil, fmt.Errorf("%w: unsupported column type %T", ErrInvalidContent, value)
	}
}
