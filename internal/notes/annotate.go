package notes

import (
	"cmp"
	"slices"
)

// AnnotatedToken is a rendered token with the comment anchored to it, if any.
type AnnotatedToken struct {
	Text       string   `json:"text"`
	Whitespace bool     `json:"whitespace,omitempty"`
	Key        string   `json:"key,omitempty"`
	Comment    *Comment `json:"comment,omitempty"`
}

// AnnotatedBlock is a block with its keyed tokens. Quote blocks carry no tokens.
type AnnotatedBlock struct {
	Type    BlockType        `json:"type"`
	Content string           `json:"content"`
	Color   string           `json:"color,omitempty"`
	Tokens  []AnnotatedToken `json:"tokens,omitempty"`
}

// AnnotatedNote is the reading view of a note. Orphaned lists comment keys
// that no longer resolve to a word of the current text.
type AnnotatedNote struct {
	Note     Note
	Pages    [][]AnnotatedBlock
	Orphaned []WordKey
}

// Annotate keys every word of the note's text blocks and attaches comments.
func Annotate(note Note) AnnotatedNote {
	comments := note.Comments.Normalized()
	attached := make(map[WordKey]struct{}, len(comments))

	pages := make([][]AnnotatedBlock, len(note.Pages))
	for pageIndex, page := range note.Pages {
		blocks := make([]AnnotatedBlock, len(page))
		for blockIndex, block := range page {
			annotated := AnnotatedBlock{Type: block.Type, Content: block.Content, Color: block.Color}
			if block.IsText() {
				keyed := KeyBlock(pageIndex, blockIndex, block.Content)
				annotated.Tokens = make([]AnnotatedToken, len(keyed))
				for tokenIndex, token := range keyed {
					rendered := AnnotatedToken{Text: token.Text, Whitespace: token.Whitespace}
					if token.Key != nil {
						rendered.Key = token.Key.String()
						if comment, ok := comments[*token.Key]; ok {
							comment := comment
							rendered.Comment = &comment
							attached[*token.Key] = struct{}{}
						}
					}
					annotated.Tokens[tokenIndex] = rendered
				}
			}
			blocks[blockIndex] = annotated
		}
		pages[pageIndex] = blocks
	}

	orphaned := make([]WordKey, 0)
	for key := range comments {
		if _, ok := attached[key]; !ok {
			orphaned = append(orphaned, key)
		}
	}
	sortWordKeys(orphaned)

	return AnnotatedNote{Note: note, Pages: pages, Orphaned: orphaned}
}

func sortWordKeys(keys []WordKey) {
	slices.SortFunc(keys, func(left, right WordKey) int {
		if left.Page != right.Page {
			return cmp.Compare(left.Page, right.Page)
		}
		if left.Block != right.Block {
			return cmp.Compare(left.Block, right.Block)
		}
		return cmp.Compare(left.Word, right.Word)
	})
}
