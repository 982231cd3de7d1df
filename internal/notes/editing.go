package notes

import "strings"

// InsertPosition is the last known cursor inside a block. Cursor counts characters.
type InsertPosition struct {
	Page   int
	Block  int
	Cursor int
}

// InsertQuote returns a copy of pages with quote placed according to position.
//
// Without a position the quote is appended to focusedPage. When the addressed
// block is a quote it is appended to that block's page. Otherwise the text
// block is split at the cursor into before/quote/after, omitting empty halves.
// Indices must address existing pages and blocks.
func InsertQuote(pages Pages, focusedPage int, position *InsertPosition, quote Block) Pages {
	updated := pages.Clone()
	if position == nil {
		updated[focusedPage] = append(updated[focusedPage], quote)
		return updated
	}

	page := updated[position.Page]
	target := page[position.Block]
	if !target.IsText() {
		updated[position.Page] = append(page, quote)
		return updated
	}

	before, after := splitAtCursor(target.Content, position.Cursor)
	replacement := make(Page, 0, 3)
	if before != "" {
		replacement = append(replacement, TextBlock(before))
	}
	replacement = append(replacement, quote)
	if after != "" {
		replacement = append(replacement, TextBlock(after))
	}

	spliced := make(Page, 0, len(page)+len(replacement)-1)
	spliced = append(spliced, page[:position.Block]...)
	spliced = append(spliced, replacement...)
	spliced = append(spliced, page[position.Block+1:]...)
	updated[position.Page] = spliced
	return updated
}

// EditQuote replaces the content and color of a quote in place. Blank content
// removes the block instead of leaving an empty quote.
func EditQuote(pages Pages, pageIndex, blockIndex int, content, color string) Pages {
	if strings.TrimSpace(content) == "" {
		return DeleteBlock(pages, pageIndex, blockIndex)
	}
	updated := pages.Clone()
	block := updated[pageIndex][blockIndex]
	block.Content = content
	block.Color = color
	updated[pageIndex][blockIndex] = block
	return updated
}

// DeleteBlock returns a copy of pages without the addressed block.
func DeleteBlock(pages Pages, pageIndex, blockIndex int) Pages {
	updated := pages.Clone()
	page := updated[pageIndex]
	updated[pageIndex] = append(page[:blockIndex:blockIndex], page[blockIndex+1:]...)
	return updated
}

// AppendPage returns a copy of pages with a new page holding one empty text block.
func AppendPage(pages Pages) Pages {
	return append(pages.Clone(), Page{TextBlock("")})
}

// RemovePage returns a copy of pages without the page at pageIndex.
func RemovePage(pages Pages, pageIndex int) Pages {
	updated := make(Pages, 0, len(pages))
	for index, page := range pages.Clone() {
		if index != pageIndex {
			updated = append(updated, page)
		}
	}
	return updated
}

func splitAtCursor(content string, cursor int) (string, string) {
	if cursor <= 0 {
		return "", content
	}
	characters := 0
	for offset := range content {
		if characters == cursor {
			return content[:offset], content[offset:]
		}
		characters++
	}
	return content, ""
}
