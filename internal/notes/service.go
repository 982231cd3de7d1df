package notes

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/inkwell/internal/apperrors"
	"github.com/MarcoPoloResearchLab/inkwell/internal/validation"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const dateLayout = "2006-01-02"

var (
	errMissingDatabase       = errors.New("database handle is required")
	errMissingIDProvider     = errors.New("id provider is required")
	errMissingTokenGenerator = errors.New("token generator is required")
	errMissingDirectory      = errors.New("owner directory is required")
	noOpLogger               = zap.NewNop()
)

const (
	opServiceNew    = "notes.service.new"
	opListNotes     = "notes.list_notes"
	opGetNote       = "notes.get_note"
	opCreateNote    = "notes.create_note"
	opUpdateNote    = "notes.update_note"
	opDeleteNote    = "notes.delete_note"
	opAnnotateNote  = "notes.annotate_note"
	opAddPage       = "notes.add_page"
	opDeletePage    = "notes.delete_page"
	opInsertQuote   = "notes.insert_quote"
	opEditQuote     = "notes.edit_quote"
	opDeleteQuote   = "notes.delete_quote"
	opSetComment    = "notes.set_comment"
	opDeleteComment = "notes.delete_comment"

	fieldUserID = "user_id"
	fieldNoteID = "note_id"

	queryOwnedNote = "note_id = ? AND owner_user_id = ?"

	reasonMissingDatabase = "missing_database"
	reasonQueryFailed     = "query_failed"
	reasonNoteNotFound    = "note_not_found"
	reasonInvalidNote     = "invalid_note"
	reasonInvalidIndex    = "invalid_index"
	reasonInvalidQuote    = "invalid_quote"
	reasonInvalidComment  = "invalid_comment"
	reasonLastPage        = "last_page"
	reasonNotQuote        = "not_a_quote"
	reasonIDFailed        = "id_generation_failed"
	reasonSaveFailed      = "save_failed"
	reasonDeleteFailed    = "delete_failed"
)

func newServiceError(operation, reason string, cause error) error {
	return apperrors.New(operation, reason, cause)
}

// OwnerDirectory resolves the public username of a note owner.
type OwnerDirectory interface {
	Username(ctx context.Context, userID string) (string, error)
}

type ServiceConfig struct {
	Database       *gorm.DB
	Clock          func() time.Time
	IDProvider     IDProvider
	TokenGenerator TokenGenerator
	Directory      OwnerDirectory
	Logger         *zap.Logger
}

// Service owns notes, their page content and comments, and share links.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	tokens     TokenGenerator
	directory  OwnerDirectory
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	if cfg.TokenGenerator == nil {
		return nil, newServiceError(opServiceNew, "missing_token_generator", errMissingTokenGenerator)
	}
	if cfg.Directory == nil {
		return nil, newServiceError(opServiceNew, "missing_directory", errMissingDirectory)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		tokens:     cfg.TokenGenerator,
		directory:  cfg.Directory,
		logger:     logger,
	}, nil
}

// ListNotes returns the owner's notes, newest first.
func (s *Service) ListNotes(ctx context.Context, ownerID UserID) ([]Note, error) {
	if s.db == nil {
		s.logError(opListNotes, reasonMissingDatabase, errMissingDatabase)
		return nil, newServiceError(opListNotes, reasonMissingDatabase, errMissingDatabase)
	}

	var notes []Note
	if err := s.db.WithContext(ctx).
		Where("owner_user_id = ?", ownerID.String()).
		Order("created_at_s DESC").
		Order("note_id DESC").
		Find(&notes).Error; err != nil {
		s.logError(opListNotes, reasonQueryFailed, err, zap.String(fieldUserID, ownerID.String()))
		return nil, newServiceError(opListNotes, reasonQueryFailed, err)
	}
	for index := range notes {
		notes[index].Comments = notes[index].Comments.Normalized()
	}
	return notes, nil
}

// GetNote returns one note owned by ownerID.
func (s *Service) GetNote(ctx context.Context, ownerID UserID, noteID NoteID) (Note, error) {
	if s.db == nil {
		s.logError(opGetNote, reasonMissingDatabase, errMissingDatabase)
		return Note{}, newServiceError(opGetNote, reasonMissingDatabase, errMissingDatabase)
	}
	return s.loadOwnedNote(s.db.WithContext(ctx), opGetNote, ownerID, noteID, false)
}

// CreateNote persists a new note for ownerID.
func (s *Service) CreateNote(ctx context.Context, ownerID UserID, draft NoteDraft) (Note, error) {
	if s.db == nil {
		s.logError(opCreateNote, reasonMissingDatabase, errMissingDatabase)
		return Note{}, newServiceError(opCreateNote, reasonMissingDatabase, errMissingDatabase)
	}
	title := strings.TrimSpace(draft.Title)
	if err := validateTitle(title); err != nil {
		return Note{}, newServiceError(opCreateNote, reasonInvalidNote, err)
	}
	if err := validatePages(draft.Pages); err != nil {
		return Note{}, newServiceError(opCreateNote, reasonInvalidNote, err)
	}
	if err := validateComments(draft.Comments); err != nil {
		return Note{}, newServiceError(opCreateNote, reasonInvalidComment, err)
	}

	noteID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateNote, reasonIDFailed, err, zap.String(fieldUserID, ownerID.String()))
		return Note{}, newServiceError(opCreateNote, reasonIDFailed, err)
	}

	now := s.clock().UTC()
	date := strings.TrimSpace(draft.Date)
	if date == "" {
		date = now.Format(dateLayout)
	}
	note := Note{
		NoteID:           noteID,
		OwnerUserID:      ownerID.String(),
		Title:            title,
		Content:          draft.Pages.Preview(),
		Pages:            draft.Pages.Clone(),
		Comments:         draft.Comments.Clone(),
		Date:             date,
		CreatedAtSeconds: now.Unix(),
		UpdatedAtSeconds: now.Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&note).Error; err != nil {
		s.logError(opCreateNote, reasonSaveFailed, err,
			zap.String(fieldUserID, ownerID.String()),
			zap.String(fieldNoteID, noteID))
		return Note{}, newServiceError(opCreateNote, reasonSaveFailed, err)
	}
	return note, nil
}

// UpdateNote applies a partial update of title, pages and comments.
func (s *Service) UpdateNote(ctx context.Context, ownerID UserID, noteID NoteID, patch NotePatch) (Note, error) {
	return s.mutateNote(ctx, opUpdateNote, ownerID, noteID, func(note *Note) error {
		if patch.Title != nil {
			title := strings.TrimSpace(*patch.Title)
			if err := validateTitle(title); err != nil {
				return newServiceError(opUpdateNote, reasonInvalidNote, err)
			}
			note.Title = title
		}
		if patch.Pages != nil {
			if err := validatePages(*patch.Pages); err != nil {
				return newServiceError(opUpdateNote, reasonInvalidNote, err)
			}
			note.Pages = patch.Pages.Clone()
		}
		if patch.Comments != nil {
			if err := validateComments(*patch.Comments); err != nil {
				return newServiceError(opUpdateNote, reasonInvalidComment, err)
			}
			note.Comments = patch.Comments.Clone()
		}
		return nil
	})
}

// DeleteNote removes the note and every share link pointing at it.
func (s *Service) DeleteNote(ctx context.Context, ownerID UserID, noteID NoteID) error {
	if s.db == nil {
		s.logError(opDeleteNote, reasonMissingDatabase, errMissingDatabase)
		return newServiceError(opDeleteNote, reasonMissingDatabase, errMissingDatabase)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where(queryOwnedNote, noteID.String(), ownerID.String()).Delete(&Note{})
		if result.Error != nil {
			s.logError(opDeleteNote, reasonDeleteFailed, result.Error,
				zap.String(fieldUserID, ownerID.String()),
				zap.String(fieldNoteID, noteID.String()))
			return newServiceError(opDeleteNote, reasonDeleteFailed, result.Error)
		}
		if result.RowsAffected == 0 {
			return newServiceError(opDeleteNote, reasonNoteNotFound, apperrors.Wrap(apperrors.ErrNotFound, "note %s", noteID))
		}
		if err := tx.Where("note_id = ?", noteID.String()).Delete(&SharedNote{}).Error; err != nil {
			s.logError(opDeleteNote, reasonDeleteFailed, err, zap.String(fieldNoteID, noteID.String()))
			return newServiceError(opDeleteNote, reasonDeleteFailed, err)
		}
		return nil
	})
}

// AnnotateNote returns the note with every text block tokenized and keyed.
func (s *Service) AnnotateNote(ctx context.Context, ownerID UserID, noteID NoteID) (AnnotatedNote, error) {
	if s.db == nil {
		s.logError(opAnnotateNote, reasonMissingDatabase, errMissingDatabase)
		return AnnotatedNote{}, newServiceError(opAnnotateNote, reasonMissingDatabase, errMissingDatabase)
	}
	note, err := s.loadOwnedNote(s.db.WithContext(ctx), opAnnotateNote, ownerID, noteID, false)
	if err != nil {
		return AnnotatedNote{}, err
	}
	return Annotate(note), nil
}

// AddPage appends an empty page.
func (s *Service) AddPage(ctx context.Context, ownerID UserID, noteID NoteID) (Note, error) {
	return s.mutateNote(ctx, opAddPage, ownerID, noteID, func(note *Note) error {
		note.Pages = AppendPage(note.Pages)
		return nil
	})
}

// DeletePage removes a page; the last remaining page cannot be removed.
func (s *Service) DeletePage(ctx context.Context, ownerID UserID, noteID NoteID, pageIndex int) (Note, error) {
	return s.mutateNote(ctx, opDeletePage, ownerID, noteID, func(note *Note) error {
		if !note.Pages.HasPage(pageIndex) {
			return newServiceError(opDeletePage, reasonInvalidIndex, apperrors.Wrap(apperrors.ErrInvalidInput, "page %d does not exist", pageIndex))
		}
		if len(note.Pages) <= 1 {
			return newServiceError(opDeletePage, reasonLastPage, apperrors.Wrap(apperrors.ErrInvalidOperation, "a note keeps at least one page"))
		}
		note.Pages = RemovePage(note.Pages, pageIndex)
		return nil
	})
}

// InsertQuote places a new quote block at the given cursor position.
func (s *Service) InsertQuote(ctx context.Context, ownerID UserID, noteID NoteID, insertion QuoteInsertion) (Note, error) {
	if strings.TrimSpace(insertion.Content) == "" {
		return Note{}, newServiceError(opInsertQuote, reasonInvalidQuote, apperrors.Wrap(apperrors.ErrInvalidInput, "quote content is required"))
	}
	if err := validateQuoteColor(insertion.Color); err != nil {
		return Note{}, newServiceError(opInsertQuote, reasonInvalidQuote, err)
	}
	return s.mutateNote(ctx, opInsertQuote, ownerID, noteID, func(note *Note) error {
		if err := validateInsertion(note.Pages, insertion); err != nil {
			return newServiceError(opInsertQuote, reasonInvalidIndex, err)
		}
		note.Pages = InsertQuote(note.Pages, insertion.FocusedPage, insertion.Position, QuoteBlock(insertion.Content, insertion.Color))
		return nil
	})
}

// EditQuote rewrites a quote block; blank content deletes it.
func (s *Service) EditQuote(ctx context.Context, ownerID UserID, noteID NoteID, pageIndex, blockIndex int, content, color string) (Note, error) {
	if strings.TrimSpace(content) != "" {
		if err := validateQuoteColor(color); err != nil {
			return Note{}, newServiceError(opEditQuote, reasonInvalidQuote, err)
		}
	}
	return s.mutateNote(ctx, opEditQuote, ownerID, noteID, func(note *Note) error {
		if err := requireQuote(note.Pages, pageIndex, blockIndex); err != nil {
			return newServiceError(opEditQuote, reasonNotQuote, err)
		}
		note.Pages = EditQuote(note.Pages, pageIndex, blockIndex, content, color)
		return nil
	})
}

// DeleteQuote removes a quote block.
func (s *Service) DeleteQuote(ctx context.Context, ownerID UserID, noteID NoteID, pageIndex, blockIndex int) (Note, error) {
	return s.mutateNote(ctx, opDeleteQuote, ownerID, noteID, func(note *Note) error {
		if err := requireQuote(note.Pages, pageIndex, blockIndex); err != nil {
			return newServiceError(opDeleteQuote, reasonNotQuote, err)
		}
		note.Pages = DeleteBlock(note.Pages, pageIndex, blockIndex)
		return nil
	})
}

// SetComment inserts or overwrites the comment at key. The key is not checked
// against the current text, so comments may outlive the word they annotated.
func (s *Service) SetComment(ctx context.Context, ownerID UserID, noteID NoteID, key WordKey, comment Comment) (Note, error) {
	if err := validation.Struct(comment); err != nil {
		return Note{}, newServiceError(opSetComment, reasonInvalidComment, err)
	}
	return s.mutateNote(ctx, opSetComment, ownerID, noteID, func(note *Note) error {
		note.Comments = note.Comments.Clone()
		note.Comments[key] = comment
		return nil
	})
}

// DeleteComment removes the comment at key; absent keys are not an error.
func (s *Service) DeleteComment(ctx context.Context, ownerID UserID, noteID NoteID, key WordKey) (Note, error) {
	return s.mutateNote(ctx, opDeleteComment, ownerID, noteID, func(note *Note) error {
		note.Comments = note.Comments.Clone()
		delete(note.Comments, key)
		return nil
	})
}

// mutateNote loads the owned note under a row lock, applies mutate and saves
// it with a refreshed preview and timestamp. mutate returns service errors.
func (s *Service) mutateNote(ctx context.Context, operation string, ownerID UserID, noteID NoteID, mutate func(note *Note) error) (Note, error) {
	if s.db == nil {
		s.logError(operation, reasonMissingDatabase, errMissingDatabase)
		return Note{}, newServiceError(operation, reasonMissingDatabase, errMissingDatabase)
	}

	var updated Note
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		note, err := s.loadOwnedNote(tx, operation, ownerID, noteID, true)
		if err != nil {
			return err
		}
		if err := mutate(&note); err != nil {
			return err
		}
		note.Comments = note.Comments.Normalized()
		note.Content = note.Pages.Preview()
		note.UpdatedAtSeconds = s.clock().UTC().Unix()
		if err := tx.Save(&note).Error; err != nil {
			s.logError(operation, reasonSaveFailed, err,
				zap.String(fieldUserID, ownerID.String()),
				zap.String(fieldNoteID, noteID.String()))
			return newServiceError(operation, reasonSaveFailed, err)
		}
		updated = note
		return nil
	})
	if err != nil {
		return Note{}, err
	}
	return updated, nil
}

func (s *Service) loadOwnedNote(db *gorm.DB, operation string, ownerID UserID, noteID NoteID, lock bool) (Note, error) {
	query := db
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var note Note
	err := query.Where(queryOwnedNote, noteID.String(), ownerID.String()).Take(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Note{}, newServiceError(operation, reasonNoteNotFound, apperrors.Wrap(apperrors.ErrNotFound, "note %s", noteID))
	}
	if err != nil {
		s.logError(operation, reasonQueryFailed, err,
			zap.String(fieldUserID, ownerID.String()),
			zap.String(fieldNoteID, noteID.String()))
		return Note{}, newServiceError(operation, reasonQueryFailed, err)
	}
	note.Comments = note.Comments.Normalized()
	return note, nil
}

func validateTitle(title string) error {
	return validation.Var("title", title, "required,max=255")
}

func validatePages(pages Pages) error {
	if len(pages) == 0 {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "a note needs at least one page")
	}
	for _, page := range pages {
		for _, block := range page {
			if block.IsQuote() {
				if err := validateQuoteColor(block.Color); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func validateQuoteColor(color string) error {
	return validation.Var("color", color, "required,iscolor")
}

func validateComments(comments Comments) error {
	for key, comment := range comments {
		if err := validation.Struct(comment); err != nil {
			return apperrors.Wrap(err, "comment %s", key)
		}
	}
	return nil
}

func validateInsertion(pages Pages, insertion QuoteInsertion) error {
	position := insertion.Position
	if position == nil {
		if !pages.HasPage(insertion.FocusedPage) {
			return apperrors.Wrap(apperrors.ErrInvalidInput, "page %d does not exist", insertion.FocusedPage)
		}
		return nil
	}
	if !pages.Contains(position.Page, position.Block) {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "block %d-%d does not exist", position.Page, position.Block)
	}
	block := pages[position.Page][position.Block]
	if block.IsText() && (position.Cursor < 0 || position.Cursor > RuneLen(block.Content)) {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "cursor %d is outside block %d-%d", position.Cursor, position.Page, position.Block)
	}
	return nil
}

func requireQuote(pages Pages, pageIndex, blockIndex int) error {
	if !pages.Contains(pageIndex, blockIndex) {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "block %d-%d does not exist", pageIndex, blockIndex)
	}
	if !pages[pageIndex][blockIndex].IsQuote() {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "block %d-%d is not a quote", pageIndex, blockIndex)
	}
	return nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("notes service error", attrs...)
}
