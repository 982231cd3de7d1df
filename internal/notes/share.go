package notes

import (
	"context"
	"errors"

	"github.com/MarcoPoloResearchLab/inkwell/internal/apperrors"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// maxShareTokenAttempts bounds the regenerate-on-collision loop.
const maxShareTokenAttempts = 8

const (
	opCreateShare   = "notes.create_share"
	opGetSharedNote = "notes.get_shared_note"
	opImportShare   = "notes.import_share"
	opDeleteShare   = "notes.delete_share"

	reasonShareNotFound  = "share_not_found"
	reasonSelfImport     = "self_import"
	reasonTokenFailed    = "token_generation_failed"
	reasonTokenExhausted = "token_collisions_exhausted"
	reasonOwnerLookup    = "owner_lookup_failed"
)

var errShareTokenExhausted = errors.New("share token collided on every attempt")

// CreateShare returns the share link of a note, creating it on first request.
// Repeated calls for the same note and owner return the same token.
func (s *Service) CreateShare(ctx context.Context, ownerID UserID, noteID NoteID) (ShareOutcome, error) {
	if s.db == nil {
		s.logError(opCreateShare, reasonMissingDatabase, errMissingDatabase)
		return ShareOutcome{}, newServiceError(opCreateShare, reasonMissingDatabase, errMissingDatabase)
	}
	db := s.db.WithContext(ctx)
	if _, err := s.loadOwnedNote(db, opCreateShare, ownerID, noteID, false); err != nil {
		return ShareOutcome{}, err
	}

	existing, found, err := s.findShare(db, ownerID, noteID)
	if err != nil {
		return ShareOutcome{}, err
	}
	if found {
		return ShareOutcome{Share: existing, Created: false}, nil
	}

	for attempt := 0; attempt < maxShareTokenAttempts; attempt++ {
		token, tokenErr := s.tokens.NewToken()
		if tokenErr != nil {
			s.logError(opCreateShare, reasonTokenFailed, tokenErr, zap.String(fieldNoteID, noteID.String()))
			return ShareOutcome{}, newServiceError(opCreateShare, reasonTokenFailed, tokenErr)
		}
		shareID, idErr := s.idProvider.NewID()
		if idErr != nil {
			s.logError(opCreateShare, reasonIDFailed, idErr, zap.String(fieldNoteID, noteID.String()))
			return ShareOutcome{}, newServiceError(opCreateShare, reasonIDFailed, idErr)
		}

		share := SharedNote{
			ShareID:          shareID,
			NoteID:           noteID.String(),
			OwnerUserID:      ownerID.String(),
			ShareToken:       token,
			CreatedAtSeconds: s.clock().UTC().Unix(),
		}
		result := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&share)
		if result.Error != nil {
			s.logError(opCreateShare, reasonSaveFailed, result.Error,
				zap.String(fieldUserID, ownerID.String()),
				zap.String(fieldNoteID, noteID.String()))
			return ShareOutcome{}, newServiceError(opCreateShare, reasonSaveFailed, result.Error)
		}
		if result.RowsAffected == 1 {
			return ShareOutcome{Share: share, Created: true}, nil
		}

		// Either a concurrent request shared the note first or the token collided.
		existing, found, err = s.findShare(db, ownerID, noteID)
		if err != nil {
			return ShareOutcome{}, err
		}
		if found {
			return ShareOutcome{Share: existing, Created: false}, nil
		}
		s.loggerOrDefault().Warn("share token collision",
			zap.String("operation", opCreateShare),
			zap.String(fieldNoteID, noteID.String()),
			zap.Int("attempt", attempt+1))
	}

	s.logError(opCreateShare, reasonTokenExhausted, errShareTokenExhausted, zap.String(fieldNoteID, noteID.String()))
	return ShareOutcome{}, newServiceError(opCreateShare, reasonTokenExhausted, errShareTokenExhausted)
}

// GetSharedNote resolves a share token to the shared note and its sharer.
func (s *Service) GetSharedNote(ctx context.Context, token string) (SharedNoteView, error) {
	if s.db == nil {
		s.logError(opGetSharedNote, reasonMissingDatabase, errMissingDatabase)
		return SharedNoteView{}, newServiceError(opGetSharedNote, reasonMissingDatabase, errMissingDatabase)
	}
	share, note, err := s.resolveShare(s.db.WithContext(ctx), opGetSharedNote, token)
	if err != nil {
		return SharedNoteView{}, err
	}
	username, err := s.directory.Username(ctx, share.OwnerUserID)
	if err != nil {
		s.logError(opGetSharedNote, reasonOwnerLookup, err, zap.String(fieldUserID, share.OwnerUserID))
		return SharedNoteView{}, newServiceError(opGetSharedNote, reasonOwnerLookup, err)
	}
	return SharedNoteView{Note: note, SharedBy: username, SharedAtSeconds: share.CreatedAtSeconds}, nil
}

// ImportShare copies a shared note into the importer's account. The copy is
// independent of the source note.
func (s *Service) ImportShare(ctx context.Context, importerID UserID, token string) (Note, error) {
	if s.db == nil {
		s.logError(opImportShare, reasonMissingDatabase, errMissingDatabase)
		return Note{}, newServiceError(opImportShare, reasonMissingDatabase, errMissingDatabase)
	}
	_, source, err := s.resolveShare(s.db.WithContext(ctx), opImportShare, token)
	if err != nil {
		return Note{}, err
	}
	if source.OwnerUserID == importerID.String() {
		return Note{}, newServiceError(opImportShare, reasonSelfImport,
			apperrors.Wrap(apperrors.ErrInvalidOperation, "note %s is already yours", source.NoteID))
	}

	noteID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opImportShare, reasonIDFailed, err, zap.String(fieldUserID, importerID.String()))
		return Note{}, newServiceError(opImportShare, reasonIDFailed, err)
	}
	now := s.clock().UTC()
	imported := Note{
		NoteID:           noteID,
		OwnerUserID:      importerID.String(),
		Title:            source.Title,
		Content:          source.Pages.Preview(),
		Pages:            source.Pages.Clone(),
		Comments:         source.Comments.Clone(),
		Date:             now.Format(dateLayout),
		CreatedAtSeconds: now.Unix(),
		UpdatedAtSeconds: now.Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&imported).Error; err != nil {
		s.logError(opImportShare, reasonSaveFailed, err,
			zap.String(fieldUserID, importerID.String()),
			zap.String(fieldNoteID, noteID))
		return Note{}, newServiceError(opImportShare, reasonSaveFailed, err)
	}
	return imported, nil
}

// DeleteShare removes the owner's share link for a note. The note and any
// imported copies are unaffected.
func (s *Service) DeleteShare(ctx context.Context, ownerID UserID, noteID NoteID) error {
	if s.db == nil {
		s.logError(opDeleteShare, reasonMissingDatabase, errMissingDatabase)
		return newServiceError(opDeleteShare, reasonMissingDatabase, errMissingDatabase)
	}
	result := s.db.WithContext(ctx).Where(queryOwnedNote, noteID.String(), ownerID.String()).Delete(&SharedNote{})
	if result.Error != nil {
		s.logError(opDeleteShare, reasonDeleteFailed, result.Error,
			zap.String(fieldUserID, ownerID.String()),
			zap.String(fieldNoteID, noteID.String()))
		return newServiceError(opDeleteShare, reasonDeleteFailed, result.Error)
	}
	if result.RowsAffected == 0 {
		return newServiceError(opDeleteShare, reasonShareNotFound,
			apperrors.Wrap(apperrors.ErrNotFound, "share for note %s", noteID))
	}
	return nil
}

func (s *Service) findShare(db *gorm.DB, ownerID UserID, noteID NoteID) (SharedNote, bool, error) {
	var share SharedNote
	err := db.Where(queryOwnedNote, noteID.String(), ownerID.String()).Take(&share).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SharedNote{}, false, nil
	}
	if err != nil {
		s.logError(opCreateShare, reasonQueryFailed, err,
			zap.String(fieldUserID, ownerID.String()),
			zap.String(fieldNoteID, noteID.String()))
		return SharedNote{}, false, newServiceError(opCreateShare, reasonQueryFailed, err)
	}
	return share, true, nil
}

func (s *Service) resolveShare(db *gorm.DB, operation, token string) (SharedNote, Note, error) {
	notFound := newServiceError(operation, reasonShareNotFound, apperrors.Wrap(apperrors.ErrNotFound, "shared note"))
	if token == "" {
		return SharedNote{}, Note{}, notFound
	}

	var share SharedNote
	err := db.Where("share_token = ?", token).Take(&share).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SharedNote{}, Note{}, notFound
	}
	if err != nil {
		s.logError(operation, reasonQueryFailed, err)
		return SharedNote{}, Note{}, newServiceError(operation, reasonQueryFailed, err)
	}

	var note Note
	err = db.Where("note_id = ?", share.NoteID).Take(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SharedNote{}, Note{}, notFound
	}
	if err != nil {
		s.logError(operation, reasonQueryFailed, err, zap.String(fieldNoteID, share.NoteID))
		return SharedNote{}, Note{}, newServiceError(operation, reasonQueryFailed, err)
	}
	note.Comments = note.Comments.Normalized()
	return share, note, nil
}
