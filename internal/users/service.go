package users

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/inkwell/internal/apperrors"
	"github.com/MarcoPoloResearchLab/inkwell/internal/auth"
	"github.com/MarcoPoloResearchLab/inkwell/internal/notes"
	"github.com/MarcoPoloResearchLab/inkwell/internal/validation"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opServiceNew        = "users.service.new"
	opRegister          = "users.register"
	opAuthenticate      = "users.authenticate"
	opAuthenticateAdmin = "users.authenticate_admin"
	opGetUser           = "users.get_user"
	opUpdateProfile     = "users.update_profile"
	opListUsers         = "users.list_users"
	opCreateUser        = "users.create_user"
	opUpdatePassword    = "users.update_password"
	opDeleteUser        = "users.delete_user"
	opRevokeSessions    = "users.revoke_sessions"
	opBootstrapAdmin    = "users.bootstrap_admin"
	opUsername          = "users.username"

	fieldUserID = "user_id"

	reasonInvalidCredentials = "invalid_credentials"
	reasonInvalidInput       = "invalid_input"
	reasonUsernameTaken      = "username_taken"
	reasonUsernameReserved   = "username_reserved"
	reasonUserNotFound       = "user_not_found"
	reasonNotAdmin           = "not_admin"
	reasonAdminProtected     = "admin_protected"
	reasonQueryFailed        = "query_failed"
	reasonSaveFailed         = "save_failed"
	reasonDeleteFailed       = "delete_failed"
	reasonHashFailed         = "hash_failed"
	reasonIDFailed           = "id_generation_failed"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingHasher     = errors.New("password hasher is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

// PasswordHasher hashes passwords for storage and verifies presented ones.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) error
}

// ServiceConfig describes the dependencies of the account service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider notes.IDProvider
	Hasher     PasswordHasher
	Logger     *zap.Logger
	// BootstrapUsername is held back from registration and renames until an
	// admin account exists.
	BootstrapUsername string
}

// Service manages accounts, credentials and roles.
type Service struct {
	db         *gorm.DB
	now        func() time.Time
	idProvider notes.IDProvider
	hasher     PasswordHasher
	logger     *zap.Logger
	usernames  sync.Map

	bootstrapUsername string
}

// NewService validates dependencies and constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperrors.New(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Hasher == nil {
		return nil, apperrors.New(opServiceNew, "missing_hasher", errMissingHasher)
	}
	if cfg.IDProvider == nil {
		return nil, apperrors.New(opServiceNew, "missing_id_provider", errMissingIDProvider)
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
		now:        clock,
		idProvider: cfg.IDProvider,
		hasher:     cfg.Hasher,
		logger:     logger,

		bootstrapUsername: normalize(cfg.BootstrapUsername),
	}, nil
}

// Register creates a user-role account.
func (s *Service) Register(ctx context.Context, credentials Credentials) (User, error) {
	return s.createAccount(ctx, opRegister, credentials, RoleUser)
}

// CreateUser creates a user-role account on behalf of an administrator.
func (s *Service) CreateUser(ctx context.Context, credentials Credentials) (User, error) {
	return s.createAccount(ctx, opCreateUser, credentials, RoleUser)
}

// Authenticate verifies a username and password.
func (s *Service) Authenticate(ctx context.Context, attempt LoginAttempt) (User, error) {
	return s.authenticate(ctx, opAuthenticate, attempt)
}

// AuthenticateAdmin verifies credentials and requires the admin role.
func (s *Service) AuthenticateAdmin(ctx context.Context, attempt LoginAttempt) (User, error) {
	user, err := s.authenticate(ctx, opAuthenticateAdmin, attempt)
	if err != nil {
		return User{}, err
	}
	if !user.IsAdmin() {
		return User{}, apperrors.New(opAuthenticateAdmin, reasonNotAdmin,
			apperrors.Wrap(apperrors.ErrForbidden, "admin access only"))
	}
	return user, nil
}

// GetUser loads one account.
func (s *Service) GetUser(ctx context.Context, userID string) (User, error) {
	return s.loadUser(s.db.WithContext(ctx), opGetUser, userID)
}

// UpdateProfile changes the caller's username and/or password.
func (s *Service) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (User, error) {
	if update.Username == nil && update.Password == nil {
		return User{}, apperrors.New(opUpdateProfile, reasonInvalidInput,
			apperrors.Wrap(apperrors.ErrInvalidInput, "username or password is required"))
	}

	var username string
	if update.Username != nil {
		username = normalize(*update.Username)
		if err := validation.Var("username", username, "required,max=190"); err != nil {
			return User{}, apperrors.New(opUpdateProfile, reasonInvalidInput, err)
		}
	}
	var passwordHash string
	if update.Password != nil {
		if err := validation.Var("password", *update.Password, "required,min=6,max=72"); err != nil {
			return User{}, apperrors.New(opUpdateProfile, reasonInvalidInput, err)
		}
		hashed, err := s.hasher.Hash(*update.Password)
		if err != nil {
			s.logError(opUpdateProfile, reasonHashFailed, err, zap.String(fieldUserID, userID))
			return User{}, apperrors.New(opUpdateProfile, reasonHashFailed, err)
		}
		passwordHash = hashed
	}

	var updated User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.loadUser(tx.Clauses(clause.Locking{Strength: "UPDATE"}), opUpdateProfile, userID)
		if err != nil {
			return err
		}
		if update.Username != nil && username != user.Username {
			taken, err := s.usernameTaken(tx, opUpdateProfile, username)
			if err != nil {
				return err
			}
			if taken {
				return apperrors.New(opUpdateProfile, reasonUsernameTaken,
					apperrors.Wrap(apperrors.ErrConflict, "username %s is already taken", username))
			}
			if err := s.checkReserved(tx, opUpdateProfile, username); err != nil {
				return err
			}
			user.Username = username
		}
		if passwordHash != "" {
			user.PasswordHash = passwordHash
		}
		user.UpdatedAtSeconds = s.now().UTC().Unix()
		if err := tx.Save(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperrors.New(opUpdateProfile, reasonUsernameTaken,
					apperrors.Wrap(apperrors.ErrConflict, "username %s is already taken", username))
			}
			s.logError(opUpdateProfile, reasonSaveFailed, err, zap.String(fieldUserID, userID))
			return apperrors.New(opUpdateProfile, reasonSaveFailed, err)
		}
		updated = user
		return nil
	})
	if err != nil {
		return User{}, err
	}
	s.usernames.Store(updated.UserID, updated.Username)
	return updated, nil
}

// ListUsers returns every account with its note count, newest first.
func (s *Service) ListUsers(ctx context.Context) ([]Summary, error) {
	db := s.db.WithContext(ctx)

	var accounts []User
	if err := db.Order("created_at_s DESC").Order("user_id DESC").Find(&accounts).Error; err != nil {
		s.logError(opListUsers, reasonQueryFailed, err)
		return nil, apperrors.New(opListUsers, reasonQueryFailed, err)
	}

	var counts []struct {
		OwnerUserID string
		NotesCount  int64
	}
	if err := db.Model(&notes.Note{}).
		Select("owner_user_id, COUNT(*) AS notes_count").
		Group("owner_user_id").
		Scan(&counts).Error; err != nil {
		s.logError(opListUsers, reasonQueryFailed, err)
		return nil, apperrors.New(opListUsers, reasonQueryFailed, err)
	}
	countByOwner := make(map[string]int64, len(counts))
	for _, row := range counts {
		countByOwner[row.OwnerUserID] = row.NotesCount
	}

	summaries := make([]Summary, 0, len(accounts))
	for _, account := range accounts {
		summaries = append(summaries, Summary{User: account, NotesCount: countByOwner[account.UserID]})
	}
	return summaries, nil
}

// UpdatePassword replaces an account's password without re-authentication
// and revokes its outstanding sessions.
func (s *Service) UpdatePassword(ctx context.Context, userID, password string) error {
	if err := validation.Var("password", password, "required,min=6,max=72"); err != nil {
		return apperrors.New(opUpdatePassword, reasonInvalidInput, err)
	}
	hashed, err := s.hasher.Hash(password)
	if err != nil {
		s.logError(opUpdatePassword, reasonHashFailed, err, zap.String(fieldUserID, userID))
		return apperrors.New(opUpdatePassword, reasonHashFailed, err)
	}

	result := s.db.WithContext(ctx).Model(&User{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"password_hash":   hashed,
			"session_version": gorm.Expr("session_version + ?", 1),
			"updated_at_s":    s.now().UTC().Unix(),
		})
	if result.Error != nil {
		s.logError(opUpdatePassword, reasonSaveFailed, result.Error, zap.String(fieldUserID, userID))
		return apperrors.New(opUpdatePassword, reasonSaveFailed, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.New(opUpdatePassword, reasonUserNotFound,
			apperrors.Wrap(apperrors.ErrNotFound, "user %s", userID))
	}
	return nil
}

// RevokeSessions invalidates every session token issued to the account.
func (s *Service) RevokeSessions(ctx context.Context, userID string) error {
	result := s.db.WithContext(ctx).Model(&User{}).
		Where("user_id = ?", userID).
		Update("session_version", gorm.Expr("session_version + ?", 1))
	if result.Error != nil {
		s.logError(opRevokeSessions, reasonSaveFailed, result.Error, zap.String(fieldUserID, userID))
		return apperrors.New(opRevokeSessions, reasonSaveFailed, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.New(opRevokeSessions, reasonUserNotFound,
			apperrors.Wrap(apperrors.ErrNotFound, "user %s", userID))
	}
	return nil
}

// DeleteUser removes a non-admin account together with its notes and shares.
func (s *Service) DeleteUser(ctx context.Context, userID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.loadUser(tx, opDeleteUser, userID)
		if err != nil {
			return err
		}
		if user.IsAdmin() {
			return apperrors.New(opDeleteUser, reasonAdminProtected,
				apperrors.Wrap(apperrors.ErrForbidden, "the admin account cannot be deleted"))
		}

		ownedNotes := tx.Model(&notes.Note{}).Select("note_id").Where("owner_user_id = ?", userID)
		if err := tx.Where("owner_user_id = ? OR note_id IN (?)", userID, ownedNotes).Delete(&notes.SharedNote{}).Error; err != nil {
			s.logError(opDeleteUser, reasonDeleteFailed, err, zap.String(fieldUserID, userID))
			return apperrors.New(opDeleteUser, reasonDeleteFailed, err)
		}
		if err := tx.Where("owner_user_id = ?", userID).Delete(&notes.Note{}).Error; err != nil {
			s.logError(opDeleteUser, reasonDeleteFailed, err, zap.String(fieldUserID, userID))
			return apperrors.New(opDeleteUser, reasonDeleteFailed, err)
		}
		if err := tx.Where("user_id = ?", userID).Delete(&User{}).Error; err != nil {
			s.logError(opDeleteUser, reasonDeleteFailed, err, zap.String(fieldUserID, userID))
			return apperrors.New(opDeleteUser, reasonDeleteFailed, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.usernames.Delete(userID)
	return nil
}

// EnsureBootstrapAdmin guarantees an admin-role account exists when a
// bootstrap password is configured. An existing account holding the bootstrap
// username is promoted and takes the configured password, losing its
// sessions; otherwise one is created. It reports whether it changed anything.
func (s *Service) EnsureBootstrapAdmin(ctx context.Context, username, password string) (bool, error) {
	db := s.db.WithContext(ctx)

	var admins int64
	if err := db.Model(&User{}).Where("role = ?", RoleAdmin).Count(&admins).Error; err != nil {
		s.logError(opBootstrapAdmin, reasonQueryFailed, err)
		return false, apperrors.New(opBootstrapAdmin, reasonQueryFailed, err)
	}
	if admins > 0 {
		return false, nil
	}
	if password == "" {
		s.logger.Warn("no admin account exists and no bootstrap password is configured",
			zap.String("operation", opBootstrapAdmin))
		return false, nil
	}

	username = normalize(username)
	var existing User
	err := db.Where("username = ?", username).Take(&existing).Error
	switch {
	case err == nil:
		if err := validation.Var("password", password, "required,min=6,max=72"); err != nil {
			return false, apperrors.New(opBootstrapAdmin, reasonInvalidInput, err)
		}
		hashed, err := s.hasher.Hash(password)
		if err != nil {
			s.logError(opBootstrapAdmin, reasonHashFailed, err, zap.String(fieldUserID, existing.UserID))
			return false, apperrors.New(opBootstrapAdmin, reasonHashFailed, err)
		}
		err = db.Model(&User{}).Where("user_id = ?", existing.UserID).Updates(map[string]interface{}{
			"role":            RoleAdmin,
			"password_hash":   hashed,
			"session_version": gorm.Expr("session_version + ?", 1),
			"updated_at_s":    s.now().UTC().Unix(),
		}).Error
		if err != nil {
			s.logError(opBootstrapAdmin, reasonSaveFailed, err, zap.String(fieldUserID, existing.UserID))
			return false, apperrors.New(opBootstrapAdmin, reasonSaveFailed, err)
		}
		s.logger.Warn("bootstrap username was held by a regular account; promoted it and reset its password",
			zap.String(fieldUserID, existing.UserID))
		return true, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		admin, err := s.createAccount(ctx, opBootstrapAdmin, Credentials{Username: username, Password: password}, RoleAdmin)
		if err != nil {
			return false, err
		}
		s.logger.Info("created bootstrap admin", zap.String(fieldUserID, admin.UserID))
		return true, nil
	default:
		s.logError(opBootstrapAdmin, reasonQueryFailed, err)
		return false, apperrors.New(opBootstrapAdmin, reasonQueryFailed, err)
	}
}

// Username resolves the public name of an account.
func (s *Service) Username(ctx context.Context, userID string) (string, error) {
	if cached, ok := s.usernames.Load(userID); ok {
		if username, ok := cached.(string); ok {
			return username, nil
		}
	}
	user, err := s.loadUser(s.db.WithContext(ctx), opUsername, userID)
	if err != nil {
		return "", err
	}
	s.usernames.Store(user.UserID, user.Username)
	return user.Username, nil
}

func (s *Service) createAccount(ctx context.Context, operation string, credentials Credentials, role Role) (User, error) {
	credentials.Username = normalize(credentials.Username)
	if err := validation.Struct(credentials); err != nil {
		return User{}, apperrors.New(operation, reasonInvalidInput, err)
	}
	if role != RoleAdmin {
		if err := s.checkReserved(s.db.WithContext(ctx), operation, credentials.Username); err != nil {
			return User{}, err
		}
	}

	hashed, err := s.hasher.Hash(credentials.Password)
	if err != nil {
		s.logError(operation, reasonHashFailed, err)
		return User{}, apperrors.New(operation, reasonHashFailed, err)
	}
	userID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(operation, reasonIDFailed, err)
		return User{}, apperrors.New(operation, reasonIDFailed, err)
	}

	now := s.now().UTC().Unix()
	user := User{
		UserID:           userID,
		Username:         credentials.Username,
		PasswordHash:     hashed,
		Role:             role,
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}
	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&user)
	if result.Error != nil {
		s.logError(operation, reasonSaveFailed, result.Error, zap.String(fieldUserID, userID))
		return User{}, apperrors.New(operation, reasonSaveFailed, result.Error)
	}
	if result.RowsAffected == 0 {
		return User{}, apperrors.New(operation, reasonUsernameTaken,
			apperrors.Wrap(apperrors.ErrConflict, "username %s is already taken", credentials.Username))
	}
	s.usernames.Store(user.UserID, user.Username)
	return user, nil
}

func (s *Service) authenticate(ctx context.Context, operation string, attempt LoginAttempt) (User, error) {
	attempt.Username = normalize(attempt.Username)
	if err := validation.Struct(attempt); err != nil {
		return User{}, apperrors.New(operation, reasonInvalidInput, err)
	}
	invalid := apperrors.New(operation, reasonInvalidCredentials,
		apperrors.Wrap(apperrors.ErrUnauthorized, "invalid username or password"))

	var user User
	err := s.db.WithContext(ctx).Where("username = ?", attempt.Username).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, invalid
	}
	if err != nil {
		s.logError(operation, reasonQueryFailed, err)
		return User{}, apperrors.New(operation, reasonQueryFailed, err)
	}

	if err := s.hasher.Verify(user.PasswordHash, attempt.Password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return User{}, invalid
		}
		s.logError(operation, reasonHashFailed, err, zap.String(fieldUserID, user.UserID))
		return User{}, apperrors.New(operation, reasonHashFailed, err)
	}
	return user, nil
}

func (s *Service) loadUser(db *gorm.DB, operation, userID string) (User, error) {
	var user User
	err := db.Where("user_id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, apperrors.New(operation, reasonUserNotFound,
			apperrors.Wrap(apperrors.ErrNotFound, "user %s", userID))
	}
	if err != nil {
		s.logError(operation, reasonQueryFailed, err, zap.String(fieldUserID, userID))
		return User{}, apperrors.New(operation, reasonQueryFailed, err)
	}
	return user, nil
}

func (s *Service) usernameTaken(db *gorm.DB, operation, username string) (bool, error) {
	var count int64
	if err := db.Model(&User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		s.logError(operation, reasonQueryFailed, err)
		return false, apperrors.New(operation, reasonQueryFailed, err)
	}
	return count > 0, nil
}

// checkReserved rejects the bootstrap username while no admin account exists.
func (s *Service) checkReserved(db *gorm.DB, operation, username string) error {
	if s.bootstrapUsername == "" || username != s.bootstrapUsername {
		return nil
	}
	var admins int64
	if err := db.Model(&User{}).Where("role = ?", RoleAdmin).Count(&admins).Error; err != nil {
		s.logError(operation, reasonQueryFailed, err)
		return apperrors.New(operation, reasonQueryFailed, err)
	}
	if admins == 0 {
		return apperrors.New(operation, reasonUsernameReserved,
			apperrors.Wrap(apperrors.ErrConflict, "username %s is reserved", username))
	}
	return nil
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
	s.logger.Error("users service error", attrs...)
}
