package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"trashbin/models"
	"trashbin/softdelete"
	"trashbin/utils"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

const (
	principalCacheSize = 1024
	principalCacheTTL  = time.Minute
)

type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Surname  string
}

type UpdateProfileInput struct {
	Email   *string
	Name    *string
	Surname *string
}

type ListUsersInput struct {
	Page           int
	Limit          int
	IncludeDeleted bool
	OnlyDeleted    bool
}

type AuthResult struct {
	User        *models.User
	Token       string
	WasRestored bool
}

type UserService struct {
	users      *Lifecycle[models.User]
	jwtSecret  string
	jwtTTL     time.Duration
	principals *expirable.LRU[primitive.ObjectID, *models.User]
	logger     *zap.Logger
}

func NewUserService(users *Lifecycle[models.User], jwtSecret string, jwtTTL time.Duration, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{
		users:      users,
		jwtSecret:  jwtSecret,
		jwtTTL:     jwtTTL,
		principals: expirable.NewLRU[primitive.ObjectID, *models.User](principalCacheSize, nil, principalCacheTTL),
		logger:     logger.Named("users"),
	}
}

func (s *UserService) EnsureIndexes(ctx context.Context) error {
	return s.users.Model().EnsureIndexes(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account. An email held by a deleted account is still
// taken until that account is purged.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	email := normalizeEmail(in.Email)
	existing, err := s.users.Model().FindOne(ctx, bson.M{"email": email}, softdelete.WithDeleted())
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &models.User{
		Email:     email,
		Password:  string(hash),
		Name:      strings.TrimSpace(in.Name),
		Surname:   strings.TrimSpace(in.Surname),
		Role:      models.RoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	}
	id, err := s.users.Model().Insert(ctx, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	user.ID = id

	token, err := utils.GenerateJWTToken(user, s.jwtSecret, s.jwtTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	s.logger.Info("user registered", zap.String("user_id", id.Hex()))
	return &AuthResult{User: user, Token: token}, nil
}

// Login authenticates by email and password. Signing in to a deleted
// account restores it and cancels its purge.
func (s *UserService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.users.Model().FindOne(ctx, bson.M{"email": normalizeEmail(email)}, softdelete.WithDeleted())
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	result := &AuthResult{User: user}
	if user.Deleted {
		restored, err := s.users.Restore(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to restore account: %w", err)
		}
		if restored == nil {
			return nil, ErrInvalidCredentials
		}
		s.principals.Remove(user.ID)
		s.logger.Info("account restored on login", zap.String("user_id", user.ID.Hex()))
		result.User = restored
		result.WasRestored = true
	}

	result.Token, err = utils.GenerateJWTToken(result.User, s.jwtSecret, s.jwtTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	return result, nil
}

// ActiveUser resolves a token subject to an active account. Deleted
// accounts are treated as missing.
func (s *UserService) ActiveUser(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	if user, ok := s.principals.Get(id); ok {
		return user, nil
	}
	user, err := s.users.Model().FindByID(ctx, id, softdelete.QueryOptions{})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	s.principals.Add(id, user)
	return user, nil
}

// GetUser is the admin lookup and sees deleted accounts.
func (s *UserService) GetUser(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	user, err := s.users.Model().FindByID(ctx, id, softdelete.WithDeleted())
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// UpdateProfile edits the active account. A new email must not belong to
// any other account, deleted ones included.
func (s *UserService) UpdateProfile(ctx context.Context, id primitive.ObjectID, in UpdateProfileInput) (*models.User, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if in.Email != nil {
		email := normalizeEmail(*in.Email)
		holder, err := s.users.Model().FindOne(ctx, bson.M{"email": email}, softdelete.WithDeleted())
		if err != nil {
			return nil, fmt.Errorf("failed to check email: %w", err)
		}
		if holder != nil && holder.ID != id {
			return nil, ErrEmailTaken
		}
		set["email"] = email
	}
	if in.Name != nil {
		set["name"] = strings.TrimSpace(*in.Name)
	}
	if in.Surname != nil {
		set["surname"] = strings.TrimSpace(*in.Surname)
	}

	user, err := s.users.Model().UpdateByID(ctx, id, bson.M{"$set": set})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	s.principals.Remove(id)
	return user, nil
}

// DeleteAccount soft-deletes the account and schedules its purge.
func (s *UserService) DeleteAccount(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	user, err := s.users.SoftDelete(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to delete user: %w", err)
	}
	s.principals.Remove(id)
	if user == nil {
		return nil, ErrUserNotFound
	}
	s.logger.Info("user deleted", zap.String("user_id", id.Hex()))
	return user, nil
}

// RestoreUser is the admin restore.
func (s *UserService) RestoreUser(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	user, err := s.users.Restore(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to restore user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	s.principals.Remove(id)
	s.logger.Info("user restored", zap.String("user_id", id.Hex()))
	return user, nil
}

func (s *UserService) ListUsers(ctx context.Context, in ListUsersInput) ([]models.User, int64, error) {
	if in.Page < 1 {
		in.Page = 1
	}
	if in.Limit < 1 || in.Limit > 100 {
		in.Limit = 20
	}
	opts := softdelete.QueryOptions{IncludeDeleted: in.IncludeDeleted, OnlyDeleted: in.OnlyDeleted}

	findOpts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64((in.Page - 1) * in.Limit)).
		SetLimit(int64(in.Limit))
	users, err := s.users.Model().Find(ctx, bson.M{}, opts, findOpts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	total, err := s.users.Model().Count(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}
	return users, total, nil
}
