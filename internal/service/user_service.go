package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"arcana/internal/model"
	"arcana/internal/repository"
	"arcana/internal/workflow"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for unknown users, wrong passwords and inactive accounts alike.
var ErrInvalidCredentials = errors.New("invalid username or password")

// DTOs for Request validation
type CreateUserRequest struct {
	Fullname string `json:"fullname" binding:"required"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required,min=6"`
	Role     string `json:"role" binding:"required"`
}

type UpdateUserRequest struct {
	Fullname string `json:"fullname"`
	Role     string `json:"role"`
	IsActive *bool  `json:"is_active"`
}

type LoginUserRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type TokenResponse struct {
	Token     string       `json:"token"`
	ExpiresAt string       `json:"expires_at"`
	User      UserResponse `json:"user"`
}

// DTO for returning User without exposing sensitive data (e.g. password)
type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Fullname  string    `json:"fullname"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt string    `json:"created_at"`
	UpdatedAt string    `json:"updated_at"`
}

// TokenConfig controls issued access tokens.
type TokenConfig struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
}

// UserService defines the interface for business logic related to User
type UserService interface {
	CreateUser(ctx context.Context, req CreateUserRequest) (*UserResponse, error)
	Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*UserResponse, error)
	ListUsers(ctx context.Context, page, limit int) ([]UserResponse, int64, error)
	UpdateUser(ctx context.Context, id uuid.UUID, req UpdateUserRequest) (*UserResponse, error)
	EnsureAdmin(ctx context.Context, fullname, username, password string) (bool, error)
}

type userService struct {
	repo   repository.UserRepository
	tokens TokenConfig
	now    func() time.Time
}

// NewUserService returns a new instance of UserService
func NewUserService(repo repository.UserRepository, tokens TokenConfig) UserService {
	return &userService{repo: repo, tokens: tokens, now: time.Now}
}

func validateRole(role string) bool {
	return role == model.RoleAdmin || role == model.RoleApprover || role == model.RoleCdo
}

func mapUserResponse(user *model.User) *UserResponse {
	return &UserResponse{
		ID:        user.ID,
		Fullname:  user.Fullname,
		Username:  user.Username,
		Role:      user.Role,
		IsActive:  user.IsActive,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
		UpdatedAt: user.UpdatedAt.Format(time.RFC3339),
	}
}

func (s *userService) CreateUser(ctx context.Context, req CreateUserRequest) (*UserResponse, error) {
	if !validateRole(req.Role) {
		return nil, workflow.Newf(workflow.ErrInvalidInput, "invalid role: must be %s, %s or %s", model.RoleAdmin, model.RoleApprover, model.RoleCdo)
	}

	username := strings.TrimSpace(req.Username)
	if _, err := s.repo.GetByUsername(ctx, username); err == nil {
		return nil, workflow.Newf(workflow.ErrInvalidInput, "username already exists")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.New("failed to hash password")
	}

	user := &model.User{
		Fullname: strings.TrimSpace(req.Fullname),
		Username: username,
		Password: string(hashedPassword),
		Role:     req.Role,
		IsActive: true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	return mapUserResponse(user), nil
}

func (s *userService) Login(ctx context.Context, req LoginUserRequest) (*TokenResponse, error) {
	user, err := s.repo.GetByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	expiresAt := now.Add(s.tokens.TTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  user.ID.String(),
		"role": user.Role,
		"name": user.Fullname,
		"iss":  s.tokens.Issuer,
		"iat":  now.Unix(),
		"exp":  expiresAt.Unix(),
	})

	tokenString, err := token.SignedString(s.tokens.Secret)
	if err != nil {
		return nil, errors.New("failed to generate token")
	}

	return &TokenResponse{
		Token:     tokenString,
		ExpiresAt: expiresAt.Format(time.RFC3339),
		User:      *mapUserResponse(user),
	}, nil
}

func (s *userService) GetUserByID(ctx context.Context, id uuid.UUID) (*UserResponse, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, workflow.Newf(workflow.ErrSubjectNotFound, "user not found")
		}
		return nil, err
	}
	return mapUserResponse(user), nil
}

func (s *userService) ListUsers(ctx context.Context, page, limit int) ([]UserResponse, int64, error) {
	users, total, err := s.repo.List(ctx, page, limit)
	if err != nil {
		return nil, 0, err
	}

	responses := make([]UserResponse, 0, len(users))
	for i := range users {
		responses = append(responses, *mapUserResponse(&users[i]))
	}
	return responses, total, nil
}

func (s *userService) UpdateUser(ctx context.Context, id uuid.UUID, req UpdateUserRequest) (*UserResponse, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, workflow.Newf(workflow.ErrSubjectNotFound, "user not found")
		}
		return nil, err
	}

	if req.Role != "" {
		if !validateRole(req.Role) {
			return nil, workflow.Newf(workflow.ErrInvalidInput, "invalid role: must be %s, %s or %s", model.RoleAdmin, model.RoleApprover, model.RoleCdo)
		}
		user.Role = req.Role
	}
	if req.Fullname != "" {
		user.Fullname = strings.TrimSpace(req.Fullname)
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, err
	}
	return mapUserResponse(user), nil
}

// EnsureAdmin creates the administrator account unless the username is taken.
// It reports whether a user was created.
func (s *userService) EnsureAdmin(ctx context.Context, fullname, username, password string) (bool, error) {
	if _, err := s.repo.GetByUsername(ctx, username); err == nil {
		return false, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return false, err
	}

	_, err := s.CreateUser(ctx, CreateUserRequest{
		Fullname: fullname,
		Username: username,
		Password: password,
		Role:     model.RoleAdmin,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
