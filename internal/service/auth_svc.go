package service

import (
	"context"
	"errors"
	"log"

	"golang.org/x/crypto/bcrypt"

	"resale_sync_v1_202609/internal/middleware"
	"resale_sync_v1_202609/internal/model"
	"resale_sync_v1_202609/internal/repository"
)

// ==================== UserService ====================

// ErrInvalidCredentials 用户名或密码错误
// 登录失败统一返回该错误，不区分账号不存在与密码错误
var ErrInvalidCredentials = errors.New("用户名或密码错误")

// TokenPair 登录成功返回的令牌对
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// UserService 操作员账号服务
type UserService struct {
	userRepo repository.UserRepository
}

// NewUserService 创建用户服务
func NewUserService(userRepo repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo}
}

// Login 校验用户名密码并签发令牌对
func (s *UserService) Login(ctx context.Context, username, password string) (*TokenPair, *model.SysUser, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, nil, errors.New("账号已停用")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	access, refresh, err := middleware.GenerateTokenPair(user.ID, user.Username, user.Role)
	if err != nil {
		return nil, nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, user, nil
}

// RefreshToken 用 Refresh Token 换新令牌对
func (s *UserService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := middleware.ParseToken(refreshToken)
	if err != nil || claims.Subject != "refresh" {
		return nil, errors.New("Refresh Token 无效或已过期")
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil || !user.IsActive {
		return nil, errors.New("账号不存在或已停用")
	}

	access, refresh, err := middleware.GenerateTokenPair(user.ID, user.Username, user.Role)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// GetProfile 当前用户信息
func (s *UserService) GetProfile(ctx context.Context, userID int64) (*model.SysUser, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.Password = ""
	return user, nil
}

// EnsureAdmin 确保存在管理员账号（首次部署引导）
func (s *UserService) EnsureAdmin(ctx context.Context, username, password string) error {
	if _, err := s.userRepo.GetByUsername(ctx, username); err == nil {
		return nil
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.userRepo.Create(ctx, &model.SysUser{
		Username: username,
		Password: string(hashed),
		Role:     "admin",
		IsActive: true,
	}); err != nil {
		return err
	}
	log.Printf("[UserService] 已创建初始管理员账号: %s", username)
	return nil
}
