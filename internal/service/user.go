package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"craftchain/internal/apperr"
	"craftchain/internal/config"
	"craftchain/internal/model"
	"craftchain/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Credential identifies an account. It is one of EmailCredential,
// PhoneCredential or WalletCredential.
type Credential interface {
	method() string
}

type EmailCredential struct {
	Email    string
	Password string
}

// PhoneCredential is trusted as given: the phone number is expected to be
// verified upstream by an OTP exchange.
type PhoneCredential struct {
	Phone string
}

type WalletCredential struct {
	Address string
}

func (EmailCredential) method() string  { return "email" }
func (PhoneCredential) method() string  { return "phone" }
func (WalletCredential) method() string { return "wallet" }

type RegisterRequest struct {
	Credential Credential
	Name       string
	UserType   model.UserType
	Bio        string
}

type UserService interface {
	Register(ctx context.Context, req RegisterRequest) (*model.User, error)
	Login(ctx context.Context, cred Credential) (*model.User, error)
	Get(ctx context.Context, userID string) (*model.User, error)
}

type userServiceImpl struct {
	userRepo   repository.UserRepository
	bcryptCost int
	log        *zap.Logger
	now        func() time.Time
}

func NewUserService(cfg *config.Config, userRepo repository.UserRepository, log *zap.Logger) UserService {
	cost := cfg.Auth.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &userServiceImpl{
		userRepo:   userRepo,
		bcryptCost: cost,
		log:        log,
		now:        time.Now,
	}
}

func (s *userServiceImpl) Register(ctx context.Context, req RegisterRequest) (*model.User, error) {
	const op = "register"

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.New(apperr.InvalidArgument, op, "name is required")
	}
	userType := req.UserType
	switch userType {
	case "":
		userType = model.UserTypeBuyer
	case model.UserTypeBuyer, model.UserTypeArtisan:
	default:
		return nil, apperr.New(apperr.InvalidArgument, op, "unknown user type %q", userType)
	}

	user := &model.User{
		ID:        uuid.NewString(),
		Name:      name,
		UserType:  userType,
		Bio:       strings.TrimSpace(req.Bio),
		CreatedAt: s.now().UTC(),
	}

	var err error
	switch c := req.Credential.(type) {
	case EmailCredential:
		err = s.enrollEmail(c, user)
	case PhoneCredential:
		err = enrollPhone(c, user)
	case WalletCredential:
		err = enrollWallet(c, user)
	default:
		err = apperr.New(apperr.InvalidArgument, op, "an email, phone or wallet credential is required")
	}
	if err != nil {
		return nil, err
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, apperr.Conflict) {
			return nil, apperr.New(apperr.Conflict, op, "%s already registered", req.Credential.method())
		}
		return nil, err
	}

	s.log.Info("user registered",
		zap.String("userId", user.ID),
		zap.String("method", req.Credential.method()),
		zap.String("userType", string(user.UserType)))
	return user, nil
}

func (s *userServiceImpl) enrollEmail(c EmailCredential, user *model.User) error {
	email, err := normalizeEmail(c.Email)
	if err != nil {
		return err
	}
	if c.Password == "" {
		return apperr.New(apperr.InvalidArgument, "register", "password is required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(c.Password), s.bcryptCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return apperr.Wrap(apperr.InvalidArgument, "register", err)
	}
	if err != nil {
		return err
	}

	user.Email = &email
	user.PasswordHash = string(hash)
	return nil
}

func enrollPhone(c PhoneCredential, user *model.User) error {
	phone, err := normalizePhone(c.Phone)
	if err != nil {
		return err
	}
	user.Phone = &phone
	user.PhoneVerified = true
	return nil
}

func enrollWallet(c WalletCredential, user *model.User) error {
	address, err := normalizeWallet(c.Address)
	if err != nil {
		return err
	}
	user.WalletAddress = &address
	return nil
}

// Login resolves cred to its account and records the login time.
func (s *userServiceImpl) Login(ctx context.Context, cred Credential) (*model.User, error) {
	var (
		user *model.User
		err  error
	)
	switch c := cred.(type) {
	case EmailCredential:
		user, err = s.resolveEmail(ctx, c)
	case PhoneCredential:
		user, err = s.resolvePhone(ctx, c)
	case WalletCredential:
		user, err = s.resolveWallet(ctx, c)
	default:
		return nil, apperr.New(apperr.InvalidArgument, "login", "an email, phone or wallet credential is required")
	}
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if err := s.userRepo.RecordLogin(ctx, user.ID, now); err != nil {
		s.log.Warn("recording login failed", zap.String("userId", user.ID), zap.Error(err))
	} else {
		user.LastLoginAt = &now
	}

	s.log.Info("user logged in", zap.String("userId", user.ID), zap.String("method", cred.method()))
	return user, nil
}

func (s *userServiceImpl) resolveEmail(ctx context.Context, c EmailCredential) (*model.User, error) {
	email, err := normalizeEmail(c.Email)
	if err != nil {
		return nil, err
	}
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user.PasswordHash == "" {
		return nil, apperr.New(apperr.Unauthenticated, "login", "invalid password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(c.Password)); err != nil {
		return nil, apperr.New(apperr.Unauthenticated, "login", "invalid password")
	}
	return user, nil
}

func (s *userServiceImpl) resolvePhone(ctx context.Context, c PhoneCredential) (*model.User, error) {
	phone, err := normalizePhone(c.Phone)
	if err != nil {
		return nil, err
	}
	return s.userRepo.FindByPhone(ctx, phone)
}

func (s *userServiceImpl) resolveWallet(ctx context.Context, c WalletCredential) (*model.User, error) {
	address, err := normalizeWallet(c.Address)
	if err != nil {
		return nil, err
	}
	return s.userRepo.FindByWallet(ctx, address)
}

func (s *userServiceImpl) Get(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, apperr.New(apperr.InvalidArgument, "get user", "user id is required")
	}
	return s.userRepo.FindByID(ctx, userID)
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperr.New(apperr.InvalidArgument, "email", "invalid email address %q", raw)
	}
	return email, nil
}

func normalizePhone(raw string) (string, error) {
	phone := strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
	if phone == "" {
		return "", apperr.New(apperr.InvalidArgument, "phone", "phone number is required")
	}
	return phone, nil
}

// normalizeWallet lowercases the address so checksummed and plain forms match.
func normalizeWallet(raw string) (string, error) {
	address := strings.ToLower(strings.TrimSpace(raw))
	if address == "" {
		return "", apperr.New(apperr.InvalidArgument, "wallet", "wallet address is required")
	}
	return address, nil
}
