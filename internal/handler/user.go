package handler

import (
	"net/http"
	"time"

	"craftchain/internal/config"
	"craftchain/internal/dto"
	"craftchain/internal/middleware"
	"craftchain/internal/model"
	"craftchain/internal/service"

	"github.com/labstack/echo/v4"
)

type UserHandler struct {
	userService service.UserService
	auth        config.Auth
}

func NewUserHandler(userService service.UserService, auth config.Auth) *UserHandler {
	if auth.TokenTTL <= 0 {
		auth.TokenTTL = 12 * time.Hour
	}
	return &UserHandler{
		userService: userService,
		auth:        auth,
	}
}

func (h *UserHandler) Register(c echo.Context) error {
	var req dto.RegisterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	user, err := h.userService.Register(c.Request().Context(), service.RegisterRequest{
		Credential: credential(req.Method, req.Email, req.Password, req.Phone, req.WalletAddress),
		Name:       req.Name,
		UserType:   model.UserType(req.UserType),
		Bio:        req.Bio,
	})
	if err != nil {
		return err
	}

	return h.respondWithToken(c, http.StatusCreated, user)
}

func (h *UserHandler) Login(c echo.Context) error {
	var req dto.LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	user, err := h.userService.Login(c.Request().Context(),
		credential(req.Method, req.Email, req.Password, req.Phone, req.WalletAddress))
	if err != nil {
		return err
	}

	return h.respondWithToken(c, http.StatusOK, user)
}

func (h *UserHandler) Me(c echo.Context) error {
	userID := middleware.UserID(c)
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
	}

	user, err := h.userService.Get(c.Request().Context(), userID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, &dto.UserResponse{Success: true, User: user})
}

// respondWithToken omits the token when no signing secret is configured.
func (h *UserHandler) respondWithToken(c echo.Context, status int, user *model.User) error {
	res := &dto.AuthResponse{Success: true, User: user}
	if h.auth.JWTSecret != "" {
		token, expiresAt, err := middleware.IssueToken(h.auth.JWTSecret, user.ID, user.Wallet(), h.auth.TokenTTL, time.Now())
		if err != nil {
			return err
		}
		res.Token, res.ExpiresAt = token, &expiresAt
	}
	return c.JSON(status, res)
}

// credential maps the request fields onto a service credential. A nil
// result is rejected by the service.
func credential(method, email, password, phone, wallet string) service.Credential {
	switch method {
	case "email":
		return service.EmailCredential{Email: email, Password: password}
	case "phone":
		return service.PhoneCredential{Phone: phone}
	case "wallet":
		return service.WalletCredential{Address: wallet}
	case "":
		if phone != "" {
			return service.PhoneCredential{Phone: phone}
		}
		if wallet != "" {
			return service.WalletCredential{Address: wallet}
		}
	}
	return nil
}
