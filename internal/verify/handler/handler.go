package handler

import (
	"errors"
	"net/http"

	"bankid-service/internal/bankid"
	"bankid-service/internal/logger"
	"bankid-service/internal/session"
	"bankid-service/internal/verify"

	"github.com/gin-gonic/gin"
)

const mismatchMessage = "Identiteten kunde inte verifieras. Försök igen."

type Handler struct {
	service    *verify.Service
	cookieOpts session.CookieOptions
}

func NewHandler(service *verify.Service, secureCookies bool) *Handler {
	return &Handler{
		service: service,
		cookieOpts: session.CookieOptions{
			Path:     "/",
			HttpOnly: true,
			Secure:   secureCookies,
			SameSite: http.SameSiteLaxMode,
		},
	}
}

// RegisterRoutes mounts the verification endpoints. The given
// middleware (rate limiting) applies to initiation only.
func (h *Handler) RegisterRoutes(r *gin.Engine, initiateMiddleware ...gin.HandlerFunc) {
	handlers := append(initiateMiddleware, h.Initiate)
	r.POST("/bankid/initiate", handlers...)
	r.POST("/bankid/collect", h.Collect)
	r.GET("/bankid/status", h.Status)
}

type initiateRequest struct {
	PersonalNumber string `json:"personalNumber"`
	SigningText    string `json:"signingText"`
}

type initiateResponse struct {
	AutoStartToken string `json:"autoStartToken"`
	QRImageURL     string `json:"qrImageUrl"`
	Resumed        bool   `json:"resumed,omitempty"`
}

func (h *Handler) Initiate(c *gin.Context) {
	var req initiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "personalNumber is required",
		})
		return
	}

	priorToken, _ := c.Cookie(session.CookieName)

	res, err := h.service.Initiate(
		c.Request.Context(),
		c.ClientIP(),
		req.PersonalNumber,
		req.SigningText,
		priorToken,
	)

	switch {
	case err == nil:
		// keep the existing cookie on resume

	case errors.Is(err, verify.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "personalNumber is required",
		})
		return

	case errors.Is(err, verify.ErrSessionConflict):
		c.JSON(http.StatusConflict, gin.H{
			"error":      "En signering pågår redan för detta personnummer.",
			"errorType":  "session_conflict",
			"retryAfter": verify.ConflictRetryAfter,
		})
		return

	default:
		logger.Error("initiate failed", map[string]any{
			"error": err.Error(),
		})
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": err.Error(),
		})
		return
	}

	if !res.Resumed {
		session.SetCookie(c.Writer, res.Token, h.cookieOpts)
	}

	c.JSON(http.StatusOK, initiateResponse{
		AutoStartToken: res.AutoStartToken,
		QRImageURL:     res.QRImageURL,
		Resumed:        res.Resumed,
	})
}

type collectResponse struct {
	Status     bankid.Status          `json:"status"`
	HintCode   string                 `json:"hintCode,omitempty"`
	Completion *bankid.CompletionData `json:"completionData,omitempty"`
}

func (h *Handler) Collect(c *gin.Context) {
	token, err := c.Cookie(session.CookieName)
	if err != nil || token == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "no active session",
		})
		return
	}

	res, err := h.service.Collect(c.Request.Context(), token)

	switch {
	case err == nil:

	case errors.Is(err, verify.ErrNoSession):
		session.ClearCookie(c.Writer, h.cookieOpts)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "no active session",
		})
		return

	case errors.Is(err, verify.ErrSessionExpired):
		session.ClearCookie(c.Writer, h.cookieOpts)
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "session expired",
		})
		return

	case errors.Is(err, verify.ErrIdentityMismatch):
		// Deliberately vague: never reveal which field mismatched.
		session.ClearCookie(c.Writer, h.cookieOpts)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": mismatchMessage,
		})
		return

	default:
		logger.Error("collect failed", map[string]any{
			"error": err.Error(),
		})
		session.ClearCookie(c.Writer, h.cookieOpts)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Någonting gick fel. Försök igen.",
		})
		return
	}

	if res.ClearCookie {
		session.ClearCookie(c.Writer, h.cookieOpts)
	}

	c.JSON(http.StatusOK, collectResponse{
		Status:     res.Status,
		HintCode:   res.HintCode,
		Completion: res.Completion,
	})
}

type statusResponse struct {
	HasActiveSession bool          `json:"hasActiveSession"`
	Status           bankid.Status `json:"status,omitempty"`
	HintCode         string        `json:"hintCode,omitempty"`
	QRImageURL       string        `json:"qrImageUrl,omitempty"`
	OrderRef         string        `json:"orderRef,omitempty"`
	PersonalNumber   string        `json:"personalNumber,omitempty"`
}

func (h *Handler) Status(c *gin.Context) {
	token, _ := c.Cookie(session.CookieName)

	res, err := h.service.Status(c.Request.Context(), token)
	if err != nil {
		logger.Error("status probe failed", map[string]any{
			"error": err.Error(),
		})
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Någonting gick fel. Försök igen.",
		})
		return
	}

	if res.ClearCookie {
		session.ClearCookie(c.Writer, h.cookieOpts)
	}

	c.JSON(http.StatusOK, statusResponse{
		HasActiveSession: res.HasActiveSession,
		Status:           res.Status,
		HintCode:         res.HintCode,
		QRImageURL:       res.QRImageURL,
		OrderRef:         res.OrderRef,
		PersonalNumber:   res.PersonalNumber,
	})
}
