package services

import (
	"errors"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// DuelService exposes the registry over HTTP. It only checks request shape;
// every rule lives in DuelRegistry.
type DuelService struct {
	Registry *DuelRegistry
}

func NewDuelService(registry *DuelRegistry) *DuelService {
	return &DuelService{Registry: registry}
}

type duelPlayerRequest struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type duelSubmitRequest struct {
	UserID        string `json:"userId"`
	PoppedIndices []int  `json:"poppedIndices"`
}

// CreateDuel handles POST /api/duels.
func (s *DuelService) CreateDuel(c *fiber.Ctx) error {
	var req duelPlayerRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.UserID) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "userId required"})
	}

	duel, err := s.Registry.CreateDuel(c.UserContext(), req.UserID, req.Username)
	if err != nil {
		return duelErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{"id": duel.ID, "expiresAt": duel.ExpiresAt})
}

// GetDuel handles GET /api/duels/:id and returns the full record.
func (s *DuelService) GetDuel(c *fiber.Ctx) error {
	duel, err := s.Registry.GetDuel(c.UserContext(), c.Params("id"))
	if err != nil {
		return duelErrorResponse(c, err)
	}
	return c.JSON(duel)
}

// JoinDuel handles POST /api/duels/:id/join.
func (s *DuelService) JoinDuel(c *fiber.Ctx) error {
	var req duelPlayerRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.UserID) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "userId required"})
	}

	duel, err := s.Registry.JoinDuel(c.UserContext(), c.Params("id"), req.UserID, req.Username)
	if err != nil {
		return duelErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{"ok": true, "id": duel.ID})
}

// SubmitDuel handles POST /api/duels/:id/submit. A second submit from the
// same player, or any submit to a completed duel, gets 409 "Already submitted".
func (s *DuelService) SubmitDuel(c *fiber.Ctx) error {
	var req duelSubmitRequest
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.UserID) == "" || req.PoppedIndices == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "userId and poppedIndices required"})
	}

	res, err := s.Registry.Submit(c.UserContext(), c.Params("id"), req.UserID, req.PoppedIndices)
	if err != nil {
		return duelErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{
		"ok":     true,
		"total":  res.Total,
		"status": res.Status,
		"winner": res.Winner,
	})
}

// GetCooldown handles GET /api/duels/cooldowns/:userId.
func (s *DuelService) GetCooldown(c *fiber.Ctx) error {
	remaining, err := s.Registry.CooldownRemaining(c.UserContext(), c.Params("userId"))
	if err != nil {
		return duelErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{"remainingMs": remaining.Milliseconds()})
}

func duelErrorResponse(c *fiber.Ctx, err error) error {
	var cooldown *CooldownError
	switch {
	case errors.As(err, &cooldown):
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error":       "Cooldown active",
			"remainingMs": cooldown.RemainingMs(),
		})
	case errors.Is(err, ErrDuelNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Not found"})
	case errors.Is(err, ErrDuelExpired):
		return c.Status(fiber.StatusGone).JSON(fiber.Map{"error": "Duel expired"})
	case errors.Is(err, ErrDuelFull):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Duel full"})
	case errors.Is(err, ErrAlreadySubmitted):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Already submitted"})
	case errors.Is(err, ErrNotParticipant):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Not a participant"})
	case errors.Is(err, ErrInvalidSubmission):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	log.Printf("❌ [DUEL] %s %s failed: %v", c.Method(), c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "duel request failed",
		"cause": err.Error(),
	})
}
