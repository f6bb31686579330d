package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/wjixiang/aikb/models"
	"github.com/wjixiang/aikb/services"
)

type DocHandler struct {
	docService *services.DocumentService
}

func NewDocHandler(docService *services.DocumentService) *DocHandler {
	return &DocHandler{docService: docService}
}

func (h *DocHandler) RequestUpload(c *fiber.Ctx) error {
	var req models.UploadReq
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request"})
	}
	if req.FileName == "" {
		return c.Status(400).JSON(fiber.Map{"error": "file_name required"})
	}

	res, err := h.docService.RequestUpload(c.Context(), req)
	if err != nil {
		if strings.Contains(err.Error(), "file too large") ||
			strings.Contains(err.Error(), "unsupported file type") {
			return c.Status(400).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(500).JSON(fiber.Map{"error": "Failed to prepare upload"})
	}
	return c.JSON(res)
}

func (h *DocHandler) ConfirmUpload(c *fiber.Ctx) error {
	var req models.ConfirmUploadReq
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request"})
	}
	req.DocId = c.Params("doc_id")

	res, err := h.docService.ConfirmUpload(c.Context(), req)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "Document not found"})
		}
		if strings.Contains(err.Error(), "already submitted") ||
			strings.Contains(err.Error(), "does not exist in storage") {
			return c.Status(409).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(500).JSON(fiber.Map{"error": "Failed to confirm upload"})
	}
	return c.JSON(res)
}

func (h *DocHandler) GetStatus(c *fiber.Ctx) error {
	docID := c.Params("doc_id")
	res, err := h.docService.GetStatus(c.Context(), docID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "Document not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "Failed to read status"})
	}
	return c.JSON(res)
}

func (h *DocHandler) GetMarkdown(c *fiber.Ctx) error {
	docID := c.Params("doc_id")
	markdown, err := h.docService.GetMarkdown(c.Context(), docID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "Document not found"})
		}
		if strings.Contains(err.Error(), "not completed") {
			return c.Status(409).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(500).JSON(fiber.Map{"error": "Failed to read markdown"})
	}
	return c.JSON(fiber.Map{
		"doc_id":   docID,
		"markdown": markdown,
	})
}

func (h *DocHandler) GetSections(c *fiber.Ctx) error {
	docID := c.Params("doc_id")
	sections, err := h.docService.GetSections(c.Context(), docID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "Document not found"})
		}
		return c.Status(500).JSON(fiber.Map{"error": "Failed to read sections"})
	}
	return c.JSON(fiber.Map{
		"doc_id":   docID,
		"sections": sections,
	})
}
