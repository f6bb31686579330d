package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/wjixiang/aikb/handlers"
)

func RegisterDocumentRoutes(app *fiber.App, handler *handlers.DocHandler) {
	document := app.Group("api/pdf")
	document.Post("/upload", handler.RequestUpload)
	document.Post("/:doc_id/confirm", handler.ConfirmUpload)
	document.Get("/:doc_id/status", handler.GetStatus)
	document.Get("/:doc_id/markdown", handler.GetMarkdown)
	document.Get("/:doc_id/sections", handler.GetSections)
}
