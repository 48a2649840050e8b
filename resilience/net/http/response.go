package http

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// ErrorResponse is the JSON error body every handler returns on failure.
type ErrorResponse struct {
	Code    string `json:"code"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// OK sends an HTTP 200 response with a JSON body.
func OK(c *fiber.Ctx, body any) error {
	return c.Status(http.StatusOK).JSON(body)
}

// Accepted sends an HTTP 202 response with a JSON body.
func Accepted(c *fiber.Ctx, body any) error {
	return c.Status(http.StatusAccepted).JSON(body)
}

// NoContent sends an HTTP 204 response without a body.
func NoContent(c *fiber.Ctx) error {
	return c.SendStatus(http.StatusNoContent)
}

// BadRequest sends an HTTP 400 response with an error body.
func BadRequest(c *fiber.Ctx, code, title, message string) error {
	return errorJSON(c, http.StatusBadRequest, code, title, message)
}

// NotFound sends an HTTP 404 response with an error body.
func NotFound(c *fiber.Ctx, code, title, message string) error {
	return errorJSON(c, http.StatusNotFound, code, title, message)
}

// Conflict sends an HTTP 409 response with an error body.
func Conflict(c *fiber.Ctx, code, title, message string) error {
	return errorJSON(c, http.StatusConflict, code, title, message)
}

// InternalServerError sends an HTTP 500 response with an error body.
func InternalServerError(c *fiber.Ctx, code, title, message string) error {
	return errorJSON(c, http.StatusInternalServerError, code, title, message)
}

func errorJSON(c *fiber.Ctx, status int, code, title, message string) error {
	return c.Status(status).JSON(ErrorResponse{
		Code:    code,
		Title:   title,
		Message: message,
	})
}
