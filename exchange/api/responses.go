package api

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

type successResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type paginationInfo struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Total    int `json:"total"`
}

type paginatedResponse struct {
	Success    bool           `json:"success"`
	Data       interface{}    `json:"data"`
	Pagination paginationInfo `json:"pagination"`
}

func sendSuccess(c *fiber.Ctx, data interface{}) error {
	return c.Status(http.StatusOK).JSON(successResponse{Success: true, Data: data})
}

func sendCreated(c *fiber.Ctx, data interface{}) error {
	return c.Status(http.StatusCreated).JSON(successResponse{Success: true, Data: data})
}

func sendMessage(c *fiber.Ctx, message string) error {
	return c.Status(http.StatusOK).JSON(successResponse{Success: true, Message: message})
}

func sendPaginated(c *fiber.Ctx, data interface{}, page, pageSize, total int) error {
	return c.Status(http.StatusOK).JSON(paginatedResponse{
		Success: true,
		Data:    data,
		Pagination: paginationInfo{
			Page:     page,
			PageSize: pageSize,
			Total:    total,
		},
	})
}

func sendError(c *fiber.Ctx, statusCode int, code, message string) error {
	return c.Status(statusCode).JSON(errorResponse{Success: false, Code: code, Message: message})
}
