package controllers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"trashbin/services"
	"trashbin/utils"
)

type TrashController struct {
	trash *services.TrashService
}

type RestoreItemRequest struct {
	ID   string `json:"id" binding:"required"`
	Type string `json:"type" binding:"required,oneof=file"`
}

type RestoreMultipleRequest struct {
	Items []RestoreItemRequest `json:"items" binding:"required,min=1,dive"`
}

func NewTrashController(trash *services.TrashService) *TrashController {
	return &TrashController{trash: trash}
}

// GetTrashItems lists the caller's trashed files with their purge dates.
func (tc *TrashController) GetTrashItems(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	items, err := tc.trash.List(ctx, userID, queryInt(c, "limit", 50), queryInt(c, "offset", 0))
	if err != nil {
		utils.InternalServerErrorResponse(c, "Failed to get trash items", nil)
		return
	}
	utils.SuccessResponse(c, "Trash items retrieved", items)
}

func (tc *TrashController) RestoreFromTrash(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	fileID, ok := pathObjectID(c, "id")
	if !ok {
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	file, err := tc.trash.RestoreFile(ctx, userID, fileID)
	if err != nil {
		if errors.Is(err, services.ErrNotInTrash) {
			utils.NotFoundResponse(c, "Item not found in trash")
			return
		}
		utils.InternalServerErrorResponse(c, "Failed to restore item", nil)
		return
	}
	utils.SuccessResponse(c, "File restored successfully", file)
}

func (tc *TrashController) RestoreMultipleItems(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	var req RestoreMultipleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	items := make([]services.RestoreItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, services.RestoreItem{ID: it.ID, Type: it.Type})
	}

	ctx, cancel := requestContext(c)
	defer cancel()
	results := tc.trash.RestoreMultipleItems(ctx, userID, items)

	restored := 0
	for _, r := range results {
		if r.Success {
			restored++
		}
	}
	utils.SuccessResponse(c, "Restore completed", gin.H{
		"results":  results,
		"restored": restored,
		"failed":   len(results) - restored,
	})
}
