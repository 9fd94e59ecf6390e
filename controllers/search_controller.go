package controllers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"trashbin/services"
	"trashbin/utils"
)

type SearchController struct {
	files *services.FileService
}

func NewSearchController(files *services.FileService) *SearchController {
	return &SearchController{files: files}
}

// SearchFiles matches the caller's active files by name. GET ?q=term
func (sc *SearchController) SearchFiles(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		utils.BadRequestResponse(c, "Search query required", nil)
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	files, err := sc.files.Search(ctx, userID, query, queryInt(c, "limit", 50), queryInt(c, "offset", 0))
	if err != nil {
		utils.InternalServerErrorResponse(c, "Search failed", nil)
		return
	}
	utils.SuccessResponse(c, "Search completed", files)
}
