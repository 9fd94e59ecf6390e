package controllers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"trashbin/models"
	"trashbin/services"
	"trashbin/utils"
)

type FileController struct {
	files *services.FileService
}

func NewFileController(files *services.FileService) *FileController {
	return &FileController{files: files}
}

// UploadFiles stores every part of the files[] field. Uploads run on the
// request context since large blobs outlive the default handler timeout.
func (fc *FileController) UploadFiles(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		utils.BadRequestResponse(c, "Invalid multipart form", nil)
		return
	}
	headers := form.File["files[]"]
	if len(headers) == 0 {
		utils.BadRequestResponse(c, "No files provided", nil)
		return
	}

	uploaded := make([]*models.File, 0, len(headers))
	for _, header := range headers {
		src, err := header.Open()
		if err != nil {
			utils.BadRequestResponse(c, "Failed to read file: "+header.Filename, nil)
			return
		}
		file, err := fc.files.Upload(c.Request.Context(), services.UploadInput{
			OwnerID:  userID,
			Filename: header.Filename,
			MimeType: header.Header.Get("Content-Type"),
			Size:     header.Size,
			Content:  src,
		})
		src.Close()
		if err != nil {
			switch {
			case errors.Is(err, services.ErrFileTooLarge):
				utils.PayloadTooLargeResponse(c, "File exceeds size limit: "+header.Filename)
			case errors.Is(err, utils.ErrInvalidFileName):
				utils.BadRequestResponse(c, err.Error(), nil)
			case errors.Is(err, services.ErrBlobStoreDisabled):
				utils.ServiceUnavailableResponse(c, "File storage is not configured")
			default:
				utils.InternalServerErrorResponse(c, "Failed to upload file: "+header.Filename, nil)
			}
			return
		}
		uploaded = append(uploaded, file)
	}

	utils.CreatedResponse(c, "Files uploaded successfully", uploaded)
}

func (fc *FileController) GetAllFiles(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	files, err := fc.files.List(ctx, userID, queryInt(c, "limit", 50), queryInt(c, "offset", 0))
	if err != nil {
		utils.InternalServerErrorResponse(c, "Failed to get files", nil)
		return
	}
	utils.SuccessResponse(c, "Files retrieved", files)
}

// GetFile returns the metadata and, with blob storage enabled, a signed
// download url.
func (fc *FileController) GetFile(c *gin.Context) {
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

	file, err := fc.files.Get(ctx, userID, fileID)
	if err != nil {
		fileError(c, err, "Failed to get file")
		return
	}
	resp := gin.H{"file": file}
	if url, err := fc.files.DownloadURL(ctx, userID, fileID); err == nil {
		resp["download_url"] = url
	}
	utils.SuccessResponse(c, "File retrieved", resp)
}

// DeleteFile moves the file to the trash.
func (fc *FileController) DeleteFile(c *gin.Context) {
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

	file, err := fc.files.Delete(ctx, userID, fileID)
	if err != nil {
		fileError(c, err, "Failed to delete file")
		return
	}
	utils.SuccessResponse(c, "File moved to trash", gin.H{"id": file.ID, "deleted_at": file.DeletedAt})
}

func fileError(c *gin.Context, err error, message string) {
	if errors.Is(err, services.ErrFileNotFound) {
		utils.NotFoundResponse(c, "File not found")
		return
	}
	utils.InternalServerErrorResponse(c, message, nil)
}
