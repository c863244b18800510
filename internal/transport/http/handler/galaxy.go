package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Johnnas12/chatbot-ui-galaxy/internal/app"
	"github.com/Johnnas12/chatbot-ui-galaxy/internal/galaxy"
	"github.com/Johnnas12/chatbot-ui-galaxy/internal/transport/http/response"
)

type GalaxyHandler struct {
	galaxyService *app.GalaxyService
}

type GalaxyConnectRequest struct {
	BaseURL string `json:"base_url" binding:"required,url"`
	APIKey  string `json:"api_key" binding:"required"`
}

type CreateHistoryRequest struct {
	Name string `json:"name" binding:"required,max=256"`
}

func NewGalaxyHandler(galaxyService *app.GalaxyService) *GalaxyHandler {
	return &GalaxyHandler{galaxyService: galaxyService}
}

func (h *GalaxyHandler) Connect(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req GalaxyConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	result, err := h.galaxyService.Connect(c.Request.Context(), userID, req.BaseURL, req.APIKey)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, galaxy.ErrNoToken):
			response.Error(c, http.StatusBadGateway, response.CodeGalaxyUpstream, err.Error())
		default:
			response.Error(c, http.StatusBadGateway, response.CodeGalaxyUpstream, "failed to connect to galaxy")
		}
		return
	}

	response.OK(c, result)
}

func (h *GalaxyHandler) Disconnect(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	if err := h.galaxyService.Disconnect(c.Request.Context(), userID); err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "disconnect failed")
		return
	}
	response.OK(c, gin.H{"connected": false})
}

func (h *GalaxyHandler) Status(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	status, err := h.galaxyService.Status(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "status check failed")
		return
	}
	response.OK(c, status)
}

func (h *GalaxyHandler) ListHistories(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	histories, err := h.galaxyService.Histories(c.Request.Context(), userID)
	if err != nil {
		h.galaxyError(c, err, "failed to fetch galaxy histories")
		return
	}
	response.OK(c, histories)
}

func (h *GalaxyHandler) CreateHistory(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	var req CreateHistoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	histories, err := h.galaxyService.CreateHistory(c.Request.Context(), userID, req.Name)
	if err != nil {
		h.galaxyError(c, err, "failed to create galaxy history")
		return
	}
	response.OK(c, histories)
}

func (h *GalaxyHandler) HistoryContents(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	contents, err := h.galaxyService.HistoryContents(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.galaxyError(c, err, "failed to fetch history contents")
		return
	}
	response.OK(c, contents)
}

func (h *GalaxyHandler) SelectHistory(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	contents, err := h.galaxyService.SelectHistory(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.galaxyError(c, err, "failed to select history")
		return
	}
	response.OK(c, gin.H{
		"selected_history_id": c.Param("id"),
		"contents":            contents,
	})
}

func (h *GalaxyHandler) UploadFile(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "unreadable file")
		return
	}
	defer file.Close()

	message, contents, err := h.galaxyService.UploadFile(c.Request.Context(), userID, c.Param("id"), fileHeader.Filename, file)
	if err != nil {
		h.galaxyError(c, err, "failed to upload file")
		return
	}
	response.OK(c, gin.H{
		"message":  message,
		"contents": contents,
	})
}

func (h *GalaxyHandler) UploadCollection(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid multipart form")
		return
	}

	fileHeaders := form.File["files"]
	if len(fileHeaders) == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing files")
		return
	}

	parts := make([]galaxy.UploadPart, 0, len(fileHeaders))
	var opened []io.Closer
	defer func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}()
	for _, fh := range fileHeaders {
		f, openErr := fh.Open()
		if openErr != nil {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "unreadable file")
			return
		}
		opened = append(opened, f)
		parts = append(parts, galaxy.UploadPart{Filename: fh.Filename, Content: f})
	}

	message, contents, err := h.galaxyService.UploadCollection(
		c.Request.Context(),
		userID,
		c.Param("id"),
		parts,
		c.PostForm("collection_type"),
		c.PostForm("collection_name"),
		c.PostForm("structure"),
	)
	if err != nil {
		h.galaxyError(c, err, "failed to upload collection")
		return
	}
	response.OK(c, gin.H{
		"message":  message,
		"contents": contents,
	})
}

// Download proxies the artifact blob through, preserving the filename from
// the upstream content-disposition header.
func (h *GalaxyHandler) Download(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "invalid token payload")
		return
	}

	datasetID := c.Query("dataset_ids")
	collectionID := c.Query("collection_ids")

	var result *galaxy.DownloadResult
	var err error
	switch {
	case datasetID != "":
		result, err = h.galaxyService.DownloadDataset(c.Request.Context(), userID, datasetID)
	case collectionID != "":
		result, err = h.galaxyService.DownloadCollection(c.Request.Context(), userID, collectionID)
	default:
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing dataset_ids or collection_ids")
		return
	}
	if err != nil {
		h.galaxyError(c, err, "failed to download")
		return
	}
	defer result.Body.Close()

	contentType := result.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	c.DataFromReader(http.StatusOK, -1, contentType, result.Body, nil)
}

func (h *GalaxyHandler) galaxyError(c *gin.Context, err error, generic string) {
	switch {
	case errors.Is(err, app.ErrInvalidInput):
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
	case errors.Is(err, app.ErrGalaxyNotConnected):
		response.Error(c, http.StatusBadRequest, response.CodeGalaxyNotConnected, err.Error())
	default:
		response.Error(c, http.StatusBadGateway, response.CodeGalaxyUpstream, generic)
	}
}
