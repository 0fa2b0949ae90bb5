package handler

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/intern-bli-api/internal/dto"
	"github.com/noah-isme/intern-bli-api/internal/models"
	"github.com/noah-isme/intern-bli-api/internal/service"
	appErrors "github.com/noah-isme/intern-bli-api/pkg/errors"
	"github.com/noah-isme/intern-bli-api/pkg/response"
)

// DocumentHandler exposes packet document endpoints.
type DocumentHandler struct {
	documents *service.DocumentService
}

// NewDocumentHandler constructs DocumentHandler.
func NewDocumentHandler(documents *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documents: documents}
}

// Upload godoc
// @Summary Upload a packet document
// @Tags Documents
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Param type formData string true "Document type (BLI_01..BLI_07)"
// @Param file formData file true "Document payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /applications/{id}/documents [post]
func (h *DocumentHandler) Upload(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	data, mediaType, err := readUpload(c, "file")
	if err != nil {
		response.Error(c, err)
		return
	}
	header, _ := c.FormFile("file")
	req := dto.UploadDocumentRequest{
		Type:      models.DocumentType(strings.ToUpper(c.PostForm("type"))),
		FileName:  header.Filename,
		MediaType: mediaType,
		Data:      data,
	}

	doc, err := h.documents.Upload(c.Request.Context(), c.Param("id"), req, claims.UserID, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, doc)
}

// Sign godoc
// @Summary Countersign an approved document
// @Tags Documents
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path string true "Document ID"
// @Param role formData string true "Signer role"
// @Param file formData file true "Signature image"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /documents/{id}/sign [post]
func (h *DocumentHandler) Sign(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	data, mediaType, err := readUpload(c, "file")
	if err != nil {
		response.Error(c, err)
		return
	}
	req := dto.SignDocumentRequest{
		Role:      models.SignerRole(strings.ToUpper(c.PostForm("role"))),
		MediaType: mediaType,
		Data:      data,
	}

	doc, err := h.documents.Sign(c.Request.Context(), c.Param("id"), req, claims, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// DownloadToken godoc
// @Summary Issue a signed download token
// @Tags Documents
// @Produce json
// @Security BearerAuth
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /documents/{id}/download-token [post]
func (h *DocumentHandler) DownloadToken(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	token, err := h.documents.DownloadToken(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, token, nil)
}

// Download godoc
// @Summary Redeem a download token for the payload
// @Tags Documents
// @Produce application/octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Router /documents/download [get]
func (h *DocumentHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "missing download token"))
		return
	}

	doc, file, err := h.documents.Download(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	c.Header("Content-Disposition", `attachment; filename="`+doc.FileName+`"`)
	c.Header("Content-Type", doc.MediaType)
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, file)
}
