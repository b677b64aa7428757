package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	internalS3 "geargrid/adapters/s3"
	"geargrid/listing"
	"geargrid/models"
)

type createCarRequest struct {
	CarData listing.Fields `json:"carData"`
	Images  []string       `json:"images"`
}

type createCarResponse struct {
	Car      *models.Car             `json:"car"`
	Failures []listing.UploadFailure `json:"failures,omitempty"`
}

// pathID 解析路徑中的 uuid，格式錯誤時直接回應 400
func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, fmt.Sprintf("invalid %s", name))
		return uuid.Nil, false
	}
	return id, true
}

// Search listings
// (GET /cars?search=)
func (impl *ServerImpl) searchCars(c *gin.Context) {
	cars, err := impl.listings.Search(c.Request.Context(), c.Query("search"))
	if err != nil {
		impl.respondError(c, "SearchCars", err)
		return
	}
	respondData(c, http.StatusOK, cars)
}

// Get a listing
// (GET /cars/:id)
func (impl *ServerImpl) getCar(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	car, err := impl.listings.Get(c.Request.Context(), id)
	if err != nil {
		impl.respondError(c, "GetCar", err)
		return
	}
	respondData(c, http.StatusOK, car)
}

// Extract listing fields from a photo
// (POST /admin/cars/analyze)
func (impl *ServerImpl) analyzeImage(c *gin.Context) {
	const op = "AnalyzeImage"
	ctx := c.Request.Context()
	header, err := c.FormFile("image")
	if err != nil {
		badRequest(c, "image file is required")
		return
	}
	file, err := header.Open()
	if err != nil {
		impl.respondError(c, op, fmt.Errorf("[%s] Fail to open upload, err=%w", op, err))
		return
	}
	defer file.Close()

	// 限制圖片小於5MB
	data, err := io.ReadAll(internalS3.NewMaxSizeReader(file, listing.MaxImageBytes))
	var limitErr *internalS3.ReachLimitError
	if errors.As(err, &limitErr) {
		badRequest(c, err.Error())
		return
	}
	if err != nil {
		impl.respondError(c, op, fmt.Errorf("[%s] Fail to read image, err=%w", op, err))
		return
	}
	candidate, err := impl.classifier.Classify(ctx, listing.Image{
		Data:      data,
		MediaType: http.DetectContentType(data),
	})
	if err != nil {
		impl.respondError(c, op, err)
		return
	}
	respondData(c, http.StatusOK, candidate)
}

// Create a listing
// (POST /admin/cars)
func (impl *ServerImpl) createCar(c *gin.Context) {
	var request createCarRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	result, err := impl.listings.Create(c.Request.Context(), request.CarData, request.Images)
	if err != nil {
		impl.respondError(c, "CreateCar", err)
		return
	}
	respondData(c, http.StatusCreated, createCarResponse{Car: result.Car, Failures: result.Failures})
}

// Update status or featured flag
// (PATCH /admin/cars/:id)
func (impl *ServerImpl) patchCar(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var patch listing.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if err := impl.listings.UpdateStatus(c.Request.Context(), id, patch); err != nil {
		impl.respondError(c, "PatchCar", err)
		return
	}
	respondData(c, http.StatusOK, nil)
}

// Delete a listing
// (DELETE /admin/cars/:id)
func (impl *ServerImpl) deleteCar(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := impl.listings.Delete(c.Request.Context(), id); err != nil {
		impl.respondError(c, "DeleteCar", err)
		return
	}
	respondData(c, http.StatusOK, nil)
}
