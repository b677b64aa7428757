package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"geargrid/listing"
	"geargrid/models"
)

type updateTestDriveRequest struct {
	Status models.BookingStatus `json:"status"`
}

// Book a test drive
// (POST /cars/:id/test-drives)
func (impl *ServerImpl) bookTestDrive(c *gin.Context) {
	carID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var request listing.BookingRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	booking, err := impl.reservations.Book(c.Request.Context(), carID, request)
	if err != nil {
		impl.respondError(c, "BookTestDrive", err)
		return
	}
	respondData(c, http.StatusCreated, booking)
}

// List own bookings
// (GET /reservations)
func (impl *ServerImpl) listReservations(c *gin.Context) {
	bookings, err := impl.reservations.ListMine(c.Request.Context())
	if err != nil {
		impl.respondError(c, "ListReservations", err)
		return
	}
	respondData(c, http.StatusOK, bookings)
}

// Cancel a booking
// (POST /reservations/:id/cancel)
func (impl *ServerImpl) cancelReservation(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := impl.reservations.Cancel(c.Request.Context(), id); err != nil {
		impl.respondError(c, "CancelReservation", err)
		return
	}
	respondData(c, http.StatusOK, nil)
}

// Update booking status
// (PATCH /admin/test-drives/:id)
func (impl *ServerImpl) updateTestDrive(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var request updateTestDriveRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if err := impl.reservations.UpdateStatus(c.Request.Context(), id, request.Status); err != nil {
		impl.respondError(c, "UpdateTestDrive", err)
		return
	}
	respondData(c, http.StatusOK, nil)
}
