package listing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"geargrid/models"
)

const bookingDateLayout = "2006-01-02"

var clockTime = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// Reservations 管理試駕預約
type Reservations struct {
	auth     Authenticator
	cars     CarRepository
	bookings BookingRepository
	newID    func() (uuid.UUID, error)
	logger   *slog.Logger
}

func NewReservations(auth Authenticator, cars CarRepository, bookings BookingRepository, logger *slog.Logger) *Reservations {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reservations{
		auth:     auth,
		cars:     cars,
		bookings: bookings,
		newID:    uuid.NewV7,
		logger:   logger.With(slog.String("caller", "Reservations")),
	}
}

func validateBooking(req BookingRequest) (time.Time, error) {
	var invalid []string
	date, err := time.Parse(bookingDateLayout, strings.TrimSpace(req.Date))
	if err != nil {
		invalid = append(invalid, "bookingDate")
	}
	startOK := clockTime.MatchString(req.StartTime)
	endOK := clockTime.MatchString(req.EndTime)
	if !startOK {
		invalid = append(invalid, "startTime")
	}
	if !endOK {
		invalid = append(invalid, "endTime")
	}
	if len(invalid) > 0 {
		return time.Time{}, &ValidationError{Fields: invalid, Message: "invalid booking request"}
	}
	// HH:MM 固定長度，可直接比較字串
	if req.StartTime >= req.EndTime {
		return time.Time{}, &ValidationError{Fields: []string{"startTime", "endTime"}, Message: "start time must be before end time"}
	}
	return date, nil
}

// Book 為目前使用者預約試駕；同一台車同一天同一開始時間只能有一筆有效預約
func (r *Reservations) Book(ctx context.Context, carID uuid.UUID, req BookingRequest) (*models.TestDriveBooking, error) {
	const op = "Book"
	actor, err := requireActor(ctx, r.auth)
	if err != nil {
		return nil, err
	}
	date, err := validateBooking(req)
	if err != nil {
		return nil, err
	}
	car, err := r.cars.GetCar(ctx, carID)
	if err != nil {
		return nil, err
	}
	if car.Status != models.CarStatusAvailable {
		return nil, &ValidationError{Fields: []string{"carId"}, Message: "car is not available for test drives"}
	}
	taken, err := r.bookings.SlotTaken(ctx, carID, date.Format(bookingDateLayout), req.StartTime)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to check slot, err=%w", op, err)
	}
	if taken {
		return nil, &ConflictError{Message: "this time slot is already booked"}
	}

	id, err := r.newID()
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to generate booking id, err=%w", op, err)
	}
	booking := &models.TestDriveBooking{
		ID:          id,
		CarID:       carID,
		UserID:      actor.ID,
		BookingDate: date,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Status:      models.BookingStatusPending,
		Notes:       strings.TrimSpace(req.Notes),
	}
	// 並行預約同一時段時，由儲存層的唯一限制決定誰成功
	if err := r.bookings.CreateBooking(ctx, booking); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("[%s] Fail to create booking, err=%w", op, err)
	}
	r.logger.Info("Test drive booked", slog.String("bookingID", id.String()), slog.String("carID", carID.String()))
	return booking, nil
}

// ListMine 列出目前使用者的預約，日期新到舊
func (r *Reservations) ListMine(ctx context.Context) ([]models.TestDriveBooking, error) {
	actor, err := requireActor(ctx, r.auth)
	if err != nil {
		return nil, err
	}
	bookings, err := r.bookings.ListBookingsByUser(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("[ListMine] Fail to list bookings, err=%w", err)
	}
	if bookings == nil {
		bookings = []models.TestDriveBooking{}
	}
	return bookings, nil
}

// Cancel 由預約者本人或管理員取消仍有效的預約
func (r *Reservations) Cancel(ctx context.Context, bookingID uuid.UUID) error {
	const op = "Cancel"
	actor, err := requireActor(ctx, r.auth)
	if err != nil {
		return err
	}
	booking, err := r.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if booking.UserID != actor.ID && !actor.IsAdmin() {
		return &ForbiddenError{Action: "cancel this booking"}
	}
	if !booking.Status.Active() {
		return &ValidationError{Fields: []string{"status"}, Message: fmt.Sprintf("cannot cancel a %s booking", booking.Status)}
	}
	if err := r.bookings.UpdateBookingStatus(ctx, bookingID, models.BookingStatusCancelled); err != nil {
		return fmt.Errorf("[%s] Fail to cancel booking, err=%w", op, err)
	}
	return nil
}

func (r *Reservations) UpdateStatus(ctx context.Context, bookingID uuid.UUID, status models.BookingStatus) error {
	if _, err := requireAdmin(ctx, r.auth, "update bookings"); err != nil {
		return err
	}
	if !status.Valid() {
		return &ValidationError{Fields: []string{"status"}, Message: fmt.Sprintf("unknown status %q", status)}
	}
	if err := r.bookings.UpdateBookingStatus(ctx, bookingID, status); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("[UpdateStatus] Fail to update booking, err=%w", err)
	}
	return nil
}
