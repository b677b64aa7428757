package listing

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"geargrid/models"
)

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

const testPublicBase = "https://cdn.test/"

func dataURL(mediaType string, payload string) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString([]byte(payload))
}

type fakeStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	uploadErr func(key string) error
	urlErr    func(key string) error
	removed   [][]string
	removeErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (s *fakeStore) Upload(_ context.Context, key, _ string, data []byte) error {
	if s.uploadErr != nil {
		if err := s.uploadErr(key); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *fakeStore) PublicURL(_ context.Context, key string) (string, error) {
	if s.urlErr != nil {
		if err := s.urlErr(key); err != nil {
			return "", err
		}
	}
	return testPublicBase + key, nil
}

func (s *fakeStore) ExtractKey(rawURL string) (string, bool) {
	key, found := strings.CutPrefix(rawURL, testPublicBase)
	return key, found && key != ""
}

func (s *fakeStore) Remove(_ context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, keys)
	if s.removeErr != nil {
		return s.removeErr
	}
	for _, key := range keys {
		delete(s.objects, key)
	}
	return nil
}

func (s *fakeStore) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects))
	for key := range s.objects {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

type fakeGenerator struct {
	text   string
	err    error
	calls  int
	prompt string
	image  Image
}

func (g *fakeGenerator) GenerateFromImage(_ context.Context, image Image, prompt string) (string, error) {
	g.calls++
	g.prompt = prompt
	g.image = image
	return g.text, g.err
}

type fakeAuth struct {
	actor Actor
	err   error
}

func (a fakeAuth) Authenticate(context.Context) (Actor, error) {
	return a.actor, a.err
}

var (
	adminActor = Actor{ID: uuid.MustParse("0190a000-0000-7000-8000-000000000001"), Name: "admin", Role: models.RoleAdmin}
	userActor  = Actor{ID: uuid.MustParse("0190a000-0000-7000-8000-000000000002"), Name: "alice", Role: models.RoleUser}
	otherActor = Actor{ID: uuid.MustParse("0190a000-0000-7000-8000-000000000003"), Name: "bob", Role: models.RoleUser}
)

type memCarRepo struct {
	mu          sync.Mutex
	cars        map[uuid.UUID]*models.Car
	searchCalls int
	createErr   error
	// onSearch 在查詢取得結果後、回傳前執行
	onSearch func()
}

func newMemCarRepo() *memCarRepo {
	return &memCarRepo{cars: make(map[uuid.UUID]*models.Car)}
}

func (r *memCarRepo) CreateCar(_ context.Context, car *models.Car) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	if car.CreatedAt.IsZero() {
		car.CreatedAt = time.Now()
	}
	copied := *car
	r.cars[car.ID] = &copied
	return nil
}

func (r *memCarRepo) GetCar(_ context.Context, id uuid.UUID) (*models.Car, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	car, ok := r.cars[id]
	if !ok {
		return nil, &NotFoundError{Kind: "car", ID: id.String()}
	}
	copied := *car
	return &copied, nil
}

func (r *memCarRepo) SearchCars(_ context.Context, query string) ([]models.Car, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.searchCalls++
	query = strings.ToLower(query)
	var cars []models.Car
	for _, car := range r.cars {
		haystack := strings.ToLower(car.Make + "\n" + car.Model + "\n" + car.Color)
		if query == "" || strings.Contains(haystack, query) {
			cars = append(cars, *car)
		}
	}
	slices.SortFunc(cars, func(a, b models.Car) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if r.onSearch != nil {
		r.onSearch()
	}
	return cars, nil
}

func (r *memCarRepo) UpdateCar(_ context.Context, id uuid.UUID, fields map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	car, ok := r.cars[id]
	if !ok {
		return &NotFoundError{Kind: "car", ID: id.String()}
	}
	if status, ok := fields["status"]; ok {
		car.Status = status.(models.CarStatus)
	}
	if featured, ok := fields["featured"]; ok {
		car.Featured = featured.(bool)
	}
	return nil
}

func (r *memCarRepo) DeleteCar(_ context.Context, id uuid.UUID) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	car, ok := r.cars[id]
	if !ok {
		return nil, &NotFoundError{Kind: "car", ID: id.String()}
	}
	delete(r.cars, id)
	return car.Images, nil
}

type memBookingRepo struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]*models.TestDriveBooking
	// afterSlotCheck 在 SlotTaken 釋放鎖之後執行
	afterSlotCheck func()
}

func newMemBookingRepo() *memBookingRepo {
	return &memBookingRepo{bookings: make(map[uuid.UUID]*models.TestDriveBooking)}
}

func (r *memBookingRepo) slotTakenLocked(carID uuid.UUID, date string, startTime string) bool {
	for _, b := range r.bookings {
		if b.CarID == carID && b.BookingDate.Format(time.DateOnly) == date && b.StartTime == startTime && b.Status.Active() {
			return true
		}
	}
	return false
}

// CreateBooking 與資料庫的部分唯一索引相同，有效預約不可重複佔用時段
func (r *memBookingRepo) CreateBooking(_ context.Context, booking *models.TestDriveBooking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if booking.Status.Active() && r.slotTakenLocked(booking.CarID, booking.BookingDate.Format(time.DateOnly), booking.StartTime) {
		return &ConflictError{Message: "this time slot is already booked"}
	}
	copied := *booking
	r.bookings[booking.ID] = &copied
	return nil
}

func (r *memBookingRepo) GetBooking(_ context.Context, id uuid.UUID) (*models.TestDriveBooking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	booking, ok := r.bookings[id]
	if !ok {
		return nil, &NotFoundError{Kind: "booking", ID: id.String()}
	}
	copied := *booking
	return &copied, nil
}

func (r *memBookingRepo) SlotTaken(_ context.Context, carID uuid.UUID, date string, startTime string) (bool, error) {
	r.mu.Lock()
	taken := r.slotTakenLocked(carID, date, startTime)
	r.mu.Unlock()
	if r.afterSlotCheck != nil {
		r.afterSlotCheck()
	}
	return taken, nil
}

func (r *memBookingRepo) ListBookingsByUser(_ context.Context, userID uuid.UUID) ([]models.TestDriveBooking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var bookings []models.TestDriveBooking
	for _, b := range r.bookings {
		if b.UserID == userID {
			bookings = append(bookings, *b)
		}
	}
	slices.SortFunc(bookings, func(a, b models.TestDriveBooking) int {
		return b.BookingDate.Compare(a.BookingDate)
	})
	return bookings, nil
}

func (r *memBookingRepo) UpdateBookingStatus(_ context.Context, id uuid.UUID, status models.BookingStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	booking, ok := r.bookings[id]
	if !ok {
		return &NotFoundError{Kind: "booking", ID: id.String()}
	}
	booking.Status = status
	return nil
}

type fakeCache struct {
	mu            sync.Mutex
	version       int64
	entries       map[string][]models.Car
	invalidations int
	invalidateErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string][]models.Car)}
}

func cacheKey(version int64, query string) string {
	return fmt.Sprintf("v%d:%s", version, query)
}

func (c *fakeCache) Load(_ context.Context, query string) ([]models.Car, int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cars, ok := c.entries[cacheKey(c.version, query)]
	return cars, c.version, ok, nil
}

func (c *fakeCache) Store(_ context.Context, query string, version int64, cars []models.Car) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(version, query)] = cars
	return nil
}

func (c *fakeCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidations++
	if c.invalidateErr != nil {
		return c.invalidateErr
	}
	c.version++
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *fakePublisher) Publish(event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

var (
	errBoom        = errors.New("boom")
	errNotLoggedIn = &UnauthorizedError{Reason: "missing access token"}
)
