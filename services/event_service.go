package services

import (
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"volunteer-portal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// errEventFrozen aborts an event delete that would cascade over an APPROVED
// proof. Certificates reference those events, so they are permanent.
var errEventFrozen = errors.New("event has approved proofs")

type EventService struct {
	DB *gorm.DB

	// regLocks serializes register/unregister per event so the
	// count-check-insert on the last open slot is atomic.
	regLocks sync.Map // eventID -> *sync.Mutex
}

func NewEventService(db *gorm.DB) *EventService {
	return &EventService{DB: db}
}

func (s *EventService) eventLock(eventID string) *sync.Mutex {
	m, _ := s.regLocks.LoadOrStore(eventID, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// --- Admin Handlers ---

// CreateEvent creates a new volunteer event (Admin only)
func (s *EventService) CreateEvent(c *fiber.Ctx) error {
	var req struct {
		Title         string    `json:"title" validate:"required"`
		Description   string    `json:"description"`
		Category      string    `json:"category" validate:"required"`
		EventDate     time.Time `json:"event_date" validate:"required"`
		Points        int       `json:"points"`
		MaxVolunteers int       `json:"max_volunteers"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "code": "validation"})
	}

	if strings.TrimSpace(req.Title) == "" || req.EventDate.IsZero() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "title and event_date are required", "code": "validation"})
	}
	if !models.ValidCategory(req.Category) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid category: " + req.Category,
			"code":  "validation",
		})
	}
	if req.Points < 0 || req.MaxVolunteers < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "points and max_volunteers must be non-negative", "code": "validation"})
	}

	event := &models.Event{
		ID:            uuid.NewString(),
		Slug:          slug.Make(req.Title),
		Title:         strings.TrimSpace(req.Title),
		Description:   req.Description,
		Category:      req.Category,
		EventDate:     req.EventDate,
		Points:        req.Points,
		MaxVolunteers: req.MaxVolunteers,
		CreatedBy:     c.Locals("admin_id").(string),
	}
	if err := s.DB.Create(event).Error; err != nil {
		log.Printf("DB Error creating event: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create event"})
	}
	return c.Status(fiber.StatusCreated).JSON(event)
}

// UpdateEvent updates an existing event (Admin only). Awarded points are
// snapshots, so changing Points never rewrites history; shrinking capacity
// below the current registration count is rejected.
func (s *EventService) UpdateEvent(c *fiber.Ctx) error {
	id := c.Params("id")

	var event models.Event
	if err := s.DB.First(&event, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "event not found", "code": "not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	var req struct {
		Title         *string    `json:"title"`
		Description   *string    `json:"description"`
		Category      *string    `json:"category"`
		EventDate     *time.Time `json:"event_date"`
		Points        *int       `json:"points"`
		MaxVolunteers *int       `json:"max_volunteers"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON", "code": "validation"})
	}

	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "title cannot be empty", "code": "validation"})
		}
		event.Title = strings.TrimSpace(*req.Title)
		event.Slug = slug.Make(event.Title)
	}
	if req.Description != nil {
		event.Description = *req.Description
	}
	if req.Category != nil {
		if !models.ValidCategory(*req.Category) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid category: " + *req.Category, "code": "validation"})
		}
		event.Category = *req.Category
	}
	if req.EventDate != nil {
		event.EventDate = *req.EventDate
	}
	if req.Points != nil {
		if *req.Points < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "points must be non-negative", "code": "validation"})
		}
		event.Points = *req.Points
	}
	if req.MaxVolunteers != nil {
		if *req.MaxVolunteers < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "max_volunteers must be non-negative", "code": "validation"})
		}
		var count int64
		s.DB.Model(&models.Registration{}).Where("event_id = ?", id).Count(&count)
		if *req.MaxVolunteers > 0 && count > int64(*req.MaxVolunteers) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "max_volunteers cannot drop below current registrations",
				"code":  "invalid_state",
			})
		}
		event.MaxVolunteers = *req.MaxVolunteers
	}

	if err := s.DB.Save(&event).Error; err != nil {
		log.Printf("DB Error updating event %s: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update event"})
	}
	return c.JSON(event)
}

// DeleteEvent removes an event and its registrations (Admin only).
// Events with approved proofs are frozen: certificates reference them.
func (s *EventService) DeleteEvent(c *fiber.Ctx) error {
	id := c.Params("id")

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		// The freeze check runs inside the transaction so an approval
		// committing after it cannot slip an APPROVED proof under the cascade.
		var approved int64
		if err := tx.Model(&models.Proof{}).
			Where("event_id = ? AND status = ?", id, models.ProofStatusApproved).
			Count(&approved).Error; err != nil {
			return err
		}
		if approved > 0 {
			return errEventFrozen
		}

		if err := tx.Where("event_id = ?", id).Delete(&models.Registration{}).Error; err != nil {
			return err
		}
		if err := tx.Where("event_id = ?", id).Delete(&models.Proof{}).Error; err != nil {
			return err
		}
		result := tx.Delete(&models.Event{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	if errors.Is(err, errEventFrozen) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "event has approved proofs and cannot be deleted",
			"code":  "invalid_state",
		})
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "event not found", "code": "not_found"})
	}
	if err != nil {
		log.Printf("DB Error deleting event %s: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to delete event"})
	}
	return c.JSON(fiber.Map{"message": "event deleted"})
}

// --- User Handlers ---

// GetAllEvents lists every event with its registered-volunteer count.
func (s *EventService) GetAllEvents(c *fiber.Ctx) error {
	type EventRow struct {
		models.Event
		RegCount int64 `json:"-"`
	}
	var rows []EventRow
	query := `
        SELECT e.*, COUNT(r.id) AS reg_count
        FROM events e
        LEFT JOIN registrations r ON e.id = r.event_id
        GROUP BY e.id
        ORDER BY e.created_at DESC
    `
	if err := s.DB.Raw(query).Scan(&rows).Error; err != nil {
		log.Printf("ERROR fetching events: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch events"})
	}

	events := make([]models.Event, len(rows))
	for i, row := range rows {
		e := row.Event
		e.RegisteredVolunteers = row.RegCount
		e.AvailableSlots = availableSlots(e.MaxVolunteers, row.RegCount)
		events[i] = e
	}
	return c.JSON(events)
}

// GetAvailableEvents lists events the caller can still register for: no
// active registration and no approved proof, optionally filtered by category.
func (s *EventService) GetAvailableEvents(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	category := c.Query("category")

	query := s.DB.Model(&models.Event{}).
		Where("id NOT IN (?)",
			s.DB.Model(&models.Registration{}).Select("event_id").Where("user_id = ?", userID)).
		Where("id NOT IN (?)",
			s.DB.Model(&models.Proof{}).Select("event_id").
				Where("user_id = ? AND status = ?", userID, models.ProofStatusApproved))
	if category != "" {
		query = query.Where("category = ?", category)
	}

	var events []models.Event
	if err := query.Order("event_date ASC").Find(&events).Error; err != nil {
		log.Printf("ERROR fetching available events: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch events"})
	}

	for i := range events {
		var count int64
		s.DB.Model(&models.Registration{}).Where("event_id = ?", events[i].ID).Count(&count)
		events[i].RegisteredVolunteers = count
		events[i].AvailableSlots = availableSlots(events[i].MaxVolunteers, count)
	}
	return c.JSON(events)
}

// GetRegisteredEvents lists the caller's active registrations, partitioned
// into pending and completed by proof status.
func (s *EventService) GetRegisteredEvents(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var regs []models.Registration
	if err := s.DB.Where("user_id = ?", userID).
		Order("registered_at DESC").
		Find(&regs).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch registrations"})
	}

	type RegisteredEvent struct {
		models.Event
		RegisteredAt time.Time `json:"registered_at"`
		Completed    bool      `json:"completed"`
	}
	pending := []RegisteredEvent{}
	completed := []RegisteredEvent{}
	for _, reg := range regs {
		var event models.Event
		if err := s.DB.First(&event, "id = ?", reg.EventID).Error; err != nil {
			continue
		}
		var approved int64
		s.DB.Model(&models.Proof{}).
			Where("user_id = ? AND event_id = ? AND status = ?", userID, reg.EventID, models.ProofStatusApproved).
			Count(&approved)

		entry := RegisteredEvent{Event: event, RegisteredAt: reg.RegisteredAt, Completed: approved > 0}
		if entry.Completed {
			completed = append(completed, entry)
		} else {
			pending = append(pending, entry)
		}
	}

	return c.JSON(fiber.Map{
		"pending":   pending,
		"completed": completed,
	})
}

// GetCategories returns the fixed category list.
func (s *EventService) GetCategories(c *fiber.Ctx) error {
	return c.JSON(models.EventCategories)
}

// RegisterForEvent registers the caller for an event, enforcing capacity.
// The per-event lock makes "count, compare, insert" atomic: two concurrent
// registrations for the last slot resolve to exactly one success.
func (s *EventService) RegisterForEvent(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	eventID := c.Params("id")

	var event models.Event
	if err := s.DB.First(&event, "id = ?", eventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "event not found", "code": "not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error fetching event"})
	}

	lock := s.eventLock(eventID)
	lock.Lock()
	defer lock.Unlock()

	var existing models.Registration
	if err := s.DB.Where("user_id = ? AND event_id = ?", userID, eventID).
		First(&existing).Error; err == nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "already registered for this event",
			"code":  "already_registered",
		})
	}

	if event.MaxVolunteers > 0 {
		var count int64
		s.DB.Model(&models.Registration{}).
			Where("event_id = ?", eventID).
			Count(&count)
		if count >= int64(event.MaxVolunteers) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "event is full",
				"code":  "capacity_exceeded",
			})
		}
	}

	reg := models.Registration{
		ID:      uuid.NewString(),
		UserID:  userID,
		EventID: eventID,
	}
	// Unique (user_id, event_id) index is the storage-layer backstop.
	if err := s.DB.Create(&reg).Error; err != nil {
		log.Printf("DB Error creating registration: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to register"})
	}

	return c.JSON(fiber.Map{"message": "registered successfully", "registration": reg})
}

// UnregisterFromEvent removes the caller's registration. Forbidden once a
// proof for it is APPROVED; blocked while one is PENDING (delete it first).
func (s *EventService) UnregisterFromEvent(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	eventID := c.Params("id")

	var reg models.Registration
	if err := s.DB.Where("user_id = ? AND event_id = ?", userID, eventID).
		First(&reg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not registered for this event", "code": "not_found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}

	var approved int64
	s.DB.Model(&models.Proof{}).
		Where("user_id = ? AND event_id = ? AND status = ?", userID, eventID, models.ProofStatusApproved).
		Count(&approved)
	if approved > 0 {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "cannot unregister from event with approved proof",
			"code":  "forbidden",
		})
	}

	var pendingCount int64
	s.DB.Model(&models.Proof{}).
		Where("user_id = ? AND event_id = ? AND status = ?", userID, eventID, models.ProofStatusPending).
		Count(&pendingCount)
	if pendingCount > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "cannot unregister with a pending proof — delete the proof first",
			"code":  "invalid_state",
		})
	}

	if err := s.DB.Delete(&reg).Error; err != nil {
		log.Printf("DB Error deleting registration: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to unregister"})
	}
	return c.JSON(fiber.Map{"message": "unregistered successfully"})
}

func availableSlots(max int, registered int64) int64 {
	if max <= 0 {
		return -1 // unlimited
	}
	return int64(max) - registered
}
