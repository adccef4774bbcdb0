package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"zapleads/internal/connection"
	"zapleads/internal/pool"
	"zapleads/internal/repo"
	"zapleads/pkg/models"
)

// ConnectionHandler handles WhatsApp connection endpoints
type ConnectionHandler struct {
	connectionRepo *repo.ConnectionRepository
	machine        *connection.StateMachine
	allocator      *pool.AllocationService
}

// NewConnectionHandler creates a new connection handler
func NewConnectionHandler(connectionRepo *repo.ConnectionRepository, machine *connection.StateMachine, allocator *pool.AllocationService) *ConnectionHandler {
	return &ConnectionHandler{
		connectionRepo: connectionRepo,
		machine:        machine,
		allocator:      allocator,
	}
}

// CreateConnectionRequest represents the request to create a connection
type CreateConnectionRequest struct {
	Name string `json:"name" validate:"required"`
}

// ConnectRequest starts a handshake, optionally via pairing code
type ConnectRequest struct {
	Phone string `json:"phone"`
}

// List godoc
// @Summary List user's connections
// @Tags connections
// @Produce json
// @Success 200 {array} models.Connection
// @Router /connections [get]
// @Security BearerAuth
func (h *ConnectionHandler) List(c echo.Context) error {
	userID, ok := c.Get("user_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "user_id not found in context"})
	}

	conns, err := h.connectionRepo.ListByOwner(c.Request().Context(), userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, conns)
}

// Create godoc
// @Summary Create a connection
// @Tags connections
// @Accept json
// @Produce json
// @Param request body CreateConnectionRequest true "Connection data"
// @Success 201 {object} models.Connection
// @Failure 400 {object} map[string]string
// @Router /connections [post]
// @Security BearerAuth
func (h *ConnectionHandler) Create(c echo.Context) error {
	userID, ok := c.Get("user_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "user_id not found in context"})
	}

	var req CreateConnectionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	conn := &models.Connection{
		OwnerUserID: userID,
		Name:        req.Name,
		Status:      models.ConnectionStatusDisconnected,
	}
	if err := h.connectionRepo.Create(c.Request().Context(), conn); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, conn)
}

// GetByID godoc
// @Summary Get a connection
// @Tags connections
// @Produce json
// @Param id path string true "Connection ID"
// @Success 200 {object} models.Connection
// @Failure 404 {object} map[string]string
// @Router /connections/{id} [get]
// @Security BearerAuth
func (h *ConnectionHandler) GetByID(c echo.Context) error {
	conn, errResp := h.ownedConnection(c)
	if errResp != nil {
		return errResp
	}
	return c.JSON(http.StatusOK, conn)
}

// Connect godoc
// @Summary Start the WhatsApp handshake
// @Description Allocates an instance slot and returns a QR code, or a pairing code when a phone is supplied
// @Tags connections
// @Accept json
// @Produce json
// @Param id path string true "Connection ID"
// @Param request body ConnectRequest false "Pairing options"
// @Success 200 {object} connection.ConnectResult
// @Failure 409 {object} map[string]string
// @Router /connections/{id}/connect [post]
// @Security BearerAuth
func (h *ConnectionHandler) Connect(c echo.Context) error {
	conn, errResp := h.ownedConnection(c)
	if errResp != nil {
		return errResp
	}

	var req ConnectRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	result, err := h.machine.Initiate(c.Request().Context(), conn.ID, req.Phone)
	if err != nil {
		if errors.Is(err, pool.ErrCapacityExhausted) {
			return c.JSON(http.StatusConflict, map[string]string{
				"error": "all instances are at capacity, try again later",
				"code":  "capacity_exhausted",
			})
		}
		if errors.Is(err, connection.ErrInvalidTransition) {
			return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, result)
}

// QR godoc
// @Summary Fetch the QR code of a pending handshake
// @Tags connections
// @Produce json
// @Param id path string true "Connection ID"
// @Success 200 {object} connection.ConnectResult
// @Failure 409 {object} map[string]string
// @Router /connections/{id}/qr [get]
// @Security BearerAuth
func (h *ConnectionHandler) QR(c echo.Context) error {
	conn, errResp := h.ownedConnection(c)
	if errResp != nil {
		return errResp
	}
	if conn.Status != models.ConnectionStatusConnecting {
		return c.JSON(http.StatusConflict, map[string]string{"error": "connection has no handshake in progress"})
	}

	// Returns the in-flight handshake credential, single-flight with connect.
	result, err := h.machine.Initiate(c.Request().Context(), conn.ID, "")
	if err != nil {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, result)
}

// Cancel godoc
// @Summary Cancel a pending handshake
// @Tags connections
// @Produce json
// @Param id path string true "Connection ID"
// @Success 200 {object} map[string]string
// @Router /connections/{id}/cancel [post]
// @Security BearerAuth
func (h *ConnectionHandler) Cancel(c echo.Context) error {
	conn, errResp := h.ownedConnection(c)
	if errResp != nil {
		return errResp
	}

	if err := h.machine.Cancel(c.Request().Context(), conn.ID); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": models.ConnectionStatusDisconnected})
}

// Disconnect godoc
// @Summary Disconnect a connected session
// @Description Refused with 409 while the owner still has active campaigns or pending messages
// @Tags connections
// @Produce json
// @Param id path string true "Connection ID"
// @Success 200 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /connections/{id}/disconnect [post]
// @Security BearerAuth
func (h *ConnectionHandler) Disconnect(c echo.Context) error {
	conn, errResp := h.ownedConnection(c)
	if errResp != nil {
		return errResp
	}

	if err := h.machine.Disconnect(c.Request().Context(), conn.ID); err != nil {
		if reason, blocked := pool.IsReleaseBlocked(err); blocked {
			return c.JSON(http.StatusConflict, map[string]string{
				"error": "release blocked",
				"code":  reason,
			})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": models.ConnectionStatusDisconnected})
}

// Delete godoc
// @Summary Delete a disconnected connection
// @Tags connections
// @Produce json
// @Param id path string true "Connection ID"
// @Success 200 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Router /connections/{id} [delete]
// @Security BearerAuth
func (h *ConnectionHandler) Delete(c echo.Context) error {
	userID, ok := c.Get("user_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "user_id not found in context"})
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid connection id"})
	}

	if err := h.connectionRepo.Delete(c.Request().Context(), id, userID); err != nil {
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "connection deleted"})
}

// Slot godoc
// @Summary Show the instance slot held by the user
// @Tags connections
// @Produce json
// @Success 200 {object} models.Instance
// @Failure 404 {object} map[string]string
// @Router /connections/slot [get]
// @Security BearerAuth
func (h *ConnectionHandler) Slot(c echo.Context) error {
	userID, ok := c.Get("user_id").(uuid.UUID)
	if !ok {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "user_id not found in context"})
	}

	instance, err := h.allocator.FindByUser(c.Request().Context(), userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if instance == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "no slot held"})
	}
	return c.JSON(http.StatusOK, instance)
}

func (h *ConnectionHandler) ownedConnection(c echo.Context) (*models.Connection, error) {
	userID, ok := c.Get("user_id").(uuid.UUID)
	if !ok {
		return nil, c.JSON(http.StatusUnauthorized, map[string]string{"error": "user_id not found in context"})
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid connection id"})
	}

	conn, err := h.connectionRepo.GetByIDAndOwner(c.Request().Context(), id, userID)
	if err != nil {
		return nil, c.JSON(http.StatusNotFound, map[string]string{"error": "connection not found"})
	}
	return conn, nil
}
