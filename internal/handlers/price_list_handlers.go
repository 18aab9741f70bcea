package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"supplierstock/internal/models"
	"supplierstock/internal/services"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// PriceListHandlers exposes price list administration and lifecycle triggers.
// Triggers only enqueue work and answer 202.
type PriceListHandlers struct {
	priceLists services.PriceListService
	logger     *zap.Logger
}

func NewPriceListHandlers(priceLists services.PriceListService, logger *zap.Logger) *PriceListHandlers {
	return &PriceListHandlers{priceLists: priceLists, logger: logger}
}

type ListPriceListsRequest struct {
	WarehouseID string `query:"warehouse_id"`
	Limit       int    `query:"limit"`
	Offset      int    `query:"offset"`
}

type ReplaceRequest struct {
	NewPriceListID uuid.UUID `json:"new_price_list_id"`
	Force          bool      `json:"force"`
}

func (h *PriceListHandlers) CreatePriceList(c echo.Context) error {
	ctx := c.Request().Context()

	warehouseID, err := uuid.Parse(c.FormValue("warehouse_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid warehouse_id")
	}

	var cfg models.ParsingConfig
	if raw := c.FormValue("config"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid config JSON")
		}
	}

	channelIDs, err := parseIDList(c.FormValue("channel_ids"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid channel_ids")
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "File is required")
	}
	file, err := fileHeader.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Failed to read uploaded file")
	}
	defer file.Close()

	pl, err := h.priceLists.Create(ctx, services.CreatePriceListInput{
		WarehouseID: warehouseID,
		Name:        c.FormValue("name"),
		Config:      cfg,
		ChannelIDs:  channelIDs,
		DriveURL:    c.FormValue("drive_url"),
		FileName:    fileHeader.Filename,
		File:        file,
		FileSize:    fileHeader.Size,
	})
	if err != nil {
		// The row exists once Create returns it; only the process enqueue failed.
		if pl != nil {
			h.logger.Error("price list stored but processing not queued", zap.String("price_list_id", pl.ID.String()), zap.Error(err))
			return c.JSON(http.StatusCreated, pl)
		}
		return h.httpError(err)
	}
	return c.JSON(http.StatusCreated, pl)
}

func (h *PriceListHandlers) ListPriceLists(c echo.Context) error {
	var req ListPriceListsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid query parameters")
	}
	if req.Limit <= 0 {
		req.Limit = 50
	}
	if req.Limit > 200 {
		req.Limit = 200
	}

	var warehouseID *uuid.UUID
	if req.WarehouseID != "" {
		id, err := uuid.Parse(req.WarehouseID)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid warehouse_id")
		}
		warehouseID = &id
	}

	lists, err := h.priceLists.List(c.Request().Context(), warehouseID, req.Limit, req.Offset)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"price_lists": lists,
		"limit":       req.Limit,
		"offset":      req.Offset,
	})
}

func (h *PriceListHandlers) GetPriceList(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	pl, err := h.priceLists.Get(c.Request().Context(), id)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, pl)
}

func (h *PriceListHandlers) ListItems(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var filter models.ItemFilter
	if raw := c.QueryParam("is_valid"); raw != "" {
		valid, err := strconv.ParseBool(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid is_valid")
		}
		filter.IsValid = &valid
	}
	if filter.Limit, err = intQuery(c, "limit"); err != nil {
		return err
	}
	if filter.Offset, err = intQuery(c, "offset"); err != nil {
		return err
	}
	items, err := h.priceLists.Items(c.Request().Context(), id, filter)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

func (h *PriceListHandlers) GetFileURL(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	url, err := h.priceLists.FileURL(c.Request().Context(), id)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"url": url})
}

func (h *PriceListHandlers) DeletePriceList(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.priceLists.Delete(c.Request().Context(), id); err != nil {
		return h.httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *PriceListHandlers) Process(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.priceLists.RequestProcess(c.Request().Context(), id); err != nil {
		return h.httpError(err)
	}
	return accepted(c, "process", id)
}

func (h *PriceListHandlers) Activate(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.priceLists.RequestActivate(c.Request().Context(), id); err != nil {
		return h.httpError(err)
	}
	return accepted(c, "activate", id)
}

func (h *PriceListHandlers) Deactivate(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	force := false
	if raw := c.QueryParam("force"); raw != "" {
		if force, err = strconv.ParseBool(raw); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid force")
		}
	}
	if err := h.priceLists.RequestDeactivate(c.Request().Context(), id, force); err != nil {
		return h.httpError(err)
	}
	return accepted(c, "deactivate", id)
}

func (h *PriceListHandlers) Replace(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req ReplaceRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	if req.NewPriceListID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "new_price_list_id is required")
	}
	if err := h.priceLists.RequestReplace(c.Request().Context(), id, req.NewPriceListID, req.Force); err != nil {
		return h.httpError(err)
	}
	return accepted(c, "replace", id)
}

func accepted(c echo.Context, action string, id uuid.UUID) error {
	return c.JSON(http.StatusAccepted, map[string]string{
		"status":        "queued",
		"action":        action,
		"price_list_id": id.String(),
	})
}

func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "Invalid price list ID")
	}
	return id, nil
}

func intQuery(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "Invalid "+name)
	}
	return n, nil
}

func parseIDList(raw string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := uuid.Parse(part)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// httpError maps service errors onto status codes.
func (h *PriceListHandlers) httpError(err error) error {
	var missing *services.MissingCategoryError
	switch {
	case services.IsNotFound(err):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrPriceListBusy),
		errors.Is(err, services.ErrPriceListActive),
		errors.Is(err, services.ErrDraftOrdersAffected):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.As(err, &missing),
		errors.Is(err, services.ErrNotProcessed),
		errors.Is(err, services.ErrOwnedWarehouse),
		errors.Is(err, services.ErrWarehouseMismatch),
		errors.Is(err, services.ErrInvalidConfig),
		errors.Is(err, services.ErrUnsupportedFile),
		errors.Is(err, services.ErrReplacementCycle):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	h.logger.Error("price list request failed", zap.Error(err))
	return echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
}
