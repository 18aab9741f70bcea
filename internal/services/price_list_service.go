package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"supplierstock/internal/models"
	"supplierstock/internal/repositories"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var allowedExtensions = map[string]string{
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".xlsm": "application/vnd.ms-excel.sheet.macroEnabled.12",
}

type CreatePriceListInput struct {
	WarehouseID uuid.UUID
	Name        string
	Config      models.ParsingConfig
	ChannelIDs  []uuid.UUID
	DriveURL    string
	FileName    string
	File        io.Reader
	FileSize    int64
}

// PriceListService is the synchronous side of the lifecycle: it stores
// snapshots, checks preconditions and enqueues the jobs.
type PriceListService interface {
	Create(ctx context.Context, input CreatePriceListInput) (*models.PriceList, error)
	Get(ctx context.Context, id uuid.UUID) (*models.PriceList, error)
	List(ctx context.Context, warehouseID *uuid.UUID, limit, offset int) ([]*models.PriceList, error)
	Items(ctx context.Context, id uuid.UUID, filter models.ItemFilter) ([]*models.PriceListItem, error)
	Delete(ctx context.Context, id uuid.UUID) error
	FileURL(ctx context.Context, id uuid.UUID) (string, error)

	RequestProcess(ctx context.Context, id uuid.UUID) error
	RequestActivate(ctx context.Context, id uuid.UUID) error
	RequestDeactivate(ctx context.Context, id uuid.UUID, force bool) error
	RequestReplace(ctx context.Context, oldID, newID uuid.UUID, force bool) error

	// AffectedOrders counts the draft/unconfirmed orders a deactivation
	// (newID == uuid.Nil) or replacement would release allocations from.
	AffectedOrders(ctx context.Context, oldID, newID uuid.UUID) (int, error)
}

type priceListService struct {
	store     repositories.Store
	storage   SnapshotStorage
	jobs      JobEnqueuer
	logger    *zap.Logger
	urlExpiry time.Duration
}

func NewPriceListService(store repositories.Store, storage SnapshotStorage, jobs JobEnqueuer, logger *zap.Logger, urlExpiry time.Duration) PriceListService {
	if urlExpiry <= 0 {
		urlExpiry = 15 * time.Minute
	}
	return &priceListService{
		store:     store,
		storage:   storage,
		jobs:      jobs,
		logger:    logger,
		urlExpiry: urlExpiry,
	}
}

func (s *priceListService) Create(ctx context.Context, input CreatePriceListInput) (*models.PriceList, error) {
	ext := strings.ToLower(filepath.Ext(input.FileName))
	contentType, ok := allowedExtensions[ext]
	if !ok {
		return nil, fmt.Errorf("%w: '%s', expected .xlsx or .xlsm", ErrUnsupportedFile, input.FileName)
	}
	if err := input.Config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	input.Config.DefaultCurrency = strings.ToUpper(strings.TrimSpace(input.Config.DefaultCurrency))
	if strings.TrimSpace(input.Name) == "" {
		input.Name = input.FileName
	}

	repos := s.store.Repos()
	if _, err := repos.Warehouses.GetByID(ctx, input.WarehouseID); err != nil {
		return nil, err
	}
	if len(input.ChannelIDs) > 0 {
		found, err := repos.Catalog.ExistingChannelIDs(ctx, input.ChannelIDs)
		if err != nil {
			return nil, err
		}
		if missing := missingIDs(input.ChannelIDs, found); len(missing) > 0 {
			return nil, fmt.Errorf("%w: unknown channels %v", repositories.ErrNotFound, missing)
		}
	}

	pl := &models.PriceList{
		ID:          uuid.New(),
		WarehouseID: input.WarehouseID,
		Name:        input.Name,
		Config:      input.Config,
		DriveURL:    input.DriveURL,
		Status:      models.PriceListStatusInactive,
		ChannelIDs:  input.ChannelIDs,
	}
	pl.FileKey = fmt.Sprintf("price-lists/%s/%s%s", pl.WarehouseID, pl.ID, ext)

	if err := s.storage.Upload(ctx, pl.FileKey, input.File, input.FileSize, contentType); err != nil {
		return nil, fmt.Errorf("upload snapshot: %w", err)
	}

	err := s.store.WithTx(ctx, func(r repositories.Repositories) error {
		return r.PriceLists.Create(ctx, pl)
	})
	if err != nil {
		if delErr := s.storage.Delete(context.WithoutCancel(ctx), pl.FileKey); delErr != nil {
			s.logger.Warn("failed to remove orphaned snapshot", zap.String("file_key", pl.FileKey), zap.Error(delErr))
		}
		return nil, err
	}

	s.logger.Info("price list created",
		zap.String("price_list_id", pl.ID.String()),
		zap.String("warehouse_id", pl.WarehouseID.String()))

	if err := s.RequestProcess(ctx, pl.ID); err != nil {
		return pl, err
	}
	return pl, nil
}

func (s *priceListService) Get(ctx context.Context, id uuid.UUID) (*models.PriceList, error) {
	repos := s.store.Repos()
	pl, err := getPriceList(ctx, repos, id)
	if err != nil {
		return nil, err
	}
	channels, err := repos.PriceLists.Channels(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, ch := range channels {
		pl.ChannelIDs = append(pl.ChannelIDs, ch.ID)
	}
	return pl, nil
}

func (s *priceListService) List(ctx context.Context, warehouseID *uuid.UUID, limit, offset int) ([]*models.PriceList, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.Repos().PriceLists.List(ctx, warehouseID, limit, offset)
}

func (s *priceListService) Items(ctx context.Context, id uuid.UUID, filter models.ItemFilter) ([]*models.PriceListItem, error) {
	if _, err := getPriceList(ctx, s.store.Repos(), id); err != nil {
		return nil, err
	}
	return s.store.Repos().PriceLists.Items(ctx, id, filter)
}

func (s *priceListService) Delete(ctx context.Context, id uuid.UUID) error {
	repos := s.store.Repos()
	pl, err := getPriceList(ctx, repos, id)
	if err != nil {
		return err
	}
	if pl.IsActive() {
		return ErrPriceListActive
	}
	if pl.IsProcessing {
		return ErrPriceListBusy
	}
	if err := repos.PriceLists.Delete(ctx, id); err != nil {
		return err
	}
	if pl.FileKey != "" {
		if err := s.storage.Delete(ctx, pl.FileKey); err != nil {
			s.logger.Warn("failed to delete snapshot file", zap.String("file_key", pl.FileKey), zap.Error(err))
		}
	}
	return nil
}

func (s *priceListService) FileURL(ctx context.Context, id uuid.UUID) (string, error) {
	pl, err := getPriceList(ctx, s.store.Repos(), id)
	if err != nil {
		return "", err
	}
	return s.storage.PresignedURL(ctx, pl.FileKey, s.urlExpiry)
}

func (s *priceListService) RequestProcess(ctx context.Context, id uuid.UUID) error {
	if _, err := getPriceList(ctx, s.store.Repos(), id); err != nil {
		return err
	}
	return s.withLease(ctx, []uuid.UUID{id}, func() error {
		return s.jobs.EnqueueProcess(ctx, id)
	})
}

func (s *priceListService) RequestActivate(ctx context.Context, id uuid.UUID) error {
	repos := s.store.Repos()
	pl, err := getPriceList(ctx, repos, id)
	if err != nil {
		return err
	}
	if pl.IsActive() {
		return nil
	}
	if !pl.IsProcessed() {
		return ErrNotProcessed
	}
	if err := checkWarehouse(ctx, repos, pl.WarehouseID); err != nil {
		return err
	}
	return s.withLease(ctx, []uuid.UUID{id}, func() error {
		return s.jobs.EnqueueActivate(ctx, id)
	})
}

func (s *priceListService) RequestDeactivate(ctx context.Context, id uuid.UUID, force bool) error {
	pl, err := getPriceList(ctx, s.store.Repos(), id)
	if err != nil {
		return err
	}
	if !pl.IsActive() {
		return nil
	}
	if !force {
		if err := s.refuseIfAffected(ctx, id, uuid.Nil); err != nil {
			return err
		}
	}
	return s.withLease(ctx, []uuid.UUID{id}, func() error {
		return s.jobs.EnqueueDeactivate(ctx, id, force)
	})
}

func (s *priceListService) RequestReplace(ctx context.Context, oldID, newID uuid.UUID, force bool) error {
	repos := s.store.Repos()
	oldPL, err := getPriceList(ctx, repos, oldID)
	if err != nil {
		return err
	}
	newPL, err := getPriceList(ctx, repos, newID)
	if err != nil {
		return err
	}
	if oldPL.WarehouseID != newPL.WarehouseID {
		return ErrWarehouseMismatch
	}
	if !newPL.IsProcessed() {
		return ErrNotProcessed
	}
	if newPL.IsActive() || oldID == newID {
		return nil
	}
	if !force {
		if err := s.refuseIfAffected(ctx, oldID, newID); err != nil {
			return err
		}
	}
	return s.withLease(ctx, []uuid.UUID{oldID, newID}, func() error {
		return s.jobs.EnqueueReplace(ctx, oldID, newID, force)
	})
}

func (s *priceListService) refuseIfAffected(ctx context.Context, oldID, newID uuid.UUID) error {
	n, err := s.AffectedOrders(ctx, oldID, newID)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: %d orders, pass force to proceed", ErrDraftOrdersAffected, n)
	}
	return nil
}

func (s *priceListService) AffectedOrders(ctx context.Context, oldID, newID uuid.UUID) (int, error) {
	repos := s.store.Repos()
	oldPL, err := getPriceList(ctx, repos, oldID)
	if err != nil {
		return 0, err
	}
	oldItems, err := validItems(ctx, repos, oldID)
	if err != nil {
		return 0, err
	}

	orders := make(map[uuid.UUID]struct{})
	collect := func(productIDs []uuid.UUID, sizes []string) error {
		if len(productIDs) == 0 || (sizes != nil && len(sizes) == 0) {
			return nil
		}
		ids, err := repos.Stock.ReleasableOrderIDs(ctx, oldPL.WarehouseID, productIDs, sizes)
		if err != nil {
			return err
		}
		for _, id := range ids {
			orders[id] = struct{}{}
		}
		return nil
	}

	if newID == uuid.Nil {
		if err := collect(productIDs(oldItems), nil); err != nil {
			return 0, err
		}
		return len(orders), nil
	}

	newItems, err := validItems(ctx, repos, newID)
	if err != nil {
		return 0, err
	}
	d := diffProducts(oldItems, newItems)
	if err := collect(d.oldOnly, nil); err != nil {
		return 0, err
	}
	for _, productID := range d.both {
		removed, _, _ := d.sizeDiff(productID)
		if len(removed) == 0 {
			continue
		}
		if err := collect([]uuid.UUID{productID}, removed); err != nil {
			return 0, err
		}
	}
	return len(orders), nil
}

// withLease takes the is_processing lease on every id in ascending order and
// runs enqueue. The leases are released again if any step fails; on success
// the job releases them.
func (s *priceListService) withLease(ctx context.Context, ids []uuid.UUID, enqueue func() error) error {
	ordered := append([]uuid.UUID(nil), ids...)
	sortIDs(ordered)

	lists := s.store.Repos().PriceLists
	var held []uuid.UUID
	release := func() {
		for _, id := range held {
			if err := lists.ReleaseLease(context.WithoutCancel(ctx), id); err != nil {
				s.logger.Error("failed to release lease", zap.String("price_list_id", id.String()), zap.Error(err))
			}
		}
	}

	for _, id := range ordered {
		ok, err := lists.AcquireLease(ctx, id)
		if err != nil {
			release()
			return err
		}
		if !ok {
			release()
			return fmt.Errorf("%w: %s", ErrPriceListBusy, id)
		}
		held = append(held, id)
	}

	if err := enqueue(); err != nil {
		release()
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

func missingIDs(want, found []uuid.UUID) []uuid.UUID {
	have := make(map[uuid.UUID]struct{}, len(found))
	for _, id := range found {
		have[id] = struct{}{}
	}
	var missing []uuid.UUID
	for _, id := range want {
		if _, ok := have[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// IsNotFound reports whether err means a price list or a referenced record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPriceListNotFound) || errors.Is(err, repositories.ErrNotFound)
}
