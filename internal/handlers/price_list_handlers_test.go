package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"supplierstock/internal/models"
	"supplierstock/internal/services"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

type MockPriceListService struct {
	mock.Mock
}

func (m *MockPriceListService) Create(ctx context.Context, input services.CreatePriceListInput) (*models.PriceList, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PriceList), args.Error(1)
}

func (m *MockPriceListService) Get(ctx context.Context, id uuid.UUID) (*models.PriceList, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PriceList), args.Error(1)
}

func (m *MockPriceListService) List(ctx context.Context, warehouseID *uuid.UUID, limit, offset int) ([]*models.PriceList, error) {
	args := m.Called(ctx, warehouseID, limit, offset)
	return args.Get(0).([]*models.PriceList), args.Error(1)
}

func (m *MockPriceListService) Items(ctx context.Context, id uuid.UUID, filter models.ItemFilter) ([]*models.PriceListItem, error) {
	args := m.Called(ctx, id, filter)
	return args.Get(0).([]*models.PriceListItem), args.Error(1)
}

func (m *MockPriceListService) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockPriceListService) FileURL(ctx context.Context, id uuid.UUID) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}

func (m *MockPriceListService) RequestProcess(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockPriceListService) RequestActivate(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockPriceListService) RequestDeactivate(ctx context.Context, id uuid.UUID, force bool) error {
	return m.Called(ctx, id, force).Error(0)
}

func (m *MockPriceListService) RequestReplace(ctx context.Context, oldID, newID uuid.UUID, force bool) error {
	return m.Called(ctx, oldID, newID, force).Error(0)
}

func (m *MockPriceListService) AffectedOrders(ctx context.Context, oldID, newID uuid.UUID) (int, error) {
	args := m.Called(ctx, oldID, newID)
	return args.Int(0), args.Error(1)
}

type PriceListHandlersTestSuite struct {
	suite.Suite
	service *MockPriceListService
	echo    *echo.Echo
}

func (suite *PriceListHandlersTestSuite) SetupTest() {
	suite.service = new(MockPriceListService)
	suite.echo = echo.New()
	health := NewHealthHandlers(map[string]Checker{
		"database": func(context.Context) error { return nil },
	}, "test")
	RegisterRoutes(suite.echo, NewPriceListHandlers(suite.service, zap.NewNop()), health)
}

func (suite *PriceListHandlersTestSuite) TearDownTest() {
	suite.service.AssertExpectations(suite.T())
}

func TestPriceListHandlersTestSuite(t *testing.T) {
	suite.Run(t, new(PriceListHandlersTestSuite))
}

func (suite *PriceListHandlersTestSuite) do(method, target string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	rec := httptest.NewRecorder()
	suite.echo.ServeHTTP(rec, req)
	return rec
}

func (suite *PriceListHandlersTestSuite) TestCreatePriceList_Multipart() {
	warehouseID, channelID := uuid.New(), uuid.New()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	require.NoError(suite.T(), w.WriteField("warehouse_id", warehouseID.String()))
	require.NoError(suite.T(), w.WriteField("name", "SS25"))
	require.NoError(suite.T(), w.WriteField("config", `{"default_currency":"GBP","column_map":{"0":"product_code"}}`))
	require.NoError(suite.T(), w.WriteField("channel_ids", channelID.String()))
	part, err := w.CreateFormFile("file", "ss25.xlsx")
	require.NoError(suite.T(), err)
	_, _ = part.Write([]byte("xlsx-bytes"))
	require.NoError(suite.T(), w.Close())

	created := &models.PriceList{ID: uuid.New(), WarehouseID: warehouseID, Name: "SS25"}
	suite.service.On("Create", mock.Anything, mock.MatchedBy(func(in services.CreatePriceListInput) bool {
		return in.WarehouseID == warehouseID &&
			in.Name == "SS25" &&
			in.FileName == "ss25.xlsx" &&
			in.FileSize == int64(len("xlsx-bytes")) &&
			in.Config.DefaultCurrency == "GBP" &&
			len(in.ChannelIDs) == 1 && in.ChannelIDs[0] == channelID
	})).Return(created, nil).Once()

	rec := suite.do(http.MethodPost, "/api/v1/price-lists", body, w.FormDataContentType())

	assert.Equal(suite.T(), http.StatusCreated, rec.Code)
	assert.Contains(suite.T(), rec.Body.String(), created.ID.String())
}

func (suite *PriceListHandlersTestSuite) TestCreatePriceList_MissingFile() {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	require.NoError(suite.T(), w.WriteField("warehouse_id", uuid.NewString()))
	require.NoError(suite.T(), w.Close())

	rec := suite.do(http.MethodPost, "/api/v1/price-lists", body, w.FormDataContentType())
	assert.Equal(suite.T(), http.StatusBadRequest, rec.Code)
}

func (suite *PriceListHandlersTestSuite) TestGetPriceList_NotFound() {
	id := uuid.New()
	suite.service.On("Get", mock.Anything, id).Return(nil, services.ErrPriceListNotFound).Once()

	rec := suite.do(http.MethodGet, "/api/v1/price-lists/"+id.String(), nil, "")
	assert.Equal(suite.T(), http.StatusNotFound, rec.Code)
}

func (suite *PriceListHandlersTestSuite) TestGetPriceList_InvalidID() {
	rec := suite.do(http.MethodGet, "/api/v1/price-lists/not-a-uuid", nil, "")
	assert.Equal(suite.T(), http.StatusBadRequest, rec.Code)
}

func (suite *PriceListHandlersTestSuite) TestListItems_ValidFilter() {
	id := uuid.New()
	valid := false
	suite.service.On("Items", mock.Anything, id, models.ItemFilter{IsValid: &valid}).Return([]*models.PriceListItem{}, nil).Once()

	rec := suite.do(http.MethodGet, "/api/v1/price-lists/"+id.String()+"/items?is_valid=false", nil, "")
	assert.Equal(suite.T(), http.StatusOK, rec.Code)
}

func (suite *PriceListHandlersTestSuite) TestListPriceLists_ByWarehouse() {
	warehouseID := uuid.New()
	suite.service.On("List", mock.Anything, &warehouseID, 50, 0).Return([]*models.PriceList{}, nil).Once()

	rec := suite.do(http.MethodGet, "/api/v1/price-lists?warehouse_id="+warehouseID.String(), nil, "")
	assert.Equal(suite.T(), http.StatusOK, rec.Code)
}

func (suite *PriceListHandlersTestSuite) TestActivate_Accepted() {
	id := uuid.New()
	suite.service.On("RequestActivate", mock.Anything, id).Return(nil).Once()

	rec := suite.do(http.MethodPost, "/api/v1/price-lists/"+id.String()+"/activate", nil, "")
	assert.Equal(suite.T(), http.StatusAccepted, rec.Code)

	var body map[string]string
	require.NoError(suite.T(), json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(suite.T(), "activate", body["action"])
}

func (suite *PriceListHandlersTestSuite) TestDeactivate_ErrorCodes() {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"busy", fmt.Errorf("%w: x", services.ErrPriceListBusy), http.StatusConflict},
		{"draft orders", fmt.Errorf("%w: 2 orders", services.ErrDraftOrdersAffected), http.StatusConflict},
		{"owned", services.ErrOwnedWarehouse, http.StatusUnprocessableEntity},
		{"unexpected", errors.New("pool closed"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		suite.Run(tt.name, func() {
			id := uuid.New()
			suite.service.On("RequestDeactivate", mock.Anything, id, true).Return(tt.err).Once()

			rec := suite.do(http.MethodPost, "/api/v1/price-lists/"+id.String()+"/deactivate?force=true", nil, "")
			assert.Equal(suite.T(), tt.code, rec.Code)
		})
	}
}

func (suite *PriceListHandlersTestSuite) TestReplace() {
	oldID, newID := uuid.New(), uuid.New()
	suite.service.On("RequestReplace", mock.Anything, oldID, newID, false).Return(nil).Once()

	body := bytes.NewBufferString(fmt.Sprintf(`{"new_price_list_id":"%s"}`, newID))
	rec := suite.do(http.MethodPost, "/api/v1/price-lists/"+oldID.String()+"/replace", body, echo.MIMEApplicationJSON)
	assert.Equal(suite.T(), http.StatusAccepted, rec.Code)
}

func (suite *PriceListHandlersTestSuite) TestReplace_MissingTarget() {
	rec := suite.do(http.MethodPost, "/api/v1/price-lists/"+uuid.NewString()+"/replace", bytes.NewBufferString(`{}`), echo.MIMEApplicationJSON)
	assert.Equal(suite.T(), http.StatusBadRequest, rec.Code)
}

func (suite *PriceListHandlersTestSuite) TestDelete_Active() {
	id := uuid.New()
	suite.service.On("Delete", mock.Anything, id).Return(services.ErrPriceListActive).Once()

	rec := suite.do(http.MethodDelete, "/api/v1/price-lists/"+id.String(), nil, "")
	assert.Equal(suite.T(), http.StatusConflict, rec.Code)
}

func (suite *PriceListHandlersTestSuite) TestFileURL() {
	id := uuid.New()
	suite.service.On("FileURL", mock.Anything, id).Return("https://files/x", nil).Once()

	rec := suite.do(http.MethodGet, "/api/v1/price-lists/"+id.String()+"/file", nil, "")
	assert.Equal(suite.T(), http.StatusOK, rec.Code)
	assert.True(suite.T(), strings.Contains(rec.Body.String(), "https://files/x"))
}

func (suite *PriceListHandlersTestSuite) TestHealth() {
	rec := suite.do(http.MethodGet, "/health", nil, "")
	assert.Equal(suite.T(), http.StatusOK, rec.Code)
	assert.Contains(suite.T(), rec.Body.String(), `"database":"healthy"`)
}

func TestHealthCheck_Degraded(t *testing.T) {
	e := echo.New()
	h := NewHealthHandlers(map[string]Checker{
		"redis": func(context.Context) error { return errors.New("refused") },
	}, "test")
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	require.NoError(t, h.HealthCheck(e.NewContext(req, rec)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)
}
