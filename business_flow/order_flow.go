package businessflow

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/werkpilot/cost-model-service/app/dto"
	"github.com/werkpilot/cost-model-service/config"
	"github.com/werkpilot/cost-model-service/models"
	"github.com/werkpilot/cost-model-service/repository"
	"github.com/werkpilot/cost-model-service/utils"
	"gorm.io/gorm"
)

// OrderFlow handles the observed-order CRUD business logic
type OrderFlow interface {
	CreateOrder(ctx context.Context, req *dto.CreateOrderRequest, metadata *ClientMetadata) (*dto.CreateOrderResponse, error)
	ListOrders(ctx context.Context, req *dto.ListOrdersRequest) (*dto.ListOrdersResponse, error)
	GetOrder(ctx context.Context, orderID uint) (*dto.OrderDTO, error)
	UpdateOrder(ctx context.Context, req *dto.UpdateOrderRequest, metadata *ClientMetadata) (*dto.OrderDTO, error)
	DeleteOrder(ctx context.Context, orderID uint) error
}

// OrderFlowImpl implements the order business flow
type OrderFlowImpl struct {
	orderRepo   repository.OrderRepository
	articleRepo repository.ArticleRepository
	db          *gorm.DB
	cacheConfig *config.CacheConfig
	rc          *redis.Client
}

// NewOrderFlow creates a new order flow instance
func NewOrderFlow(
	orderRepo repository.OrderRepository,
	articleRepo repository.ArticleRepository,
	db *gorm.DB,
	cacheConfig *config.CacheConfig,
	rc *redis.Client,
) OrderFlow {
	return &OrderFlowImpl{
		orderRepo:   orderRepo,
		articleRepo: articleRepo,
		db:          db,
		cacheConfig: cacheConfig,
		rc:          rc,
	}
}

// CreateOrder records an observed transaction price. A referenced article
// must exist, and its stored name fills in a missing article_name.
func (s *OrderFlowImpl) CreateOrder(ctx context.Context, req *dto.CreateOrderRequest, metadata *ClientMetadata) (*dto.CreateOrderResponse, error) {
	orderDate, err := utils.ParseDate(req.OrderDate)
	if err != nil {
		return nil, NewBusinessErrorf("INVALID_DATE", "Cannot parse order date %q", ErrInvalidDate, req.OrderDate)
	}

	articleName := req.ArticleName
	if req.ArticleID != nil {
		article, err := getArticle(ctx, s.articleRepo, *req.ArticleID)
		if err != nil {
			return nil, err
		}
		if articleName == "" {
			articleName = article.Name
		}
	}

	order := &models.Order{
		ArticleID:   req.ArticleID,
		ArticleName: articleName,
		Price:       req.Price,
		PriceFactor: utils.ToPtr(req.PriceFactor),
		Unit:        utils.ToPtr(req.Unit),
		OrderDate:   orderDate,
	}
	if err := s.orderRepo.Save(ctx, order); err != nil {
		return nil, NewBusinessError("ORDER_CREATION_FAILED", "Failed to record order", err)
	}

	s.invalidateBreakdown(ctx, order.ArticleID, order.ArticleName)

	return &dto.CreateOrderResponse{
		Message: "Order recorded successfully",
		Order:   ToOrderDTO(*order),
	}, nil
}

// ListOrders retrieves orders, optionally narrowed to one article, newest
// first
func (s *OrderFlowImpl) ListOrders(ctx context.Context, req *dto.ListOrdersRequest) (*dto.ListOrdersResponse, error) {
	filter := models.OrderFilter{}
	if req.ArticleID != nil && *req.ArticleID != 0 {
		filter.ArticleID = req.ArticleID
	}
	if req.ArticleName != nil && *req.ArticleName != "" {
		filter.ArticleName = req.ArticleName
	}

	rows, err := s.orderRepo.ByFilter(ctx, filter, "order_date DESC, id DESC", 0, 0)
	if err != nil {
		return nil, NewBusinessError("LIST_ORDERS_FAILED", "Failed to list orders", err)
	}

	items := make([]dto.OrderDTO, 0, len(rows))
	for _, row := range rows {
		items = append(items, ToOrderDTO(*row))
	}

	return &dto.ListOrdersResponse{
		Message: "Orders retrieved successfully",
		Items:   items,
	}, nil
}

// GetOrder retrieves a single order by id
func (s *OrderFlowImpl) GetOrder(ctx context.Context, orderID uint) (*dto.OrderDTO, error) {
	order, err := getOrder(ctx, s.orderRepo, orderID)
	if err != nil {
		return nil, err
	}

	out := ToOrderDTO(*order)
	return &out, nil
}

// UpdateOrder applies a partial update to an existing order
func (s *OrderFlowImpl) UpdateOrder(ctx context.Context, req *dto.UpdateOrderRequest, metadata *ClientMetadata) (*dto.OrderDTO, error) {
	order, err := getOrder(ctx, s.orderRepo, req.ID)
	if err != nil {
		return nil, err
	}
	prevArticleID, prevArticleName := order.ArticleID, order.ArticleName

	if req.ArticleID != nil {
		article, err := getArticle(ctx, s.articleRepo, *req.ArticleID)
		if err != nil {
			return nil, err
		}
		order.ArticleID = req.ArticleID
		if req.ArticleName == nil && order.ArticleName == "" {
			order.ArticleName = article.Name
		}
	}
	if req.ArticleName != nil && *req.ArticleName != "" {
		order.ArticleName = *req.ArticleName
	}
	if req.Price != nil {
		order.Price = *req.Price
	}
	if req.PriceFactor != nil {
		order.PriceFactor = req.PriceFactor
	}
	if req.Unit != nil {
		order.Unit = req.Unit
	}
	if req.OrderDate != nil {
		orderDate, err := utils.ParseDate(*req.OrderDate)
		if err != nil {
			return nil, NewBusinessErrorf("INVALID_DATE", "Cannot parse order date %q", ErrInvalidDate, *req.OrderDate)
		}
		order.OrderDate = orderDate
	}

	if err := s.orderRepo.Update(ctx, *order); err != nil {
		return nil, NewBusinessError("ORDER_UPDATE_FAILED", "Failed to update order", err)
	}

	updated, err := s.orderRepo.ByID(ctx, order.ID)
	if err != nil || updated == nil {
		return nil, NewBusinessError("ORDER_LOOKUP_FAILED", "Failed to reload order", err)
	}

	// A relinked order leaves both the old and the new article stale.
	s.invalidateBreakdown(ctx, prevArticleID, prevArticleName)
	s.invalidateBreakdown(ctx, updated.ArticleID, updated.ArticleName)

	out := ToOrderDTO(*updated)
	return &out, nil
}

// DeleteOrder removes an order
func (s *OrderFlowImpl) DeleteOrder(ctx context.Context, orderID uint) error {
	order, err := getOrder(ctx, s.orderRepo, orderID)
	if err != nil {
		return err
	}

	if err := s.orderRepo.Delete(ctx, order.ID); err != nil {
		return NewBusinessError("ORDER_DELETION_FAILED", "Failed to delete order", err)
	}

	s.invalidateBreakdown(ctx, order.ArticleID, order.ArticleName)
	return nil
}

// invalidateBreakdown drops the cached breakdown of the article an order is
// linked to, resolving a name-only linkage through the article repository.
// A missed delete expires with the cache TTL.
func (s *OrderFlowImpl) invalidateBreakdown(ctx context.Context, articleID *uint, articleName string) {
	if s.rc == nil || s.cacheConfig == nil || !s.cacheConfig.Enabled {
		return
	}

	var id uint
	if articleID != nil {
		id = *articleID
	} else if articleName != "" {
		article, err := s.articleRepo.ByName(ctx, articleName)
		if err != nil || article == nil {
			return
		}
		id = article.ID
	}
	if id == 0 {
		return
	}
	_ = s.rc.Del(ctx, breakdownCacheKey(*s.cacheConfig, id)).Err()
}

// getOrder loads an order by id, mapping absence to the not-found error
func getOrder(ctx context.Context, repo repository.OrderRepository, orderID uint) (*models.Order, error) {
	if orderID == 0 {
		return nil, NewBusinessError("ORDER_NOT_FOUND", "Order not found", ErrOrderNotFound)
	}
	order, err := repo.ByID(ctx, orderID)
	if err != nil {
		return nil, NewBusinessError("ORDER_LOOKUP_FAILED", "Failed to lookup order", err)
	}
	if order == nil {
		return nil, NewBusinessError("ORDER_NOT_FOUND", "Order not found", ErrOrderNotFound)
	}
	return order, nil
}
