package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"tradingroom/src/auth"
	"tradingroom/src/model"
	"tradingroom/src/repository"
	"tradingroom/src/tp_sl"
	"tradingroom/src/trading"
)

type PositionService interface {
	Open(ctx context.Context, req trading.OpenPositionRequest) (*model.Position, error)
	Get(ctx context.Context, userID, positionID uint) (*model.Position, error)
	ListOpen(ctx context.Context, roomID uint, userID uint) ([]model.Position, error)
	Fill(ctx context.Context, positionID uint, price *decimal.Decimal) (*model.Position, error)
}

type ConditionalOrderService interface {
	Upsert(ctx context.Context, userID, positionID uint, update trading.TpSlUpdate) (*model.Position, error)
	Create(ctx context.Context, userID uint, req trading.CreateConditionalOrderRequest) (*model.ConditionalOrder, error)
	Cancel(ctx context.Context, userID, orderID uint) (*model.ConditionalOrder, error)
	Get(ctx context.Context, userID, orderID uint) (*model.ConditionalOrder, error)
	ListByPosition(ctx context.Context, userID, positionID uint) ([]model.ConditionalOrder, error)
}

type ExecutionService interface {
	Execute(ctx context.Context, orderID uint, currentPrice *decimal.Decimal) (*trading.ExecutionResult, error)
}

type ScheduledOrderService interface {
	Create(ctx context.Context, req trading.CreateScheduledOrderRequest) (*model.ScheduledOrder, error)
	Cancel(ctx context.Context, userID, orderID uint) (*model.ScheduledOrder, error)
	Get(ctx context.Context, userID, orderID uint) (*model.ScheduledOrder, error)
	Execute(ctx context.Context, orderID uint, currentPrice *decimal.Decimal) (*trading.ScheduledExecutionResult, error)
}

// Services are the collaborators behind the /api routes.
type Services struct {
	Positions PositionService
	Orders    ConditionalOrderService
	Engine    ExecutionService
	Scheduled ScheduledOrderService
}

// DefaultServices wires the handlers to the production managers.
func DefaultServices(logger *logrus.Entry, ledger *repository.Ledger, exceptions trading.ExceptionRecorder) Services {
	return Services{
		Positions: trading.NewPositionManager(logger, ledger, exceptions),
		Orders:    trading.NewConditionalOrderManager(logger, ledger, exceptions),
		Engine:    trading.NewExecutionEngine(logger, ledger, exceptions),
		Scheduled: trading.NewScheduledOrderManager(logger, ledger, exceptions),
	}
}

// Register mounts every trading route on r. Callers must be authenticated.
func Register(r chi.Router, s Services) {
	r.Use(auth.RequireUser)

	r.Route("/positions", func(r chi.Router) {
		r.Get("/", ListOpenPositionsHandler(s.Positions))
		r.Post("/", OpenPositionHandler(s.Positions))
		r.Get("/{id}", GetPositionHandler(s.Positions))
		r.Post("/{id}/fill", FillPositionHandler(s.Positions))
		r.Put("/{id}/tpsl", UpdateTpSlHandler(s.Orders))
		r.Get("/{id}/conditional-orders", ListConditionalOrdersHandler(s.Orders))
	})

	r.Route("/conditional-orders", func(r chi.Router) {
		r.Post("/", CreateConditionalOrderHandler(s.Orders))
		r.Get("/{id}", GetConditionalOrderHandler(s.Orders))
		r.Delete("/{id}", CancelConditionalOrderHandler(s.Orders))
		r.Post("/{id}/execute", ExecuteConditionalOrderHandler(s.Orders, s.Engine))
	})

	r.Route("/scheduled-orders", func(r chi.Router) {
		r.Post("/", CreateScheduledOrderHandler(s.Scheduled))
		r.Get("/{id}", GetScheduledOrderHandler(s.Scheduled))
		r.Delete("/{id}", CancelScheduledOrderHandler(s.Scheduled))
		r.Post("/{id}/execute", ExecuteScheduledOrderHandler(s.Scheduled))
	})
}

// legPayload is one exit leg of a request. Prices are decimal strings.
type legPayload struct {
	Enabled      bool             `json:"enabled"`
	TriggerPrice *decimal.Decimal `json:"trigger_price,omitempty"`
	OrderPrice   *decimal.Decimal `json:"order_price,omitempty"`
}

func (p *legPayload) leg() tp_sl.Leg {
	if p == nil {
		return tp_sl.Leg{}
	}
	return tp_sl.Leg{Enabled: p.Enabled, TriggerPrice: p.TriggerPrice, OrderPrice: p.OrderPrice}
}

func (p *legPayload) legPtr() *tp_sl.Leg {
	if p == nil {
		return nil
	}
	leg := p.leg()
	return &leg
}

// pricePayload is the optional body of fill and execute requests.
type pricePayload struct {
	Price *decimal.Decimal `json:"price,omitempty"`
}

func currentUser(w http.ResponseWriter, r *http.Request) (*auth.User, bool) {
	user, ok := auth.GetUserFromContext(r.Context())
	if !ok || user == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	return user, true
}
