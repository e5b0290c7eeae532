package handler

import (
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"tradingroom/src/model"
	"tradingroom/src/trading"
)

type createConditionalOrderPayload struct {
	PositionID   uint                       `json:"position_id"`
	OrderType    model.ConditionalOrderType `json:"order_type"`
	TriggerPrice decimal.Decimal            `json:"trigger_price"`
	OrderPrice   *decimal.Decimal           `json:"order_price,omitempty"`
}

type executionResponse struct {
	Order             *model.ConditionalOrder `json:"order"`
	Position          *model.Position         `json:"position,omitempty"`
	ExecutionPrice    decimal.Decimal         `json:"execution_price"`
	CancelledOrderIDs []uint                  `json:"cancelled_order_ids"`
	Reference         string                  `json:"reference"`
}

func newExecutionResponse(result *trading.ExecutionResult) executionResponse {
	cancelled := result.CancelledOrderIDs
	if cancelled == nil {
		cancelled = []uint{}
	}
	return executionResponse{
		Order:             result.Order,
		Position:          result.Position,
		ExecutionPrice:    result.ExecutionPrice,
		CancelledOrderIDs: cancelled,
		Reference:         result.Reference,
	}
}

func CreateConditionalOrderHandler(svc ConditionalOrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := currentUser(w, r)
		if !ok {
			return
		}

		var payload createConditionalOrderPayload
		if !decodeBody(w, r, &payload) {
			return
		}

		order, err := svc.Create(r.Context(), user.ID, trading.CreateConditionalOrderRequest{
			PositionID:   payload.PositionID,
			OrderType:    payload.OrderType,
			TriggerPrice: payload.TriggerPrice,
			OrderPrice:   payload.OrderPrice,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, order)
	}
}

func GetConditionalOrderHandler(svc ConditionalOrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := currentUser(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		order, err := svc.Get(r.Context(), user.ID, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, order)
	}
}

func ListConditionalOrdersHandler(svc ConditionalOrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := currentUser(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		orders, err := svc.ListByPosition(r.Context(), user.ID, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if orders == nil {
			orders = []model.ConditionalOrder{}
		}
		writeJSON(w, http.StatusOK, orders)
	}
}

// CancelConditionalOrderHandler cancels an open order. Cancelling a terminal
// order answers 200 with the order as stored.
func CancelConditionalOrderHandler(svc ConditionalOrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := currentUser(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		order, err := svc.Cancel(r.Context(), user.ID, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, order)
	}
}

// ExecuteConditionalOrderHandler fires an order of the caller. A stale order
// answers 409 with the cancelled order in "result".
func ExecuteConditionalOrderHandler(orders ConditionalOrderService, engine ExecutionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := currentUser(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		var payload pricePayload
		if !decodeOptionalBody(w, r, &payload) {
			return
		}

		if _, err := orders.Get(r.Context(), user.ID, id); err != nil {
			writeError(w, r, err)
			return
		}

		result, err := engine.Execute(r.Context(), id, payload.Price)
		if err != nil {
			if result != nil && errors.Is(err, trading.ErrPositionAlreadyClosed) {
				writeErrorWithResult(w, r, err, newExecutionResponse(result))
				return
			}
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newExecutionResponse(result))
	}
}
