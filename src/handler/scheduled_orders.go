package handler

import (
	"net/http"

	"github.com/shopspring/decimal"

	"tradingroom/src/model"
	"tradingroom/src/trading"
)

type createScheduledOrderPayload struct {
	RoomID        uint             `json:"room_id"`
	ClientOrderID string           `json:"client_order_id,omitempty"`
	Symbol        string           `json:"symbol"`
	Side          model.Side       `json:"side"`
	Quantity      decimal.Decimal  `json:"quantity"`
	TriggerPrice  decimal.Decimal  `json:"trigger_price"`
	OrderPrice    *decimal.Decimal `json:"order_price,omitempty"`
	Leverage      int              `json:"leverage"`
	FeeRate       *decimal.Decimal `json:"fee_rate,omitempty"`
	TakeProfit    *legPayload      `json:"take_profit,omitempty"`
	StopLoss      *legPayload      `json:"stop_loss,omitempty"`
}

type scheduledExecutionResponse struct {
	Order     *model.ScheduledOrder `json:"order"`
	Position  *model.Position       `json:"position"`
	Reference string                `json:"reference"`
}

func CreateScheduledOrderHandler(svc ScheduledOrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := currentUser(w, r)
		if !ok {
			return
		}

		var payload createScheduledOrderPayload
		if !decodeBody(w, r, &payload) {
			return
		}

		order, err := svc.Create(r.Context(), trading.CreateScheduledOrderRequest{
			RoomID:        payload.RoomID,
			UserID:        user.ID,
			ClientOrderID: payload.ClientOrderID,
			Symbol:        payload.Symbol,
			Side:          payload.Side,
			Quantity:      payload.Quantity,
			TriggerPrice:  payload.TriggerPrice,
			OrderPrice:    payload.OrderPrice,
			Leverage:      payload.Leverage,
			FeeRate:       payload.FeeRate,
			TakeProfit:    payload.TakeProfit.leg(),
			StopLoss:      payload.StopLoss.leg(),
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, order)
	}
}

func GetScheduledOrderHandler(svc ScheduledOrderService) http.HandlerFunc {
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

func CancelScheduledOrderHandler(svc ScheduledOrderService) http.HandlerFunc {
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

func ExecuteScheduledOrderHandler(svc ScheduledOrderService) http.HandlerFunc {
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

		if _, err := svc.Get(r.Context(), user.ID, id); err != nil {
			writeError(w, r, err)
			return
		}

		result, err := svc.Execute(r.Context(), id, payload.Price)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, scheduledExecutionResponse{
			Order:     result.Order,
			Position:  result.Position,
			Reference: result.Reference,
		})
	}
}
