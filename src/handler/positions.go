package handler

import (
	"net/http"

	"github.com/shopspring/decimal"

	"tradingroom/src/model"
	"tradingroom/src/trading"
)

type openPositionPayload struct {
	RoomID        uint             `json:"room_id"`
	ClientOrderID string           `json:"client_order_id,omitempty"`
	Symbol        string           `json:"symbol"`
	Side          model.Side       `json:"side"`
	Quantity      decimal.Decimal  `json:"quantity"`
	EntryPrice    decimal.Decimal  `json:"entry_price"`
	Leverage      int              `json:"leverage"`
	OrderType     model.OrderType  `json:"order_type,omitempty"`
	FeeRate       *decimal.Decimal `json:"fee_rate,omitempty"`
	TakeProfit    *legPayload      `json:"take_profit,omitempty"`
	StopLoss      *legPayload      `json:"stop_loss,omitempty"`
}

type tpSlPayload struct {
	TakeProfit *legPayload `json:"take_profit,omitempty"`
	StopLoss   *legPayload `json:"stop_loss,omitempty"`
}

// OpenPositionHandler opens a position for the caller. Replaying a
// client_order_id returns the stored position.
func OpenPositionHandler(svc PositionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := currentUser(w, r)
		if !ok {
			return
		}

		var payload openPositionPayload
		if !decodeBody(w, r, &payload) {
			return
		}

		position, err := svc.Open(r.Context(), trading.OpenPositionRequest{
			RoomID:        payload.RoomID,
			UserID:        user.ID,
			ClientOrderID: payload.ClientOrderID,
			Symbol:        payload.Symbol,
			Side:          payload.Side,
			Quantity:      payload.Quantity,
			EntryPrice:    payload.EntryPrice,
			Leverage:      payload.Leverage,
			OrderType:     payload.OrderType,
			FeeRate:       payload.FeeRate,
			TakeProfit:    payload.TakeProfit.leg(),
			StopLoss:      payload.StopLoss.leg(),
		})
		if err != nil {
			writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, position)
	}
}

func GetPositionHandler(svc PositionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := currentUser(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		position, err := svc.Get(r.Context(), user.ID, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, position)
	}
}

// ListOpenPositionsHandler lists the caller's pending and filled positions,
// optionally narrowed to one room with ?room_id=.
func ListOpenPositionsHandler(svc PositionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := currentUser(w, r)
		if !ok {
			return
		}
		roomID, ok := queryID(w, r, "room_id")
		if !ok {
			return
		}

		positions, err := svc.ListOpen(r.Context(), roomID, user.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if positions == nil {
			positions = []model.Position{}
		}
		writeJSON(w, http.StatusOK, positions)
	}
}

// FillPositionHandler fills a pending limit position. With a price in the
// body the entry condition is checked against it.
func FillPositionHandler(svc PositionService) http.HandlerFunc {
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

		position, err := svc.Fill(r.Context(), id, payload.Price)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, position)
	}
}

// UpdateTpSlHandler edits the exit legs of a position. An omitted leg is left
// untouched; {"enabled": false} disables it.
func UpdateTpSlHandler(svc ConditionalOrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := currentUser(w, r)
		if !ok {
			return
		}
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		var payload tpSlPayload
		if !decodeBody(w, r, &payload) {
			return
		}

		position, err := svc.Upsert(r.Context(), user.ID, id, trading.TpSlUpdate{
			TakeProfit: payload.TakeProfit.legPtr(),
			StopLoss:   payload.StopLoss.legPtr(),
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, position)
	}
}
