package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type MetricConst string

const (
	MetricPositionOpened      MetricConst = "tradingroom_position_opened_total"
	MetricPositionOpenFailed  MetricConst = "tradingroom_position_open_failed_total"
	MetricPositionFilled      MetricConst = "tradingroom_position_filled_total"
	MetricConditionalExecuted MetricConst = "tradingroom_conditional_order_execution_total"
	MetricScheduledExecuted   MetricConst = "tradingroom_scheduled_order_execution_total"
	MetricOrderCancelled      MetricConst = "tradingroom_order_cancelled_total"
	MetricPriceCheckPass      MetricConst = "tradingroom_price_check_pass_total"
)

func (m MetricConst) ToString() string {
	return string(m)
}

var (
	PositionOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: MetricPositionOpened.ToString(),
		Help: "Positions opened, by side and order type.",
	}, []string{"side", "order_type"})

	PositionOpenFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: MetricPositionOpenFailed.ToString(),
		Help: "Rejected or failed open requests, by reason.",
	}, []string{"reason"})

	PositionFilled = promauto.NewCounter(prometheus.CounterOpts{
		Name: MetricPositionFilled.ToString(),
		Help: "Pending limit positions promoted to filled.",
	})

	// outcome is one of executed, stale, failed, rejected
	ConditionalExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: MetricConditionalExecuted.ToString(),
		Help: "Conditional order execution attempts, by leg and outcome.",
	}, []string{"order_type", "outcome"})

	ScheduledExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: MetricScheduledExecuted.ToString(),
		Help: "Scheduled order execution attempts, by outcome.",
	}, []string{"outcome"})

	OrderCancelled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: MetricOrderCancelled.ToString(),
		Help: "Orders moved to cancelled, by kind.",
	}, []string{"kind"})

	PriceCheckPass = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: MetricPriceCheckPass.ToString(),
		Help: "Price-check passes, by result.",
	}, []string{"result"})
)
