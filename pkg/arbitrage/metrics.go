package arbitrage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "basisarb",
		Subsystem: "engine",
		Name:      "ticks_total",
		Help:      "Decision loop iterations, including halted ones",
	})

	ordersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "basisarb",
		Subsystem: "execution",
		Name:      "orders_total",
		Help:      "Leg orders placed by the execution coordinator",
	}, []string{"leg", "side", "result"}) // result: filled, unfilled, error

	repayFixesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "basisarb",
		Subsystem: "execution",
		Name:      "repay_fixes_total",
		Help:      "Close orders retried with a balance-corrected quantity",
	})

	positionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "basisarb",
		Subsystem: "engine",
		Name:      "positions_total",
		Help:      "Position lifecycle events",
	}, []string{"event"}) // opened, closed, failed

	bansTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "basisarb",
		Subsystem: "governor",
		Name:      "bans_total",
		Help:      "Symbols banned for the process lifetime",
	})

	haltedGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "basisarb",
		Subsystem: "governor",
		Name:      "halted",
		Help:      "1 while the engine is halted",
	})

	openNotionalGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "basisarb",
		Subsystem: "engine",
		Name:      "open_notional",
		Help:      "Filled spot-leg notional across all tracked positions",
	})

	realizedPnLGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "basisarb",
		Subsystem: "engine",
		Name:      "realized_pnl",
		Help:      "Realized profit of closed positions in collateral units",
	})
)
