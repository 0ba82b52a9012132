package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "lp_hedge"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry      *prometheus.Registry
	runsCompleted prometheus.Counter
	runsFailed    prometheus.Counter
	rebalances    prometheus.Counter
	funding       prometheus.Counter
	hedgeOpened   prometheus.Counter
	hedgeClosed   prometheus.Counter
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	runsCompleted := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "backtest_runs_completed_total",
		Help:      "Total number of backtest runs that finished.",
	})
	runsFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "backtest_runs_failed_total",
		Help:      "Total number of backtest runs aborted by an error.",
	})
	rebalances := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "rebalances_total",
		Help:      "Total number of hedge rebalances triggered by price moves.",
	})
	funding := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "funding_payments_total",
		Help:      "Total number of funding settlements applied to open hedges.",
	})
	hedgeOpened := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "hedge_opened_total",
		Help:      "Total number of perpetual positions opened.",
	})
	hedgeClosed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "hedge_closed_total",
		Help:      "Total number of perpetual positions closed.",
	})

	registry.MustRegister(runsCompleted, runsFailed, rebalances, funding, hedgeOpened, hedgeClosed)

	m := &Metrics{
		RunsCompleted:   promCounter{runsCompleted},
		RunsFailed:      promCounter{runsFailed},
		Rebalances:      promCounter{rebalances},
		FundingPayments: promCounter{funding},
		HedgeOpened:     promCounter{hedgeOpened},
		HedgeClosed:     promCounter{hedgeClosed},
	}

	return &Prometheus{
		Metrics:       m,
		registry:      registry,
		runsCompleted: runsCompleted,
		runsFailed:    runsFailed,
		rebalances:    rebalances,
		funding:       funding,
		hedgeOpened:   hedgeOpened,
		hedgeClosed:   hedgeClosed,
	}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
