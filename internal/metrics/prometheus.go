package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "lsd_vault_node"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type promGauge struct {
	gauge prometheus.Gauge
}

func (p promGauge) Set(v float64) {
	p.gauge.Set(v)
}

type Prometheus struct {
	Metrics *Metrics

	registry             *prometheus.Registry
	depositsAccepted     prometheus.Counter
	depositsRejected     prometheus.Counter
	withdrawalsCompleted prometheus.Counter
	withdrawalsRejected  prometheus.Counter
	swapsExecuted        prometheus.Counter
	swapsFailed          prometheus.Counter
	nativeSendFailures   prometheus.Counter
	migrationsCompleted  prometheus.Counter
	totalAssets          prometheus.Gauge
	shareSupply          prometheus.Gauge
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	depositsAccepted := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "deposits_accepted_total",
		Help:      "Total number of accepted deposits.",
	})
	depositsRejected := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "deposits_rejected_total",
		Help:      "Total number of rejected deposits.",
	})
	withdrawalsCompleted := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "withdrawals_completed_total",
		Help:      "Total number of completed withdrawals.",
	})
	withdrawalsRejected := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "withdrawals_rejected_total",
		Help:      "Total number of rejected withdrawals.",
	})
	swapsExecuted := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "swaps_executed_total",
		Help:      "Total number of executed swaps, manager-directed and automatic.",
	})
	swapsFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "swaps_failed_total",
		Help:      "Total number of failed swaps.",
	})
	nativeSendFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "native_send_failures_total",
		Help:      "Total number of refused native-coin transfers.",
	})
	migrationsCompleted := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "migrations_completed_total",
		Help:      "Total number of completed strategy migrations.",
	})
	totalAssets := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: promNamespace,
		Name:      "total_assets",
		Help:      "Settlement-equivalent value of all strategy reserves, in base units.",
	})
	shareSupply := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: promNamespace,
		Name:      "share_supply",
		Help:      "Outstanding vault shares, in base units.",
	})

	registry.MustRegister(depositsAccepted, depositsRejected, withdrawalsCompleted, withdrawalsRejected,
		swapsExecuted, swapsFailed, nativeSendFailures, migrationsCompleted, totalAssets, shareSupply)

	m := &Metrics{
		DepositsAccepted:     promCounter{depositsAccepted},
		DepositsRejected:     promCounter{depositsRejected},
		WithdrawalsCompleted: promCounter{withdrawalsCompleted},
		WithdrawalsRejected:  promCounter{withdrawalsRejected},
		SwapsExecuted:        promCounter{swapsExecuted},
		SwapsFailed:          promCounter{swapsFailed},
		NativeSendFailures:   promCounter{nativeSendFailures},
		MigrationsCompleted:  promCounter{migrationsCompleted},
		TotalAssets:          promGauge{totalAssets},
		ShareSupply:          promGauge{shareSupply},
	}

	return &Prometheus{
		Metrics:              m,
		registry:             registry,
		depositsAccepted:     depositsAccepted,
		depositsRejected:     depositsRejected,
		withdrawalsCompleted: withdrawalsCompleted,
		withdrawalsRejected:  withdrawalsRejected,
		swapsExecuted:        swapsExecuted,
		swapsFailed:          swapsFailed,
		nativeSendFailures:   nativeSendFailures,
		migrationsCompleted:  migrationsCompleted,
		totalAssets:          totalAssets,
		shareSupply:          shareSupply,
	}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
