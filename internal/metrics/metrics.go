package metrics

type Counter interface {
	Inc()
}

type Gauge interface {
	Set(v float64)
}

type Metrics struct {
	DepositsAccepted     Counter
	DepositsRejected     Counter
	WithdrawalsCompleted Counter
	WithdrawalsRejected  Counter
	SwapsExecuted        Counter
	SwapsFailed          Counter
	NativeSendFailures   Counter
	MigrationsCompleted  Counter

	TotalAssets Gauge
	ShareSupply Gauge
}

type noopCounter struct{}

func (noopCounter) Inc() {}

type noopGauge struct{}

func (noopGauge) Set(float64) {}

func NewNoop() *Metrics {
	n := noopCounter{}
	g := noopGauge{}
	return &Metrics{
		DepositsAccepted:     n,
		DepositsRejected:     n,
		WithdrawalsCompleted: n,
		WithdrawalsRejected:  n,
		SwapsExecuted:        n,
		SwapsFailed:          n,
		NativeSendFailures:   n,
		MigrationsCompleted:  n,
		TotalAssets:          g,
		ShareSupply:          g,
	}
}
