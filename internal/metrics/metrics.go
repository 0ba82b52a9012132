package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	RunsCompleted   Counter
	RunsFailed      Counter
	Rebalances      Counter
	FundingPayments Counter
	HedgeOpened     Counter
	HedgeClosed     Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		RunsCompleted:   n,
		RunsFailed:      n,
		Rebalances:      n,
		FundingPayments: n,
		HedgeOpened:     n,
		HedgeClosed:     n,
	}
}
