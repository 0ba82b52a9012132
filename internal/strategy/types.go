package strategy

type State string

type Event string

const (
	StateIdle     State = "IDLE"
	StateHedged   State = "HEDGED"
	StateUnhedged State = "UNHEDGED"
)

const (
	EventHedged   Event = "HEDGED"
	EventUnhedged Event = "UNHEDGED"
	EventReset    Event = "RESET"
)
