package strategy

type StateMachine struct {
	State State
}

func NewStateMachine() *StateMachine {
	return &StateMachine{State: StateIdle}
}

func (s *StateMachine) Apply(event Event) State {
	s.State = nextState(s.State, event)
	return s.State
}

func nextState(current State, event Event) State {
	if event == EventReset {
		return StateIdle
	}
	switch current {
	case StateIdle, StateUnhedged:
		if event == EventHedged {
			return StateHedged
		}
		if event == EventUnhedged {
			return StateUnhedged
		}
	case StateHedged:
		if event == EventUnhedged {
			return StateUnhedged
		}
	}
	return current
}
