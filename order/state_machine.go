package order

import "fmt"

// StateTransition 状态转换
type StateTransition struct {
	From RungState
	To   RungState
}

// StateMachine 档位状态机。取消是终态
type StateMachine struct {
	transitions map[StateTransition]bool
}

// NewStateMachine 创建新的状态机
func NewStateMachine() *StateMachine {
	sm := &StateMachine{transitions: make(map[StateTransition]bool)}
	for _, t := range []StateTransition{
		// 首次成交物化
		{RungVirtual, RungOpen},
		// 撤单，或 oneshot 首笔即耗尽
		{RungVirtual, RungCanceled},
		// 多次部分成交
		{RungOpen, RungOpen},
		{RungOpen, RungCanceled},
	} {
		sm.transitions[t] = true
	}
	return sm
}

// ValidateTransition 验证状态转换是否合法
func (sm *StateMachine) ValidateTransition(from, to RungState) error {
	if !sm.transitions[StateTransition{From: from, To: to}] {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	return nil
}

// AllowedTransitions 返回当前状态所有合法的目标状态
func (sm *StateMachine) AllowedTransitions(current RungState) []RungState {
	allowed := make([]RungState, 0, 2)
	for _, to := range []RungState{RungVirtual, RungOpen, RungCanceled} {
		if sm.transitions[StateTransition{From: current, To: to}] {
			allowed = append(allowed, to)
		}
	}
	return allowed
}

// IsFinalState 判断是否是终态
func (sm *StateMachine) IsFinalState(s RungState) bool {
	return len(sm.AllowedTransitions(s)) == 0
}
