package model

import "fmt"

// ValidTransitions defines allowed kill-switch enforcement transitions
var ValidTransitions = map[KillSwitchState][]KillSwitchState{
	KillSwitchDisarmed:  {KillSwitchArmed},
	KillSwitchArmed:     {KillSwitchEngaged, KillSwitchDisarmed},
	KillSwitchEngaged:   {KillSwitchArmed, KillSwitchDisarmed},
	KillSwitchReleasing: {KillSwitchArmed, KillSwitchDisarmed},
}

func CanTransition(from, to KillSwitchState) bool {
	allowed, exists := ValidTransitions[from]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

func ValidateTransition(from, to KillSwitchState) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}

// NextKillSwitchState evaluates one step of the enforcement machine.
// A disabled switch is always Disarmed.
func NextKillSwitchState(current KillSwitchState, enabled, vpnConnected bool) KillSwitchState {
	if !enabled {
		return KillSwitchDisarmed
	}
	switch current {
	case KillSwitchArmed:
		if !vpnConnected {
			return KillSwitchEngaged
		}
	case KillSwitchDisarmed, KillSwitchEngaged, KillSwitchReleasing:
		if vpnConnected {
			return KillSwitchArmed
		}
	}
	return current
}
