// Package profile defines the turn-penalty profile interface that stands
// in for the Lua scripting VM spec.md §1 keeps explicitly out of scope:
// the core (pkg/ebg) only needs a narrow callback surface to decide turn
// costs, u-turn costs and traffic-signal costs — it does not need to host
// a scripting runtime itself.
package profile

// Profile computes the extra cost (in the same deci-second weight unit as
// edge weights) of a particular maneuver during edge-based graph
// expansion.
type Profile interface {
	// TurnPenalty returns the extra weight for turning through angle
	// turnAngleDegrees (0 = straight ahead, 180 = full u-turn) between two
	// road segments of the given highway classes.
	TurnPenalty(turnAngleDegrees float64, fromHighway, toHighway string) uint32

	// UTurnPenalty returns the extra weight for a u-turn at a node with
	// the given degree (number of incident roads).
	UTurnPenalty(nodeDegree int) uint32

	// TrafficSignalPenalty returns the extra weight for passing through a
	// traffic-signal-controlled node.
	TrafficSignalPenalty() uint32

	// HasTurnPenaltyFunction reports whether TurnPenalty should be
	// consulted at all; profiles that model turn cost purely via
	// UTurnPenalty/TrafficSignalPenalty (or not at all) can return false
	// to let pkg/ebg skip the per-turn angle computation entirely.
	HasTurnPenaltyFunction() bool
}

// Default returns a simple constant-penalty car profile: a fixed cost for
// sharp turns, a fixed u-turn penalty scaled by junction degree, and a
// fixed traffic-signal penalty. Used by tests and by cmd/preprocess when
// no profile is supplied.
func Default() Profile { return defaultProfile{} }

type defaultProfile struct{}

const (
	sharpTurnDeciSeconds   = 20  // 2s, for turns sharper than 100 degrees
	uturnBaseDeciSeconds   = 200 // 20s
	signalPenaltyDeciSecs  = 20  // 2s
	sharpTurnThresholdDegs = 100.0
)

func (defaultProfile) HasTurnPenaltyFunction() bool { return true }

func (defaultProfile) TurnPenalty(turnAngleDegrees float64, _, _ string) uint32 {
	angle := turnAngleDegrees
	if angle < 0 {
		angle = -angle
	}
	if angle > sharpTurnThresholdDegs {
		return sharpTurnDeciSeconds
	}
	return 0
}

func (defaultProfile) UTurnPenalty(nodeDegree int) uint32 {
	if nodeDegree <= 2 {
		return 0 // dead end / through node, a u-turn is simply the only option
	}
	return uturnBaseDeciSeconds
}

func (defaultProfile) TrafficSignalPenalty() uint32 { return signalPenaltyDeciSecs }
