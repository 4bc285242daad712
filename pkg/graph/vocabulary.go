package graph

// NodeID, EdgeID and Weight are the shared vocabulary types every package
// in this module builds on. The original OSRM source names these as
// typedefs (NodeID/EdgeID in typedefs.h); the teacher left them as bare
// uint32 throughout — named here so call sites read like the spec instead
// of losing the distinction in a sea of uint32s.
type (
	NodeID = uint32
	EdgeID = uint32
	Weight = uint32
)

// SpecialID marks an absent node, edge or rank — OSRM's SPECIAL_NODEID /
// SPECIAL_EDGEID sentinel, unified here since Go has no separate "invalid
// node" vs "invalid edge" type to confuse them.
const SpecialID = ^uint32(0)

// MaxEdgeWeight is the ceiling a single edge weight (in deci-seconds) may
// never reach: 24h * 3600s/h * 10 (deci-seconds). Rejected unconditionally
// at ingestion — see DESIGN.md Open Question 3.
const MaxEdgeWeight = 24 * 3600 * 10
