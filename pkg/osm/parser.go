package osm

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"strings"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"

	"github.com/azybler/chrouter/pkg/geo"
)

// RawEdge represents a directed edge parsed from OSM data.
type RawEdge struct {
	FromNodeID osm.NodeID
	ToNodeID   osm.NodeID
	Weight     uint32    // distance in millimeters
	ShapeLats  []float64 // intermediate shape node latitudes (excluding from/to)
	ShapeLons  []float64 // intermediate shape node longitudes (excluding from/to)
}

// RawRestriction is a turn restriction resolved to the OSM node adjacent to
// the via node on each side, rather than the way IDs a restriction relation
// names directly — that is the shape EdgeBasedGraphFactory needs to match a
// restriction against a specific incoming/outgoing edge pair (spec.md §4.4).
type RawRestriction struct {
	From osm.NodeID
	Via  osm.NodeID
	To   osm.NodeID
	Only bool // "only_..." restriction: this is the ONLY legal turn at Via from From
}

// ParseResult holds the output of parsing an OSM PBF file.
type ParseResult struct {
	Edges          []RawEdge
	NodeLat        map[osm.NodeID]float64
	NodeLon        map[osm.NodeID]float64
	Restrictions   []RawRestriction
	Barriers       map[osm.NodeID]bool
	TrafficSignals map[osm.NodeID]bool
}

// carHighways lists highway tag values accessible by car.
var carHighways = map[string]bool{
	"motorway":       true,
	"motorway_link":  true,
	"trunk":          true,
	"trunk_link":     true,
	"primary":        true,
	"primary_link":   true,
	"secondary":      true,
	"secondary_link": true,
	"tertiary":       true,
	"tertiary_link":  true,
	"unclassified":   true,
	"residential":    true,
	"living_street":  true,
	"service":        true,
}

// restrictionTypes maps the OSM restriction relation's "restriction" tag to
// whether it is a prohibitory ("no_...") or mandatory ("only_...") turn.
var restrictionTypes = map[string]bool{
	"no_left_turn":     false,
	"no_right_turn":    false,
	"no_straight_on":   false,
	"no_u_turn":        false,
	"no_entry":         false,
	"no_exit":          false,
	"only_left_turn":   true,
	"only_right_turn":  true,
	"only_straight_on": true,
}

// isCarAccessible returns true if the way is drivable by car.
func isCarAccessible(tags osm.Tags) bool {
	hw := tags.Find("highway")
	if !carHighways[hw] {
		return false
	}

	// Skip area highways (pedestrian plazas).
	if tags.Find("area") == "yes" {
		return false
	}

	// Skip restricted access.
	access := tags.Find("access")
	if access == "no" || access == "private" {
		return false
	}
	if tags.Find("motor_vehicle") == "no" {
		return false
	}

	return true
}

// directionFlags returns (forward, backward) based on highway type and oneway tags.
func directionFlags(tags osm.Tags) (forward, backward bool) {
	// Default: bidirectional.
	forward = true
	backward = true

	hw := tags.Find("highway")

	// Implied oneway for motorways and roundabouts.
	if hw == "motorway" || hw == "motorway_link" || tags.Find("junction") == "roundabout" {
		backward = false
	}

	// Explicit oneway tag overrides.
	oneway := tags.Find("oneway")
	switch oneway {
	case "yes", "true", "1":
		forward = true
		backward = false
	case "-1", "reverse":
		forward = false
		backward = true
	case "no":
		forward = true
		backward = true
	case "reversible":
		// Time-dependent — skip entirely.
		forward = false
		backward = false
	}

	return forward, backward
}

// isBarrierNode reports whether a node's tags mark it as blocking car
// transit outright (access=no) rather than merely slowing it down.
func isBarrierNode(tags osm.Tags) bool {
	barrier := tags.Find("barrier")
	if barrier == "" || barrier == "no" {
		return false
	}
	switch tags.Find("access") {
	case "yes", "private", "permissive", "destination":
		return false
	}
	switch barrier {
	case "bollard", "gate", "lift_gate", "block", "wall", "fence", "cycle_barrier":
		return tags.Find("motor_vehicle") != "yes"
	}
	return false
}

// wayInfo holds parsed way data collected during Pass 1.
type wayInfo struct {
	ID       osm.WayID
	NodeIDs  []osm.NodeID
	Forward  bool
	Backward bool
	Drivable bool
}

// BBox defines a geographic bounding box for filtering.
// If non-zero, only edges with both endpoints inside the box are kept.
type BBox struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// IsZero returns true if the bbox is unset.
func (b BBox) IsZero() bool {
	return b.MinLat == 0 && b.MaxLat == 0 && b.MinLng == 0 && b.MaxLng == 0
}

// Contains returns true if the point is inside the bounding box.
func (b BBox) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

// ParseOptions configures the OSM parser.
type ParseOptions struct {
	BBox BBox // if non-zero, filter edges to this bounding box
}

// Parse reads an OSM PBF file and returns directed edges for car routing,
// plus turn restrictions, barrier nodes, and traffic-signal nodes.
// The reader is consumed across three passes (ways, relations, nodes), so
// it must implement io.ReadSeeker.
func Parse(ctx context.Context, rs io.ReadSeeker, opts ...ParseOptions) (*ParseResult, error) {
	var opt ParseOptions
	if len(opts) > 0 {
		opt = opts[0]
	}
	useBBox := !opt.BBox.IsZero()

	// Pass 1: scan ways. Every way's node list is kept (not just drivable
	// ones) so that restriction relations naming an inaccessible service
	// way as "from"/"to" can still be resolved.
	referencedNodes := make(map[osm.NodeID]struct{})
	var ways []wayInfo
	wayByID := make(map[osm.WayID]*wayInfo)

	scanner := osmpbf.New(ctx, rs, 1)
	scanner.SkipNodes = true
	scanner.SkipRelations = true

	for scanner.Scan() {
		obj := scanner.Object()
		w, ok := obj.(*osm.Way)
		if !ok {
			continue
		}
		if len(w.Nodes) < 2 {
			continue
		}

		nodeIDs := make([]osm.NodeID, len(w.Nodes))
		for i, wn := range w.Nodes {
			nodeIDs[i] = wn.ID
		}

		drivable := isCarAccessible(w.Tags)
		fwd, bwd := false, false
		if drivable {
			fwd, bwd = directionFlags(w.Tags)
			drivable = fwd || bwd
		}

		wi := wayInfo{ID: w.ID, NodeIDs: nodeIDs, Forward: fwd, Backward: bwd, Drivable: drivable}
		ways = append(ways, wi)
		wayByID[w.ID] = &ways[len(ways)-1]

		if drivable {
			for _, id := range nodeIDs {
				referencedNodes[id] = struct{}{}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, fmt.Errorf("pass 1 (ways): %w", err)
	}
	scanner.Close()

	log.Printf("Pass 1 complete: %d ways, %d referenced nodes", len(ways), len(referencedNodes))

	// Pass 2: scan restriction relations, resolving each to the OSM node
	// on the "from"/"to" way adjacent to the shared "via" node.
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek for pass 2: %w", err)
	}

	var restrictions []RawRestriction
	scanner = osmpbf.New(ctx, rs, 1)
	scanner.SkipNodes = true
	scanner.SkipWays = true

	for scanner.Scan() {
		obj := scanner.Object()
		rel, ok := obj.(*osm.Relation)
		if !ok {
			continue
		}
		if rel.Tags.Find("type") != "restriction" {
			continue
		}
		restrictionTag := rel.Tags.Find("restriction")
		if strings.HasPrefix(restrictionTag, "restriction:") {
			restrictionTag = strings.TrimPrefix(restrictionTag, "restriction:")
		}
		only, recognized := restrictionTypes[restrictionTag]
		if !recognized {
			continue
		}

		var fromWay, toWay osm.WayID
		var viaNode osm.NodeID
		haveFrom, haveTo, haveVia := false, false, false
		for _, m := range rel.Members {
			switch m.Role {
			case "from":
				if m.Type == osm.TypeWay {
					fromWay = osm.WayID(m.Ref)
					haveFrom = true
				}
			case "to":
				if m.Type == osm.TypeWay {
					toWay = osm.WayID(m.Ref)
					haveTo = true
				}
			case "via":
				if m.Type == osm.TypeNode {
					viaNode = osm.NodeID(m.Ref)
					haveVia = true
				}
			}
		}
		if !haveFrom || !haveTo || !haveVia {
			continue // via-way restrictions (multi-node via) are out of scope
		}

		fromNode, ok1 := adjacentNode(wayByID[fromWay], viaNode)
		toNode, ok2 := adjacentNode(wayByID[toWay], viaNode)
		if !ok1 || !ok2 {
			continue
		}

		referencedNodes[fromNode] = struct{}{}
		referencedNodes[viaNode] = struct{}{}
		referencedNodes[toNode] = struct{}{}
		restrictions = append(restrictions, RawRestriction{From: fromNode, Via: viaNode, To: toNode, Only: only})
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, fmt.Errorf("pass 2 (relations): %w", err)
	}
	scanner.Close()

	log.Printf("Pass 2 complete: %d turn restrictions resolved", len(restrictions))

	// Pass 3: scan nodes for coordinates, barriers, and traffic signals.
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek for pass 3: %w", err)
	}

	nodeLat := make(map[osm.NodeID]float64, len(referencedNodes))
	nodeLon := make(map[osm.NodeID]float64, len(referencedNodes))
	barriers := make(map[osm.NodeID]bool)
	signals := make(map[osm.NodeID]bool)

	scanner = osmpbf.New(ctx, rs, 1)
	scanner.SkipWays = true
	scanner.SkipRelations = true

	for scanner.Scan() {
		obj := scanner.Object()
		n, ok := obj.(*osm.Node)
		if !ok {
			continue
		}
		if _, needed := referencedNodes[n.ID]; !needed {
			continue
		}

		nodeLat[n.ID] = n.Lat
		nodeLon[n.ID] = n.Lon

		if isBarrierNode(n.Tags) {
			barriers[n.ID] = true
		}
		if n.Tags.Find("highway") == "traffic_signals" {
			signals[n.ID] = true
		}
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, fmt.Errorf("pass 3 (nodes): %w", err)
	}
	scanner.Close()

	log.Printf("Pass 3 complete: %d node coordinates, %d barriers, %d signals", len(nodeLat), len(barriers), len(signals))

	// Build edges from drivable ways.
	var edges []RawEdge
	var skippedEdges int
	var bboxFiltered int

	for _, w := range ways {
		if !w.Drivable {
			continue
		}
		for i := 0; i < len(w.NodeIDs)-1; i++ {
			fromID := w.NodeIDs[i]
			toID := w.NodeIDs[i+1]

			fromLat, fromOk := nodeLat[fromID]
			fromLon := nodeLon[fromID]
			toLat, toOk := nodeLat[toID]
			toLon := nodeLon[toID]

			if !fromOk || !toOk {
				skippedEdges++
				continue
			}

			// Bounding box filter: skip edges with any endpoint outside.
			if useBBox && (!opt.BBox.Contains(fromLat, fromLon) || !opt.BBox.Contains(toLat, toLon)) {
				bboxFiltered++
				continue
			}

			dist := geo.Haversine(fromLat, fromLon, toLat, toLon)
			weightMM := uint32(math.Round(dist * 1000))
			if weightMM == 0 {
				weightMM = 1 // avoid zero-weight edges
			}

			if w.Forward {
				edges = append(edges, RawEdge{
					FromNodeID: fromID,
					ToNodeID:   toID,
					Weight:     weightMM,
				})
			}
			if w.Backward {
				edges = append(edges, RawEdge{
					FromNodeID: toID,
					ToNodeID:   fromID,
					Weight:     weightMM,
				})
			}
		}
	}

	if skippedEdges > 0 {
		log.Printf("Warning: skipped %d edges due to missing node coordinates", skippedEdges)
	}
	if bboxFiltered > 0 {
		log.Printf("Filtered %d edges outside bounding box", bboxFiltered)
	}
	log.Printf("Built %d directed edges", len(edges))

	return &ParseResult{
		Edges:          edges,
		NodeLat:        nodeLat,
		NodeLon:        nodeLon,
		Restrictions:   restrictions,
		Barriers:       barriers,
		TrafficSignals: signals,
	}, nil
}

// adjacentNode returns the node on w immediately next to via, i.e. the node
// a vehicle was at just before entering (or will be at just after leaving)
// via along that way.
func adjacentNode(w *wayInfo, via osm.NodeID) (osm.NodeID, bool) {
	if w == nil {
		return 0, false
	}
	for i, id := range w.NodeIDs {
		if id != via {
			continue
		}
		switch {
		case i > 0:
			return w.NodeIDs[i-1], true
		case i+1 < len(w.NodeIDs):
			return w.NodeIDs[i+1], true
		}
	}
	return 0, false
}
