package routing

import (
	"context"
	"testing"

	"github.com/paulmach/osm"

	"github.com/azybler/chrouter/pkg/ch"
	"github.com/azybler/chrouter/pkg/ebg"
	"github.com/azybler/chrouter/pkg/graph"
	osmparser "github.com/azybler/chrouter/pkg/osm"
)

// buildYJunction constructs spec.md §8 scenario (e): 1->2, 2->3, 2->4, all
// one-way, mirroring ebg's own test fixture of the same name.
func buildYJunction() *graph.Graph {
	result := &osmparser.ParseResult{
		Edges: []osmparser.RawEdge{
			{FromNodeID: 1, ToNodeID: 2, Weight: 10000},
			{FromNodeID: 2, ToNodeID: 3, Weight: 10000},
			{FromNodeID: 2, ToNodeID: 4, Weight: 10000},
		},
		NodeLat: map[osm.NodeID]float64{1: 1.000, 2: 1.001, 3: 1.002, 4: 1.001},
		NodeLon: map[osm.NodeID]float64{1: 103.000, 2: 103.000, 3: 103.001, 4: 102.999},
	}
	return graph.Build(result)
}

// contractWithRestrictions mirrors cmd/preprocess/main.go's Step 4/5 over g,
// feeding restrictions into ebg.Expand before contraction.
func contractWithRestrictions(t *testing.T, g *graph.Graph, restrictions []ebg.Restriction) *graph.CHGraph {
	t.Helper()
	expanded, err := ebg.Expand(g, ebg.Options{Restrictions: restrictions})
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	chg, err := ch.Contract(ebg.ToGraph(expanded), ch.Options{})
	if err != nil {
		t.Fatalf("Contract: %v", err)
	}
	chg.NodeLat = g.NodeLat
	chg.NodeLon = g.NodeLon
	chg.OrigFirstOut = g.FirstOut
	chg.OrigHead = g.Head
	chg.OrigWeight = g.Weight
	chg.GeoFirstOut = g.GeoFirstOut
	chg.GeoShapeLat = g.GeoShapeLat
	chg.GeoShapeLon = g.GeoShapeLon
	return chg
}

// TestRouteRespectsTurnRestriction is the end-to-end counterpart of
// ebg's TestExpandYJunctionRestriction: it builds a CH graph through the
// real preprocessing pipeline (Expand -> ToGraph -> Contract) from a
// graph carrying a turn restriction, then queries it through Engine.Route
// to confirm the restriction is actually enforced at query time, not just
// reflected in ebg.Expand's own output.
func TestRouteRespectsTurnRestriction(t *testing.T) {
	g := buildYJunction()
	// compact node IDs, first-seen order in buildYJunction's edges: 0=1, 1=2, 2=3, 3=4
	const node1, node2, node3 = 0, 1, 2

	chg := contractWithRestrictions(t, g, []ebg.Restriction{
		{From: node1, Via: node2, To: node3, Only: false},
	})
	eng := NewEngine(chg, g)

	at1 := LatLng{Lat: 1.000, Lng: 103.000}
	at3 := LatLng{Lat: 1.002, Lng: 103.001}
	at4 := LatLng{Lat: 1.001, Lng: 102.999}

	if _, err := eng.Route(context.Background(), at1, at3); err != ErrNoRoute {
		t.Errorf("Route(1,3): got err=%v, want ErrNoRoute (turn 1->2->3 is prohibited)", err)
	}

	result, err := eng.Route(context.Background(), at1, at4)
	if err != nil {
		t.Fatalf("Route(1,4): %v (turn 1->2->4 is legal and should route)", err)
	}
	if result.TotalDistanceMeters <= 0 {
		t.Errorf("Route(1,4): TotalDistanceMeters = %f, want > 0", result.TotalDistanceMeters)
	}
}

// TestRouteAllowsUnrestrictedTurn is the control: with no restrictions at
// all, both turns out of the Y-junction are legal and routable.
func TestRouteAllowsUnrestrictedTurn(t *testing.T) {
	g := buildYJunction()
	chg := contractWithRestrictions(t, g, nil)
	eng := NewEngine(chg, g)

	at1 := LatLng{Lat: 1.000, Lng: 103.000}
	at3 := LatLng{Lat: 1.002, Lng: 103.001}

	result, err := eng.Route(context.Background(), at1, at3)
	if err != nil {
		t.Fatalf("Route(1,3) with no restrictions: %v", err)
	}
	if result.TotalDistanceMeters <= 0 {
		t.Errorf("TotalDistanceMeters = %f, want > 0", result.TotalDistanceMeters)
	}
}
