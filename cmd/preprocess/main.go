package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/paulmach/osm"

	"github.com/azybler/chrouter/pkg/ch"
	"github.com/azybler/chrouter/pkg/ebg"
	"github.com/azybler/chrouter/pkg/graph"
	osmparser "github.com/azybler/chrouter/pkg/osm"
)

// exit codes, per the preprocessing CLI's documented contract.
const (
	exitOK             = 0
	exitBadArgs        = 1
	exitIOError        = 2
	exitProfileError   = 3
	exitInvariantError = 4
)

func fail(code int, format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(code)
}

func main() {
	input := flag.String("input", "", "Path to .osm.pbf file")
	output := flag.String("output", "graph.bin", "Output binary graph file path")
	bbox := flag.String("bbox", "", "Bounding box filter: minLat,minLng,maxLat,maxLng (e.g. 1.15,103.6,1.48,104.1)")
	singapore := flag.Bool("singapore", false, "Shortcut for --bbox 1.15,103.6,1.48,104.1 (Singapore bounding box)")
	kl := flag.Bool("kl", false, "Shortcut for --bbox 2.75,101.2,3.5,102.0 (Selangor + Kuala Lumpur bounding box)")
	flag.Parse()

	if *input == "" {
		fmt.Fprintln(os.Stderr, "Usage: preprocess --input <file.osm.pbf> [--output graph.bin] [--singapore | --kl | --bbox minLat,minLng,maxLat,maxLng]")
		os.Exit(exitBadArgs)
	}

	// Parse bbox option.
	var opts osmparser.ParseOptions
	if *kl {
		opts.BBox = osmparser.BBox{MinLat: 2.75, MaxLat: 3.5, MinLng: 101.2, MaxLng: 102.0}
		log.Println("Using Selangor + KL bounding box filter: lat [2.75, 3.50], lng [101.20, 102.00]")
	} else if *singapore {
		opts.BBox = osmparser.BBox{MinLat: 1.15, MaxLat: 1.48, MinLng: 103.6, MaxLng: 104.1}
		log.Println("Using Singapore bounding box filter: lat [1.15, 1.48], lng [103.6, 104.1]")
	} else if *bbox != "" {
		var minLat, minLng, maxLat, maxLng float64
		_, err := fmt.Sscanf(*bbox, "%f,%f,%f,%f", &minLat, &minLng, &maxLat, &maxLng)
		if err != nil {
			fail(exitBadArgs, "Invalid bbox format (expected minLat,minLng,maxLat,maxLng): %v", err)
		}
		opts.BBox = osmparser.BBox{MinLat: minLat, MaxLat: maxLat, MinLng: minLng, MaxLng: maxLng}
		log.Printf("Using bounding box filter: lat [%.4f, %.4f], lng [%.4f, %.4f]", minLat, maxLat, minLng, maxLng)
	}

	start := time.Now()

	// Step 1: Parse OSM data.
	log.Println("Opening OSM file...")
	f, err := os.Open(*input)
	if err != nil {
		fail(exitIOError, "Failed to open input file: %v", err)
	}
	defer f.Close()

	log.Println("Parsing OSM data...")
	parseResult, err := osmparser.Parse(context.Background(), f, opts)
	if err != nil {
		fail(exitIOError, "Failed to parse OSM data: %v", err)
	}
	log.Printf("Parsed %d edges, %d nodes, %d restrictions, %d barriers, %d signals",
		len(parseResult.Edges), len(parseResult.NodeLat), len(parseResult.Restrictions),
		len(parseResult.Barriers), len(parseResult.TrafficSignals))

	// Step 2: Build graph.
	log.Println("Building graph...")
	nodeIndex := graph.NodeIndex(parseResult)
	g := graph.Build(parseResult)
	log.Printf("Graph: %d nodes, %d edges", g.NumNodes, g.NumEdges)

	// Step 3: Extract largest connected component.
	log.Println("Extracting largest connected component...")
	componentNodes := graph.LargestComponent(g)
	log.Printf("Largest component: %d nodes (%.1f%%)", len(componentNodes), float64(len(componentNodes))/float64(g.NumNodes)*100)
	componentMapping := graph.FilterToComponentMapping(componentNodes)
	g = graph.FilterToComponent(g, componentNodes)
	log.Printf("Filtered graph: %d nodes, %d edges", g.NumNodes, g.NumEdges)

	// Step 4: Expand into the edge-based (turn-aware) graph. Every node of
	// this graph is an oriented original edge and every edge a legal turn,
	// so a prohibited turn simply has no edge-based edge representing it.
	restrictions := translateRestrictions(parseResult.Restrictions, nodeIndex, componentMapping)
	barriers := translateNodeSet(parseResult.Barriers, nodeIndex, componentMapping)
	signals := translateNodeSet(parseResult.TrafficSignals, nodeIndex, componentMapping)

	log.Println("Expanding edge-based turn graph...")
	expanded, err := ebg.Expand(g, ebg.Options{
		Restrictions:   restrictions,
		Barriers:       barriers,
		TrafficSignals: signals,
	})
	if err != nil {
		fail(exitInvariantError, "Edge-based graph expansion failed: %v", err)
	}
	log.Printf("Edge-based graph: %d nodes (oriented edges), %d legal turns", len(expanded.Nodes), len(expanded.Edges))

	// Step 5: Contract CH. Contraction runs over the edge-based graph, not
	// the plain node graph, so the shipped overlay can only ever relax a
	// turn ebg.Expand actually emitted — turn restrictions, barriers and
	// mandatory turns are enforced structurally at query time rather than
	// merely checked during preprocessing. ch.Contract is graph-shape
	// agnostic (it knows nothing about what a "node" represents), so the
	// edge-based node/edge IDs pass through it untouched.
	log.Println("Running Contraction Hierarchies...")
	chResult, err := ch.Contract(ebg.ToGraph(expanded), ch.Options{})
	if err != nil {
		fail(exitInvariantError, "Contraction failed: %v", err)
	}

	// The edge-based graph carries no coordinates or original-edge CSR of
	// its own (an edge-based node is an oriented segment, not a point), so
	// re-attach the real original node graph's passthrough fields: the
	// snapper and geometry reconstruction both need to index real road
	// segments, not CH shortcuts.
	chResult.NodeLat = g.NodeLat
	chResult.NodeLon = g.NodeLon
	chResult.OrigFirstOut = g.FirstOut
	chResult.OrigHead = g.Head
	chResult.OrigWeight = g.Weight
	chResult.GeoFirstOut = g.GeoFirstOut
	chResult.GeoShapeLat = g.GeoShapeLat
	chResult.GeoShapeLon = g.GeoShapeLon

	log.Printf("CH complete: %d fwd edges, %d bwd edges", len(chResult.FwdHead), len(chResult.BwdHead))

	// Step 6: Serialize to binary.
	log.Printf("Writing binary to %s...", *output)
	if err := graph.WriteBinary(*output, chResult); err != nil {
		fail(exitIOError, "Failed to write binary: %v", err)
	}

	info, _ := os.Stat(*output)
	elapsed := time.Since(start)
	log.Printf("Done in %s. Output: %s (%.1f MB)", elapsed.Round(time.Second), *output, float64(info.Size())/(1024*1024))
}

// translateRestrictions maps OSM-node-ID-keyed restrictions through the
// builder's node index and then the component filter's renumbering, into
// the final graph's compact node ID space. Restrictions touching a node
// dropped by either step (unreferenced by any drivable edge, or outside
// the largest connected component) are skipped.
func translateRestrictions(raw []osmparser.RawRestriction, nodeIndex map[osm.NodeID]uint32, componentMapping map[uint32]uint32) []ebg.Restriction {
	var out []ebg.Restriction
	for _, r := range raw {
		from, ok1 := translateNode(r.From, nodeIndex, componentMapping)
		via, ok2 := translateNode(r.Via, nodeIndex, componentMapping)
		to, ok3 := translateNode(r.To, nodeIndex, componentMapping)
		if ok1 && ok2 && ok3 {
			out = append(out, ebg.Restriction{From: from, Via: via, To: to, Only: r.Only})
		}
	}
	return out
}

func translateNodeSet(raw map[osm.NodeID]bool, nodeIndex map[osm.NodeID]uint32, componentMapping map[uint32]uint32) map[graph.NodeID]bool {
	out := make(map[graph.NodeID]bool, len(raw))
	for id := range raw {
		if n, ok := translateNode(id, nodeIndex, componentMapping); ok {
			out[n] = true
		}
	}
	return out
}

func translateNode(id osm.NodeID, nodeIndex map[osm.NodeID]uint32, componentMapping map[uint32]uint32) (graph.NodeID, bool) {
	built, ok := nodeIndex[id]
	if !ok {
		return 0, false
	}
	filtered, ok := componentMapping[built]
	return filtered, ok
}
