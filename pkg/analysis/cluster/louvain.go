// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
// Package cluster detects communities of correlated tags with a single
// level of Louvain modularity optimization.
package cluster

import (
	"math/rand"
	"sort"

	"github.com/teradata-labs/flywheel/pkg/model"
)

const (
	minGain = 0.001
	maxPass = 100
)

// Graph is an undirected weighted graph keyed by tag sequence ID.
type Graph struct {
	adj     map[int64]map[int64]float64
	degree  map[int64]float64
	totalW  float64
	nodeIDs []int64
}

// BuildGraph assembles the graph from correlation edges. Duplicate pairs
// keep the last weight; self-loops are ignored.
func BuildGraph(edges []model.CorrelationEdge) *Graph {
	g := &Graph{adj: make(map[int64]map[int64]float64), degree: make(map[int64]float64)}
	for _, e := range edges {
		if e.SeqA == e.SeqB {
			continue
		}
		g.addEdge(e.SeqA, e.SeqB, e.R)
	}
	for id := range g.adj {
		g.nodeIDs = append(g.nodeIDs, id)
	}
	sort.Slice(g.nodeIDs, func(i, j int) bool { return g.nodeIDs[i] < g.nodeIDs[j] })
	for id, nbrs := range g.adj {
		for _, w := range nbrs {
			g.degree[id] += w
		}
	}
	for _, d := range g.degree {
		g.totalW += d
	}
	g.totalW /= 2
	return g
}

func (g *Graph) addEdge(a, b int64, w float64) {
	if g.adj[a] == nil {
		g.adj[a] = make(map[int64]float64)
	}
	if g.adj[b] == nil {
		g.adj[b] = make(map[int64]float64)
	}
	g.adj[a][b] = w
	g.adj[b][a] = w
}

// Size returns the node count.
func (g *Graph) Size() int { return len(g.nodeIDs) }

// Communities runs one Louvain level and returns the member sets, each
// sorted ascending. rng drives the per-pass visit order.
func (g *Graph) Communities(rng *rand.Rand) [][]int64 {
	if g.Size() == 0 || g.totalW == 0 {
		return nil
	}
	community := make(map[int64]int, g.Size())
	commDegree := make(map[int]float64, g.Size())
	for i, id := range g.nodeIDs {
		community[id] = i
		commDegree[i] = g.degree[id]
	}

	order := make([]int64, len(g.nodeIDs))
	copy(order, g.nodeIDs)

	for pass := 0; pass < maxPass; pass++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		moved := false
		for _, v := range order {
			cur := community[v]

			// Weight from v into each distinct neighbor community.
			linkTo := make(map[int]float64)
			for w, wt := range g.adj[v] {
				linkTo[community[w]] += wt
			}

			d := g.degree[v]
			m := g.totalW
			curOut := commDegree[cur] - d // sum of degrees in C excluding v
			curLink := linkTo[cur]        // weight from v into C; v has no self-loop

			best := cur
			bestGain := 0.0
			for target, wt := range linkTo {
				if target == cur {
					continue
				}
				gain := (wt-curLink)/m - d*(commDegree[target]-curOut)/(2*m*m)
				if gain > bestGain {
					bestGain = gain
					best = target
				}
			}
			if best != cur && bestGain > minGain {
				commDegree[cur] -= d
				commDegree[best] += d
				community[v] = best
				moved = true
			}
		}
		if !moved {
			break
		}
	}

	byComm := make(map[int][]int64)
	for id, c := range community {
		byComm[c] = append(byComm[c], id)
	}
	keys := make([]int, 0, len(byComm))
	for c := range byComm {
		keys = append(keys, c)
	}
	sort.Ints(keys)
	out := make([][]int64, 0, len(keys))
	for _, c := range keys {
		members := byComm[c]
		sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
		out = append(out, members)
	}
	return out
}

// Cohesion returns the mean weight of edges internal to the member set.
// Zero when the set has no internal edges.
func (g *Graph) Cohesion(members []int64) float64 {
	inSet := make(map[int64]bool, len(members))
	for _, m := range members {
		inSet[m] = true
	}
	var sum float64
	var count int
	for i, a := range members {
		for _, b := range members[i+1:] {
			if w, ok := g.adj[a][b]; ok && inSet[b] {
				sum += w
				count++
			}
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
