package engine

import "sort"

// admissionGraph orders a batch of submitted jobs by their provider edges so
// mutually dependent jobs are detected before any of them is admitted. Nodes
// are batch indices; an edge provider->dependent means the dependent's
// expression is satisfied by the provider's declared transition.
type admissionGraph struct {
	n          int
	dependents map[int][]int
	providers  map[int][]int
	inDegree   []int
}

func newAdmissionGraph(n int) *admissionGraph {
	return &admissionGraph{
		n:          n,
		dependents: make(map[int][]int),
		providers:  make(map[int][]int),
		inDegree:   make([]int, n),
	}
}

func (g *admissionGraph) addEdge(provider, dependent int) {
	for _, d := range g.dependents[provider] {
		if d == dependent {
			return
		}
	}
	g.dependents[provider] = append(g.dependents[provider], dependent)
	g.providers[dependent] = append(g.providers[dependent], provider)
	g.inDegree[dependent]++
}

// cyclic returns the set of nodes that sit on a dependency cycle, found by
// depth-first search over the provider edges.
func (g *admissionGraph) cyclic() map[int]bool {
	visited := make([]bool, g.n)
	onStack := make([]bool, g.n)
	bad := make(map[int]bool)

	var path []int
	var visit func(node int)
	visit = func(node int) {
		visited[node] = true
		onStack[node] = true
		path = append(path, node)

		for _, dep := range g.dependents[node] {
			if !visited[dep] {
				visit(dep)
			} else if onStack[dep] {
				// Every node from the first occurrence of dep on the
				// current path is part of the cycle.
				start := 0
				for i, id := range path {
					if id == dep {
						start = i
						break
					}
				}
				for _, id := range path[start:] {
					bad[id] = true
				}
			}
		}

		onStack[node] = false
		path = path[:len(path)-1]
	}

	for i := 0; i < g.n; i++ {
		if !visited[i] {
			visit(i)
		}
	}
	return bad
}

// order returns an admission order over the given admissible nodes using
// Kahn's algorithm, breaking ties by batch index so otherwise-unordered jobs
// admit in submission order.
func (g *admissionGraph) order(admissible map[int]bool) []int {
	inDegree := make(map[int]int, len(admissible))
	for node := range admissible {
		deg := 0
		for _, p := range g.providers[node] {
			if admissible[p] {
				deg++
			}
		}
		inDegree[node] = deg
	}

	var frontier []int
	for node, deg := range inDegree {
		if deg == 0 {
			frontier = append(frontier, node)
		}
	}
	sort.Ints(frontier)

	var out []int
	for len(frontier) > 0 {
		node := frontier[0]
		frontier = frontier[1:]
		out = append(out, node)

		var released []int
		for _, dep := range g.dependents[node] {
			if !admissible[dep] {
				continue
			}
			inDegree[dep]--
			if inDegree[dep] == 0 {
				released = append(released, dep)
			}
		}
		sort.Ints(released)
		frontier = append(frontier, released...)
		sort.Ints(frontier)
	}
	return out
}
