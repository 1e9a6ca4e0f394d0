package services

import (
	"sort"

	"github.com/yourbasic/graph"

	"github.com/ekaya-inc/ekaya-dbmeta/pkg/models"
)

// RelationshipGraph is an undirected view of the foreign keys between
// cached tables. Edges point both ways so a table reaches the tables it
// references and the tables referencing it.
type RelationshipGraph struct {
	names []string
	index map[string]int
	g     *graph.Mutable
}

// NewRelationshipGraph builds the graph from cached documents keyed by table.
// Foreign keys to tables outside docs still add the target as a node.
func NewRelationshipGraph(docs map[string]*models.TableMetadata) *RelationshipGraph {
	index := make(map[string]int)
	var names []string
	add := func(name string) {
		if _, ok := index[name]; !ok {
			index[name] = len(names)
			names = append(names, name)
		}
	}

	tables := make([]string, 0, len(docs))
	for t := range docs {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	for _, t := range tables {
		add(t)
		for _, rel := range docs[t].Relationships {
			add(rel.TargetTable)
		}
	}

	g := graph.New(len(names))
	for _, t := range tables {
		for _, rel := range docs[t].Relationships {
			if rel.TargetTable != t {
				g.AddBoth(index[t], index[rel.TargetTable])
			}
		}
	}

	return &RelationshipGraph{names: names, index: index, g: g}
}

// Related returns the tables within depth foreign-key hops of any seed,
// excluding the seeds themselves, sorted by name. Unknown seeds are ignored.
func (r *RelationshipGraph) Related(seeds []string, depth int) []string {
	if depth <= 0 {
		return []string{}
	}

	isSeed := make(map[int]bool, len(seeds))
	for _, s := range seeds {
		if v, ok := r.index[s]; ok {
			isSeed[v] = true
		}
	}

	found := make(map[int]bool)
	for v := range isSeed {
		dist := map[int]int{v: 0}
		graph.BFS(r.g, v, func(from, to int, _ int64) {
			dist[to] = dist[from] + 1
			if dist[to] <= depth && !isSeed[to] {
				found[to] = true
			}
		})
	}

	out := make([]string, 0, len(found))
	for v := range found {
		out = append(out, r.names[v])
	}
	sort.Strings(out)
	return out
}
