package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"prov-go/internal/graph"
	"prov-go/internal/model"
	"prov-go/internal/prov"
	"prov-go/internal/pathutil"
	"prov-go/internal/store"
)

// catalogEntry holds the direct relations of one indexed activity. Every
// indexed activity has an entry, even without relations, so an empty catalog
// means nothing was indexed.
type catalogEntry struct {
	ID          string   `json:"id"`
	Upstreams   []string `json:"upstreams,omitempty"`
	Downstreams []string `json:"downstreams,omitempty"`
}

// ActivityGateway stores activities and maintains the activity graph index:
// the by-usage and by-generation path indices and the relation catalog.
type ActivityGateway struct {
	store *store.Store
	clock prov.Clock
}

// NewActivityGateway creates an ActivityGateway over s.
func NewActivityGateway(s *store.Store, clock prov.Clock) *ActivityGateway {
	return &ActivityGateway{store: s, clock: clock}
}

func (g *ActivityGateway) load(ctx context.Context, key string) (*model.Activity, error) {
	a, err := store.Load[model.Activity](ctx, g.store, ContainerActivities, key)
	if err != nil {
		return nil, fmt.Errorf("loading activity: %w", err)
	}
	if a != nil {
		a.Freeze()
	}
	return a, nil
}

// GetByID returns the activity with id, or nil if it does not exist.
func (g *ActivityGateway) GetByID(ctx context.Context, id string) (*model.Activity, error) {
	return g.load(ctx, model.OID(id))
}

func (g *ActivityGateway) mustGet(ctx context.Context, id string) (*model.Activity, error) {
	a, err := g.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, model.NewNotFound("activity", id)
	}
	return a, nil
}

// GetAllActivities returns activities ordered by start time, then id.
func (g *ActivityGateway) GetAllActivities(ctx context.Context, includeDeleted bool) ([]*model.Activity, error) {
	keys, err := g.store.Keys(ctx, ContainerActivities)
	if err != nil {
		return nil, err
	}
	var acts []*model.Activity
	for _, k := range keys {
		a, err := g.load(ctx, k)
		if err != nil {
			return nil, err
		}
		if a == nil || (a.IsDeleted() && !includeDeleted) {
			continue
		}
		acts = append(acts, a)
	}
	sortActivities(acts)
	return acts, nil
}

// GetActivitiesByUsage returns the activities that consumed path. With a
// non-empty checksum only activities that consumed exactly that content are
// returned.
func (g *ActivityGateway) GetActivitiesByUsage(ctx context.Context, path, checksum string) ([]*model.Activity, error) {
	return g.byPath(ctx, ContainerActivitiesByUsage, path, checksum, func(a *model.Activity) []model.Entity {
		es := make([]model.Entity, len(a.Usages))
		for i, u := range a.Usages {
			es[i] = u.Entity
		}
		return es
	})
}

// GetActivitiesByGeneration returns the activities that produced path,
// optionally restricted to one checksum.
func (g *ActivityGateway) GetActivitiesByGeneration(ctx context.Context, path, checksum string) ([]*model.Activity, error) {
	return g.byPath(ctx, ContainerActivitiesByGen, path, checksum, func(a *model.Activity) []model.Entity {
		es := make([]model.Entity, len(a.Generations))
		for i, gen := range a.Generations {
			es[i] = gen.Entity
		}
		return es
	})
}

func (g *ActivityGateway) byPath(ctx context.Context, container, path, checksum string, entities func(*model.Activity) []model.Entity) ([]*model.Activity, error) {
	path = pathutil.Clean(path)
	ids, err := store.GetStrings(ctx, g.store, container, path)
	if err != nil {
		return nil, err
	}
	var acts []*model.Activity
	for _, id := range ids {
		a, err := g.mustGet(ctx, id)
		if err != nil {
			return nil, err
		}
		if checksum != "" && !hasEntity(entities(a), path, checksum) {
			continue
		}
		acts = append(acts, a)
	}
	return acts, nil
}

func hasEntity(es []model.Entity, path, checksum string) bool {
	for _, e := range es {
		if e.Path == path && e.Checksum == checksum {
			return true
		}
	}
	return false
}

func (g *ActivityGateway) entry(ctx context.Context, id string) (*catalogEntry, error) {
	e, err := store.Load[catalogEntry](ctx, g.store, ContainerActivityCatalog, model.OID(id))
	if err != nil {
		return nil, fmt.Errorf("loading catalog entry: %w", err)
	}
	return e, nil
}

func (g *ActivityGateway) saveEntry(e *catalogEntry) error {
	return store.Save(g.store, ContainerActivityCatalog, model.OID(e.ID), e)
}

// relate records that downstream uses something upstream generated.
func (g *ActivityGateway) relate(ctx context.Context, upstream, downstream string) error {
	up, err := g.entryOrNew(ctx, upstream)
	if err != nil {
		return err
	}
	up.Downstreams = insertSorted(up.Downstreams, downstream)
	if err := g.saveEntry(up); err != nil {
		return err
	}

	down, err := g.entryOrNew(ctx, downstream)
	if err != nil {
		return err
	}
	down.Upstreams = insertSorted(down.Upstreams, upstream)
	return g.saveEntry(down)
}

func (g *ActivityGateway) unrelate(ctx context.Context, upstream, downstream string) error {
	if up, err := g.entry(ctx, upstream); err != nil {
		return err
	} else if up != nil {
		c := &catalogEntry{ID: up.ID, Upstreams: up.Upstreams, Downstreams: removeSorted(up.Downstreams, downstream)}
		if err := g.saveEntry(c); err != nil {
			return err
		}
	}
	if down, err := g.entry(ctx, downstream); err != nil {
		return err
	} else if down != nil {
		c := &catalogEntry{ID: down.ID, Upstreams: removeSorted(down.Upstreams, upstream), Downstreams: down.Downstreams}
		if err := g.saveEntry(c); err != nil {
			return err
		}
	}
	return nil
}

// entryOrNew returns a copy of the entry for id so cached values are never
// modified in place.
func (g *ActivityGateway) entryOrNew(ctx context.Context, id string) (*catalogEntry, error) {
	e, err := g.entry(ctx, id)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return &catalogEntry{ID: id}, nil
	}
	return &catalogEntry{
		ID:          e.ID,
		Upstreams:   append([]string(nil), e.Upstreams...),
		Downstreams: append([]string(nil), e.Downstreams...),
	}, nil
}

// scanRelated returns the activities listed in container under any path
// related to one of paths.
func (g *ActivityGateway) scanRelated(ctx context.Context, container string, paths []string) (stringSet, error) {
	found := make(stringSet)
	if len(paths) == 0 {
		return found, nil
	}
	keys, err := g.store.Keys(ctx, container)
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		related := false
		for _, p := range paths {
			if pathutil.AreRelated(k, p) {
				related = true
				break
			}
		}
		if !related {
			continue
		}
		ids, err := store.GetStrings(ctx, g.store, container, k)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			found.add(id)
		}
	}
	return found, nil
}

// neighbours computes the relations of a from the raw path indices.
func (g *ActivityGateway) neighbours(ctx context.Context, a *model.Activity) (ups, downs stringSet, err error) {
	ups, err = g.scanRelated(ctx, ContainerActivitiesByGen, a.UsagePaths())
	if err != nil {
		return nil, nil, err
	}
	downs, err = g.scanRelated(ctx, ContainerActivitiesByUsage, a.GenerationPaths())
	if err != nil {
		return nil, nil, err
	}
	delete(ups, a.ID)
	delete(downs, a.ID)
	return ups, downs, nil
}

func (g *ActivityGateway) addToPathIndex(ctx context.Context, container, path, id string) error {
	ids, err := store.GetStrings(ctx, g.store, container, path)
	if err != nil {
		return err
	}
	return store.PutStrings(g.store, container, path, insertSorted(ids, id))
}

func (g *ActivityGateway) removeFromPathIndex(ctx context.Context, container, path, id string) error {
	ids, err := store.GetStrings(ctx, g.store, container, path)
	if err != nil {
		return err
	}
	return store.PutStrings(g.store, container, path, removeSorted(ids, id))
}

// index adds a to the path indices and records its relations. Deleted
// activities are never indexed.
func (g *ActivityGateway) index(ctx context.Context, a *model.Activity) error {
	if a.IsDeleted() {
		return nil
	}
	for _, p := range a.UsagePaths() {
		if err := g.addToPathIndex(ctx, ContainerActivitiesByUsage, p, a.ID); err != nil {
			return err
		}
	}
	for _, p := range a.GenerationPaths() {
		if err := g.addToPathIndex(ctx, ContainerActivitiesByGen, p, a.ID); err != nil {
			return err
		}
	}

	ups, downs, err := g.neighbours(ctx, a)
	if err != nil {
		return err
	}

	self, err := g.entryOrNew(ctx, a.ID)
	if err != nil {
		return err
	}
	if err := g.saveEntry(self); err != nil {
		return err
	}
	for _, up := range ups.sorted() {
		if err := g.relate(ctx, up, a.ID); err != nil {
			return err
		}
	}
	for _, down := range downs.sorted() {
		if err := g.relate(ctx, a.ID, down); err != nil {
			return err
		}
	}
	return nil
}

// unindex mirrors index. Relations come from both the catalog entry and a
// fresh path scan so a drifted catalog is still cleaned.
func (g *ActivityGateway) unindex(ctx context.Context, a *model.Activity) error {
	for _, p := range a.UsagePaths() {
		if err := g.removeFromPathIndex(ctx, ContainerActivitiesByUsage, p, a.ID); err != nil {
			return err
		}
	}
	for _, p := range a.GenerationPaths() {
		if err := g.removeFromPathIndex(ctx, ContainerActivitiesByGen, p, a.ID); err != nil {
			return err
		}
	}

	ups, downs, err := g.neighbours(ctx, a)
	if err != nil {
		return err
	}
	e, err := g.entry(ctx, a.ID)
	if err != nil {
		return err
	}
	if e != nil {
		for _, id := range e.Upstreams {
			ups.add(id)
		}
		for _, id := range e.Downstreams {
			downs.add(id)
		}
	}

	for _, up := range ups.sorted() {
		if err := g.unrelate(ctx, up, a.ID); err != nil {
			return err
		}
	}
	for _, down := range downs.sorted() {
		if err := g.unrelate(ctx, a.ID, down); err != nil {
			return err
		}
	}
	g.store.Delete(ContainerActivityCatalog, model.OID(a.ID))
	return nil
}

// Add stores and indexes a new activity. If the activity would close a
// cycle in the activity graph, nothing is changed and a *model.GraphError of
// kind model.ErrCycle is returned.
func (g *ActivityGateway) Add(ctx context.Context, a *model.Activity) error {
	existing, err := g.GetByID(ctx, a.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return model.Conflictf("activity %s already exists", a.ID)
	}

	sp := g.store.Savepoint()
	if err := g.add(ctx, a); err != nil {
		g.store.RollbackTo(sp)
		return err
	}
	a.Freeze()
	return nil
}

func (g *ActivityGateway) add(ctx context.Context, a *model.Activity) error {
	if err := store.Save(g.store, ContainerActivities, model.OID(a.ID), a); err != nil {
		return fmt.Errorf("saving activity: %w", err)
	}
	if err := g.index(ctx, a); err != nil {
		return fmt.Errorf("indexing activity: %w", err)
	}
	if a.IsDeleted() {
		return nil
	}

	ups, err := g.closure(ctx, a.ID, 0, func(e *catalogEntry) []string { return e.Upstreams })
	if err != nil {
		return err
	}
	downs, err := g.closure(ctx, a.ID, 0, func(e *catalogEntry) []string { return e.Downstreams })
	if err != nil {
		return err
	}
	subgraph := []*model.Activity{a}
	for _, id := range append(ups, downs...) {
		if id == a.ID {
			continue
		}
		other, err := g.mustGet(ctx, id)
		if err != nil {
			return err
		}
		subgraph = append(subgraph, other)
	}
	if _, err := graph.Build(subgraph, true); err != nil {
		return err
	}
	return nil
}

// Save persists attribute changes of an existing activity without touching
// the index. Callers changing usages or generations must Remove and Add.
func (g *ActivityGateway) Save(ctx context.Context, a *model.Activity) error {
	existing, err := g.GetByID(ctx, a.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return model.NewNotFound("activity", a.ID)
	}
	if err := store.Save(g.store, ContainerActivities, model.OID(a.ID), a); err != nil {
		return fmt.Errorf("saving activity: %w", err)
	}
	a.Freeze()
	return nil
}

// Remove unindexes a and marks it deleted. With keepReference false the
// activity is purged from the store instead. Without force, removal is
// refused while other activities depend on a, or while the catalog
// disagrees with the path indices about a's relations.
func (g *ActivityGateway) Remove(ctx context.Context, a *model.Activity, keepReference, force bool) error {
	if !a.IsDeleted() {
		if !force {
			e, err := g.verifiedEntry(ctx, a)
			if err != nil {
				return err
			}
			if len(e.Downstreams) > 0 {
				return &model.GraphError{
					Kind:        model.ErrDownstreamNotEmpty,
					ActivityIDs: append([]string(nil), e.Downstreams...),
					Detail:      fmt.Sprintf("cannot remove %s", a.ID),
				}
			}
		}
		if err := g.unindex(ctx, a); err != nil {
			return fmt.Errorf("unindexing activity: %w", err)
		}
	}

	if !keepReference {
		g.store.Delete(ContainerActivities, model.OID(a.ID))
		return nil
	}
	if a.IsDeleted() {
		return nil
	}
	model.Mutate(a, func() { a.Delete(g.clock.Now()) })
	if err := store.Save(g.store, ContainerActivities, model.OID(a.ID), a); err != nil {
		return fmt.Errorf("saving activity: %w", err)
	}
	return nil
}

// verifiedEntry returns the catalog entry of a after checking it against a
// fresh scan of the path indices.
func (g *ActivityGateway) verifiedEntry(ctx context.Context, a *model.Activity) (*catalogEntry, error) {
	e, err := g.entry(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	stale := &model.GraphError{Kind: model.ErrStaleCatalog, ActivityIDs: []string{a.ID}, Detail: "run the activity catalog check with --fix"}
	if e == nil {
		return nil, stale
	}
	ups, downs, err := g.neighbours(ctx, a)
	if err != nil {
		return nil, err
	}
	if !equalStrings(ups.sorted(), e.Upstreams) || !equalStrings(downs.sorted(), e.Downstreams) {
		return nil, stale
	}
	return e, nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// closure walks the catalog from id. maxDepth 0 means unlimited, 1 returns
// direct relations only. The result is sorted and excludes id itself.
func (g *ActivityGateway) closure(ctx context.Context, id string, maxDepth int, next func(*catalogEntry) []string) ([]string, error) {
	seen := stringSet{id: {}}
	frontier := []string{id}
	for depth := 1; len(frontier) > 0 && (maxDepth <= 0 || depth <= maxDepth); depth++ {
		var nextFrontier []string
		for _, cur := range frontier {
			e, err := g.entry(ctx, cur)
			if err != nil {
				return nil, err
			}
			if e == nil {
				continue
			}
			for _, n := range next(e) {
				if !seen.has(n) {
					seen.add(n)
					nextFrontier = append(nextFrontier, n)
				}
			}
		}
		frontier = nextFrontier
	}
	delete(seen, id)
	return seen.sorted(), nil
}

func (g *ActivityGateway) loadAll(ctx context.Context, ids []string) ([]*model.Activity, error) {
	acts := make([]*model.Activity, 0, len(ids))
	for _, id := range ids {
		a, err := g.mustGet(ctx, id)
		if err != nil {
			return nil, err
		}
		acts = append(acts, a)
	}
	return acts, nil
}

// inExecutionOrder orders acts so that each activity comes after every
// activity it depends on.
func inExecutionOrder(acts []*model.Activity) ([]*model.Activity, error) {
	dag, err := graph.Build(acts, false)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*model.Activity, len(acts))
	for _, a := range acts {
		byID[a.ID] = a
	}
	ordered := make([]*model.Activity, 0, len(acts))
	for _, id := range dag.ActivityOrder() {
		ordered = append(ordered, byID[id])
	}
	return ordered, nil
}

func (g *ActivityGateway) lineage(ctx context.Context, id string, maxDepth int, next func(*catalogEntry) []string) ([]*model.Activity, error) {
	ids, err := g.closure(ctx, id, maxDepth, next)
	if err != nil {
		return nil, err
	}
	acts, err := g.loadAll(ctx, ids)
	if err != nil {
		return nil, err
	}
	return inExecutionOrder(acts)
}

// GetUpstreamActivities returns every activity a transitively depends on, in
// execution order.
func (g *ActivityGateway) GetUpstreamActivities(ctx context.Context, a *model.Activity, maxDepth int) ([]*model.Activity, error) {
	return g.lineage(ctx, a.ID, maxDepth, func(e *catalogEntry) []string { return e.Upstreams })
}

// GetDownstreamActivities returns every activity transitively depending on a,
// in execution order.
func (g *ActivityGateway) GetDownstreamActivities(ctx context.Context, a *model.Activity, maxDepth int) ([]*model.Activity, error) {
	return g.lineage(ctx, a.ID, maxDepth, func(e *catalogEntry) []string { return e.Downstreams })
}

// GetUpstreamActivityChains enumerates every path through the catalog
// starting at a's direct upstreams, nearest activity first.
func (g *ActivityGateway) GetUpstreamActivityChains(ctx context.Context, a *model.Activity) ([][]*model.Activity, error) {
	return g.chains(ctx, a.ID, func(e *catalogEntry) []string { return e.Upstreams })
}

// GetDownstreamActivityChains is the downstream analogue of
// GetUpstreamActivityChains.
func (g *ActivityGateway) GetDownstreamActivityChains(ctx context.Context, a *model.Activity) ([][]*model.Activity, error) {
	return g.chains(ctx, a.ID, func(e *catalogEntry) []string { return e.Downstreams })
}

func (g *ActivityGateway) chains(ctx context.Context, id string, next func(*catalogEntry) []string) ([][]*model.Activity, error) {
	var idChains [][]string
	onPath := stringSet{id: {}}
	var path []string

	var walk func(cur string) error
	walk = func(cur string) error {
		e, err := g.entry(ctx, cur)
		if err != nil || e == nil {
			return err
		}
		for _, n := range next(e) {
			if onPath.has(n) {
				continue
			}
			onPath.add(n)
			path = append(path, n)
			idChains = append(idChains, append([]string(nil), path...))
			if err := walk(n); err != nil {
				return err
			}
			path = path[:len(path)-1]
			delete(onPath, n)
		}
		return nil
	}
	if err := walk(id); err != nil {
		return nil, err
	}

	chains := make([][]*model.Activity, 0, len(idChains))
	for _, ids := range idChains {
		acts, err := g.loadAll(ctx, ids)
		if err != nil {
			return nil, err
		}
		chains = append(chains, acts)
	}
	return chains, nil
}

// ReindexCatalog rebuilds the path indices and the relation catalog from the
// stored activities. On failure the previous index is left in place.
func (g *ActivityGateway) ReindexCatalog(ctx context.Context) error {
	sp := g.store.Savepoint()
	if err := g.reindex(ctx); err != nil {
		g.store.RollbackTo(sp)
		return fmt.Errorf("reindexing activity catalog: %w", err)
	}
	return nil
}

func (g *ActivityGateway) reindex(ctx context.Context) error {
	for _, c := range []string{ContainerActivitiesByUsage, ContainerActivitiesByGen, ContainerActivityCatalog} {
		if err := g.store.Clear(ctx, c); err != nil {
			return err
		}
	}
	acts, err := g.GetAllActivities(ctx, false)
	if err != nil {
		return err
	}
	for _, a := range acts {
		if err := g.index(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// CatalogSize returns the number of catalog entries.
func (g *ActivityGateway) CatalogSize(ctx context.Context) (int, error) {
	return g.store.Len(ctx, ContainerActivityCatalog)
}

// StaleCatalogEntries returns the ids of live activities whose catalog entry
// is missing or disagrees with the path indices.
func (g *ActivityGateway) StaleCatalogEntries(ctx context.Context) ([]string, error) {
	acts, err := g.GetAllActivities(ctx, false)
	if err != nil {
		return nil, err
	}
	var stale []string
	for _, a := range acts {
		if _, err := g.verifiedEntry(ctx, a); err != nil {
			if errors.Is(err, model.ErrStaleCatalog) {
				stale = append(stale, a.ID)
				continue
			}
			return nil, err
		}
	}
	sort.Strings(stale)
	return stale, nil
}

// OrphanedIndexEntries returns the activity ids referenced by the path
// indices or the catalog that do not resolve to a live activity.
func (g *ActivityGateway) OrphanedIndexEntries(ctx context.Context) ([]string, error) {
	referenced := make(stringSet)
	for _, c := range []string{ContainerActivitiesByUsage, ContainerActivitiesByGen} {
		keys, err := g.store.Keys(ctx, c)
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			ids, err := store.GetStrings(ctx, g.store, c, k)
			if err != nil {
				return nil, err
			}
			for _, id := range ids {
				referenced.add(id)
			}
		}
	}

	keys, err := g.store.Keys(ctx, ContainerActivityCatalog)
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		e, err := store.Load[catalogEntry](ctx, g.store, ContainerActivityCatalog, k)
		if err != nil {
			return nil, err
		}
		if e == nil {
			continue
		}
		referenced.add(e.ID)
		for _, id := range e.Upstreams {
			referenced.add(id)
		}
		for _, id := range e.Downstreams {
			referenced.add(id)
		}
	}

	var orphans []string
	for _, id := range referenced.sorted() {
		a, err := g.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if a == nil || a.IsDeleted() {
			orphans = append(orphans, id)
		}
	}
	return orphans, nil
}

// Relations returns every catalog edge, sorted.
func (g *ActivityGateway) Relations(ctx context.Context) ([]model.ActivityDownstreamRelation, error) {
	keys, err := g.store.Keys(ctx, ContainerActivityCatalog)
	if err != nil {
		return nil, err
	}
	var rels []model.ActivityDownstreamRelation
	for _, k := range keys {
		e, err := store.Load[catalogEntry](ctx, g.store, ContainerActivityCatalog, k)
		if err != nil {
			return nil, err
		}
		for _, d := range e.Downstreams {
			rels = append(rels, model.ActivityDownstreamRelation{Upstream: e.ID, Downstream: d})
		}
	}
	sort.Slice(rels, func(i, j int) bool {
		if rels[i].Upstream != rels[j].Upstream {
			return rels[i].Upstream < rels[j].Upstream
		}
		return rels[i].Downstream < rels[j].Downstream
	})
	return rels, nil
}

// AddActivityCollection stores c.
func (g *ActivityGateway) AddActivityCollection(_ context.Context, c *model.ActivityCollection) error {
	return store.Save(g.store, ContainerActivityCollections, model.OID(c.ID), c)
}

// GetAllActivityCollections returns all collections ordered by id.
func (g *ActivityGateway) GetAllActivityCollections(ctx context.Context) ([]*model.ActivityCollection, error) {
	cs, err := store.LoadAll[model.ActivityCollection](ctx, g.store, ContainerActivityCollections)
	if err != nil {
		return nil, err
	}
	sort.Slice(cs, func(i, j int) bool { return cs[i].ID < cs[j].ID })
	return cs, nil
}

// Compile-time check
var _ prov.ActivityGateway = (*ActivityGateway)(nil)
