// Package spatial indexes instance positions on a uniform grid over the XZ
// plane for neighbourhood queries. The grid is rebuilt from the pool once per
// frame and is read-only in between.
package spatial

import (
	"cmp"
	gomath "math"
	"slices"

	"github.com/Faultbox/throng/internal/pool"
	"github.com/Faultbox/throng/pkg/math"
)

type cell struct{ x, z int32 }

type entry struct {
	cell cell
	slot uint32
}

type span struct{ lo, hi int }

// Grid is a hash grid of live instances.
type Grid struct {
	size    float32
	entries []entry
	cells   map[cell]span
	pos     []math.Vec3 // by entry
	handles []pool.Handle
}

// NewGrid creates a grid with square cells of cellSize world units.
func NewGrid(cellSize float32) *Grid {
	if cellSize <= 0 {
		cellSize = 1
	}
	return &Grid{size: cellSize, cells: make(map[cell]span)}
}

func (g *Grid) cellOf(v math.Vec3) cell {
	return cell{
		x: int32(gomath.Floor(float64(v.X / g.size))),
		z: int32(gomath.Floor(float64(v.Z / g.size))),
	}
}

// Len returns the number of indexed instances.
func (g *Grid) Len() int { return len(g.entries) }

// Rebuild indexes every live instance in p.
func (g *Grid) Rebuild(p *pool.Pool) {
	g.entries = g.entries[:0]
	slots := p.Slots()
	for i := range slots {
		if slots[i].Alive() {
			g.entries = append(g.entries, entry{cell: g.cellOf(slots[i].Transform.Translation), slot: uint32(i)})
		}
	}
	slices.SortFunc(g.entries, func(a, b entry) int {
		if c := cmp.Compare(a.cell.x, b.cell.x); c != 0 {
			return c
		}
		if c := cmp.Compare(a.cell.z, b.cell.z); c != 0 {
			return c
		}
		return cmp.Compare(a.slot, b.slot)
	})

	clear(g.cells)
	g.pos = g.pos[:0]
	g.handles = g.handles[:0]
	for i := 0; i < len(g.entries); {
		j := i
		for j < len(g.entries) && g.entries[j].cell == g.entries[i].cell {
			s := &slots[g.entries[j].slot]
			g.pos = append(g.pos, s.Transform.Translation)
			g.handles = append(g.handles, s.Handle())
			j++
		}
		g.cells[g.entries[i].cell] = span{i, j}
		i = j
	}
}

// QuerySphere appends to out the handles of instances whose position lies
// within radius of center, as of the last Rebuild.
func (g *Grid) QuerySphere(center math.Vec3, radius float32, out []pool.Handle) []pool.Handle {
	if radius < 0 || len(g.entries) == 0 {
		return out
	}
	r2 := radius * radius
	// A sphere covering more cells than there are entries is cheaper to
	// answer by scanning every entry.
	if radius/g.size > maxSpan {
		return g.scan(center, r2, out)
	}
	lo := g.cellOf(center.Sub(math.Vec3{X: radius, Z: radius}))
	hi := g.cellOf(center.Add(math.Vec3{X: radius, Z: radius}))
	if cells := (int64(hi.x) - int64(lo.x) + 1) * (int64(hi.z) - int64(lo.z) + 1); cells > int64(len(g.entries)) {
		return g.scan(center, r2, out)
	}

	for x := lo.x; x <= hi.x; x++ {
		for z := lo.z; z <= hi.z; z++ {
			sp, ok := g.cells[cell{x, z}]
			if !ok {
				continue
			}
			for i := sp.lo; i < sp.hi; i++ {
				d := g.pos[i].Sub(center)
				if d.Dot(d) <= r2 {
					out = append(out, g.handles[i])
				}
			}
		}
	}
	return out
}

// maxSpan bounds the cell radius of a grid walk; cell coordinates are int32.
const maxSpan = 1 << 20

func (g *Grid) scan(center math.Vec3, r2 float32, out []pool.Handle) []pool.Handle {
	for i, p := range g.pos {
		d := p.Sub(center)
		if d.Dot(d) <= r2 {
			out = append(out, g.handles[i])
		}
	}
	return out
}
