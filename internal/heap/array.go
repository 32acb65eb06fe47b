package heap

import "aerojs/internal/value"

// GetElement reads an array element by index (spec §4: Array "Modes").
// Out-of-range / absent indices return Undefined, matching GetProperty's
// "absence is not an error" convention.
func (h *Heap) GetElement(id value.Handle, index uint32) value.Value {
	o, ok := h.resolve(id)
	if !ok || !o.IsArray {
		return value.Undef()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	switch o.mode {
	case Packed:
		if index < uint32(len(o.dense)) {
			return o.dense[index]
		}
		return value.Undef()
	default:
		if v, ok := o.elements[index]; ok {
			return v
		}
		return value.Undef()
	}
}

// SetElement writes an array element, applying the monotonic storage-mode
// transitions from spec §3: packed stays packed only while writes are
// contiguous; any out-of-order / far-ahead write demotes to holey, and a
// sufficiently sparse holey array demotes further to sparse (never back).
func (h *Heap) SetElement(id value.Handle, index uint32, v value.Value) {
	o, ok := h.resolve(id)
	if !ok || !o.IsArray {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	switch o.mode {
	case Packed:
		if index == uint32(len(o.dense)) {
			o.dense = append(o.dense, v)
			if index+1 > o.length {
				o.length = index + 1
			}
			return
		}
		if index < uint32(len(o.dense)) {
			o.dense[index] = v
			return
		}
		// A gap: demote packed->holey, migrate the dense backing into the
		// sparse map (spec: "Transitions are monotonic ... never back").
		h.demoteToHoley(o)
		o.elements[index] = v
		if index+1 > o.length {
			o.length = index + 1
		}
		h.maybeDemoteToSparse(o)
	case Holey:
		o.elements[index] = v
		if index+1 > o.length {
			o.length = index + 1
		}
		h.maybeDemoteToSparse(o)
	case Sparse:
		o.elements[index] = v
		if index+1 > o.length {
			o.length = index + 1
		}
	}
}

func (h *Heap) demoteToHoley(o *Object) {
	if o.mode != Packed {
		return
	}
	o.elements = make(map[uint32]value.Value, len(o.dense))
	for i, v := range o.dense {
		o.elements[uint32(i)] = v
	}
	o.dense = nil
	o.mode = Holey
}

// maybeDemoteToSparse applies the implementer-chosen holey->sparse
// threshold from spec §9 / SPEC_FULL §9: density (live slots / (length))
// below sparseDensityThreshold demotes Holey to Sparse. Sparse has no
// further transition (monotonic, per spec §8).
func (h *Heap) maybeDemoteToSparse(o *Object) {
	if o.mode != Holey || o.length == 0 {
		return
	}
	density := float64(len(o.elements)) / float64(o.length)
	if density < sparseDensityThreshold {
		o.mode = Sparse
	}
}

// DeleteElement removes an array element, forcing at least a packed->holey
// transition (spec §3: "any delete" per the array-specific wording the
// implementer resolved in SPEC_FULL §9).
func (h *Heap) DeleteElement(id value.Handle, index uint32) {
	o, ok := h.resolve(id)
	if !ok || !o.IsArray {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if o.mode == Packed {
		h.demoteToHoley(o)
	}
	delete(o.elements, index)
	h.maybeDemoteToSparse(o)
}
