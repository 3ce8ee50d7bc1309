package raw

// VisitRefs calls fn for every reference reachable inside obj without
// crossing into other indirect objects, in document order.
func VisitRefs(obj Object, fn func(ObjectRef)) {
	switch v := obj.(type) {
	case RefObj:
		fn(v.R)
	case *ArrayObj:
		for _, it := range v.Items {
			VisitRefs(it, fn)
		}
	case *DictObj:
		for _, k := range v.SortedKeys() {
			VisitRefs(v.KV[k], fn)
		}
	case *StreamObj:
		if v.Dict != nil {
			VisitRefs(v.Dict, fn)
		}
	}
}

// MapRefs returns a deep copy of obj with every reference replaced by the
// result of fn. Stream payloads are shared, not copied.
func MapRefs(obj Object, fn func(ObjectRef) Object) Object {
	switch v := obj.(type) {
	case RefObj:
		return fn(v.R)
	case *ArrayObj:
		out := &ArrayObj{Items: make([]Object, len(v.Items))}
		for i, it := range v.Items {
			out.Items[i] = MapRefs(it, fn)
		}
		return out
	case *DictObj:
		out := &DictObj{KV: make(map[string]Object, len(v.KV))}
		for k, it := range v.KV {
			out.KV[k] = MapRefs(it, fn)
		}
		return out
	case *StreamObj:
		var dict *DictObj
		if v.Dict != nil {
			dict, _ = MapRefs(v.Dict, fn).(*DictObj)
		} else {
			dict = Dict()
		}
		return &StreamObj{Dict: dict, Data: v.Data}
	case StringObj:
		return StringObj{Bytes: append([]byte(nil), v.Bytes...), Hex: v.Hex}
	default:
		return obj
	}
}
