package classfile

import "github.com/cpscan/engine/internal/types"

// parseAnnotations decodes a RuntimeVisibleAnnotations attribute payload
// (JVM spec 4.7.16) into the annotation list an Unlinked Record carries,
// including each annotation's element-value pairs.
func parseAnnotations(data []byte, pool []cpEntry) []types.Annotation {
	r := newByteReader(data)
	count, ok := r.u16()
	if !ok {
		return nil
	}
	out := make([]types.Annotation, 0, count)
	for i := uint16(0); i < count; i++ {
		a, ok := readAnnotation(r, pool)
		if !ok {
			break
		}
		out = append(out, a)
	}
	return out
}

// parseParameterAnnotations decodes RuntimeVisibleParameterAnnotations
// (JVM spec 4.7.18): one annotation list per formal parameter.
func parseParameterAnnotations(data []byte, pool []cpEntry) [][]types.Annotation {
	r := newByteReader(data)
	numParams, ok := r.u8()
	if !ok {
		return nil
	}
	out := make([][]types.Annotation, 0, numParams)
	for p := byte(0); p < numParams; p++ {
		count, ok := r.u16()
		if !ok {
			break
		}
		var anns []types.Annotation
		for i := uint16(0); i < count; i++ {
			a, ok := readAnnotation(r, pool)
			if !ok {
				break
			}
			anns = append(anns, a)
		}
		out = append(out, anns)
	}
	return out
}

func readAnnotation(r *byteReader, pool []cpEntry) (types.Annotation, bool) {
	typeIdx, ok := r.u16()
	if !ok {
		return types.Annotation{}, false
	}
	numPairs, ok := r.u16()
	if !ok {
		return types.Annotation{}, false
	}
	a := types.Annotation{TypeName: fieldDescriptorToTypeName(utf8At(pool, typeIdx)), Params: make(map[string]any, numPairs)}
	for i := uint16(0); i < numPairs; i++ {
		nameIdx, ok := r.u16()
		if !ok {
			return a, true
		}
		val, ok := readElementValue(r, pool)
		if !ok {
			return a, true
		}
		a.Params[utf8At(pool, nameIdx)] = val
	}
	return a, true
}

// readElementValue decodes one element_value structure (JVM spec 4.7.16.1).
func readElementValue(r *byteReader, pool []cpEntry) (any, bool) {
	tag, ok := r.u8()
	if !ok {
		return nil, false
	}
	switch tag {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z', 's':
		idx, ok := r.u16()
		if !ok {
			return nil, false
		}
		return utf8At(pool, idx), true
	case 'e': // enum_const_value
		typeIdx, ok := r.u16()
		if !ok {
			return nil, false
		}
		constIdx, ok := r.u16()
		if !ok {
			return nil, false
		}
		return fieldDescriptorToTypeName(utf8At(pool, typeIdx)) + "." + utf8At(pool, constIdx), true
	case 'c': // class_info_index
		idx, ok := r.u16()
		if !ok {
			return nil, false
		}
		return fieldDescriptorToTypeName(utf8At(pool, idx)), true
	case '@': // nested annotation
		a, ok := readAnnotation(r, pool)
		return a, ok
	case '[': // array
		count, ok := r.u16()
		if !ok {
			return nil, false
		}
		vals := make([]any, 0, count)
		for i := uint16(0); i < count; i++ {
			v, ok := readElementValue(r, pool)
			if !ok {
				break
			}
			vals = append(vals, v)
		}
		return vals, true
	default:
		return nil, false
	}
}

// fieldDescriptorToTypeName converts a field descriptor like "Lcom/x/T;"
// to the dotted type name "com.x.T"; non-object descriptors pass through.
func fieldDescriptorToTypeName(desc string) string {
	if len(desc) >= 2 && desc[0] == 'L' && desc[len(desc)-1] == ';' {
		name := desc[1 : len(desc)-1]
		out := make([]byte, len(name))
		for i := 0; i < len(name); i++ {
			if name[i] == '/' {
				out[i] = '.'
			} else {
				out[i] = name[i]
			}
		}
		return string(out)
	}
	return desc
}
