// Package classfile reads the JVM .class binary format into a
// types.UnlinkedRecord, giving the rest of the pipeline a genuine
// producer to run against, built directly on encoding/binary (stdlib; no
// corpus or ecosystem library parses this exact format — see DESIGN.md).
package classfile

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/cpscan/engine/internal/types"
)

const magic = 0xCAFEBABE

// Access flags relevant to an Unlinked Record (the full JVM set is wider;
// only the bits the graph cares about are named).
const (
	AccPublic    = 0x0001
	AccInterface = 0x0200
	AccAbstract  = 0x0400
	AccModule    = 0x8000
)

// Constant pool tags (JVM spec table 4.4-A), the subset this parser needs
// to resolve class/UTF8/NameAndType references.
const (
	tagUTF8               = 1
	tagInteger            = 3
	tagFloat              = 4
	tagLong               = 5
	tagDouble             = 6
	tagClass              = 7
	tagString             = 8
	tagFieldref           = 9
	tagMethodref          = 10
	tagInterfaceMethodref = 11
	tagNameAndType        = 12
	tagMethodHandle       = 15
	tagMethodType         = 16
	tagDynamic            = 17
	tagInvokeDynamic      = 18
	tagModule             = 19
	tagPackage            = 20
)

type cpEntry struct {
	tag      byte
	utf8     string
	classIdx uint16 // for tagClass/tagModule/tagPackage
}

// Parse reads one .class file from r and produces its Unlinked Record.
// owningElement/isExternal are carried through unchanged for the
// caller's bookkeeping.
func Parse(r io.Reader, owningElement types.ElementID, isExternal bool) (*types.UnlinkedRecord, error) {
	br := bufio.NewReader(r)

	var hdr [8]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return nil, fmt.Errorf("classfile: reading header: %w", err)
	}
	if binary.BigEndian.Uint32(hdr[0:4]) != magic {
		return nil, fmt.Errorf("classfile: bad magic")
	}

	cpCount, err := readU16(br)
	if err != nil {
		return nil, err
	}
	pool := make([]cpEntry, cpCount)
	for i := uint16(1); i < cpCount; i++ {
		tag, err := readU8(br)
		if err != nil {
			return nil, fmt.Errorf("classfile: reading constant pool tag %d: %w", i, err)
		}
		entry, wide, err := readCPEntry(br, tag)
		if err != nil {
			return nil, fmt.Errorf("classfile: reading constant pool entry %d: %w", i, err)
		}
		pool[i] = entry
		if wide {
			i++ // Long/Double occupy two constant pool slots (JVM spec 4.4.5)
		}
	}

	accessFlags, err := readU16(br)
	if err != nil {
		return nil, err
	}
	thisClassIdx, err := readU16(br)
	if err != nil {
		return nil, err
	}
	superClassIdx, err := readU16(br)
	if err != nil {
		return nil, err
	}

	if accessFlags&AccModule != 0 {
		return parseModuleInfo(br, pool, owningElement, isExternal)
	}

	ifaceCount, err := readU16(br)
	if err != nil {
		return nil, err
	}
	interfaces := make([]string, ifaceCount)
	for i := range interfaces {
		idx, err := readU16(br)
		if err != nil {
			return nil, err
		}
		interfaces[i] = className(pool, idx)
	}

	rec := &types.UnlinkedRecord{
		TypeName:        className(pool, thisClassIdx),
		Modifiers:       int(accessFlags),
		SuperclassName:  className(pool, superClassIdx),
		Interfaces:      interfaces,
		OwningElement:   owningElement,
		IsExternalClass: isExternal,
	}
	if rec.SuperclassName == "java.lang.Object" {
		rec.SuperclassName = "" // root type is suppressed, not scheduled
	}

	fieldCount, err := readU16(br)
	if err != nil {
		return nil, err
	}
	for i := uint16(0); i < fieldCount; i++ {
		f, err := readMember(br, pool)
		if err != nil {
			return nil, fmt.Errorf("classfile: field %d: %w", i, err)
		}
		rec.Fields = append(rec.Fields, types.FieldRecord{
			Name: f.name, Descriptor: f.descriptor, Modifiers: f.modifiers, Annotations: f.annotations,
		})
	}

	methodCount, err := readU16(br)
	if err != nil {
		return nil, err
	}
	for i := uint16(0); i < methodCount; i++ {
		m, err := readMember(br, pool)
		if err != nil {
			return nil, fmt.Errorf("classfile: method %d: %w", i, err)
		}
		rec.Methods = append(rec.Methods, types.MethodRecord{
			Name: m.name, Descriptor: m.descriptor, Modifiers: m.modifiers,
			Annotations: m.annotations, ParameterAnnotations: m.paramAnnotations,
		})
	}

	classAttrCount, err := readU16(br)
	if err != nil {
		return nil, err
	}
	for i := uint16(0); i < classAttrCount; i++ {
		name, data, err := readAttribute(br, pool)
		if err != nil {
			return nil, fmt.Errorf("classfile: class attribute %d: %w", i, err)
		}
		if name == "RuntimeVisibleAnnotations" {
			rec.Annotations = parseAnnotations(data, pool)
		}
	}

	return rec, nil
}

type member struct {
	name, descriptor string
	modifiers        int
	annotations      []types.Annotation
	paramAnnotations [][]types.Annotation
}

func readMember(br *bufio.Reader, pool []cpEntry) (*member, error) {
	accessFlags, err := readU16(br)
	if err != nil {
		return nil, err
	}
	nameIdx, err := readU16(br)
	if err != nil {
		return nil, err
	}
	descIdx, err := readU16(br)
	if err != nil {
		return nil, err
	}
	attrCount, err := readU16(br)
	if err != nil {
		return nil, err
	}
	m := &member{
		name:       utf8At(pool, nameIdx),
		descriptor: utf8At(pool, descIdx),
		modifiers:  int(accessFlags),
	}
	for i := uint16(0); i < attrCount; i++ {
		name, data, err := readAttribute(br, pool)
		if err != nil {
			return nil, err
		}
		switch name {
		case "RuntimeVisibleAnnotations":
			m.annotations = parseAnnotations(data, pool)
		case "RuntimeVisibleParameterAnnotations":
			m.paramAnnotations = parseParameterAnnotations(data, pool)
		}
	}
	return m, nil
}

// readAttribute reads one attribute_info's name and raw payload, leaving
// the reader positioned at the next attribute.
func readAttribute(br *bufio.Reader, pool []cpEntry) (name string, data []byte, err error) {
	nameIdx, err := readU16(br)
	if err != nil {
		return "", nil, err
	}
	length, err := readU32(br)
	if err != nil {
		return "", nil, err
	}
	data = make([]byte, length)
	if _, err := io.ReadFull(br, data); err != nil {
		return "", nil, err
	}
	return utf8At(pool, nameIdx), data, nil
}

func parseModuleInfo(br *bufio.Reader, pool []cpEntry, owningElement types.ElementID, isExternal bool) (*types.UnlinkedRecord, error) {
	// module-info.class has zero fields/methods; skip straight to attributes.
	for _, section := range []string{"interfaces", "fields", "methods"} {
		count, err := readU16(br)
		if err != nil {
			return nil, fmt.Errorf("classfile: module-info %s count: %w", section, err)
		}
		for i := uint16(0); i < count; i++ {
			switch section {
			case "interfaces":
				if _, err := readU16(br); err != nil {
					return nil, err
				}
			default:
				if _, err := readMember(br, pool); err != nil {
					return nil, err
				}
			}
		}
	}

	attrCount, err := readU16(br)
	if err != nil {
		return nil, err
	}
	rec := &types.UnlinkedRecord{
		IsModuleInfo:    true,
		OwningElement:   owningElement,
		IsExternalClass: isExternal,
	}
	for i := uint16(0); i < attrCount; i++ {
		name, data, err := readAttribute(br, pool)
		if err != nil {
			return nil, err
		}
		if name == "Module" {
			moduleName, directives := parseModuleAttribute(data, pool)
			rec.ModuleName = moduleName
			rec.Directives = directives
		}
	}
	return rec, nil
}

// parseModuleAttribute decodes the Module attribute's module_name plus its
// requires/exports/opens tables (JVM spec 4.7.25), skipping the fields
// this engine does not surface (flags, version, uses, provides).
func parseModuleAttribute(data []byte, pool []cpEntry) (string, []types.ModuleDirective) {
	r := newByteReader(data)
	moduleIdx, ok := r.u16()
	if !ok {
		return "", nil
	}
	moduleName := moduleOrClassName(pool, moduleIdx)
	r.u16() // module_flags
	r.u16() // module_version_index

	var directives []types.ModuleDirective

	requiresCount, _ := r.u16()
	for i := uint16(0); i < requiresCount; i++ {
		idx, _ := r.u16()
		r.u16() // requires_flags
		r.u16() // requires_version_index
		directives = append(directives, types.ModuleDirective{Kind: "requires", Target: moduleOrClassName(pool, idx)})
	}

	exportsCount, _ := r.u16()
	for i := uint16(0); i < exportsCount; i++ {
		idx, _ := r.u16()
		r.u16() // exports_flags
		toCount, _ := r.u16()
		for j := uint16(0); j < toCount; j++ {
			r.u16()
		}
		directives = append(directives, types.ModuleDirective{Kind: "exports", Target: packageName(pool, idx)})
	}

	opensCount, _ := r.u16()
	for i := uint16(0); i < opensCount; i++ {
		idx, _ := r.u16()
		r.u16() // opens_flags
		toCount, _ := r.u16()
		for j := uint16(0); j < toCount; j++ {
			r.u16()
		}
		directives = append(directives, types.ModuleDirective{Kind: "opens", Target: packageName(pool, idx)})
	}

	return moduleName, directives
}

func moduleOrClassName(pool []cpEntry, idx uint16) string {
	if int(idx) >= len(pool) {
		return ""
	}
	e := pool[idx]
	if e.tag != tagModule && e.tag != tagClass {
		return ""
	}
	return strings.ReplaceAll(utf8At(pool, e.classIdx), "/", ".")
}

func packageName(pool []cpEntry, idx uint16) string {
	if int(idx) >= len(pool) {
		return ""
	}
	e := pool[idx]
	return strings.ReplaceAll(utf8At(pool, e.classIdx), "/", ".")
}

func readCPEntry(br *bufio.Reader, tag byte) (cpEntry, bool, error) {
	switch tag {
	case tagUTF8:
		n, err := readU16(br)
		if err != nil {
			return cpEntry{}, false, err
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(br, buf); err != nil {
			return cpEntry{}, false, err
		}
		return cpEntry{tag: tag, utf8: string(buf)}, false, nil
	case tagClass, tagModule, tagPackage, tagMethodType:
		idx, err := readU16(br)
		if err != nil {
			return cpEntry{}, false, err
		}
		return cpEntry{tag: tag, classIdx: idx}, false, nil
	case tagString:
		if _, err := readU16(br); err != nil {
			return cpEntry{}, false, err
		}
		return cpEntry{tag: tag}, false, nil
	case tagFieldref, tagMethodref, tagInterfaceMethodref, tagNameAndType, tagDynamic, tagInvokeDynamic:
		if _, err := readU16(br); err != nil {
			return cpEntry{}, false, err
		}
		if _, err := readU16(br); err != nil {
			return cpEntry{}, false, err
		}
		return cpEntry{tag: tag}, false, nil
	case tagInteger, tagFloat:
		var b [4]byte
		if _, err := io.ReadFull(br, b[:]); err != nil {
			return cpEntry{}, false, err
		}
		return cpEntry{tag: tag}, false, nil
	case tagLong, tagDouble:
		var b [8]byte
		if _, err := io.ReadFull(br, b[:]); err != nil {
			return cpEntry{}, false, err
		}
		return cpEntry{tag: tag}, true, nil
	case tagMethodHandle:
		if _, err := readU8(br); err != nil {
			return cpEntry{}, false, err
		}
		if _, err := readU16(br); err != nil {
			return cpEntry{}, false, err
		}
		return cpEntry{tag: tag}, false, nil
	default:
		return cpEntry{}, false, fmt.Errorf("unknown constant pool tag %d", tag)
	}
}

func className(pool []cpEntry, idx uint16) string {
	if idx == 0 || int(idx) >= len(pool) {
		return ""
	}
	e := pool[idx]
	if e.tag != tagClass {
		return ""
	}
	return strings.ReplaceAll(utf8At(pool, e.classIdx), "/", ".")
}

func utf8At(pool []cpEntry, idx uint16) string {
	if int(idx) >= len(pool) {
		return ""
	}
	return pool[idx].utf8
}

func readU8(br *bufio.Reader) (byte, error) { return br.ReadByte() }

func readU16(br *bufio.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(br, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func readU32(br *bufio.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(br, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// byteReader is a tiny cursor over an already-read attribute payload, used
// for the Module and annotation attributes whose length has already been
// consumed.
type byteReader struct {
	data []byte
	pos  int
}

func newByteReader(data []byte) *byteReader { return &byteReader{data: data} }

func (r *byteReader) u16() (uint16, bool) {
	if r.pos+2 > len(r.data) {
		return 0, false
	}
	v := binary.BigEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, true
}

func (r *byteReader) u8() (byte, bool) {
	if r.pos+1 > len(r.data) {
		return 0, false
	}
	v := r.data[r.pos]
	r.pos++
	return v, true
}
