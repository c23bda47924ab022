// Package testutil builds synthetic classfile and archive fixtures for
// tests across the scan engine, mirroring standardbeagle/lci's internal/test
// builders package (fixtures assembled in Go rather than checked in as
// binary testdata).
package testutil

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"os"
)

// BuildClass assembles a minimal, structurally valid .class file body
// naming thisName as its type and superName as its superclass, with no
// fields, methods, interfaces, or attributes. Good enough for the
// classfile parser's header/constant-pool/superclass path; not a
// general-purpose classfile compiler.
func BuildClass(thisName, superName string) []byte {
	var cp bytes.Buffer
	var count uint16

	utf8 := func(s string) uint16 {
		cp.WriteByte(1) // CONSTANT_Utf8
		writeU16(&cp, uint16(len(s)))
		cp.WriteString(s)
		count++
		return count
	}
	class := func(nameIdx uint16) uint16 {
		cp.WriteByte(7) // CONSTANT_Class
		writeU16(&cp, nameIdx)
		count++
		return count
	}

	thisClassIdx := class(utf8(toSlashed(thisName)))
	superClassIdx := class(utf8(toSlashed(superName)))

	var out bytes.Buffer
	writeU32(&out, 0xCAFEBABE)
	writeU16(&out, 0)
	writeU16(&out, 61)
	writeU16(&out, count+1)
	out.Write(cp.Bytes())
	writeU16(&out, 0x0001) // ACC_PUBLIC
	writeU16(&out, thisClassIdx)
	writeU16(&out, superClassIdx)
	writeU16(&out, 0) // interfaces_count
	writeU16(&out, 0) // fields_count
	writeU16(&out, 0) // methods_count
	writeU16(&out, 0) // attributes_count
	return out.Bytes()
}

func toSlashed(dotted string) string {
	out := []byte(dotted)
	for i, c := range out {
		if c == '.' {
			out[i] = '/'
		}
	}
	return string(out)
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

// ZipEntry is one file to place inside a fixture archive built by WriteZip.
type ZipEntry struct {
	Name string
	Data []byte
}

// WriteZip writes a zip archive at path containing entries, in order.
func WriteZip(path string, entries []ZipEntry) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, e := range entries {
		w, err := zw.Create(e.Name)
		if err != nil {
			return err
		}
		if _, err := w.Write(e.Data); err != nil {
			return err
		}
	}
	return zw.Close()
}

// Manifest builds a MANIFEST.MF body from ordered key/value pairs.
func Manifest(pairs ...[2]string) []byte {
	var buf bytes.Buffer
	buf.WriteString("Manifest-Version: 1.0\n")
	for _, kv := range pairs {
		buf.WriteString(kv[0])
		buf.WriteString(": ")
		buf.WriteString(kv[1])
		buf.WriteString("\n")
	}
	return buf.Bytes()
}
