// Copyright (c) Qualcomm Technologies, Inc. and/or its subsidiaries.
// SPDX-License-Identifier: BSD-3-Clause-Clear

// Package fixtures generates minimal AppImage files for tests.
package fixtures

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

const (
	type1Size    = 0x8373 + 0x200 + 64
	updInfoSize  = 1024
	shstrtab     = "\x00.upd_info\x00.shstrtab\x00"
	updInfoName  = 1
	shstrtabName = 11
)

// Type1 returns the content of a type 1 AppImage carrying the given update information.
// Payload is appended so that different versions hash differently.
func Type1(updateInfo string, payload []byte) []byte {
	b := make([]byte, type1Size)
	copy(b[1:], "ELF")
	copy(b[8:], "AI\x01")
	copy(b[0x8001:], "CD001")
	copy(b[0x8373:], updateInfo)
	return append(b, payload...)
}

// Type2 returns the content of a 64-bit little endian ELF, stamped as a type 2 AppImage,
// with the update information in its .upd_info section. A nil updateInfo omits the section.
func Type2(updateInfo *string, payload []byte) []byte {
	var sections []elf.Section64
	var body bytes.Buffer

	headerSize := uint64(binary.Size(elf.Header64{}))
	sections = append(sections, elf.Section64{})
	names := shstrtab
	if updateInfo != nil {
		data := make([]byte, updInfoSize)
		copy(data, *updateInfo)
		sections = append(sections, elf.Section64{
			Name:      updInfoName,
			Type:      uint32(elf.SHT_PROGBITS),
			Off:       headerSize,
			Size:      updInfoSize,
			Addralign: 1,
		})
		body.Write(data)
	} else {
		names = "\x00.xxxxxxxx\x00.shstrtab\x00"
	}
	sections = append(sections, elf.Section64{
		Name:      shstrtabName,
		Type:      uint32(elf.SHT_STRTAB),
		Off:       headerSize + uint64(body.Len()),
		Size:      uint64(len(names)),
		Addralign: 1,
	})
	body.WriteString(names)
	body.Write(payload)
	for body.Len()%8 != 0 {
		body.WriteByte(0)
	}

	var ident [elf.EI_NIDENT]byte
	copy(ident[:], elf.ELFMAG)
	ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	copy(ident[8:], "AI\x02")
	header := elf.Header64{
		Ident:     ident,
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_X86_64),
		Version:   uint32(elf.EV_CURRENT),
		Shoff:     headerSize + uint64(body.Len()),
		Ehsize:    uint16(headerSize),
		Phentsize: uint16(binary.Size(elf.Prog64{})),
		Shentsize: uint16(binary.Size(elf.Section64{})),
		Shnum:     uint16(len(sections)),
		Shstrndx:  uint16(len(sections) - 1),
	}

	var out bytes.Buffer
	_ = binary.Write(&out, binary.LittleEndian, header)
	out.Write(body.Bytes())
	for _, s := range sections {
		_ = binary.Write(&out, binary.LittleEndian, s)
	}
	return out.Bytes()
}

// WriteFile stores content as an executable file in dir and returns its path
func WriteFile(t testing.TB, dir string, name string, content []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, content, 0755); err != nil {
		t.Fatalf("failed to write AppImage fixture: %v", err)
	}
	return p
}
