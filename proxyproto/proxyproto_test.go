package proxyproto

import (
	"bufio"
	"encoding/binary"
	"strings"
	"testing"
)

func TestParseV1TCP4(t *testing.T) {
	raw := "PROXY TCP4 192.168.0.1 192.168.0.11 56324 443\r\n"
	info, err := Parse(bufio.NewReader(strings.NewReader(raw)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !info.Valid() {
		t.Fatalf("expected valid info, got err=%v", info.Err)
	}
	if info.SrcPort != 56324 || info.DstPort != 443 {
		t.Fatalf("unexpected ports: %+v", info)
	}
	if info.SrcAddr.String() != "192.168.0.1" {
		t.Fatalf("unexpected src addr: %v", info.SrcAddr)
	}
}

func TestParseV1Unknown(t *testing.T) {
	raw := "PROXY UNKNOWN\r\n"
	info, err := Parse(bufio.NewReader(strings.NewReader(raw)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !info.Valid() {
		t.Fatalf("expected valid info for UNKNOWN, got err=%v", info.Err)
	}
}

func TestParseV1Malformed(t *testing.T) {
	raw := "PROXY BOGUS\r\n"
	info, _ := Parse(bufio.NewReader(strings.NewReader(raw)))
	if info.Valid() {
		t.Fatalf("expected invalid info")
	}
}

func buildV2(famProto byte, addr []byte) []byte {
	buf := append([]byte{}, v2Signature...)
	buf = append(buf, 0x21, famProto)
	lenBuf := make([]byte, 2)
	binary.BigEndian.PutUint16(lenBuf, uint16(len(addr)))
	buf = append(buf, lenBuf...)
	buf = append(buf, addr...)
	return buf
}

func TestParseV2TCP4(t *testing.T) {
	addr := make([]byte, 12)
	copy(addr[0:4], []byte{10, 0, 0, 1})
	copy(addr[4:8], []byte{10, 0, 0, 2})
	binary.BigEndian.PutUint16(addr[8:10], 12345)
	binary.BigEndian.PutUint16(addr[10:12], 80)

	raw := buildV2(0x11, addr)
	info, err := Parse(bufio.NewReader(strings.NewReader(string(raw))))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !info.Valid() {
		t.Fatalf("expected valid info, got err=%v", info.Err)
	}
	if info.SrcPort != 12345 || info.DstPort != 80 {
		t.Fatalf("unexpected ports: %+v", info)
	}
	if info.SrcAddr.String() != "10.0.0.1" {
		t.Fatalf("unexpected src addr: %v", info.SrcAddr)
	}
}

func TestParseV2WithTLV(t *testing.T) {
	addr := make([]byte, 12)
	copy(addr[0:4], []byte{127, 0, 0, 1})
	copy(addr[4:8], []byte{127, 0, 0, 1})

	tlv := []byte{TLVUniqueID, 0x00, 0x03, 'a', 'b', 'c'}
	payload := append(addr, tlv...)

	raw := buildV2(0x11, payload)
	info, err := Parse(bufio.NewReader(strings.NewReader(string(raw))))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(info.TLVs) != 1 || info.TLVs[0].Name != "UNIQUE_ID" {
		t.Fatalf("unexpected TLVs: %+v", info.TLVs)
	}
}

func TestParseUnrecognized(t *testing.T) {
	info, _ := Parse(bufio.NewReader(strings.NewReader("GARBG")))
	if info.Valid() {
		t.Fatalf("expected invalid info")
	}
}
