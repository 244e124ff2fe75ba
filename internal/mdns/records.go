package mdns

import (
	"fmt"
	"net"
	"sort"
)

// recordTTL is the advertisement TTL in seconds, matching the real
// product's observed value.
const recordTTL = 120

// appendRecord writes one resource record: name, type, class, TTL, and
// length-prefixed rdata.
func appendRecord(buf []byte, name string, rtype, class uint16, rdata []byte) []byte {
	buf = append(buf, encodeName(name)...)
	buf = appendUint16(buf, rtype)
	buf = appendUint16(buf, class)
	buf = appendUint32(buf, recordTTL)
	buf = appendUint16(buf, uint16(len(rdata)))
	return append(buf, rdata...)
}

// ptrRecord points the service type at the instance name. PTR records are
// shared, so they carry the plain IN class without the cache-flush bit.
func ptrRecord(buf []byte, serviceType, instance string) []byte {
	return appendRecord(buf, serviceType, typePTR, classIN, encodeName(instance))
}

// txtRecord encodes key=value metadata as length-prefixed strings in a
// stable order.
func txtRecord(buf []byte, instance string, kv map[string]string) []byte {
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var rdata []byte
	for _, k := range keys {
		entry := fmt.Sprintf("%s=%s", k, kv[k])
		if len(entry) > 255 {
			entry = entry[:255]
		}
		rdata = append(rdata, byte(len(entry)))
		rdata = append(rdata, entry...)
	}
	return appendRecord(buf, instance, typeTXT, classCacheFlush, rdata)
}

// srvRecord encodes priority, weight, port, target.
func srvRecord(buf []byte, instance string, port int, target string) []byte {
	var rdata []byte
	rdata = appendUint16(rdata, 0) // priority
	rdata = appendUint16(rdata, 0) // weight
	rdata = appendUint16(rdata, uint16(port))
	rdata = append(rdata, encodeName(target)...)
	return appendRecord(buf, instance, typeSRV, classCacheFlush, rdata)
}

func aRecord(buf []byte, host string, ip net.IP) []byte {
	v4 := ip.To4()
	if v4 == nil {
		return buf
	}
	return appendRecord(buf, host, typeA, classCacheFlush, v4)
}

func aaaaRecord(buf []byte, host string, ip net.IP) []byte {
	v6 := ip.To16()
	if v6 == nil {
		return buf
	}
	return appendRecord(buf, host, typeAAAA, classCacheFlush, v6)
}

// nsecRecord declares which record types exist for a name, so resolvers
// doing negative caching do not keep re-asking for types we never publish.
// Types must all fit bitmap window 0 (types 1..255), which PTR/TXT/SRV/A/
// AAAA all do.
func nsecRecord(buf []byte, name string, types []uint16) []byte {
	var maxType uint16
	for _, t := range types {
		if t > maxType {
			maxType = t
		}
	}
	bitmapLen := maxType/8 + 1
	bitmap := make([]byte, bitmapLen)
	for _, t := range types {
		bitmap[t/8] |= 0x80 >> (t % 8)
	}

	rdata := encodeName(name) // next domain name: self, per RFC 6762 §6.1
	rdata = append(rdata, 0)  // window block 0
	rdata = append(rdata, byte(bitmapLen))
	rdata = append(rdata, bitmap...)
	return appendRecord(buf, name, typeNSEC, classCacheFlush, rdata)
}

// DNS record type codes used in replies.
const (
	typeA    = 1
	typePTR  = 12
	typeTXT  = 16
	typeAAAA = 28
	typeSRV  = 33
	typeNSEC = 47
)
