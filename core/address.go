package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
)

// AddressHRP is the human-readable part used by the Bech32 address codec.
const AddressHRP = "lakha"

// addressPayloadLen is the fixed width of the encoded identifier, in bytes.
const addressPayloadLen = 20

const (
	bech32Charset   = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"
	bech32Separator = '1'
)

var bech32Generator = [5]uint32{0x3b6a57b2, 0x26508e6d, 0x1ea119fa, 0x3d4233dd, 0x2a1462b3}

func bech32Polymod(values []byte) uint32 {
	chk := uint32(1)
	for _, v := range values {
		top := chk >> 25
		chk = (chk&0x1ffffff)<<5 ^ uint32(v)
		for i, g := range bech32Generator {
			if ((top >> uint(i)) & 1) == 1 {
				chk ^= g
			}
		}
	}
	return chk
}

func bech32HrpExpand(hrp string) []byte {
	out := make([]byte, 0, len(hrp)*2+1)
	for i := 0; i < len(hrp); i++ {
		out = append(out, hrp[i]>>5)
	}
	out = append(out, 0)
	for i := 0; i < len(hrp); i++ {
		out = append(out, hrp[i]&31)
	}
	return out
}

func verifyBech32Checksum(hrp string, data []byte) bool {
	vals := bech32HrpExpand(hrp)
	vals = append(vals, data...)
	return bech32Polymod(vals) == 1
}

func createBech32Checksum(hrp string, data []byte) [6]byte {
	vals := bech32HrpExpand(hrp)
	vals = append(vals, data...)
	vals = append(vals, 0, 0, 0, 0, 0, 0)
	polymod := bech32Polymod(vals) ^ 1

	var out [6]byte
	for i := 0; i < 6; i++ {
		out[i] = byte((polymod >> uint(5*(5-i))) & 31)
	}
	return out
}

// convertBits regroups a byte slice between bit widths, used to move a
// 20-byte payload into 5-bit Bech32 groups and back.
func convertBits(data []byte, from, to uint, pad bool) ([]byte, error) {
	var acc uint
	var bits uint
	maxValue := (uint(1) << to) - 1
	out := make([]byte, 0, len(data))

	for _, v := range data {
		value := uint(v)
		if value>>from != 0 {
			return nil, fmt.Errorf("invalid data range: %d (max bits %d)", value, from)
		}
		acc = (acc << from) | value
		bits += from
		for bits >= to {
			bits -= to
			out = append(out, byte((acc>>bits)&maxValue))
		}
	}

	if pad {
		if bits > 0 {
			out = append(out, byte((acc<<(to-bits))&maxValue))
		}
	} else if bits >= from {
		return nil, fmt.Errorf("illegal zero padding")
	} else if ((acc << (to - bits)) & maxValue) != 0 {
		return nil, fmt.Errorf("non-zero padding")
	}

	return out, nil
}

func bech32Encode(hrp string, data []byte) (string, error) {
	if len(hrp) == 0 {
		return "", fmt.Errorf("human readable part is empty")
	}
	hrp = strings.ToLower(hrp)

	combined := make([]byte, 0, len(data)+6)
	combined = append(combined, data...)
	checksum := createBech32Checksum(hrp, data)
	combined = append(combined, checksum[:]...)

	var b strings.Builder
	b.Grow(len(hrp) + 1 + len(combined))
	b.WriteString(hrp)
	b.WriteByte(bech32Separator)
	for _, v := range combined {
		if int(v) >= len(bech32Charset) {
			return "", fmt.Errorf("invalid value: %d", v)
		}
		b.WriteByte(bech32Charset[v])
	}
	return b.String(), nil
}

func bech32Decode(bech string) (string, []byte, error) {
	if strings.ToUpper(bech) != bech && strings.ToLower(bech) != bech {
		return "", nil, fmt.Errorf("mix case is not allowed")
	}
	bech = strings.ToLower(bech)

	pos := strings.LastIndexByte(bech, bech32Separator)
	if pos < 1 || pos+7 > len(bech) {
		return "", nil, fmt.Errorf("invalid separator position: %d", pos)
	}

	hrp := bech[:pos]
	data := make([]byte, 0, len(bech)-pos-1)
	for i := pos + 1; i < len(bech); i++ {
		idx := strings.IndexByte(bech32Charset, bech[i])
		if idx < 0 {
			return "", nil, fmt.Errorf("invalid bech32 character: %q", bech[i])
		}
		data = append(data, byte(idx))
	}

	if !verifyBech32Checksum(hrp, data) {
		return "", nil, fmt.Errorf("invalid checksum")
	}
	return hrp, data[:len(data)-6], nil
}

// EncodeAddress converts a 20-byte payload into its Bech32 representation
// under the `lakha` HRP. Callers that cannot rely on Bech32 availability may
// fall back to DecodeAddress's ASCII form, but EncodeAddress always produces
// Bech32.
func EncodeAddress(payload [addressPayloadLen]byte) (string, error) {
	fiveBit, err := convertBits(payload[:], 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("regroup address payload: %w", err)
	}
	return bech32Encode(AddressHRP, fiveBit)
}

// DecodeAddress parses either a Bech32 `lakha1...` address or the ASCII
// fallback `lakha<hex>` form, returning the 20-byte payload.
func DecodeAddress(addr string) ([addressPayloadLen]byte, error) {
	var out [addressPayloadLen]byte

	if strings.HasPrefix(strings.ToLower(addr), AddressHRP) && strings.ContainsRune(addr, bech32Separator) {
		hrp, fiveBit, err := bech32Decode(addr)
		if err == nil && hrp == AddressHRP {
			payload, err := convertBits(fiveBit, 5, 8, false)
			if err != nil {
				return out, fmt.Errorf("regroup bech32 data: %w", err)
			}
			if len(payload) != addressPayloadLen {
				return out, fmt.Errorf("decoded address has length %d, want %d", len(payload), addressPayloadLen)
			}
			copy(out[:], payload)
			return out, nil
		}
	}

	// ASCII fallback: "lakha" + hex(payload).
	if strings.HasPrefix(addr, AddressHRP) {
		raw, err := hex.DecodeString(strings.TrimPrefix(addr, AddressHRP))
		if err != nil {
			return out, fmt.Errorf("decode ascii fallback address: %w", err)
		}
		if len(raw) != addressPayloadLen {
			return out, fmt.Errorf("ascii fallback address has length %d, want %d", len(raw), addressPayloadLen)
		}
		copy(out[:], raw)
		return out, nil
	}

	return out, fmt.Errorf("%q is not a recognized lakha address", addr)
}

// AsciiFallbackAddress formats the payload as `lakha<hex>`, used only when
// Bech32 encoding is unavailable to the caller.
func AsciiFallbackAddress(payload [addressPayloadLen]byte) string {
	return AddressHRP + hex.EncodeToString(payload[:])
}

// Keypair is a secp256k1 keypair together with the derived lakha address.
type Keypair struct {
	PrivateKey *btcec.PrivateKey
	PublicKey  *btcec.PublicKey
	Address    string
}

// GenerateKeypair creates a fresh secp256k1 keypair and derives its lakha
// address as the Bech32 encoding of the SHA-256 hash of the compressed
// public key, truncated to 20 bytes (mirrors the common EVM-style
// pubkey-hash derivation while keeping the address codec spec-compliant).
func GenerateKeypair() (*Keypair, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate secp256k1 key: %w", err)
	}
	pub := priv.PubKey()

	digest := sha256.Sum256(pub.SerializeCompressed())
	var payload [addressPayloadLen]byte
	copy(payload[:], digest[len(digest)-addressPayloadLen:])

	addr, err := EncodeAddress(payload)
	if err != nil {
		return nil, fmt.Errorf("encode derived address: %w", err)
	}

	return &Keypair{PrivateKey: priv, PublicKey: pub, Address: addr}, nil
}
