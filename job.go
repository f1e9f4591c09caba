package stratum

import (
	"fmt"
	"math/big"
)

// Job is a hashable unit of work: a serialized header with a zero nonce
// placeholder in its final eight hex characters, and the share target the
// pool's current difficulty implies.
type Job struct {
	JobID string
	// HeaderHex is exactly 160 lowercase hex characters; a miner varies the
	// trailing "00000000" nonce field.
	HeaderHex string
	// Target holds the 256-bit share boundary as eight little-endian words:
	// Target[0] is the least significant. At difficulty 1.0, Target[6] is
	// 0xFFFF0000 and every other word is zero.
	Target          [8]uint32
	Extranonce2     uint32
	Extranonce2Size int
}

var diff1Target = func() *big.Int {
	n, _ := new(big.Int).SetString("00000000FFFF0000000000000000000000000000000000000000000000000000", 16)
	return n
}()

// maxUint256 is the maximum value representable in 256 bits.
var maxUint256 = func() *big.Int {
	n := new(big.Int).Lsh(big.NewInt(1), 256)
	return n.Sub(n, big.NewInt(1))
}()

var difficultyScaleInt = new(big.Int).SetUint64(10_000_000_000_000_000)

// targetFromDifficulty converts a pool difficulty into the 256-bit share
// target: floor(diff1 * 1e16 / floor(diff * 1e16)). The fixed decimal scale
// keeps about 16 significant digits of the float difficulty while staying
// in integer arithmetic; naive big-float division produces different low
// bits than the reference targets.
func targetFromDifficulty(diff float64) *big.Int {
	if diff <= 0 {
		return new(big.Int).Set(maxUint256)
	}
	scaledFloat := new(big.Float).SetPrec(256).SetFloat64(diff)
	scaledFloat.Mul(scaledFloat, big.NewFloat(difficultyScale))
	scaled, _ := scaledFloat.Int(nil)
	if scaled == nil || scaled.Sign() <= 0 {
		return new(big.Int).Set(maxUint256)
	}
	numerator := new(big.Int).Mul(diff1Target, difficultyScaleInt)
	target := numerator.Quo(numerator, scaled)
	if target.Sign() == 0 {
		target = big.NewInt(1)
	}
	if target.Cmp(maxUint256) > 0 {
		target = new(big.Int).Set(maxUint256)
	}
	return target
}

// targetWords renders a 256-bit target as eight little-endian uint32 words.
func targetWords(target *big.Int) [8]uint32 {
	var words [8]uint32
	var be [32]byte
	target.FillBytes(be[:])
	for i := 0; i < 8; i++ {
		// Word 0 holds the least significant 32 bits.
		off := 32 - (i+1)*4
		words[i] = uint32(be[off])<<24 | uint32(be[off+1])<<16 | uint32(be[off+2])<<8 | uint32(be[off+3])
	}
	return words
}

// assembleCoinbase splices the worker extranonce between the pool's two
// coinbase halves: coinb1 || extranonce1 || extranonce2 || coinb2.
func assembleCoinbase(n *JobNotification, extranonce1 string, extranonce2 uint32, extranonce2Size int) ([]byte, error) {
	cb1, err := decodeHexString(n.Coinb1)
	if err != nil {
		return nil, fmt.Errorf("coinb1: %w", err)
	}
	en1, err := decodeHexString(extranonce1)
	if err != nil {
		return nil, fmt.Errorf("extranonce1: %w", err)
	}
	cb2, err := decodeHexString(n.Coinb2)
	if err != nil {
		return nil, fmt.Errorf("coinb2: %w", err)
	}
	if extranonce2Size <= 0 {
		return nil, fmt.Errorf("extranonce2_size %d invalid", extranonce2Size)
	}

	coinbase := make([]byte, 0, len(cb1)+len(en1)+extranonce2Size+len(cb2))
	coinbase = append(coinbase, cb1...)
	coinbase = append(coinbase, en1...)
	en2 := make([]byte, extranonce2Size)
	v := extranonce2
	for i := extranonce2Size - 1; i >= 0 && v != 0; i-- {
		en2[i] = byte(v)
		v >>= 8
	}
	coinbase = append(coinbase, en2...)
	coinbase = append(coinbase, cb2...)
	return coinbase, nil
}

func doubleSHA256(b []byte) [32]byte {
	first := sha256Sum(b)
	return sha256Sum(first[:])
}

// merkleRoot folds the ordered branch hashes onto the coinbase hash:
// acc = dsha256(acc || branch[i]). An empty branch leaves the coinbase
// hash itself as the root.
func merkleRoot(coinbaseHash [32]byte, branch []string) ([32]byte, error) {
	acc := coinbaseHash
	var buf [64]byte
	for i, b := range branch {
		copy(buf[:32], acc[:])
		if err := decodeHexToFixedBytes(buf[32:], b); err != nil {
			return acc, fmt.Errorf("merkle branch %d: %w", i, err)
		}
		acc = doubleSHA256(buf[:])
	}
	return acc, nil
}

// buildJob turns a notification plus extranonce and difficulty state into
// a hashable Job. Pure: no connection state is read or written.
func buildJob(n *JobNotification, extranonce1 string, extranonce2Size int, extranonce2 uint32, difficulty float64) (*Job, error) {
	coinbase, err := assembleCoinbase(n, extranonce1, extranonce2, extranonce2Size)
	if err != nil {
		return nil, err
	}
	root, err := merkleRoot(doubleSHA256(coinbase), n.MerkleBranch)
	if err != nil {
		return nil, err
	}
	headerHex, err := serializeHeaderHex(n, root)
	if err != nil {
		return nil, err
	}
	return &Job{
		JobID:           n.JobID,
		HeaderHex:       headerHex,
		Target:          targetWords(targetFromDifficulty(difficulty)),
		Extranonce2:     extranonce2,
		Extranonce2Size: extranonce2Size,
	}, nil
}

// serializeHeaderHex renders the 160-character header: byte-pair-reversed
// version, the previous hash as received, the Merkle root in ascending byte
// order, byte-pair-reversed ntime and nbits, and the zero nonce
// placeholder. Every segment is validated hex and re-encoded, so the
// output is always lowercase.
func serializeHeaderHex(n *JobNotification, root [32]byte) (string, error) {
	var version, ntime, nbits [4]byte
	if err := decodeHexToFixedBytes(version[:], n.BlockVersion); err != nil {
		return "", fmt.Errorf("version: %w", err)
	}
	if err := decodeHexToFixedBytes(ntime[:], n.NTime); err != nil {
		return "", fmt.Errorf("ntime: %w", err)
	}
	if err := decodeHexToFixedBytes(nbits[:], n.NBits); err != nil {
		return "", fmt.Errorf("nbits: %w", err)
	}
	var prev [32]byte
	if err := decodeHexToFixedBytes(prev[:], n.PrevHash); err != nil {
		return "", fmt.Errorf("prev_hash: %w", err)
	}

	buf := make([]byte, 0, headerHexLen/2)
	buf = append(buf, version[3], version[2], version[1], version[0])
	buf = append(buf, prev[:]...)
	buf = append(buf, root[:]...)
	buf = append(buf, ntime[3], ntime[2], ntime[1], ntime[0])
	buf = append(buf, nbits[3], nbits[2], nbits[1], nbits[0])
	buf = append(buf, 0, 0, 0, 0)
	return encodeHexString(buf), nil
}
