package packet

import (
	"crypto/rand"
	"math/big"
)

// secureShuffle randomizes block order in place using Fisher-Yates driven
// by a cryptographic PRNG. Required for unlinkability: chunk position in a
// serialized block must never hint at forwarding order.
func secureShuffle(s [][]byte) {
	for i := len(s) - 1; i > 0; i-- {
		jBig, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			// crypto/rand failing is a fatal environment problem; there is
			// no safe non-random fallback for an unlinkability guarantee.
			panic("packet: crypto/rand unavailable: " + err.Error())
		}
		j := int(jBig.Int64())
		s[i], s[j] = s[j], s[i]
	}
}
