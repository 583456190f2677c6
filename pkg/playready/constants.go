package playready

import "encoding/hex"

// wmrmServerKey is the license server's P-256 public key (X ‖ Y). Challenge
// session keys are ElGamal-encrypted to it.
var wmrmServerKey = mustHexBytes(
	"c8b6af16ee941aadaa5389b4af2c10e356be42af175ef3face93254e7b0b3d9b" +
		"982b27b5cb2341326e56aa857dbfd5c634ce2cf9ea74fca8f2af5957efeea562",
)

// rootIssuerKey is the public key every legitimate certificate chain must
// terminate at.
var rootIssuerKey = mustHexBytes(
	"864d61cff2256e422c568b3c28001cfb3e1527658584ba0521b79b1828d936de" +
		"1d826a8fc3e6e7fa7a90d5ca2946f1f64a2efb9f5dcffe7e434eb44293fac5ab",
)

// magicConstantZero enters the scalable-license key ladder as an XOR mask
// over the root content key.
var magicConstantZero = mustHexBytes("7ee9ed4af773224f00b8ea7efb027cbb")

func mustHexBytes(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}

	return b
}
