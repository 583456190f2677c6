package widevine

import (
	"crypto/rsa"
	"encoding/hex"
	"math/big"
)

// ServiceCertificateRequest is the fixed message a client sends to ask the
// license service for its privacy certificate.
var ServiceCertificateRequest = []byte{0x08, 0x04}

// rootPublicKey verifies service-certificate signatures. It is the public
// key of the root DrmCertificate shipped inside every CDM binary.
var rootPublicKey = mustRSAKey(
	"915f33d2508264b4783f5596a6ceb5f712e812a76f03e5073e51d4f8b9dc1cfe" +
		"c53d416d88d212ac3c9358ec23b811122747e42be7e718fd08a5ff8415687d4c" +
		"8a947c811c31977f4bea3c47e4370d59e024b3111fec35c88844560d82019ff2" +
		"b219ed2514ad13398c695e0629e4bf4c6082dc8f78b07fbedc6d19d26fef75dc" +
		"175b77485e4ffa30aab7d2fb003d111a607cba53c3ebdc11ff33455e52799802" +
		"e012e6b48eb8f9b1338cca3474e4366bff116cc8f5650e9218aa8448889bb827" +
		"1f89ba4bec7db933b2b72b4882fdfc63193e178ae9b07e729ccbb4c15c824db4" +
		"29bdc1faa0723ebc6f9325e22750407efd202670208288a8ccd784eb979a539c" +
		"852519e1d7d645719da91022d9baa976aedf4cd6920f8f1376a7fd09fd5f473e" +
		"536948b54bec725b53ab8b2334be228035b0fbab39848acb430e462f5d681615" +
		"789821c5df66beb87f722695a9409c3fd236b3db78a67d356df64c530357a035" +
		"9ffbdcdf6587db10b1234de7f29b5ec3f2cd68e80997113cdb039065c339feb4",
)

// Production and staging license-service privacy certificates, pre-verified
// constants so privacy mode works without a certificate round trip.
var (
	productionCert = DrmCertificate{
		ProviderID:   "license.widevine.com",
		SerialNumber: mustHexBytes("1705b917cc1204868b06333a2f772a8c"),
		PublicKey: mustRSAKey(
			"095a9f9c015012cf1b71b408d3fb64df6e5efcb05d9f6b0b2f58e24328e8590c" +
				"012f4baf37ec4ea7904413f3c54a2cd8c6676f0d6882707024ceed59830b1296" +
				"b982a0735cc5d76ce7d0e264f5ba5bf5eefc9a9260bdee97bfa420954cbac4d1" +
				"04c6b040bfe131fd4264fb6f3df19233decaf1badd1882435daa7ea40c4947ca" +
				"104abdec4efb213a985d7033ebcd7cd6a837b15784ac4fe0dc7a60a858800ee6" +
				"143d26465fa4e881571e9e01e177eafefbbf217e8c878c156f0b610830397912" +
				"a9380eafe1a7234058581d2995079e4a5e5a724e8cb81bb1ade38cad41045140" +
				"dfb876d814b845063e5037cbbcd50a5298b5952ab6c3ef245eab7d323b5bed99",
		),
	}

	stagingCert = DrmCertificate{
		ProviderID:   "staging.google.com",
		SerialNumber: mustHexBytes("28703454c008f63618ade7443db6c4c8"),
		PublicKey: mustRSAKey(
			"43d99a7fa067fd24af9dbc86941338364c3303476001ef3c99a0d0c0a0604df7" +
				"a2bcc293d8450d0868d6f10858e5be90935872ab54424f3d28f63ef367674842" +
				"efefdfb7563692905e90bd507821ac2b53001fc08c490e4af70151adad066a64" +
				"dc7dca920f98915a674df1d8dcee40c7bb090bc540a0a380ffef81f0414c5ac0" +
				"8a215a5b18d3a134f16d17147e2aba4dadf5aab6f91e5e7f891827604c3e0d63" +
				"664f1c17aa627985b9f294b8a6b9e1260d1d81ef665b076f51b294ea5ad4897a" +
				"c00a5fbb67e0f5c7a222b374629a5e810754e9df08dc5fd54699b78231bc2a3d" +
				"1e66de4367b05b35efbed2d87c17b449c6c151c2e2955dcc3f025dd0b81221b5",
		),
	}
)

func mustHexBytes(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}

	return b
}

func mustRSAKey(nHex string) *rsa.PublicKey {
	n, ok := new(big.Int).SetString(nHex, 16)
	if !ok {
		panic("widevine: bad modulus constant")
	}

	return &rsa.PublicKey{N: n, E: 65537}
}
