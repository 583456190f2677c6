package cryptoutils

import "fmt"

// DeriveKey runs the AES-CMAC counter-mode KDF over context: block i is
// CMAC(key, byte(i) ‖ context), counters starting at first. The requested
// number of 16-byte blocks is concatenated in counter order.
//
// Callers derive the message-encryption key as block 1 of the encryption
// context, the server MAC key as blocks 1-2 of the authentication context and
// the client MAC key as blocks 3-4.
func DeriveKey(key, context []byte, first, blocks int) ([]byte, error) {
	out := make([]byte, 0, blocks*16)
	msg := make([]byte, 1+len(context))
	copy(msg[1:], context)
	for i := 0; i < blocks; i++ {
		msg[0] = byte(first + i)
		block, err := AESCMAC(key, msg)
		if err != nil {
			return nil, fmt.Errorf("kdf block %d: %w", first+i, err)
		}
		out = append(out, block...)
	}

	return out, nil
}
