package registry

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// codeAlphabet drops 0/O/1/I/L so codes survive being read aloud.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
const codeLength = 6

func generateCode() (string, error) {
	code := make([]byte, codeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return "", err
		}
		code[i] = codeAlphabet[n.Int64()]
	}
	return string(code), nil
}

// newCodeLocked rejection-samples until the code is unused. Caller holds the
// write lock.
func (g *Registry) newCodeLocked() (string, error) {
	for attempt := 0; attempt < 100; attempt++ {
		code, err := generateCode()
		if err != nil {
			return "", err
		}
		if _, taken := g.rooms[code]; !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("could not allocate a unique room code")
}
