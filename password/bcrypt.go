package password

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt silently truncates input beyond this many bytes.
const bcryptMaxBytes = 72

// Bcrypt hashes passwords with bcrypt. Cost is tunable per environment.
type Bcrypt struct {
	cost     int
	minBytes int
}

// NewBcrypt returns a bcrypt hasher. A non-positive cost selects
// bcrypt.DefaultCost; a non-positive minBytes selects DefaultMinPasswordBytes.
func NewBcrypt(cost, minBytes int) (*Bcrypt, error) {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, errors.New("bcrypt cost out of range")
	}
	if minBytes <= 0 {
		minBytes = DefaultMinPasswordBytes
	}
	if minBytes > bcryptMaxBytes {
		return nil, errors.New("bcrypt min length exceeds 72 bytes")
	}
	return &Bcrypt{cost: cost, minBytes: minBytes}, nil
}

func (b *Bcrypt) Hash(password string) (string, error) {
	if err := checkLength(password, b.minBytes, bcryptMaxBytes); err != nil {
		return "", err
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func (b *Bcrypt) Verify(password string, encodedHash string) (bool, error) {
	if len(password) > bcryptMaxBytes {
		return false, ErrPasswordTooLong
	}
	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, errors.Join(ErrMalformedHash, err)
	}
}

// NeedsUpgrade reports whether encodedHash uses a lower cost than configured.
func (b *Bcrypt) NeedsUpgrade(encodedHash string) (bool, error) {
	cost, err := bcrypt.Cost([]byte(encodedHash))
	if err != nil {
		return false, errors.Join(ErrMalformedHash, err)
	}
	return cost < b.cost, nil
}

func (b *Bcrypt) Recognizes(encodedHash string) bool {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(encodedHash, prefix) {
			return true
		}
	}
	return false
}
