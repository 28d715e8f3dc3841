package password

import "errors"

var (
	ErrPasswordTooShort     = errors.New("password too short")
	ErrPasswordTooLong      = errors.New("password too long")
	ErrMalformedHash        = errors.New("malformed password hash")
	ErrUnsupportedAlgorithm = errors.New("unsupported password hash algorithm")
)

// Algorithm is one concrete hashing scheme.
type Algorithm interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	NeedsUpgrade(encodedHash string) (bool, error)
	Recognizes(encodedHash string) bool
}

// Delegating hashes with a primary algorithm and verifies against whichever
// known algorithm produced the stored hash. Hashes from a legacy algorithm
// always report NeedsUpgrade so they migrate on the next successful login.
type Delegating struct {
	primary Algorithm
	legacy  []Algorithm
}

// NewDelegating returns a hasher that writes with primary and reads with
// primary or any of legacy.
func NewDelegating(primary Algorithm, legacy ...Algorithm) *Delegating {
	return &Delegating{primary: primary, legacy: legacy}
}

func (d *Delegating) Hash(password string) (string, error) {
	return d.primary.Hash(password)
}

func (d *Delegating) Verify(password, encodedHash string) (bool, error) {
	alg, err := d.lookup(encodedHash)
	if err != nil {
		return false, err
	}
	return alg.Verify(password, encodedHash)
}

func (d *Delegating) NeedsUpgrade(encodedHash string) (bool, error) {
	if d.primary.Recognizes(encodedHash) {
		return d.primary.NeedsUpgrade(encodedHash)
	}
	if _, err := d.lookup(encodedHash); err != nil {
		return false, err
	}
	return true, nil
}

func (d *Delegating) lookup(encodedHash string) (Algorithm, error) {
	if d.primary.Recognizes(encodedHash) {
		return d.primary, nil
	}
	for _, alg := range d.legacy {
		if alg.Recognizes(encodedHash) {
			return alg, nil
		}
	}
	return nil, ErrUnsupportedAlgorithm
}
