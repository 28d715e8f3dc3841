package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const (
	sessionFormatVersionCurrent = 1

	maxShortField  = 255
	maxAuthorities = 255
	maxTargetBytes = 4096
)

var ErrInvalidEncoding = errors.New("invalid session encoding")

// Encode serializes s into the compact binary form stored in Redis.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionFormatVersionCurrent)

	if err := writeShort(&buf, s.Username); err != nil {
		return nil, errors.New("username too long")
	}

	if len(s.Authorities) > maxAuthorities {
		return nil, errors.New("too many authorities")
	}
	buf.WriteByte(byte(len(s.Authorities)))
	for _, a := range s.Authorities {
		if err := writeShort(&buf, a); err != nil {
			return nil, errors.New("authority too long")
		}
	}

	if len(s.SavedTarget) > maxTargetBytes {
		return nil, errors.New("saved target too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(s.SavedTarget))); err != nil {
		return nil, err
	}
	buf.WriteString(s.SavedTarget)

	if err := writeShort(&buf, s.RememberMeSeries); err != nil {
		return nil, errors.New("remember-me series too long")
	}

	for _, v := range []int64{s.AuthenticatedAt, s.CreatedAt, s.ExpiresAt} {
		if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// Decode parses the output of [Encode]. Unknown versions and truncated
// input return ErrInvalidEncoding.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionFormatVersionCurrent {
		return nil, ErrInvalidEncoding
	}

	s := &Session{}

	if s.Username, err = readShort(reader); err != nil {
		return nil, err
	}

	count, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if count > 0 {
		s.Authorities = make([]string, 0, count)
	}
	for i := 0; i < int(count); i++ {
		a, err := readShort(reader)
		if err != nil {
			return nil, err
		}
		s.Authorities = append(s.Authorities, a)
	}

	var targetLen uint16
	if err := binary.Read(reader, binary.BigEndian, &targetLen); err != nil {
		return nil, err
	}
	if targetLen > maxTargetBytes {
		return nil, ErrInvalidEncoding
	}
	target := make([]byte, targetLen)
	if _, err := io.ReadFull(reader, target); err != nil {
		return nil, err
	}
	s.SavedTarget = string(target)

	if s.RememberMeSeries, err = readShort(reader); err != nil {
		return nil, err
	}

	for _, dst := range []*int64{&s.AuthenticatedAt, &s.CreatedAt, &s.ExpiresAt} {
		if err := binary.Read(reader, binary.BigEndian, dst); err != nil {
			return nil, err
		}
	}

	if reader.Len() != 0 {
		return nil, ErrInvalidEncoding
	}

	return s, nil
}

func writeShort(buf *bytes.Buffer, v string) error {
	if len(v) > maxShortField {
		return ErrInvalidEncoding
	}
	buf.WriteByte(byte(len(v)))
	buf.WriteString(v)
	return nil
}

func readShort(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(r, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}
