// Package domain contains entity without logic, just meta-data
package domain

import (
	"bytes"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
)

const MaxUserIDLen = 36

var (
	ErrUserIDEmpty   = errors.New("user id empty")
	ErrUserIDTooLong = errors.New("user id too long")
)

// UserID is always rendered as a string; numeric ids from storage-backed
// clients are accepted on input.
type UserID string

func (id *UserID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		s, err := strconv.Unquote(string(data))
		if err != nil {
			return errors.Wrap(err, "user id")
		}
		*id = UserID(s)
		return nil
	}
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if _, err := strconv.ParseFloat(string(data), 64); err != nil {
		return errors.Newf("user id: unexpected %s", data)
	}
	*id = UserID(data)
	return nil
}

func (id UserID) Validate() error {
	if len(id) == 0 {
		return ErrUserIDEmpty
	}
	if len(id) > MaxUserIDLen {
		return ErrUserIDTooLong
	}
	return nil
}

// Identity is what a verified credential says about its bearer.
type Identity struct {
	ID       UserID
	ExpireAt time.Time // zero means no expiry
}
