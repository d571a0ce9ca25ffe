package session

import (
	"encoding/binary"
	"errors"
	"time"
)

// ErrCorrupt is returned when a stored record cannot be decoded. Corrupt
// records are treated as absent by the store.
var ErrCorrupt = errors.New("session: corrupt record")

const (
	recordVersion = 1
	maxUserIDLen  = 255
)

// Record is the value stored per refresh session. The key is the SHA-256
// hash of the refresh token, so the record itself never holds the token.
type Record struct {
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the record's own deadline has passed at now.
// Redis TTL is the primary expiry; this is the backstop when TTLs drift.
func (r Record) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// encode packs r into a compact binary form:
// version(1) | len(userID)(1) | userID | createdAt unix(8) | expiresAt unix(8).
func (r Record) encode() ([]byte, error) {
	if r.UserID == "" || len(r.UserID) > maxUserIDLen {
		return nil, ErrCorrupt
	}
	buf := make([]byte, 0, 2+len(r.UserID)+16)
	buf = append(buf, recordVersion, byte(len(r.UserID)))
	buf = append(buf, r.UserID...)
	buf = binary.BigEndian.AppendUint64(buf, uint64(r.CreatedAt.Unix()))
	buf = binary.BigEndian.AppendUint64(buf, uint64(r.ExpiresAt.Unix()))
	return buf, nil
}

func decodeRecord(data []byte) (Record, error) {
	if len(data) < 2 || data[0] != recordVersion {
		return Record{}, ErrCorrupt
	}
	idLen := int(data[1])
	if idLen == 0 || len(data) != 2+idLen+16 {
		return Record{}, ErrCorrupt
	}
	userID := string(data[2 : 2+idLen])
	created := int64(binary.BigEndian.Uint64(data[2+idLen:]))
	expires := int64(binary.BigEndian.Uint64(data[2+idLen+8:]))
	return Record{
		UserID:    userID,
		CreatedAt: time.Unix(created, 0).UTC(),
		ExpiresAt: time.Unix(expires, 0).UTC(),
	}, nil
}
