package stores

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const singleUseRecordVersionV1 = 1

// Purpose scopes a single-use token. Tokens of one purpose never satisfy another.
type Purpose uint8

const (
	PurposeVerification  Purpose = 1
	PurposePasswordReset Purpose = 2
)

func (p Purpose) String() string {
	switch p {
	case PurposeVerification:
		return "verification"
	case PurposePasswordReset:
		return "password_reset"
	default:
		return "purpose_" + strconv.Itoa(int(p))
	}
}

var (
	ErrSingleUseNotFound         = errors.New("single-use token not found or expired")
	ErrSingleUseRedisUnavailable = errors.New("single-use token redis unavailable")
)

// issueSingleUseLua replaces the owner's previous token of the same purpose.
// KEYS[1] = record key
// KEYS[2] = owner key
// ARGV[1] = encoded record
// ARGV[2] = ttl in milliseconds
// ARGV[3] = token digest
// ARGV[4] = record key prefix
var issueSingleUseLua = redis.NewScript(`
local previous = redis.call('GET', KEYS[2])
if previous and previous ~= ARGV[3] then
  redis.call('DEL', ARGV[4] .. previous)
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
redis.call('SET', KEYS[2], ARGV[3], 'PX', ARGV[2])
return 1
`)

// consumeSingleUseLua atomically performs GET→DEL→expiry check on a record.
// The record is deleted whether or not it is still valid.
// KEYS[1] = record key
// ARGV[1] = current unix milliseconds
// ARGV[2] = owner key prefix
// ARGV[3] = token digest
//
// Returns:
//
//	record bytes on success
//	error string: "not_found", "expired"
var consumeSingleUseLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end
redis.call('DEL', KEYS[1])

-- version(1) purpose(1) expiresAt(8 big-endian) userIDLen(2 big-endian) userID ...
if string.byte(data, 1) ~= 1 or #data < 12 then
  return {err='not_found'}
end

local e0,e1,e2,e3,e4,e5,e6,e7 = string.byte(data, 3, 10)
local expiresAt = e0
for _, b in ipairs({e1,e2,e3,e4,e5,e6,e7}) do
  expiresAt = expiresAt * 256 + b
end

local userIDLen = string.byte(data, 11) * 256 + string.byte(data, 12)
local userID = string.sub(data, 13, 12 + userIDLen)
local ownerKey = ARGV[2] .. userID
if redis.call('GET', ownerKey) == ARGV[3] then
  redis.call('DEL', ownerKey)
end

if expiresAt <= tonumber(ARGV[1]) then
  return {err='expired'}
end
return data
`)

// SingleUseRecord is the persisted form of a verification or password-reset
// token. ExpiresAt is unix milliseconds.
type SingleUseRecord struct {
	ID        string
	UserID    string
	Purpose   Purpose
	ExpiresAt int64
}

// SingleUseStore keeps at most one live token per (user, purpose) and hands
// each one out exactly once.
type SingleUseStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewSingleUseStore(redisClient redis.UniversalClient, prefix string) *SingleUseStore {
	if prefix == "" {
		prefix = "asu"
	}
	return &SingleUseStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *SingleUseStore) recordPrefix(purpose Purpose) string {
	return s.prefix + ":" + purpose.String() + ":t:"
}

func (s *SingleUseStore) ownerPrefix(purpose Purpose) string {
	return s.prefix + ":" + purpose.String() + ":u:"
}

// Issue stores record under digest and supersedes the owner's previous token
// of the same purpose in one atomic step.
func (s *SingleUseStore) Issue(ctx context.Context, digest string, record *SingleUseRecord, ttl time.Duration) error {
	if record == nil || record.UserID == "" || digest == "" {
		return errors.New("single-use record requires digest and user id")
	}
	if ttl < time.Millisecond {
		return errors.New("single-use record ttl must be positive")
	}

	encoded, err := encodeSingleUseRecord(record)
	if err != nil {
		return err
	}

	recordPrefix := s.recordPrefix(record.Purpose)
	err = issueSingleUseLua.Run(ctx, s.redis,
		[]string{recordPrefix + digest, s.ownerPrefix(record.Purpose) + record.UserID},
		string(encoded),
		ttl.Milliseconds(),
		digest,
		recordPrefix,
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSingleUseRedisUnavailable, err)
	}

	return nil
}

// Consume removes the record stored under digest and returns it when it was
// still valid at now. Two concurrent calls for the same digest never both succeed.
func (s *SingleUseStore) Consume(ctx context.Context, purpose Purpose, digest string, now time.Time) (*SingleUseRecord, error) {
	result, err := consumeSingleUseLua.Run(ctx, s.redis,
		[]string{s.recordPrefix(purpose) + digest},
		now.UnixMilli(),
		s.ownerPrefix(purpose),
		digest,
	).Result()
	if err != nil {
		switch err.Error() {
		case "not_found", "expired":
			return nil, ErrSingleUseNotFound
		default:
			return nil, fmt.Errorf("%w: %v", ErrSingleUseRedisUnavailable, err)
		}
	}

	data, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected lua result type", ErrSingleUseRedisUnavailable)
	}

	record, decErr := decodeSingleUseRecord([]byte(data))
	if decErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingleUseRedisUnavailable, decErr)
	}
	if record.Purpose != purpose {
		return nil, ErrSingleUseNotFound
	}

	return record, nil
}

// Active returns the digest of the owner's live token, or "" when none exists.
func (s *SingleUseStore) Active(ctx context.Context, purpose Purpose, userID string) (string, error) {
	digest, err := s.redis.Get(ctx, s.ownerPrefix(purpose)+userID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("%w: %v", ErrSingleUseRedisUnavailable, err)
	}
	return digest, nil
}

// Single-use records are laid out as
//
//	version(1) purpose(1) expiresAt(8) len(userID)(2) userID len(id)(1) id
//
// with big-endian integers. consumeSingleUseLua reads the same layout.
const singleUseHeaderLen = 1 + 1 + 8 + 2

func encodeSingleUseRecord(record *SingleUseRecord) ([]byte, error) {
	switch {
	case len(record.UserID) > math.MaxUint16:
		return nil, errors.New("single-use record user id too long")
	case len(record.ID) > math.MaxUint8:
		return nil, errors.New("single-use record id too long")
	}

	out := make([]byte, 0, singleUseHeaderLen+len(record.UserID)+1+len(record.ID))
	out = append(out, singleUseRecordVersionV1, byte(record.Purpose))
	out = binary.BigEndian.AppendUint64(out, uint64(record.ExpiresAt))
	out = binary.BigEndian.AppendUint16(out, uint16(len(record.UserID)))
	out = append(out, record.UserID...)
	out = append(out, byte(len(record.ID)))
	out = append(out, record.ID...)
	return out, nil
}

var errShortSingleUseRecord = errors.New("truncated single-use record")

func decodeSingleUseRecord(data []byte) (*SingleUseRecord, error) {
	if len(data) < singleUseHeaderLen {
		return nil, errShortSingleUseRecord
	}
	if data[0] != singleUseRecordVersionV1 {
		return nil, fmt.Errorf("invalid single-use record version %d", data[0])
	}

	record := &SingleUseRecord{
		Purpose:   Purpose(data[1]),
		ExpiresAt: int64(binary.BigEndian.Uint64(data[2:10])),
	}
	rest := data[singleUseHeaderLen:]

	n := int(binary.BigEndian.Uint16(data[10:12]))
	if len(rest) < n+1 {
		return nil, errShortSingleUseRecord
	}
	record.UserID, rest = string(rest[:n]), rest[n:]

	n, rest = int(rest[0]), rest[1:]
	if len(rest) < n {
		return nil, errShortSingleUseRecord
	}
	record.ID = string(rest[:n])
	return record, nil
}
