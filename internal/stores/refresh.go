package stores

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RotateStatus is the outcome of an atomic refresh rotation.
type RotateStatus int64

const (
	RotateStatusNotFound RotateStatus = 0
	RotateStatusExpired  RotateStatus = 1
	RotateStatusReuse    RotateStatus = 2
	RotateStatusRotated  RotateStatus = 3
)

const (
	RevokeReasonRotated = "rotated"
	RevokeReasonReuse   = "reuse detected"
	RevokeReasonSignOut = "logged out"
)

var (
	ErrRefreshNotFound         = errors.New("refresh token not found")
	ErrRefreshRedisUnavailable = errors.New("refresh token redis unavailable")
)

// revokeFamiliesFn revokes the current record of every family the user owns
// and removes the family pointers together with the user's family set.
// ARGV layout shared by callers: [1]=now ms, [2]=record prefix, [3]=family pointer prefix.
const revokeFamiliesFn = `
local function revoke_families(userSetKey, now, reason)
  local families = redis.call('SMEMBERS', userSetKey)
  local count = 0
  for _, familyKey in ipairs(families) do
    local pointerKey = ARGV[3] .. familyKey
    local digest = redis.call('GET', pointerKey)
    if digest then
      local recordKey = ARGV[2] .. digest
      if redis.call('EXISTS', recordKey) == 1 and not redis.call('HGET', recordKey, 'revoked_at') then
        redis.call('HSET', recordKey, 'revoked_at', now, 'revoked_reason', reason)
        count = count + 1
      end
      redis.call('DEL', pointerKey)
    end
  end
  redis.call('DEL', userSetKey)
  return count
end
`

// issueRefreshLua stores a new active record for a family and physically
// removes the family's previous active record.
// KEYS[1] = record key
// KEYS[2] = family pointer key
// KEYS[3] = user family set key
// ARGV[1] = now ms (unused, keeps the shared layout)
// ARGV[2] = record prefix
// ARGV[3] = family pointer prefix
// ARGV[4] = digest
// ARGV[5] = ttl ms
// ARGV[6..12] = id, user_id, username, family_id, family_key, issued_at, expires_at
// ARGV[13] = created_by_ip
var issueRefreshLua = redis.NewScript(`
local previous = redis.call('GET', KEYS[2])
if previous and previous ~= ARGV[4] then
  redis.call('DEL', ARGV[2] .. previous)
end
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1],
  'id', ARGV[6], 'user_id', ARGV[7], 'username', ARGV[8],
  'family_id', ARGV[9], 'family_key', ARGV[10],
  'issued_at', ARGV[11], 'expires_at', ARGV[12], 'created_by_ip', ARGV[13])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
redis.call('SET', KEYS[2], ARGV[4], 'PX', ARGV[5])
redis.call('SADD', KEYS[3], ARGV[10])
redis.call('PEXPIRE', KEYS[3], ARGV[5])
return 1
`)

// rotateRefreshLua revokes the presented record and writes its successor in
// the same family, or detects reuse of an already revoked record.
// KEYS[1] = presented record key
// KEYS[2] = successor record key
// KEYS[3] = user family set key
// ARGV[1] = now ms
// ARGV[2] = record prefix
// ARGV[3] = family pointer prefix
// ARGV[4] = successor digest
// ARGV[5] = ttl ms
// ARGV[6] = successor id
// ARGV[7] = successor issued_at
// ARGV[8] = successor expires_at
// ARGV[9] = created_by_ip
// ARGV[10] = expected user_id
//
// Returns:
//
//	{0}                                  not found
//	{1}                                  expired
//	{2, user_id, username, revoked}      reuse detected
//	{3, user_id, username, family_id}    rotated
var rotateRefreshLua = redis.NewScript(revokeFamiliesFn + `
local fields = redis.call('HMGET', KEYS[1], 'user_id', 'username', 'family_id', 'family_key', 'expires_at', 'revoked_at')
local userID = fields[1]
if not userID or userID ~= ARGV[10] then
  return {0}
end

local expiresAt = tonumber(fields[5])
if not expiresAt or expiresAt <= tonumber(ARGV[1]) then
  return {1}
end

local username = fields[2] or ''
if fields[6] then
  local count = revoke_families(KEYS[3], ARGV[1], 'reuse detected')
  return {2, userID, username, count}
end

redis.call('HSET', KEYS[1], 'revoked_at', ARGV[1], 'revoked_reason', 'rotated', 'replaced_by', ARGV[6])

redis.call('DEL', KEYS[2])
redis.call('HSET', KEYS[2],
  'id', ARGV[6], 'user_id', userID, 'username', username,
  'family_id', fields[3], 'family_key', fields[4],
  'issued_at', ARGV[7], 'expires_at', ARGV[8], 'created_by_ip', ARGV[9])
redis.call('PEXPIRE', KEYS[2], ARGV[5])
redis.call('SET', ARGV[3] .. fields[4], ARGV[4], 'PX', ARGV[5])
redis.call('SADD', KEYS[3], fields[4])
redis.call('PEXPIRE', KEYS[3], ARGV[5])
return {3, userID, username, fields[3]}
`)

// revokeRefreshLua revokes a single record. Revoking an already revoked
// record keeps the first revocation.
// KEYS[1] = record key
// ARGV[1] = now ms
// ARGV[2] = reason
// ARGV[3] = family pointer prefix
// ARGV[4] = digest
// ARGV[5] = user family set prefix
//
// Returns 0 not found, 1 already revoked, 2 revoked now.
var revokeRefreshLua = redis.NewScript(`
local fields = redis.call('HMGET', KEYS[1], 'user_id', 'family_key', 'revoked_at')
if not fields[1] then
  return 0
end
if not fields[3] then
  redis.call('HSET', KEYS[1], 'revoked_at', ARGV[1], 'revoked_reason', ARGV[2])
end
local pointerKey = ARGV[3] .. fields[2]
if redis.call('GET', pointerKey) == ARGV[4] then
  redis.call('DEL', pointerKey)
  redis.call('SREM', ARGV[5] .. fields[1], fields[2])
end
if fields[3] then
  return 1
end
return 2
`)

// KEYS[1] = user family set key
// ARGV[1] = now ms, ARGV[2] = record prefix, ARGV[3] = family pointer prefix, ARGV[4] = reason
var revokeAllRefreshLua = redis.NewScript(revokeFamiliesFn + `
return revoke_families(KEYS[1], ARGV[1], ARGV[4])
`)

// RefreshRecord is the persisted state of one refresh token. Times are unix
// milliseconds; RevokedAt is zero while the token is active.
type RefreshRecord struct {
	ID            string
	UserID        string
	Username      string
	FamilyID      string
	FamilyKey     string
	IssuedAt      int64
	ExpiresAt     int64
	CreatedByIP   string
	RevokedAt     int64
	RevokedReason string
	ReplacedBy    string
}

// Revoked reports whether the record has been revoked.
func (r *RefreshRecord) Revoked() bool {
	return r.RevokedAt != 0
}

// RotateInput describes one rotation. Presented must come from a prior Get
// of PresentedDigest.
type RotateInput struct {
	Presented       *RefreshRecord
	PresentedDigest string
	SuccessorDigest string
	SuccessorID     string
	CreatedByIP     string
	Now             time.Time
	TTL             time.Duration
}

// RotateResult carries the script outcome. Revoked is the number of records
// revoked by reuse handling.
type RotateResult struct {
	Status   RotateStatus
	UserID   string
	Username string
	FamilyID string
	Revoked  int
}

// RefreshStore persists refresh token records, their rotation lineage and the
// per-family active pointer in Redis.
//
// Keys:
//
//	{prefix}:t:{digest}     record hash
//	{prefix}:f:{familyKey}  digest of the family's active record
//	{prefix}:u:{userID}     set of the user's family keys
type RefreshStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewRefreshStore(redisClient redis.UniversalClient, prefix string) *RefreshStore {
	if prefix == "" {
		prefix = "arf"
	}
	return &RefreshStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *RefreshStore) recordPrefix() string  { return s.prefix + ":t:" }
func (s *RefreshStore) familyPrefix() string  { return s.prefix + ":f:" }
func (s *RefreshStore) userSetPrefix() string { return s.prefix + ":u:" }

// Issue stores record as the active token of its family. The family's
// previous active token stops existing.
func (s *RefreshStore) Issue(ctx context.Context, digest string, record *RefreshRecord, ttl time.Duration) error {
	if record == nil || digest == "" || record.UserID == "" || record.FamilyKey == "" {
		return errors.New("refresh record requires digest, user id and family key")
	}
	if ttl < time.Millisecond {
		return errors.New("refresh record ttl must be positive")
	}

	err := issueRefreshLua.Run(ctx, s.redis,
		[]string{
			s.recordPrefix() + digest,
			s.familyPrefix() + record.FamilyKey,
			s.userSetPrefix() + record.UserID,
		},
		record.IssuedAt,
		s.recordPrefix(),
		s.familyPrefix(),
		digest,
		ttl.Milliseconds(),
		record.ID,
		record.UserID,
		record.Username,
		record.FamilyID,
		record.FamilyKey,
		record.IssuedAt,
		record.ExpiresAt,
		record.CreatedByIP,
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRefreshRedisUnavailable, err)
	}
	return nil
}

// Get returns the record stored under digest, revoked or not.
func (s *RefreshStore) Get(ctx context.Context, digest string) (*RefreshRecord, error) {
	fields, err := s.redis.HGetAll(ctx, s.recordPrefix()+digest).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRefreshRedisUnavailable, err)
	}
	if len(fields) == 0 || fields["user_id"] == "" {
		return nil, ErrRefreshNotFound
	}
	return decodeRefreshRecord(fields)
}

// Rotate atomically replaces the presented token with its successor. When
// the presented token was already revoked every family of its owner is
// revoked instead and no successor is written.
func (s *RefreshStore) Rotate(ctx context.Context, in RotateInput) (RotateResult, error) {
	if in.Presented == nil {
		return RotateResult{Status: RotateStatusNotFound}, nil
	}

	issuedAt := in.Now.UnixMilli()
	raw, err := rotateRefreshLua.Run(ctx, s.redis,
		[]string{
			s.recordPrefix() + in.PresentedDigest,
			s.recordPrefix() + in.SuccessorDigest,
			s.userSetPrefix() + in.Presented.UserID,
		},
		issuedAt,
		s.recordPrefix(),
		s.familyPrefix(),
		in.SuccessorDigest,
		in.TTL.Milliseconds(),
		in.SuccessorID,
		issuedAt,
		in.Now.Add(in.TTL).UnixMilli(),
		in.CreatedByIP,
		in.Presented.UserID,
	).Slice()
	if err != nil {
		return RotateResult{}, fmt.Errorf("%w: %v", ErrRefreshRedisUnavailable, err)
	}
	if len(raw) == 0 {
		return RotateResult{}, fmt.Errorf("%w: empty rotate result", ErrRefreshRedisUnavailable)
	}

	status, ok := raw[0].(int64)
	if !ok {
		return RotateResult{}, fmt.Errorf("%w: unexpected rotate status type", ErrRefreshRedisUnavailable)
	}

	result := RotateResult{Status: RotateStatus(status)}
	switch result.Status {
	case RotateStatusNotFound, RotateStatusExpired:
		return result, nil
	case RotateStatusReuse:
		if len(raw) < 4 {
			return RotateResult{}, fmt.Errorf("%w: short reuse result", ErrRefreshRedisUnavailable)
		}
		result.UserID, _ = raw[1].(string)
		result.Username, _ = raw[2].(string)
		count, _ := raw[3].(int64)
		result.Revoked = int(count)
		return result, nil
	case RotateStatusRotated:
		if len(raw) < 4 {
			return RotateResult{}, fmt.Errorf("%w: short rotate result", ErrRefreshRedisUnavailable)
		}
		result.UserID, _ = raw[1].(string)
		result.Username, _ = raw[2].(string)
		result.FamilyID, _ = raw[3].(string)
		return result, nil
	default:
		return RotateResult{}, fmt.Errorf("%w: unknown rotate status %d", ErrRefreshRedisUnavailable, status)
	}
}

// Revoke marks the record stored under digest as revoked. It reports whether
// this call performed the revocation; unknown and already revoked tokens are
// not errors.
func (s *RefreshStore) Revoke(ctx context.Context, digest, reason string, now time.Time) (bool, error) {
	status, err := revokeRefreshLua.Run(ctx, s.redis,
		[]string{s.recordPrefix() + digest},
		now.UnixMilli(),
		reason,
		s.familyPrefix(),
		digest,
		s.userSetPrefix(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRefreshRedisUnavailable, err)
	}
	return status == 2, nil
}

// RevokeAll revokes the active token of every family owned by userID and
// returns how many were revoked.
func (s *RefreshStore) RevokeAll(ctx context.Context, userID, reason string, now time.Time) (int, error) {
	count, err := revokeAllRefreshLua.Run(ctx, s.redis,
		[]string{s.userSetPrefix() + userID},
		now.UnixMilli(),
		s.recordPrefix(),
		s.familyPrefix(),
		reason,
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRefreshRedisUnavailable, err)
	}
	return int(count), nil
}

// ActiveFamilies returns the family keys that currently hold an active token for userID.
func (s *RefreshStore) ActiveFamilies(ctx context.Context, userID string) ([]string, error) {
	families, err := s.redis.SMembers(ctx, s.userSetPrefix()+userID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRefreshRedisUnavailable, err)
	}
	return families, nil
}

func decodeRefreshRecord(fields map[string]string) (*RefreshRecord, error) {
	record := &RefreshRecord{
		ID:            fields["id"],
		UserID:        fields["user_id"],
		Username:      fields["username"],
		FamilyID:      fields["family_id"],
		FamilyKey:     fields["family_key"],
		CreatedByIP:   fields["created_by_ip"],
		RevokedReason: fields["revoked_reason"],
		ReplacedBy:    fields["replaced_by"],
	}

	var err error
	if record.IssuedAt, err = parseMillis(fields["issued_at"]); err != nil {
		return nil, fmt.Errorf("%w: issued_at: %v", ErrRefreshRedisUnavailable, err)
	}
	if record.ExpiresAt, err = parseMillis(fields["expires_at"]); err != nil {
		return nil, fmt.Errorf("%w: expires_at: %v", ErrRefreshRedisUnavailable, err)
	}
	if record.RevokedAt, err = parseMillis(fields["revoked_at"]); err != nil {
		return nil, fmt.Errorf("%w: revoked_at: %v", ErrRefreshRedisUnavailable, err)
	}

	return record, nil
}

func parseMillis(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.ParseInt(v, 10, 64)
}
