package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"

	"github.com/Chative-core-poc-v1/loanadvisor/internal/agent/model"
	errx "github.com/Chative-core-poc-v1/loanadvisor/internal/core/error"
	logx "github.com/Chative-core-poc-v1/loanadvisor/pkg/logger"
)

const (
	fieldVerdict     = "moderation_verdict"
	fieldLoanToApply = "loan_to_apply"
)

// RedisConversationRepository stores a session as an append-only Redis list
// of JSON messages plus a hash holding the turn flags.
type RedisConversationRepository struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisConversationRepository(rdb redis.Cmdable, ttl time.Duration) *RedisConversationRepository {
	return &RedisConversationRepository{rdb: rdb, ttl: ttl}
}

func (r *RedisConversationRepository) messagesKey(sessionID string) string {
	return fmt.Sprintf("conversation:%s:messages", sessionID)
}

func (r *RedisConversationRepository) metaKey(sessionID string) string {
	return fmt.Sprintf("conversation:%s:meta", sessionID)
}

func (r *RedisConversationRepository) Load(ctx context.Context, sessionID string) (*model.ConversationState, error) {
	key := r.messagesKey(sessionID)

	rows, err := r.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil && err != redis.Nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to load conversation from redis")
		return nil, errx.WrapRedis(err)
	}

	state := model.NewConversationState(sessionID)
	for i, s := range rows {
		var m schema.Message
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			logx.Error().Err(err).Str("session_id", sessionID).Int("index", i).Msg("failed to unmarshal message")
			return nil, fmt.Errorf("unmarshal message at index %d: %w", i, err)
		}
		state.Messages = append(state.Messages, &m)
	}
	state.Checkpointed = len(state.Messages)

	meta, err := r.rdb.HGetAll(ctx, r.metaKey(sessionID)).Result()
	if err != nil && err != redis.Nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to load conversation flags from redis")
		return nil, errx.WrapRedis(err)
	}
	state.ModerationVerdict = model.Verdict(meta[fieldVerdict])
	if v := meta[fieldLoanToApply]; v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse loan_to_apply %q: %w", v, err)
		}
		state.SetLoanToApply(id)
	}
	return state, nil
}

// Save appends the messages added since Load and rewrites the flags in one
// MULTI/EXEC transaction.
func (r *RedisConversationRepository) Save(ctx context.Context, state *model.ConversationState) error {
	if state == nil || state.SessionID == "" {
		return fmt.Errorf("save conversation: session id is required")
	}
	if state.Checkpointed > len(state.Messages) {
		return fmt.Errorf("save conversation: checkpoint %d beyond %d messages", state.Checkpointed, len(state.Messages))
	}

	pending := state.Pending()
	rows := make([]any, 0, len(pending))
	for _, m := range pending {
		b, err := json.Marshal(m)
		if err != nil {
			logx.Error().Err(err).Str("session_id", state.SessionID).Msg("failed to marshal message")
			return fmt.Errorf("marshal message: %w", err)
		}
		rows = append(rows, b)
	}

	loan := ""
	if state.LoanToApply != nil {
		loan = strconv.FormatInt(*state.LoanToApply, 10)
	}

	key, meta := r.messagesKey(state.SessionID), r.metaKey(state.SessionID)
	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if len(rows) > 0 {
			p.RPush(ctx, key, rows...)
		}
		p.HSet(ctx, meta, fieldVerdict, string(state.ModerationVerdict), fieldLoanToApply, loan)
		// extend TTL on touch
		if r.ttl > 0 {
			p.Expire(ctx, key, r.ttl)
			p.Expire(ctx, meta, r.ttl)
		}
		return nil
	})
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to save conversation to redis")
		return errx.WrapRedis(err)
	}

	state.Checkpointed = len(state.Messages)
	return nil
}

func (r *RedisConversationRepository) Clear(ctx context.Context, sessionID string) error {
	key := r.messagesKey(sessionID)
	if err := r.rdb.Del(ctx, key, r.metaKey(sessionID)).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to delete conversation from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisConversationRepository) GetMessageCount(ctx context.Context, sessionID string) (int, error) {
	key := r.messagesKey(sessionID)
	n, err := r.rdb.LLen(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to get message count from redis")
		return 0, errx.WrapRedis(err)
	}
	return int(n), nil
}

var _ model.ConversationRepository = (*RedisConversationRepository)(nil)
